// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/foundationdevices/cosign2/config"
	"github.com/foundationdevices/cosign2/cosign2"
	"github.com/foundationdevices/cosign2/signing"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

var signFlags = flag.NewFlagSet("sign", flag.ContinueOnError)

var (
	signPubkey          string
	signSecret          string
	signConfigPath      string
	signInput           string
	signInPlace         bool
	signOutput          string
	signFirmwareVersion string
	signDeveloper       bool
	signTarget          string
	signKnownPubkeys    stringList
)

// stringList collects repeated -known-pubkey flags.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func init() {
	signFlags.StringVar(&signPubkey, "pubkey", "", "expected public key in hex, checked against the secret key")
	signFlags.StringVar(&signSecret, "secret", "", "`path` to the PEM-encoded secret key")
	signFlags.StringVar(&signConfigPath, "config", "", "`path` to a TOML config file")
	signFlags.StringVar(&signConfigPath, "c", "", "shorthand for -config")
	signFlags.StringVar(&signInput, "input", "", "`path` to the firmware file")
	signFlags.StringVar(&signInput, "i", "", "shorthand for -input")
	signFlags.BoolVar(&signInPlace, "in-place", false, "update the firmware file in place")
	signFlags.StringVar(&signOutput, "output", "", "`path` to write the signed firmware file")
	signFlags.StringVar(&signOutput, "o", "", "shorthand for -output")
	signFlags.StringVar(&signFirmwareVersion, "firmware-version", "", "SemVer version to write in the header")
	signFlags.BoolVar(&signDeveloper, "developer", false, "sign as a developer, filling in only the second signature")
	signFlags.StringVar(&signTarget, "target", "", "target device; valid values: \"atsama5d27-keyos\"")
	signFlags.Var(&signKnownPubkeys, "known-pubkey", "known public key in hex to accept signatures from (repeatable)")
}

func runSign(args []string) error {
	if err := signFlags.Parse(args); err != nil {
		return err
	}

	var cfg config.Config
	if signConfigPath != "" {
		c, err := config.Load(signConfigPath)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		cfg = *c
	}

	pubkeyHex, err := config.MergeString("pubkey", signPubkey, cfg.Pubkey)
	if err != nil {
		return err
	}
	secretPath, err := config.MergeString("secret", signSecret, cfg.Secret)
	if err != nil {
		return err
	}
	if secretPath == "" {
		return fmt.Errorf("user did not specify a secret key")
	}
	knownPubkeysHex, err := config.MergeStrings("known_pubkeys", signKnownPubkeys, cfg.KnownPubkeys)
	if err != nil {
		return err
	}
	target, err := config.MergeString("target", signTarget, cfg.Target)
	if err != nil {
		return err
	}
	if target != "" && target != "atsama5d27-keyos" {
		return fmt.Errorf("user specified invalid target: %q", target)
	}

	if signInPlace && signOutput != "" {
		return fmt.Errorf("cannot specify both --in-place and --output (-o)")
	}
	if !signInPlace && signOutput == "" {
		return fmt.Errorf("must specify either --in-place or --output (-o)")
	}

	pemData, err := os.ReadFile(secretPath)
	if err != nil {
		return fmt.Errorf("failed to read PEM file: %w", err)
	}
	secretKey, err := signing.LoadPEMPrivateKey(pemData)
	if err != nil {
		return err
	}
	log.Debug().Str("secret", secretPath).Msg("loaded signing key")

	if pubkeyHex != "" {
		expected, err := decodeHexPubkey(pubkeyHex)
		if err != nil {
			return fmt.Errorf("user specified invalid public key hex")
		}
		var actual [33]byte
		copy(actual[:], secretKey.PubKey().SerializeCompressed())
		if expected != actual {
			return fmt.Errorf("secret key does not match --pubkey")
		}
	}

	var knownPubkeys [][33]byte
	for _, kp := range knownPubkeysHex {
		decoded, err := decodeHexPubkey(kp)
		if err != nil {
			return fmt.Errorf("user specified invalid known public key: %q", kp)
		}
		knownPubkeys = append(knownPubkeys, decoded)
	}

	firmwareData, err := os.ReadFile(signInput)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	backend := signing.NewSignerBackend(secretKey)

	var header *cosign2.Header
	var firmware []byte
	if probe, err := cosign2.ParseUnverified(firmwareData); err == nil && probe != nil {
		firmware = firmwareData[cosign2.Size:]
		h, err := cosign2.Parse(firmwareData, knownPubkeys, signing.NewVerifierBackend())
		if err != nil {
			return fmt.Errorf("existing header failed verification: %w", err)
		}
		if signFirmwareVersion != "" && signFirmwareVersion != h.Version() {
			return fmt.Errorf("user specified --firmware-version %q does not match header's %q", signFirmwareVersion, h.Version())
		}
		if target != "" && h.Magic() != cosign2.Atsama5d27KeyOs {
			return fmt.Errorf("user specified --target %q does not match header's magic", target)
		}
		if err := h.AddSecondSignature(backend); err != nil {
			return err
		}
		header = h
	} else {
		firmware = firmwareData
		role := cosign2.SignerTrusted
		if signDeveloper {
			role = cosign2.SignerDeveloper
		}
		version := signFirmwareVersion
		if version == "" {
			return fmt.Errorf("-firmware-version is required for new headers")
		}
		header, err = cosign2.SignNew(cosign2.Atsama5d27KeyOs, version, uint32(time.Now().Unix()), role, firmware, backend)
		if err != nil {
			return err
		}
	}

	log.Info().Str("version", header.Version()).Uint32("size", header.FirmwareSize()).Msg("firmware signed")
	return writeOutput(header, firmware, knownPubkeys)
}

func decodeHexPubkey(s string) ([33]byte, error) {
	var out [33]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 33 {
		return out, fmt.Errorf("invalid public key hex")
	}
	copy(out[:], b)
	return out, nil
}

func writeOutput(header *cosign2.Header, firmware []byte, knownPubkeys [][33]byte) error {
	buf := make([]byte, cosign2.Size)
	if err := header.Serialize(buf); err != nil {
		return err
	}

	outputPath := signOutput
	var out *os.File
	var tmpPath string
	if signInPlace {
		dir := filepath.Dir(signInput)
		tmp, err := os.CreateTemp(dir, "cosign2_*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		out = tmp
		tmpPath = tmp.Name()
		outputPath = signInput
	} else {
		f, err := os.Create(signOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		out = f
	}

	if _, err := out.Write(buf); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := out.Write(firmware); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write firmware: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	if signInPlace {
		if err := moveFile(tmpPath, outputPath); err != nil {
			return err
		}
	}

	return sanityCheck(outputPath, knownPubkeys)
}

// moveFile renames src to dst, falling back to copy-then-remove if the
// rename fails (e.g. across filesystems).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open temp file for fallback copy: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy temp file to destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	_ = os.Remove(src)
	return nil
}

// sanityCheck re-reads the file just written and fully verifies it,
// catching a signature that failed to round-trip rather than merely
// confirming the header bytes are well-formed.
func sanityCheck(path string, knownPubkeys [][33]byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to re-read output file: %w", err)
	}
	h, err := cosign2.Parse(data, knownPubkeys, signing.NewVerifierBackend())
	if err != nil {
		return fmt.Errorf("failed to verify output file after writing: %w", err)
	}
	if h == nil {
		return fmt.Errorf("output file has no header after writing")
	}
	return nil
}
