// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/asn1"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/foundationdevices/cosign2/cosign2"
	"github.com/foundationdevices/cosign2/signing"
)

// writeKeyPEM generates a secp256k1 key and writes it to dir/name as a
// SEC1 "EC PRIVATE KEY" PEM block, the format runSign expects.
func writeKeyPEM(t *testing.T, dir, name string) (*secp256k1.PrivateKey, string) {
	t.Helper()
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	der, err := asn1.Marshal(struct {
		Version    int
		PrivateKey []byte
	}{1, key.Serialize()})
	require.NoError(t, err)

	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, block, 0o600))
	return key, path
}

// resetSignFlags clears package-level flag vars between table-driven runs,
// since signFlags is a package-level *flag.FlagSet reused across calls.
func resetSignFlags() {
	signPubkey, signSecret, signConfigPath = "", "", ""
	signInput, signOutput = "", ""
	signInPlace, signDeveloper = false, false
	signTarget = ""
	signFirmwareVersion = ""
	signKnownPubkeys = nil
}

func TestTrustedSignHeaderlessFile(t *testing.T) {
	resetSignFlags()
	dir := t.TempDir()
	_, keyPath := writeKeyPEM(t, dir, "secret1.pem")

	input := filepath.Join(dir, "firmware.bin")
	require.NoError(t, os.WriteFile(input, []byte("Hello, world!"), 0o600))
	output := filepath.Join(dir, "signed.bin")

	err := runSign([]string{
		"-firmware-version", "1.2.4-alpha1",
		"-target", "atsama5d27-keyos",
		"-secret", keyPath,
		"-i", input,
		"-o", output,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	h, err := cosign2.ParseUnverified(data)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, "1.2.4-alpha1", h.Version())
	require.EqualValues(t, 13, h.FirmwareSize())
	require.NotEqual(t, [64]byte{}, h.Signature1())
	require.Equal(t, [64]byte{}, h.Signature2())
}

func TestAddSecondSignatureViaCLI(t *testing.T) {
	resetSignFlags()
	dir := t.TempDir()
	_, key1Path := writeKeyPEM(t, dir, "secret1.pem")
	_, key2Path := writeKeyPEM(t, dir, "secret2.pem")

	input := filepath.Join(dir, "firmware.bin")
	require.NoError(t, os.WriteFile(input, []byte("Hello, world!"), 0o600))
	stage1 := filepath.Join(dir, "stage1.bin")

	require.NoError(t, runSign([]string{
		"-firmware-version", "1.2.4-alpha1",
		"-target", "atsama5d27-keyos",
		"-secret", key1Path,
		"-i", input,
		"-o", stage1,
	}))

	resetSignFlags()
	stage2 := filepath.Join(dir, "stage2.bin")
	require.NoError(t, runSign([]string{
		"-secret", key2Path,
		"-i", stage1,
		"-o", stage2,
	}))

	data, err := os.ReadFile(stage2)
	require.NoError(t, err)
	h, err := cosign2.ParseUnverified(data)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.NotEqual(t, [64]byte{}, h.Signature1())
	require.NotEqual(t, [64]byte{}, h.Signature2())
	require.NotEqual(t, h.Pubkey1(), h.Pubkey2())
}

// TestTamperedSignatureDetectedByDump mirrors scenario S4: take a
// two-signature file and flip a byte inside signature2 (wire offset
// [176,240)); the tampered file must fail full verification with
// "invalid signature2".
func TestTamperedSignatureDetectedByDump(t *testing.T) {
	resetSignFlags()
	dir := t.TempDir()
	_, key1Path := writeKeyPEM(t, dir, "secret1.pem")
	_, key2Path := writeKeyPEM(t, dir, "secret2.pem")

	input := filepath.Join(dir, "firmware.bin")
	require.NoError(t, os.WriteFile(input, []byte("Hello, world!"), 0o600))
	stage1 := filepath.Join(dir, "stage1.bin")
	require.NoError(t, runSign([]string{
		"-firmware-version", "1.2.4-alpha1",
		"-target", "atsama5d27-keyos",
		"-secret", key1Path,
		"-i", input,
		"-o", stage1,
	}))

	resetSignFlags()
	output := filepath.Join(dir, "stage2.bin")
	require.NoError(t, runSign([]string{
		"-secret", key2Path,
		"-i", stage1,
		"-o", output,
	}))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	data[200] ^= 0xff // inside signature2's [176,240) range
	require.NoError(t, os.WriteFile(output, data, 0o600))

	_, err = cosign2.Parse(data, nil, signing.NewVerifierBackend())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid signature2")

	dumpInput = output
	t.Cleanup(func() { dumpInput = "" })
	err = runDump(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid signature2")
}

func TestDeveloperResignRejected(t *testing.T) {
	resetSignFlags()
	dir := t.TempDir()
	_, key1Path := writeKeyPEM(t, dir, "secret1.pem")
	_, key2Path := writeKeyPEM(t, dir, "secret2.pem")

	input := filepath.Join(dir, "firmware.bin")
	require.NoError(t, os.WriteFile(input, []byte("Hello, world!"), 0o600))
	developerSigned := filepath.Join(dir, "dev.bin")

	require.NoError(t, runSign([]string{
		"-developer",
		"-firmware-version", "1.0.0",
		"-target", "atsama5d27-keyos",
		"-secret", key1Path,
		"-i", input,
		"-o", developerSigned,
	}))

	resetSignFlags()
	output := filepath.Join(dir, "dev-resigned.bin")
	err := runSign([]string{
		"-developer",
		"-secret", key2Path,
		"-i", developerSigned,
		"-o", output,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "signature2 already present")
}
