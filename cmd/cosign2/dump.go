// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/foundationdevices/cosign2/cosign2"
	"github.com/foundationdevices/cosign2/signing"
)

var dumpFlags = flag.NewFlagSet("dump", flag.ContinueOnError)

var dumpInput string

func init() {
	dumpFlags.StringVar(&dumpInput, "input", "", "`path` to the firmware file to dump")
	dumpFlags.StringVar(&dumpInput, "i", "", "shorthand for -input")
}

func runDump(args []string) error {
	if err := dumpFlags.Parse(args); err != nil {
		return err
	}
	if dumpInput == "" {
		return fmt.Errorf("-input is required")
	}

	data, err := os.ReadFile(dumpInput)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	h, err := cosign2.Parse(data, nil, signing.NewVerifierBackend())
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Println("no header found")
		return nil
	}
	printHeader(h)
	return nil
}

func printHeader(h *cosign2.Header) {
	fmt.Printf("magic:       %s\n", h.Magic())
	ts := time.Unix(int64(h.Timestamp()), 0).UTC()
	fmt.Printf("timestamp:   %d (%s)\n", h.Timestamp(), ts.Format(time.RFC1123))
	fmt.Printf("date:        %s\n", h.Date())
	fmt.Printf("version:     %s\n", h.Version())
	fmt.Printf("fw size:     %s (%d bytes)\n", humanSize(h.FirmwareSize()), h.FirmwareSize())

	pub1 := h.Pubkey1()
	sig1 := h.Signature1()
	fmt.Printf("pubkey1:     %s\n", hex.EncodeToString(pub1[:]))
	printSplitSignature("signature1: ", sig1)

	pub2 := h.Pubkey2()
	sig2 := h.Signature2()
	fmt.Printf("pubkey2:     %s\n", hex.EncodeToString(pub2[:]))
	printSplitSignature("signature2: ", sig2)
}

func printSplitSignature(label string, sig [64]byte) {
	fmt.Printf("%s %s\n", label, hex.EncodeToString(sig[:32]))
	indent := make([]byte, len(label))
	for i := range indent {
		indent[i] = ' '
	}
	fmt.Printf("%s %s\n", string(indent), hex.EncodeToString(sig[32:]))
}

func humanSize(n uint32) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for fn := uint64(n) / unit; fn >= unit; fn /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
