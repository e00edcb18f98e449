// SPDX-License-Identifier: Apache-2.0

package bootloader

import (
	"io"

	"github.com/foundationdevices/cosign2/cosign2"
)

// BootState tracks progress through a firmware update, persisted only in
// RAM across messages (not across power cycles) — a full update is
// expected to complete within a single bootloader session.
type BootState struct {
	Offset        uint32
	CurrentSector uint32
	LastPacketIdx uint32
}

// Phase is the device's coarse lifecycle state, per the state machine in
// SPEC_FULL.md: Idle -> AwaitingFrame -> Executing -> {Idle, Jumped, Reset}.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFrame
	PhaseExecuting
	PhaseJumped
	PhaseReset
)

// Device is the single context value threaded through every command
// handler: the resources a real target would otherwise reach through
// package-level statics guarded by a critical section. See DESIGN.md's
// "device-context modeling" resolution.
type Device struct {
	Flash     Flash
	UICR      UICR
	RNG       RNG
	Hardware  Hardware
	Transport io.ReadWriter

	// KnownSigners gates which pubkeys VerifyFirmware/BootFirmware accept.
	// Empty means any signer is accepted.
	KnownSigners [][33]byte

	// Sha provides the hash half of cosign2.Crypto; Verify is supplied by a
	// GlitchResistantVerifier wrapping a concrete secp256k1 backend.
	Sha    cosign2.HashFn
	Verify cosign2.Verifier

	state State
	phase Phase
	acc   Accumulator
}

// deviceCrypto bundles Sha and Verify to satisfy cosign2.Crypto for
// Parse/ParseUnverified. The device never signs; Secp256k1Sign panics if
// ever called, the same verify-only contract signing.Secp256k1 uses.
type deviceCrypto struct {
	cosign2.HashFn
	cosign2.Verifier
}

func (deviceCrypto) Secp256k1Sign([32]byte) ([33]byte, [64]byte, error) {
	panic("bootloader: device crypto is verify-only")
}

var _ cosign2.Crypto = deviceCrypto{}

func (d *Device) crypto() cosign2.Crypto {
	return deviceCrypto{HashFn: d.Sha, Verifier: d.Verify}
}

// State holds the device's current BootState, read through
// Device.BootState. The live phase is tracked separately and read through
// Device.Phase; the Phase field here is not updated.
type State struct {
	Boot  BootState
	Phase Phase
}

func (d *Device) Phase() Phase { return d.phase }

func (d *Device) BootState() BootState { return d.state.Boot }

// NewDevice constructs a Device and write-protects the bootloader's own
// flash region for the remainder of this boot, the way the original's
// main() calls flash_protect() once at startup before entering the
// command loop.
func NewDevice(flash Flash, uicr UICR, rng RNG, hw Hardware, transport io.ReadWriter, sha cosign2.HashFn, verify cosign2.Verifier, knownSigners [][33]byte) (*Device, error) {
	if err := hw.ProtectBootloaderRegion(); err != nil {
		return nil, err
	}
	return &Device{
		Flash:        flash,
		UICR:         uicr,
		RNG:          rng,
		Hardware:     hw,
		Transport:    transport,
		Sha:          sha,
		Verify:       verify,
		KnownSigners: knownSigners,
	}, nil
}
