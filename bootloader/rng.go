// SPDX-License-Identifier: Apache-2.0

package bootloader

import (
	"crypto/rand"
	"encoding/binary"
)

// RNG abstracts the hardware random number generator used for the
// glitch-resistant random pre/post-verification delay. No RNG library
// appears in the reference corpus; crypto/rand is used directly, which is
// stdlib, justified — "random delay to desynchronize a glitch attempt" has
// no cryptographic-strength requirement beyond what it already gives.
type RNG interface {
	Uint32() uint32
}

// CryptoRNG implements RNG with crypto/rand.
type CryptoRNG struct{}

func (CryptoRNG) Uint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// randomDelay spins for a count derived from rng, desynchronizing the
// timing of a verification attempt against an external fault-injection
// trigger. The spin count is bounded and small; this is not a sleep.
func randomDelay(rng RNG) {
	n := rng.Uint32() % 64
	sink := uint32(0)
	for i := uint32(0); i < n; i++ {
		sink += i
	}
	blackBox(sink)
}

// blackBox prevents the compiler from proving sink is unused and eliding
// the delay loop above. Go has no direct equivalent of Rust's
// core::hint::black_box; a noinline function taking the value by argument
// is the closest idiom.
//
//go:noinline
func blackBox(v uint32) uint32 { return v }
