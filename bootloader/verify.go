// SPDX-License-Identifier: Apache-2.0

package bootloader

import (
	"sync/atomic"

	"github.com/foundationdevices/cosign2/cosign2"
)

// GlitchResistantVerifier wraps a cosign2.Verifier with a random pre/post
// delay and a narrow CFI-counter double-check, ported from verify.rs's
// EccVerifier. It exists as a thin layer around the underlying curve
// primitive, separate from the whole-image CFI check in VerifyImage.
type GlitchResistantVerifier struct {
	Inner cosign2.Verifier
	RNG   RNG
}

var _ cosign2.Verifier = (*GlitchResistantVerifier)(nil)

func (v *GlitchResistantVerifier) Secp256k1Verify(pubkey [33]byte, digest [32]byte, signature [64]byte) cosign2.VerificationResult {
	var cfi atomic.Uint32

	randomDelay(v.RNG)
	cfi.Add(eccCF1)

	result := v.Inner.Secp256k1Verify(pubkey, digest, signature)
	cfi.Add(eccCF2)

	randomDelay(v.RNG)

	// Complementary double-check: re-derive the result from its complement
	// so a single bit-flip of `result` alone cannot silently produce Valid.
	complement := complementResult(result)
	recombined := complementResult(complement)
	if blackBoxResult(recombined) != blackBoxResult(result) {
		return cosign2.Invalid
	}
	if cfi.Load() != eccExpectedSum {
		return cosign2.Invalid
	}
	return result
}

func complementResult(r cosign2.VerificationResult) cosign2.VerificationResult {
	if r == cosign2.Valid {
		return cosign2.Invalid
	}
	return cosign2.Valid
}

//go:noinline
func blackBoxResult(r cosign2.VerificationResult) cosign2.VerificationResult { return r }

// VerifyImage parses and fully verifies a firmware image (header +
// application bytes read from flash at offset), incrementing a
// control-flow-integrity counter at each branch taken, ported from
// verify.rs's verify_image/verify_os_image. Every reachable path through
// the checks must add up to cfiExpectedSum by the time the function
// returns true; a fault that skips a branch desyncs the sum and the image
// is rejected even if the skipped check would otherwise have passed.
func VerifyImage(flash Flash, offset uint32, size uint32, knownSigners [][33]byte, verifier cosign2.Crypto, rng RNG) (*cosign2.Header, bool) {
	var cfi atomic.Uint32

	randomDelay(rng)
	cfi.Add(cf1)

	buf := make([]byte, SignatureHeaderSize+int(size))
	if err := flash.Read(offset, buf); err != nil {
		return nil, false
	}
	cfi.Add(cf2)

	header, err := cosign2.Parse(buf, knownSigners, verifier)
	if err != nil || header == nil {
		return nil, false
	}
	cfi.Add(cf3)

	// Double-checked length comparison through a black-box barrier, so the
	// compiler cannot fold the comparison into the one cosign2.Parse
	// already performed internally.
	declaredSize := blackBoxUint32(header.FirmwareSize())
	if blackBoxUint32(size) != declaredSize {
		return nil, false
	}
	cfi.Add(cf4)

	if declaredSize != size {
		return nil, false
	}
	cfi.Add(cf5)

	randomDelay(rng)
	cfi.Add(cf6)

	if cfi.Load() != cfiExpectedSum {
		return nil, false
	}
	return header, true
}

//go:noinline
func blackBoxUint32(v uint32) uint32 { return v }
