// SPDX-License-Identifier: Apache-2.0

// Package signing provides concrete cryptographic backends for
// cosign2.Header: secp256k1 signing/verification and SHA-256 hashing, plus
// SEC1 PEM key loading for the signing CLI.
package signing

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/foundationdevices/cosign2/cosign2"
)

// Secp256k1 implements cosign2.Signer and cosign2.Verifier using
// github.com/decred/dcrd's secp256k1 implementation, with compact 64-byte
// (r||s) signatures matching the header's fixed-size signature field.
type Secp256k1 struct {
	key *secp256k1.PrivateKey
}

var (
	_ cosign2.Signer   = (*Secp256k1)(nil)
	_ cosign2.Verifier = (*Secp256k1)(nil)
)

// NewSigner wraps a secp256k1 private key for signing.
func NewSigner(key *secp256k1.PrivateKey) *Secp256k1 {
	return &Secp256k1{key: key}
}

// NewVerifier returns a Secp256k1 usable only for verification; its
// Secp256k1Sign method panics if called.
func NewVerifier() *Secp256k1 {
	return &Secp256k1{}
}

func (s *Secp256k1) Secp256k1Sign(digest [32]byte) ([33]byte, [64]byte, error) {
	if s.key == nil {
		panic("signing: Secp256k1Sign called on a verify-only instance")
	}
	sig := ecdsa.Sign(s.key, digest[:])

	r, sv, err := rsFromDER(sig.Serialize())
	if err != nil {
		return [33]byte{}, [64]byte{}, err
	}

	var out [64]byte
	r.PutBytesUnchecked(out[0:32])
	sv.PutBytesUnchecked(out[32:64])

	var pub [33]byte
	copy(pub[:], s.key.PubKey().SerializeCompressed())
	return pub, out, nil
}

// rsFromDER extracts the r, s scalars from a DER-encoded ECDSA signature:
// 0x30 len 0x02 rLen r 0x02 sLen s. ecdsa.Signature exposes no r/s accessors,
// only Serialize, so callers that need the raw values parse the DER form.
func rsFromDER(der []byte) (secp256k1.ModNScalar, secp256k1.ModNScalar, error) {
	var r, sv secp256k1.ModNScalar
	if len(der) < 6 || der[0] != 0x30 || der[2] != 0x02 {
		return r, sv, fmt.Errorf("signing: malformed DER signature")
	}
	rLen := int(der[3])
	offset := 4
	if offset+rLen+2 > len(der) {
		return r, sv, fmt.Errorf("signing: malformed DER signature")
	}
	rBytes := der[offset : offset+rLen]
	offset += rLen
	if der[offset] != 0x02 {
		return r, sv, fmt.Errorf("signing: malformed DER signature")
	}
	sLen := int(der[offset+1])
	offset += 2
	if offset+sLen > len(der) {
		return r, sv, fmt.Errorf("signing: malformed DER signature")
	}
	sBytes := der[offset : offset+sLen]

	if r.SetByteSlice(trimLeadingZero(rBytes)) {
		return r, sv, fmt.Errorf("signing: r overflows group order")
	}
	if sv.SetByteSlice(trimLeadingZero(sBytes)) {
		return r, sv, fmt.Errorf("signing: s overflows group order")
	}
	return r, sv, nil
}

// trimLeadingZero strips the single leading 0x00 byte DER adds to keep a
// high-bit-set integer from looking negative.
func trimLeadingZero(b []byte) []byte {
	if len(b) > 32 && b[0] == 0x00 {
		return b[1:]
	}
	return b
}

func (s *Secp256k1) Secp256k1Verify(pubkey [33]byte, digest [32]byte, signature [64]byte) cosign2.VerificationResult {
	pub, err := secp256k1.ParsePubKey(pubkey[:])
	if err != nil {
		return cosign2.Invalid
	}
	var r, sv secp256k1.ModNScalar
	if r.SetByteSlice(signature[0:32]) {
		// overflowed the group order: never a valid signature
		return cosign2.Invalid
	}
	if sv.SetByteSlice(signature[32:64]) {
		return cosign2.Invalid
	}
	sig := ecdsa.NewSignature(&r, &sv)
	if sig.Verify(digest[:], pub) {
		return cosign2.Valid
	}
	return cosign2.Invalid
}

// PubkeyHex returns the compressed public key this signer signs with.
func (s *Secp256k1) PubkeyHex() [33]byte {
	var pub [33]byte
	copy(pub[:], s.key.PubKey().SerializeCompressed())
	return pub
}
