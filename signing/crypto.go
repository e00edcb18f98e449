// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/foundationdevices/cosign2/cosign2"
)

// Backend bundles Sha256 with a Secp256k1 signer or verifier to satisfy
// cosign2.Crypto as a single value.
type Backend struct {
	Sha256
	*Secp256k1
}

var _ cosign2.Crypto = Backend{}

// NewSignerBackend builds a Backend that can sign with key and verify any
// signature.
func NewSignerBackend(key *secp256k1.PrivateKey) Backend {
	return Backend{Secp256k1: NewSigner(key)}
}

// NewVerifierBackend builds a Backend usable only for verification.
func NewVerifierBackend() Backend {
	return Backend{Secp256k1: NewVerifier()}
}
