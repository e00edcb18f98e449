// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrInvalidPemTag is returned when a PEM block's type is not "EC PRIVATE
// KEY".
type ErrInvalidPemTag string

func (e ErrInvalidPemTag) Error() string {
	return fmt.Sprintf("invalid PEM tag: %q, expected \"EC PRIVATE KEY\"", string(e))
}

// sec1ECPrivateKey mirrors RFC 5915's ECPrivateKey ASN.1 structure. Only
// the raw private key octets are needed here; the optional parameters and
// public key fields are ignored.
type sec1ECPrivateKey struct {
	Version    int
	PrivateKey []byte
	// Parameters and PublicKey are present in most encoders' output but are
	// optional per RFC 5915 and unused by secp256k1 (the curve is implied).
}

// LoadPEMPrivateKey reads a PEM-encoded "EC PRIVATE KEY" block (SEC1 /
// RFC 5915 DER) and returns the secp256k1 private key it contains.
//
// No ecosystem library in the reference corpus parses SEC1 EC keys
// directly (Go's crypto/x509 only handles PKCS#8/PKIX wrapping for
// P-256-family curves, not raw secp256k1), so the DER is unwrapped here
// with the standard library's encoding/asn1.
func LoadPEMPrivateKey(data []byte) (*secp256k1.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM file: no PEM block found")
	}
	if block.Type != "EC PRIVATE KEY" {
		return nil, ErrInvalidPemTag(block.Type)
	}

	var key sec1ECPrivateKey
	if _, err := asn1.Unmarshal(block.Bytes, &key); err != nil {
		return nil, fmt.Errorf("failed to parse DER content inside PEM file: %w", err)
	}

	priv := secp256k1.PrivKeyFromBytes(key.PrivateKey)
	return priv, nil
}
