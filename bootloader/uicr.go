// SPDX-License-Identifier: Apache-2.0

package bootloader

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// UICR abstracts the write-once User Information Configuration Registers
// holding the challenge-response secret and its seal word.
type UICR interface {
	// SealWord reads the seal-word register.
	SealWord() uint32
	// WriteSecret provisions the 32-byte secret and sets the seal word.
	// Must fail if the seal word is already SealedSecret.
	WriteSecret(secret [32]byte) error
	// Secret returns the provisioned secret. Only meaningful once sealed.
	Secret() [32]byte
}

// SimUICR is an in-memory UICR for tests.
type SimUICR struct {
	seal   uint32
	secret [32]byte
}

func (u *SimUICR) SealWord() uint32 { return u.seal }

func (u *SimUICR) WriteSecret(secret [32]byte) error {
	if u.seal == SealedSecret {
		return fmt.Errorf("uicr: secret already sealed")
	}
	u.secret = secret
	u.seal = SealedSecret
	return nil
}

func (u *SimUICR) Secret() [32]byte { return u.secret }

// hmacChallenge computes HMAC-SHA256(secret, nonce_be): the keyed MAC of
// the big-endian nonce under the UICR secret, as the device
// challenge-response uses it.
func hmacChallenge(secret [32]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)

	mac := hmac.New(sha256.New, secret[:])
	mac.Write(nonceBytes[:])
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}
