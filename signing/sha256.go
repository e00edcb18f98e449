// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/sha256"

	"github.com/foundationdevices/cosign2/cosign2"
)

// Sha256 implements cosign2.HashFn using the standard library's SHA-256.
// No hashing library exists anywhere in the reference corpus, so the
// standard library is used directly rather than an ecosystem wrapper.
type Sha256 struct{}

var _ cosign2.HashFn = Sha256{}

func (Sha256) Sha256(data []byte) [32]byte { return sha256.Sum256(data) }
