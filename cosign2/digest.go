// SPDX-License-Identifier: Apache-2.0

package cosign2

// hashBufSize is the scratch buffer size used to build both levels of the
// canonical digest. It must be at least as large as the header-field
// concatenation (46 bytes) and the three-hash concatenation (96 bytes).
const hashBufSize = 128

// headerFieldBytes is the number of bytes of fixed header fields folded
// into the first-level header hash: magic(4) + timestamp(4) + date(14) +
// version(20) + firmwareSize(4).
const headerFieldBytes = 4 + 4 + 14 + 20 + 4

// computeHash implements the canonical two-level digest: a first-level
// hash over (header fields, zero-padded to hashBufSize), (reserved
// bytes), and (firmware) separately, concatenated and hashed again, then
// hashed a second time to block length-extension attacks against the
// signature. It also returns the plain firmware hash, stored separately
// for informational purposes.
//
// reserved must be exactly Reserved bytes: the caller passes the
// actual on-wire reserved bytes when parsing (even if tampered — the
// digest must cover whatever was actually received) or an all-zero buffer
// when signing a fresh header.
func computeHash(magic [4]byte, timestamp [4]byte, date [dateSize]byte, version [versionSize]byte, firmwareSize [4]byte, reserved []byte, firmware []byte, sha HashFn) (digest [32]byte, firmwareHash [32]byte) {
	var buf [hashBufSize]byte
	offset := 0
	offset += copy(buf[offset:], magic[:])
	offset += copy(buf[offset:], timestamp[:])
	offset += copy(buf[offset:], date[:])
	offset += copy(buf[offset:], version[:])
	copy(buf[offset:], firmwareSize[:])

	headerHash := sha.Sha256(buf[:])
	reservedHash := sha.Sha256(reserved)
	firmwareHash = sha.Sha256(firmware)

	for i := range buf {
		buf[i] = 0
	}
	copy(buf[0:32], headerHash[:])
	copy(buf[32:64], reservedHash[:])
	copy(buf[64:96], firmwareHash[:])
	firstLevel := sha.Sha256(buf[:])

	digest = sha.Sha256(firstLevel[:])
	return digest, firmwareHash
}
