// SPDX-License-Identifier: Apache-2.0

// Package cosign2 implements the signed firmware header format: parsing,
// validation, serialization, and the canonical digest used for signing and
// verification. It has no I/O of its own; callers supply a Crypto
// implementation (see package signing for a concrete backend).
package cosign2

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/blang/semver/v4"
)

const (
	// Size is the total size of a serialized header in bytes.
	Size = 2048
	// Reserved is the number of zeroed bytes at the end of the header,
	// reserved for future fields. They are covered by the signature so a
	// future field can be added without invalidating old signatures'
	// coverage of the space it will occupy.
	Reserved = 1808

	versionSize = 20

	offMagic        = 0
	offTimestamp    = 4
	offDate         = 8
	offVersion      = 22
	offFirmwareSize = 42
	offPubkey1      = 46
	offSignature1   = 79
	offPubkey2      = 143
	offSignature2   = 176
	offReserved     = 240
)

// Signer selects which role is performing a signing operation.
type Signer int

const (
	// SignerTrusted signs with a trusted Foundation Devices identity and
	// fills in only the first signature; the second is added later with
	// AddSecondSignature.
	SignerTrusted Signer = iota
	// SignerDeveloper signs with a third-party developer key and fills in
	// only the second signature, leaving the first zeroed.
	SignerDeveloper
)

// Header is a parsed, validated firmware header. The zero value is not
// useful; construct one with SignNew, Parse, or ParseUnverified.
type Header struct {
	magic        [4]byte
	timestamp    [4]byte
	date         [dateSize]byte
	version      [versionSize]byte
	firmwareSize [4]byte
	pubkey1      [33]byte
	signature1   [64]byte
	pubkey2      [33]byte
	signature2   [64]byte

	hash         [32]byte
	firmwareHash [32]byte
}

func (h *Header) Magic() Magic { m, _ := magicFromBytes(h.magic[:]); return m }

func (h *Header) Timestamp() uint32 { return binary.LittleEndian.Uint32(h.timestamp[:]) }

func (h *Header) Date() string { return trimZero(h.date[:]) }

func (h *Header) Version() string { return trimZero(h.version[:]) }

func (h *Header) FirmwareSize() uint32 { return binary.LittleEndian.Uint32(h.firmwareSize[:]) }

func (h *Header) Pubkey1() [33]byte { return h.pubkey1 }

func (h *Header) Signature1() [64]byte { return h.signature1 }

func (h *Header) Pubkey2() [33]byte { return h.pubkey2 }

func (h *Header) Signature2() [64]byte { return h.signature2 }

// FirmwareHash is the hash of the firmware alone, not the header. It is
// all-zero if this Header came from ParseUnverified.
func (h *Header) FirmwareHash() [32]byte { return h.firmwareHash }

func trimZero(b []byte) string {
	n := len(b)
	for i, c := range b {
		if c == 0 {
			n = i
			break
		}
	}
	return string(b[:n])
}

var zero64 [64]byte
var zero33 [33]byte

// SignNew builds a new header for the given firmware and signs it with the
// supplied crypto. version must parse as SemVer and fit in 20 bytes.
func SignNew(magic Magic, version string, timestamp uint32, signer Signer, firmware []byte, crypto Crypto) (*Header, error) {
	if _, err := semver.Parse(version); err != nil {
		return nil, errInvalidVersionSemVer()
	}
	if len(firmware) > 0xffffffff {
		return nil, errFirmwareTooLong()
	}

	h := &Header{magic: magic.bytes()}
	binary.LittleEndian.PutUint32(h.timestamp[:], timestamp)
	binary.LittleEndian.PutUint32(h.firmwareSize[:], uint32(len(firmware)))
	h.date = formatDate(unixToTime(timestamp))
	if err := h.setVersion(version); err != nil {
		return nil, err
	}

	var reserved [Reserved]byte
	h.hash, h.firmwareHash = computeHash(h.magic, h.timestamp, h.date, h.version, h.firmwareSize, reserved[:], firmware, crypto)
	if err := h.validateFields(firmware); err != nil {
		return nil, err
	}

	switch signer {
	case SignerTrusted:
		pub, sig, err := crypto.Secp256k1Sign(h.hash)
		if err != nil {
			return nil, err
		}
		h.pubkey1, h.signature1 = pub, sig
	case SignerDeveloper:
		pub, sig, err := crypto.Secp256k1Sign(h.hash)
		if err != nil {
			return nil, err
		}
		h.pubkey2, h.signature2 = pub, sig
	}
	return h, nil
}

// Parse deserializes and fully verifies a header from data, which must
// contain the header followed by the firmware. If knownSigners is
// non-empty, every present signature's pubkey must appear in it. Parse
// returns (nil, nil) if data does not begin with a recognized magic.
func Parse(data []byte, knownSigners [][33]byte, crypto Crypto) (*Header, error) {
	h, err := deserialize(data)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}

	if h.signature1 == zero64 && h.signature2 == zero64 {
		return nil, errHeaderWithNoSignature()
	}

	reserved := data[offReserved:Size]
	firmware := data[Size:]
	h.hash, h.firmwareHash = computeHash(h.magic, h.timestamp, h.date, h.version, h.firmwareSize, reserved, firmware, crypto)

	if err := h.verifySignatures(knownSigners, crypto); err != nil {
		return nil, err
	}
	if err := h.validateFields(firmware); err != nil {
		return nil, err
	}
	for _, b := range reserved {
		if b != 0 {
			return nil, errInvalidReservedBytes()
		}
	}
	return h, nil
}

// ParseUnverified deserializes and field-validates a header without
// checking any signature. The returned Header's FirmwareHash is all-zero.
// Use this only for reading metadata from otherwise-untrusted data (e.g.
// the device's unauthenticated version/date display).
func ParseUnverified(data []byte) (*Header, error) {
	h, err := deserialize(data)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, nil
	}
	if err := h.validateFields(data[Size:]); err != nil {
		return nil, err
	}
	return h, nil
}

// Serialize writes exactly Size bytes to buf: the header fields followed
// by a zeroed reserved region. The firmware itself is not included.
func (h *Header) Serialize(buf []byte) error {
	if len(buf) < Size {
		return errBufferTooSmall()
	}
	copy(buf[offMagic:offTimestamp], h.magic[:])
	copy(buf[offTimestamp:offDate], h.timestamp[:])
	copy(buf[offDate:offVersion], h.date[:])
	copy(buf[offVersion:offFirmwareSize], h.version[:])
	copy(buf[offFirmwareSize:offPubkey1], h.firmwareSize[:])
	copy(buf[offPubkey1:offSignature1], h.pubkey1[:])
	copy(buf[offSignature1:offPubkey2], h.signature1[:])
	copy(buf[offPubkey2:offSignature2], h.pubkey2[:])
	copy(buf[offSignature2:offReserved], h.signature2[:])
	for i := offReserved; i < Size; i++ {
		buf[i] = 0
	}
	return nil
}

// AddSecondSignature signs the header's existing digest with crypto and
// stores the result as the second signature. The first signature must
// already be present, the second must not, and the signing pubkey must
// differ from the first signer's.
func (h *Header) AddSecondSignature(crypto Crypto) error {
	if h.signature2 != zero64 {
		return errSignature2Present()
	}
	if h.signature1 == zero64 {
		return errSignature1Missing()
	}
	pub, sig, err := crypto.Secp256k1Sign(h.hash)
	if err != nil {
		return err
	}
	if pub == h.pubkey1 {
		return errSamePubkeyTwice()
	}
	h.pubkey2 = pub
	h.signature2 = sig
	return nil
}

func deserialize(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, nil
	}
	if _, ok := magicFromBytes(data[:4]); !ok {
		return nil, nil
	}
	if len(data) < Size {
		return nil, errHeaderTooShort()
	}

	h := &Header{}
	copy(h.magic[:], data[offMagic:offTimestamp])
	copy(h.timestamp[:], data[offTimestamp:offDate])
	copy(h.date[:], data[offDate:offVersion])
	copy(h.version[:], data[offVersion:offFirmwareSize])
	copy(h.firmwareSize[:], data[offFirmwareSize:offPubkey1])
	copy(h.pubkey1[:], data[offPubkey1:offSignature1])
	copy(h.signature1[:], data[offSignature1:offPubkey2])
	copy(h.pubkey2[:], data[offPubkey2:offSignature2])
	copy(h.signature2[:], data[offSignature2:offReserved])
	return h, nil
}

func (h *Header) verifySignatures(knownSigners [][33]byte, verifier Verifier) error {
	known := func(pub [33]byte) bool {
		if len(knownSigners) == 0 {
			return true
		}
		for _, k := range knownSigners {
			if k == pub {
				return true
			}
		}
		return false
	}
	if h.signature1 != zero64 {
		if !known(h.pubkey1) {
			return errUnknownPubkey1()
		}
		if verifier.Secp256k1Verify(h.pubkey1, h.hash, h.signature1) != Valid {
			return errInvalidSignature1()
		}
	}
	if h.signature2 != zero64 {
		if !known(h.pubkey2) {
			return errUnknownPubkey2()
		}
		if verifier.Secp256k1Verify(h.pubkey2, h.hash, h.signature2) != Valid {
			return errInvalidSignature2()
		}
	}
	return nil
}

func (h *Header) validateFields(firmware []byte) error {
	version := h.version[:]
	firstZero := len(version)
	for i, c := range version {
		if c == 0 {
			firstZero = i
			break
		}
	}
	versionStr, ok := asUTF8(version[:firstZero])
	if !ok {
		return errInvalidVersionUTF8()
	}
	if _, err := semver.Parse(versionStr); err != nil {
		return errInvalidVersionSemVer()
	}
	for _, c := range version[firstZero:] {
		if c != 0 {
			return errInvalidVersionTrailingBytes()
		}
	}

	if err := validateDate(h.date); err != nil {
		return err
	}

	firmwareSize := binary.LittleEndian.Uint32(h.firmwareSize[:])
	actual := uint32(len(firmware))
	if firmwareSize != actual {
		return errInvalidFirmwareSize(actual, firmwareSize)
	}

	if h.signature1 == zero64 && h.pubkey1 != zero33 {
		return errInvalidPubkey1()
	}
	if h.signature2 == zero64 && h.pubkey2 != zero33 {
		return errInvalidPubkey2()
	}
	return nil
}

func (h *Header) setVersion(version string) error {
	if len(version) > versionSize {
		return errVersionTooLong()
	}
	copy(h.version[:], version)
	return nil
}

func asUTF8(b []byte) (string, bool) {
	for _, c := range b {
		if c == 0 {
			return "", false
		}
	}
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}
