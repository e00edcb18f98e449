// SPDX-License-Identifier: Apache-2.0

package cosign2

import "encoding/binary"

// Magic identifies the header format and target device. Only one magic is
// currently defined; the field exists so future targets can be added
// without breaking the wire layout.
type Magic uint32

// Atsama5d27KeyOs is the only defined magic, encoded little-endian on the
// wire as the byte sequence 0x50, 0x52, 0x4D, 0x31 ("PRM1").
const Atsama5d27KeyOs Magic = 0x314D5250

func (m Magic) String() string {
	switch m {
	case Atsama5d27KeyOs:
		return "Atsama5d27KeyOs"
	default:
		return "Unknown"
	}
}

func (m Magic) bytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(m))
	return b
}

func magicFromBytes(b []byte) (Magic, bool) {
	if len(b) < 4 {
		return 0, false
	}
	m := Magic(binary.LittleEndian.Uint32(b[:4]))
	if m != Atsama5d27KeyOs {
		return 0, false
	}
	return m, true
}
