// SPDX-License-Identifier: Apache-2.0

package bootloader

import (
	"github.com/fxamacker/cbor/v2"
)

// Request is a single host-to-device command. Exactly one field is set per
// request; this mirrors the original's tagged-enum HostProtocolMessage
// without requiring a custom CBOR tag scheme — cbor/v2 already encodes a
// struct with omitempty fields compactly, and only one handler branches on
// which field is present.
type Request struct {
	GetState           *struct{}           `cbor:"0,keyasint,omitempty"`
	Reset              *struct{}           `cbor:"1,keyasint,omitempty"`
	ChallengeRequest   *ChallengeRequest   `cbor:"2,keyasint,omitempty"`
	EraseFirmware      *struct{}           `cbor:"3,keyasint,omitempty"`
	WriteFirmwareBlock *WriteFirmwareBlock `cbor:"4,keyasint,omitempty"`
	FirmwareVersion    *struct{}           `cbor:"5,keyasint,omitempty"`
	BootloaderVersion  *struct{}           `cbor:"6,keyasint,omitempty"`
	VerifyFirmware     *struct{}           `cbor:"7,keyasint,omitempty"`
	ChallengeSet       *ChallengeSet       `cbor:"8,keyasint,omitempty"`
	BootFirmware       *struct{}           `cbor:"9,keyasint,omitempty"`
}

// ChallengeRequest asks the device to HMAC nonce with its provisioned
// secret.
type ChallengeRequest struct {
	Nonce uint64 `cbor:"0,keyasint"`
}

// ChallengeSet provisions the UICR challenge-response secret. Rejected if
// the seal word is already set.
type ChallengeSet struct {
	Secret [32]byte `cbor:"0,keyasint"`
}

// WriteFirmwareBlock writes one block of the pending firmware image at the
// device's running write cursor. BlockIdx is only echoed back in the ack.
type WriteFirmwareBlock struct {
	BlockIdx  uint32 `cbor:"0,keyasint"`
	BlockData []byte `cbor:"1,keyasint"`
}

// Response is a single device-to-host reply. Exactly one field is set.
type Response struct {
	AckState            *AckState          `cbor:"0,keyasint,omitempty"`
	AckWithIdxCrc        *AckWithIdxCrc     `cbor:"1,keyasint,omitempty"`
	NackWithIdx          *NackWithIdx       `cbor:"2,keyasint,omitempty"`
	FirmwareOutOfBounds  *struct{}          `cbor:"3,keyasint,omitempty"`
	ChallengeResponse    *ChallengeResponse `cbor:"4,keyasint,omitempty"`
	VersionResponse      *VersionResponse   `cbor:"5,keyasint,omitempty"`
	VerifyResult         *VerifyResult      `cbor:"6,keyasint,omitempty"`
	Ack                  *struct{}          `cbor:"7,keyasint,omitempty"`
	Nack                 *Nack              `cbor:"8,keyasint,omitempty"`
}

type AckState struct {
	State string `cbor:"0,keyasint"`
}

type AckWithIdxCrc struct {
	BlockIdx uint32 `cbor:"0,keyasint"`
	Crc32    uint32 `cbor:"1,keyasint"`
}

type NackWithIdx struct {
	BlockIdx uint32 `cbor:"0,keyasint"`
}

type ChallengeResponse struct {
	Hmac [32]byte `cbor:"0,keyasint"`
}

type VersionResponse struct {
	Version string `cbor:"0,keyasint"`
	Date    string `cbor:"1,keyasint"`
}

type VerifyResult struct {
	Valid bool `cbor:"0,keyasint"`
}

type Nack struct {
	Reason string `cbor:"0,keyasint"`
}

func encodeMessage(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	err := cbor.Unmarshal(data, &req)
	return req, err
}
