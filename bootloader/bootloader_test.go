// SPDX-License-Identifier: Apache-2.0

package bootloader

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/foundationdevices/cosign2/cosign2"
	"github.com/foundationdevices/cosign2/signing"
)

type loopbackTransport struct {
	out bytes.Buffer
}

func (t *loopbackTransport) Read([]byte) (int, error)    { return 0, nil }
func (t *loopbackTransport) Write(p []byte) (int, error) { return t.out.Write(p) }

func newTestDevice(t *testing.T) (*Device, *loopbackTransport, *SimFlash, *SimUICR, *SimHardware) {
	t.Helper()
	flash := NewSimFlash(BaseBootloaderAddr + FlashPage)
	uicr := &SimUICR{}
	hw := &SimHardware{}
	transport := &loopbackTransport{}

	verifier := signing.NewVerifierBackend()
	dev, err := NewDevice(flash, uicr, CryptoRNG{}, hw, transport, signing.Sha256{},
		&GlitchResistantVerifier{Inner: verifier, RNG: CryptoRNG{}}, nil)
	require.NoError(t, err)
	require.True(t, hw.BootloaderProtected)
	return dev, transport, flash, uicr, hw
}

func writeSignedImage(t *testing.T, flash *SimFlash, key *secp256k1.PrivateKey) []byte {
	t.Helper()
	firmware := bytes.Repeat([]byte{0x42}, AppSize-SignatureHeaderSize)
	h, err := cosign2.SignNew(cosign2.Atsama5d27KeyOs, "1.0.0", 1_700_000_000, cosign2.SignerTrusted, firmware, signing.NewSignerBackend(key))
	require.NoError(t, err)

	header := make([]byte, cosign2.Size)
	require.NoError(t, h.Serialize(header))

	full := append(header, firmware...)
	require.NoError(t, flash.Write(BaseAppAddr, full))
	return full
}

func TestChallengeResponseBeforeProvisioning(t *testing.T) {
	dev, _, _, _, _ := newTestDevice(t)
	resp := requestResponse(t, dev, Request{ChallengeRequest: &ChallengeRequest{Nonce: 0x0123456789ABCDEF}})
	require.NotNil(t, resp.ChallengeResponse)
	for _, b := range resp.ChallengeResponse.Hmac {
		require.Equal(t, byte(0xff), b)
	}
}

func TestChallengeSetThenRequest(t *testing.T) {
	dev, _, _, uicr, _ := newTestDevice(t)
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i)
	}

	resp := requestResponse(t, dev, Request{ChallengeSet: &ChallengeSet{Secret: secret}})
	require.NotNil(t, resp.Ack)
	require.Equal(t, SealedSecret, uicr.SealWord())

	resp = requestResponse(t, dev, Request{ChallengeSet: &ChallengeSet{Secret: secret}})
	require.NotNil(t, resp.Nack)

	resp = requestResponse(t, dev, Request{ChallengeRequest: &ChallengeRequest{Nonce: 0x0123456789ABCDEF}})
	require.NotNil(t, resp.ChallengeResponse)
	require.NotEqual(t, [3]byte{0xff, 0xff, 0xff}, [3]byte(resp.ChallengeResponse.Hmac[:3]))
}

func TestVerifyFirmwareValidImage(t *testing.T) {
	dev, _, flash, _, _ := newTestDevice(t)
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	writeSignedImage(t, flash, key)

	resp := requestResponse(t, dev, Request{VerifyFirmware: &struct{}{}})
	require.NotNil(t, resp.VerifyResult)
	require.True(t, resp.VerifyResult.Valid)
}

func TestVerifyFirmwareTamperedImageRejected(t *testing.T) {
	dev, _, flash, _, _ := newTestDevice(t)
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	writeSignedImage(t, flash, key)

	// Flip a byte inside the header's signature1 region.
	var b [1]byte
	require.NoError(t, flash.Read(BaseAppAddr+100, b[:]))
	b[0] ^= 0xff
	require.NoError(t, flash.Write(BaseAppAddr+100, b[:]))

	resp := requestResponse(t, dev, Request{VerifyFirmware: &struct{}{}})
	require.NotNil(t, resp.VerifyResult)
	require.False(t, resp.VerifyResult.Valid)
}

func TestBootFirmwareJumpsOnValidImage(t *testing.T) {
	dev, _, flash, _, hw := newTestDevice(t)
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	writeSignedImage(t, flash, key)

	resp := requestResponse(t, dev, Request{BootFirmware: &struct{}{}})
	require.NotNil(t, resp.Ack)
	require.True(t, hw.Jumped)
	require.Equal(t, PhaseJumped, dev.Phase())
}

func TestBootFirmwareRefusesInvalidImage(t *testing.T) {
	dev, _, _, _, hw := newTestDevice(t)
	resp := requestResponse(t, dev, Request{BootFirmware: &struct{}{}})
	require.NotNil(t, resp.Nack)
	require.False(t, hw.Jumped)
}

// TestWriteFirmwareBlockOutOfBoundsRejected checks the cursor bounds check
// alone; BlockIdx is advisory and plays no part in this rejection (the
// device does not enforce block-index monotonicity).
func TestWriteFirmwareBlockOutOfBoundsRejected(t *testing.T) {
	dev, _, _, _, _ := newTestDevice(t)
	huge := make([]byte, AppSize)
	resp := requestResponse(t, dev, Request{WriteFirmwareBlock: &WriteFirmwareBlock{
		BlockIdx:  42,
		BlockData: huge,
	}})
	require.NotNil(t, resp.FirmwareOutOfBounds)
}

// TestWriteFirmwareBlockIdxNotEnforced confirms BlockIdx is purely
// advisory: an out-of-sequence index is still written and acked as long
// as the cursor itself stays in bounds.
func TestWriteFirmwareBlockIdxNotEnforced(t *testing.T) {
	dev, _, _, _, _ := newTestDevice(t)
	resp := requestResponse(t, dev, Request{WriteFirmwareBlock: &WriteFirmwareBlock{
		BlockIdx:  7,
		BlockData: []byte{0x01, 0x02, 0x03, 0x04},
	}})
	require.NotNil(t, resp.AckWithIdxCrc)
	require.Equal(t, uint32(7), resp.AckWithIdxCrc.BlockIdx)

	resp = requestResponse(t, dev, Request{WriteFirmwareBlock: &WriteFirmwareBlock{
		BlockIdx:  3,
		BlockData: []byte{0x05, 0x06},
	}})
	require.NotNil(t, resp.AckWithIdxCrc)
	require.Equal(t, uint32(3), resp.AckWithIdxCrc.BlockIdx)
}

// TestUpdateHappyPathOverWire mirrors scenario S6 end to end, driving the
// real request/response dispatch rather than writing straight to flash:
// EraseFirmware, then WriteFirmwareBlock in order with 256-byte blocks,
// then VerifyFirmware, then BootFirmware.
func TestUpdateHappyPathOverWire(t *testing.T) {
	dev, _, _, _, hw := newTestDevice(t)
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	firmware := bytes.Repeat([]byte{0x7a}, AppSize-SignatureHeaderSize)
	h, err := cosign2.SignNew(cosign2.Atsama5d27KeyOs, "1.0.0", 1_700_000_000, cosign2.SignerTrusted, firmware, signing.NewSignerBackend(key))
	require.NoError(t, err)
	header := make([]byte, cosign2.Size)
	require.NoError(t, h.Serialize(header))
	image := append(header, firmware...)

	resp := requestResponse(t, dev, Request{EraseFirmware: &struct{}{}})
	require.NotNil(t, resp.Ack)

	const blockSize = 256
	for idx := 0; idx*blockSize < len(image); idx++ {
		start := idx * blockSize
		end := start + blockSize
		if end > len(image) {
			end = len(image)
		}
		resp := requestResponse(t, dev, Request{WriteFirmwareBlock: &WriteFirmwareBlock{
			BlockIdx:  uint32(idx),
			BlockData: image[start:end],
		}})
		require.NotNil(t, resp.AckWithIdxCrc)
		require.Equal(t, uint32(idx), resp.AckWithIdxCrc.BlockIdx)
	}

	resp = requestResponse(t, dev, Request{VerifyFirmware: &struct{}{}})
	require.NotNil(t, resp.VerifyResult)
	require.True(t, resp.VerifyResult.Valid)

	resp = requestResponse(t, dev, Request{BootFirmware: &struct{}{}})
	require.NotNil(t, resp.Ack)
	require.True(t, hw.Jumped)
}

func TestGetStateReportsPhase(t *testing.T) {
	dev, _, _, _, _ := newTestDevice(t)
	resp := requestResponse(t, dev, Request{GetState: &struct{}{}})
	require.NotNil(t, resp.AckState)
	require.Equal(t, "firmware-upgrade", resp.AckState.State)
}

// requestResponse feeds req through dev's RunOnce and decodes
// the single COBS frame written back to the transport.
func requestResponse(t *testing.T, dev *Device, req Request) Response {
	t.Helper()
	lt := dev.Transport.(*loopbackTransport)
	lt.out.Reset()

	encoded, err := encodeMessage(req)
	require.NoError(t, err)
	frame := encodeCOBS(encoded)

	require.NoError(t, dev.RunOnce(frame))

	out := lt.out.Bytes()
	require.True(t, len(out) > 0 && out[len(out)-1] == 0)
	decoded, err := decodeCOBS(out[:len(out)-1])
	require.NoError(t, err)

	var resp Response
	require.NoError(t, cbor.Unmarshal(decoded, &resp))
	return resp
}
