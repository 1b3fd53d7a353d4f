package streamcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sn2d/ingestd/pkg/sn2derr"
)

func TestDecode_EmptyPayloadIsJustTheReference(t *testing.T) {
	got, err := Decode(1000, nil)
	require.NoError(t, err)
	assert.Equal(t, []int16{1000}, got)
}

func TestDecode_MixedResidualWidths(t *testing.T) {
	// bitmap byte 0x80: bit7 set (8-bit residual), bits 6..0 clear (7
	// 16-bit residuals), exactly consuming the rest of the payload.
	payload := []byte{
		0x80,
		0xFB,       // -5, 8-bit
		0x00, 0x00, // 0
		0x01, 0x00, // 1
		0xFF, 0xFF, // -1
		0x02, 0x00, // 2
		0xFE, 0xFF, // -2
		0x03, 0x00, // 3
		0xFD, 0xFF, // -3
	}

	got, err := Decode(1000, payload)
	require.NoError(t, err)
	assert.Equal(t, []int16{1000, 995, 1000, 1001, 999, 1002, 998, 1003, 997}, got)
}

func TestDecode_AllEightBitResiduals(t *testing.T) {
	// bitmap byte 0xFF: all 8 bits set, each a single 8-bit residual,
	// exactly consuming the rest of the payload.
	payload := []byte{0xFF, 1, 2, 3, 4, 5, 6, 7, 8}

	got, err := Decode(0, payload)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestDecode_PartialBitmapByteUnusedTail(t *testing.T) {
	// bitmap byte 0x00: the first four bits (all clear, 16-bit each)
	// exhaust the payload; the remaining four bits of the byte are
	// never consulted.
	payload := []byte{
		0x00,
		0x0A, 0x00,
		0x0B, 0x00,
		0x0C, 0x00,
		0x0D, 0x00,
	}

	got, err := Decode(5, payload)
	require.NoError(t, err)
	assert.Equal(t, []int16{5, 15, 16, 17, 18}, got)
}

func TestDecode_OverclaimingBitIsRejected(t *testing.T) {
	// bitmap byte 0x00 with only one trailing payload byte: the first
	// bit alone claims two residual bytes that are not there, driving
	// the internal byte count negative.
	payload := []byte{0x00, 0x01}

	_, err := Decode(0, payload)
	require.Error(t, err)

	var codecErr *sn2derr.CodecError
	require.ErrorAs(t, err, &codecErr)
}

func TestDecode_NegativeResidualsRoundTrip(t *testing.T) {
	payload := []byte{0x80, 0xFF} // bit7 set, 8-bit residual = -1
	got, err := Decode(10, payload)
	require.NoError(t, err)
	assert.Equal(t, []int16{10, 9}, got)
}
