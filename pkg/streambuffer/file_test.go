package streambuffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFile_RoundTrip(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	period := 20 * time.Millisecond
	samples := []int16{1, -1, 1000, -1000, 0}

	buf := encodeFile(t0, period, samples)
	decoded, err := decodeFile(buf)
	require.NoError(t, err)

	assert.Equal(t, t0, decoded.T0)
	assert.Equal(t, period, decoded.Period)
	assert.Equal(t, samples, decoded.Samples)
}

func TestEncodeDecodeFile_EmptySampleSet(t *testing.T) {
	t0 := time.Unix(0, 0).UTC()
	buf := encodeFile(t0, time.Millisecond, nil)
	decoded, err := decodeFile(buf)
	require.NoError(t, err)
	assert.Empty(t, decoded.Samples)
}

func TestDecodeFile_RejectsTooShortBuffer(t *testing.T) {
	_, err := decodeFile(make([]byte, headerSize))
	require.Error(t, err)
}

func TestDecodeFile_RejectsChecksumMismatch(t *testing.T) {
	buf := encodeFile(time.Now(), time.Millisecond, []int16{1, 2, 3})
	buf[len(buf)-1] ^= 0xFF // corrupt one trailer byte

	_, err := decodeFile(buf)
	require.Error(t, err)
}

func TestDecodeFile_RejectsUnknownVersion(t *testing.T) {
	buf := encodeFile(time.Now(), time.Millisecond, []int16{1})
	buf[0] = 0x7F
	// the version byte is covered by the checksum, so bumping it alone
	// must surface as a checksum mismatch, not silently decode.
	_, err := decodeFile(buf)
	require.Error(t, err)
}

func TestDecodeFile_RejectsOddSamplePayload(t *testing.T) {
	buf := encodeFile(time.Now(), time.Millisecond, []int16{1, 2})
	// splice in one extra byte inside the payload, recomputing nothing,
	// which also perturbs the checksum, so expect failure regardless of
	// which check trips first.
	withExtra := append(append([]byte{}, buf[:len(buf)-trailerSize]...), 0x01)
	withExtra = append(withExtra, buf[len(buf)-trailerSize:]...)

	_, err := decodeFile(withExtra)
	require.Error(t, err)
}
