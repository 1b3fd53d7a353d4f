package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sn2d/ingestd/pkg/sensorpath"
)

func TestDecodeStream_DispatchesAxisFromTag(t *testing.T) {
	buf := []byte{byte(SensorStreamAccelY)}
	buf = append(buf, le16(7)...)               // seq
	buf = append(buf, le16(uint16(int16(50)))...) // reference
	buf = append(buf, 0xFF)                      // bitmap byte: all bits set, 8-bit residuals
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(int8(i)))
	}

	msg, err := Decode(buf)
	require.NoError(t, err)

	m := msg.(*StreamMessage)
	assert.Equal(t, SensorStreamAccelY, m.Type())
	assert.EqualValues(t, 7, m.Sequence())
	assert.Equal(t, sensorpath.AccelY, m.Axis())
	assert.Equal(t, sensorpath.NewPath(sensorpath.LSM303D, 0, sensorpath.AccelY), m.Path())
	assert.Equal(t, []int16{50, 50, 51, 52, 53, 54, 55, 56, 57}, m.Data())
}

func TestDecodeStream_PropagatesCodecErrorsAsDecodeFailure(t *testing.T) {
	buf := []byte{byte(SensorStreamCompassX)}
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 0x00, 0x01) // one false bit claiming two residual bytes it doesn't have

	_, err := Decode(buf)
	require.Error(t, err)
}
