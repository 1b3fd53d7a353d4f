package message

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sn2d/ingestd/pkg/sensorpath"
)

func TestDecodeDS18B20_DecodesSixteenthCelsiusFixedPoint(t *testing.T) {
	buf := []byte{byte(SensorDS18B20)}
	buf = append(buf, le16(1000)...) // timestamp
	id := []byte{0x28, 0xAA, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	buf = append(buf, id...)
	temp16 := int16(20 * 16) // 20.0C as 1/16C fixed point
	tb := make([]byte, 2)
	binary.LittleEndian.PutUint16(tb, uint16(temp16))
	buf = append(buf, tb...)

	msg, err := Decode(buf)
	require.NoError(t, err)

	m := msg.(*DS18B20Message)
	require.Len(t, m.Readings, 1)
	assert.Equal(t, "28aa112233445566", m.Readings[0].ID)
	assert.InDelta(t, 20.0, m.Readings[0].Temperature, 1e-9)

	samples := m.Samples()
	require.Len(t, samples, 1)
	assert.Equal(t, sensorpath.NewPathID(sensorpath.DS18B20, m.Readings[0].ID, sensorpath.NoSubpart), samples[0].Path)
	assert.EqualValues(t, 1000, samples[0].Timestamp)
}

func TestDecodeDS18B20_RejectsPartialRecord(t *testing.T) {
	buf := []byte{byte(SensorDS18B20)}
	buf = append(buf, le16(0)...)
	buf = append(buf, make([]byte, 5)...) // not a multiple of the 10-byte record size

	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeNoise_ThreeSamplesPerWindow(t *testing.T) {
	buf := []byte{byte(SensorNoise)}
	buf = append(buf, 4) // factor
	buf = append(buf, le16(500)...)
	buf = append(buf, le32(1<<20)...)
	buf = append(buf, le16(uint16(int16(-100)))...)
	buf = append(buf, le16(uint16(int16(200)))...)

	msg, err := Decode(buf)
	require.NoError(t, err)

	m := msg.(*NoiseMessage)
	require.Len(t, m.Windows, 1)
	samples := m.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, sensorpath.NewPath(sensorpath.CustomNoise, 0, sensorpath.NoiseRMS), samples[0].Path)
	assert.Equal(t, sensorpath.NewPath(sensorpath.CustomNoise, 0, sensorpath.NoiseMin), samples[1].Path)
	assert.Equal(t, sensorpath.NewPath(sensorpath.CustomNoise, 0, sensorpath.NoiseMax), samples[2].Path)
	assert.InDelta(t, -100.0/(1<<15-1), samples[1].Value, 1e-9)
}

func TestNoiseRMS_ZeroFactorFloorsAtMinus96(t *testing.T) {
	assert.Equal(t, -96.0, noiseRMS(1<<20, 0))
}

func TestNoiseRMS_ZeroEnergyFloorsAtMinus96(t *testing.T) {
	assert.Equal(t, -96.0, noiseRMS(0, 4))
}

func TestDecodeLight_FourChannelsPerReading(t *testing.T) {
	buf := []byte{byte(SensorLight)}
	buf = append(buf, le16(10)...)
	buf = append(buf, le16(100)...)
	buf = append(buf, le16(200)...)
	buf = append(buf, le16(300)...)
	buf = append(buf, le16(400)...)

	msg, err := Decode(buf)
	require.NoError(t, err)

	m := msg.(*LightMessage)
	require.Len(t, m.Readings, 1)
	samples := m.Samples()
	require.Len(t, samples, 4)
	assert.Equal(t, sensorpath.NewPath(sensorpath.TCS3200, 0, sensorpath.LightR), samples[0].Path)
	assert.EqualValues(t, 100, samples[0].Value)
	assert.EqualValues(t, 400, samples[3].Value)
}

func TestDecodeBME280_RejectsTrailingGarbage(t *testing.T) {
	buf := []byte{byte(SensorBME280)}
	buf = append(buf, le16(0)...)
	buf = append(buf, 0) // instance
	buf = append(buf, make([]byte, 26)...)
	buf = append(buf, make([]byte, 7)...)
	buf = append(buf, make([]byte, 8)...)
	buf = append(buf, 0xFF) // one byte too many

	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeBME280_ProducesThreeCompensatedSamples(t *testing.T) {
	buf := []byte{byte(SensorBME280)}
	buf = append(buf, le16(0)...)
	buf = append(buf, 1) // instance
	buf = append(buf, make([]byte, 26)...)
	buf = append(buf, make([]byte, 7)...)
	buf = append(buf, make([]byte, 8)...)

	msg, err := Decode(buf)
	require.NoError(t, err)

	m := msg.(*BME280Message)
	samples := m.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, sensorpath.NewPath(sensorpath.BME280, 1, sensorpath.BME280Temp), samples[0].Path)
	assert.Equal(t, sensorpath.NewPath(sensorpath.BME280, 1, sensorpath.BME280Pressure), samples[1].Path)
	assert.Equal(t, sensorpath.NewPath(sensorpath.BME280, 1, sensorpath.BME280Humidity), samples[2].Path)
}
