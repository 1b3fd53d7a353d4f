package message

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func le16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// statusHeader builds the fixed {rtc, uptime, protocol_version,
// status_version} prefix every STATUS body starts with.
func statusHeader(rtc uint32, uptime uint16, statusVersion uint8) []byte {
	buf := append([]byte{}, le32(rtc)...)
	buf = append(buf, le16(uptime)...)
	buf = append(buf, 1, statusVersion) // protocol_version is always 1
	return buf
}

func imuState(seq, ts, periodMs uint16) []byte {
	buf := append([]byte{}, le16(seq)...)
	buf = append(buf, le16(ts)...)
	buf = append(buf, le16(periodMs)...)
	return buf
}

func TestDecodeStatus_V1_OnlyIMUStreamState(t *testing.T) {
	buf := statusHeader(1700000000, 42, 1)
	buf = append(buf, imuState(1, 100, 20)...)
	buf = append(buf, imuState(2, 200, 25)...)

	msg, err := Decode(append([]byte{byte(Status)}, buf...))
	require.NoError(t, err)

	s := msg.(*StatusMessage)
	assert.EqualValues(t, 1700000000, s.RTCEpochSeconds)
	assert.EqualValues(t, 42, s.Uptime)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), s.RTC())
	assert.Equal(t, IMUStreamState{Seq: 1, Ts: 100, PeriodMs: 20}, s.AccelStreamState)
	assert.Equal(t, IMUStreamState{Seq: 2, Ts: 200, PeriodMs: 25}, s.CompassStreamState)
	assert.False(t, s.HasI2CAndBME280)
	assert.False(t, s.HasTX)
	assert.False(t, s.HasTasks)
	assert.False(t, s.HasCPU)
}

func TestDecodeStatus_V2_SingleBME280Timeout(t *testing.T) {
	buf := statusHeader(0, 0, 2)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, le16(3)...) // i2c[0] overruns
	buf = append(buf, le16(4)...) // i2c[1] overruns
	buf = append(buf, le16(9)...) // single timeouts counter

	msg, err := Decode(append([]byte{byte(Status)}, buf...))
	require.NoError(t, err)

	s := msg.(*StatusMessage)
	require.True(t, s.HasI2CAndBME280)
	assert.EqualValues(t, 3, s.I2C[0].TransactionOverruns)
	assert.EqualValues(t, 4, s.I2C[1].TransactionOverruns)
	assert.EqualValues(t, 0x00, s.BME280[0].ConfigureStatus)
	assert.EqualValues(t, 9, s.BME280[0].Timeouts)
	assert.EqualValues(t, 0xFF, s.BME280[1].ConfigureStatus)
	assert.EqualValues(t, 0, s.BME280[1].Timeouts)
}

func TestDecodeStatus_V3_SingleBME280WithConfigureStatus(t *testing.T) {
	buf := statusHeader(0, 0, 3)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 7) // configure_status
	buf = append(buf, le16(11)...)

	msg, err := Decode(append([]byte{byte(Status)}, buf...))
	require.NoError(t, err)

	s := msg.(*StatusMessage)
	assert.EqualValues(t, 7, s.BME280[0].ConfigureStatus)
	assert.EqualValues(t, 11, s.BME280[0].Timeouts)
	assert.EqualValues(t, 0xFF, s.BME280[1].ConfigureStatus)
}

func TestDecodeStatus_V4_DualBME280(t *testing.T) {
	buf := statusHeader(0, 0, 4)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 1)
	buf = append(buf, le16(5)...)
	buf = append(buf, 2)
	buf = append(buf, le16(6)...)

	msg, err := Decode(append([]byte{byte(Status)}, buf...))
	require.NoError(t, err)

	s := msg.(*StatusMessage)
	assert.EqualValues(t, 1, s.BME280[0].ConfigureStatus)
	assert.EqualValues(t, 5, s.BME280[0].Timeouts)
	assert.EqualValues(t, 2, s.BME280[1].ConfigureStatus)
	assert.EqualValues(t, 6, s.BME280[1].Timeouts)
}

func TestDecodeStatus_V5_TXAndTasks(t *testing.T) {
	buf := statusHeader(0, 0, 5)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 0)
	buf = append(buf, le16(0)...)
	buf = append(buf, 0)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(10)...) // tx.most_allocated
	buf = append(buf, le16(8)...)  // tx.allocated
	buf = append(buf, le16(2)...)  // tx.ready
	buf = append(buf, le16(10)...) // tx.total
	buf = append(buf, 2)           // task count
	buf = append(buf, le16(100)...)
	buf = append(buf, le16(5)...)
	buf = append(buf, le16(6)...)

	msg, err := Decode(append([]byte{byte(Status)}, buf...))
	require.NoError(t, err)

	s := msg.(*StatusMessage)
	require.True(t, s.HasTX)
	assert.EqualValues(t, 10, s.TX.MostAllocated)
	assert.EqualValues(t, 2, s.TX.Ready)
	require.True(t, s.HasTasks)
	assert.EqualValues(t, 100, s.Tasks.IdleTicks)
	assert.Equal(t, []uint16{5, 6}, s.Tasks.TaskCPUTicks)
	assert.False(t, s.HasCPU)
}

func TestDecodeStatus_V6_CPUCountersWithoutTasks(t *testing.T) {
	buf := statusHeader(0, 0, 6)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, imuState(0, 0, 0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 0)
	buf = append(buf, le16(0)...)
	buf = append(buf, 0)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, le16(0)...)
	for i := 0; i < 32; i++ {
		buf = append(buf, le16(uint16(i))...)
	}

	msg, err := Decode(append([]byte{byte(Status)}, buf...))
	require.NoError(t, err)

	s := msg.(*StatusMessage)
	assert.False(t, s.HasTasks, "status_version 6 carries CPU counters, not the v5 task table")
	require.True(t, s.HasCPU)
	assert.EqualValues(t, 0, s.CPU.Idle)
	assert.EqualValues(t, 1, s.CPU.Sched)
	assert.EqualValues(t, 2, s.CPU.Interrupts["gpio"])
	assert.EqualValues(t, 7, s.CPU.Interrupts["wifi"])
	assert.Len(t, s.CPU.Tasks, 32-8)
	assert.EqualValues(t, 8, s.CPU.Tasks[0])
}

func TestDecodeStatus_RejectsUnsupportedProtocolVersion(t *testing.T) {
	buf := []byte{byte(Status)}
	buf = append(buf, le32(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 2, 1) // protocol_version = 2, unsupported

	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeStatus_RejectsUnsupportedStatusVersion(t *testing.T) {
	buf := []byte{byte(Status)}
	buf = append(buf, le32(0)...)
	buf = append(buf, le16(0)...)
	buf = append(buf, 1, 7) // status_version = 7, unsupported

	_, err := Decode(buf)
	require.Error(t, err)
}

func TestDecodeStatus_TruncatedBufferIsRejected(t *testing.T) {
	_, err := Decode([]byte{byte(Status), 1, 2, 3})
	require.Error(t, err)
}
