// Package message implements the ingest core's tagged, versioned
// binary wire protocol: a first-byte MsgType selects a decoder that
// consumes the remainder of the datagram into a typed record.
// Grounded on spec.md §4.5; the status_version ladder generalizes
// original_source/sn2daemon/protocol.py, which only models v1.
package message

import (
	"time"

	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
)

// MsgType selects the decoder for an application message's payload.
type MsgType byte

const (
	Status MsgType = iota + 1
	SensorDS18B20
	SensorLight
	SensorNoise
	SensorBME280
	SensorStreamAccelX
	SensorStreamAccelY
	SensorStreamAccelZ
	SensorStreamCompassX
	SensorStreamCompassY
	SensorStreamCompassZ
)

func (t MsgType) String() string {
	switch t {
	case Status:
		return "STATUS"
	case SensorDS18B20:
		return "SENSOR_DS18B20"
	case SensorLight:
		return "SENSOR_LIGHT"
	case SensorNoise:
		return "SENSOR_NOISE"
	case SensorBME280:
		return "SENSOR_BME280"
	case SensorStreamAccelX:
		return "SENSOR_STREAM_ACCEL_X"
	case SensorStreamAccelY:
		return "SENSOR_STREAM_ACCEL_Y"
	case SensorStreamAccelZ:
		return "SENSOR_STREAM_ACCEL_Z"
	case SensorStreamCompassX:
		return "SENSOR_STREAM_COMPASS_X"
	case SensorStreamCompassY:
		return "SENSOR_STREAM_COMPASS_Y"
	case SensorStreamCompassZ:
		return "SENSOR_STREAM_COMPASS_Z"
	default:
		return "UNKNOWN"
	}
}

// streamAxis maps a stream MsgType to the axis subpart it carries.
var streamAxis = map[MsgType]sensorpath.Subpart{
	SensorStreamAccelX:   sensorpath.AccelX,
	SensorStreamAccelY:   sensorpath.AccelY,
	SensorStreamAccelZ:   sensorpath.AccelZ,
	SensorStreamCompassX: sensorpath.CompassX,
	SensorStreamCompassY: sensorpath.CompassY,
	SensorStreamCompassZ: sensorpath.CompassZ,
}

// Message is the common interface every decoded variant implements.
type Message interface {
	Type() MsgType
}

// SampleBearing is implemented by the four variants capable of
// enumerating raw (device-tick timestamp, path, value) triples:
// SENSOR_DS18B20, SENSOR_NOISE, SENSOR_LIGHT and SENSOR_BME280.
// Timestamps here are still raw device ticks; the Ingestor RTCifies
// them before batching.
type SampleBearing interface {
	Message
	Samples() []RawSample
}

// RawSample is a sample whose timestamp has not yet been mapped to
// RTC; Timestamp is a raw uint16 device tick.
type RawSample struct {
	Timestamp uint16
	Path      sensorpath.Path
	Value     float64
}

// ToSample converts a RawSample to a sample.Sample once its timestamp
// has been mapped to wall-clock time.
func (r RawSample) ToSample(ts time.Time) sample.Sample {
	return sample.Sample{Timestamp: ts, Path: r.Path, Value: r.Value}
}

// StreamBearing is implemented by the six SENSOR_STREAM_* variants.
type StreamBearing interface {
	Message
	Sequence() uint16
	Axis() sensorpath.Subpart
	Data() []int16
}

// Decode dispatches on buf[0] to the appropriate decoder and returns a
// typed Message, or a *sn2derr.DecodeError for an unknown tag or a
// malformed/truncated payload. buf must hold exactly one application
// message.
func Decode(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, decodeErr(0, 0, "empty datagram")
	}

	typ := MsgType(buf[0])
	rest := buf[1:]

	switch typ {
	case Status:
		return decodeStatus(rest)
	case SensorDS18B20:
		return decodeDS18B20(rest)
	case SensorNoise:
		return decodeNoise(rest)
	case SensorLight:
		return decodeLight(rest)
	case SensorBME280:
		return decodeBME280(rest)
	case SensorStreamAccelX, SensorStreamAccelY, SensorStreamAccelZ,
		SensorStreamCompassX, SensorStreamCompassY, SensorStreamCompassZ:
		return decodeStream(typ, rest)
	default:
		return nil, decodeErr(buf[0], 0, "unknown message type")
	}
}
