package message

import (
	"encoding/hex"
	"math"

	"github.com/sn2d/ingestd/pkg/bme280"
	"github.com/sn2d/ingestd/pkg/sensorpath"
)

// DS18B20Message carries zero or more temperature readings keyed by
// the sensor's 8-byte hex device id.
type DS18B20Message struct {
	Timestamp uint16
	Readings  []DS18B20Reading
}

// DS18B20Reading is one (id, temperature) record.
type DS18B20Reading struct {
	ID          string
	Temperature float64
}

func (m *DS18B20Message) Type() MsgType { return SensorDS18B20 }

func (m *DS18B20Message) Samples() []RawSample {
	out := make([]RawSample, 0, len(m.Readings))
	for _, r := range m.Readings {
		out = append(out, RawSample{
			Timestamp: m.Timestamp,
			Path:      sensorpath.NewPathID(sensorpath.DS18B20, r.ID, sensorpath.NoSubpart),
			Value:     r.Temperature,
		})
	}
	return out
}

func decodeDS18B20(buf []byte) (*DS18B20Message, error) {
	c := newCursor(byte(SensorDS18B20), buf)
	m := &DS18B20Message{}

	var err error
	if m.Timestamp, err = c.u16(); err != nil {
		return nil, err
	}

	const recordSize = 8 + 2
	if c.remaining()%recordSize != 0 {
		return nil, decodeErr(byte(SensorDS18B20), c.off, "buffer does not contain an integer number of records")
	}

	for !c.atEnd() {
		idBytes, err := c.bytes(8)
		if err != nil {
			return nil, err
		}
		raw, err := c.i16()
		if err != nil {
			return nil, err
		}
		m.Readings = append(m.Readings, DS18B20Reading{
			ID:          hex.EncodeToString(idBytes),
			Temperature: float64(raw) / 16,
		})
	}

	return m, nil
}

// NoiseMessage carries zero or more noise-level windows, each yielding
// an RMS/min/max triple of samples.
type NoiseMessage struct {
	Factor  uint8
	Windows []NoiseWindow
}

// NoiseWindow is one decoded noise measurement window.
type NoiseWindow struct {
	Timestamp uint16
	SqAvg     uint32
	Min       int16
	Max       int16
}

func (m *NoiseMessage) Type() MsgType { return SensorNoise }

func (m *NoiseMessage) Samples() []RawSample {
	out := make([]RawSample, 0, len(m.Windows)*3)
	for _, w := range m.Windows {
		out = append(out,
			RawSample{Timestamp: w.Timestamp, Path: sensorpath.NewPath(sensorpath.CustomNoise, 0, sensorpath.NoiseRMS), Value: noiseRMS(w.SqAvg, m.Factor)},
			RawSample{Timestamp: w.Timestamp, Path: sensorpath.NewPath(sensorpath.CustomNoise, 0, sensorpath.NoiseMin), Value: float64(w.Min) / (1<<15 - 1)},
			RawSample{Timestamp: w.Timestamp, Path: sensorpath.NewPath(sensorpath.CustomNoise, 0, sensorpath.NoiseMax), Value: float64(w.Max) / (1<<15 - 1)},
		)
	}
	return out
}

// noiseRMS computes 20*log10(sqrt(sqavg/(2^24-1)/factor)) dB, returning
// -96 dB (the spec's floor) on a math domain error.
func noiseRMS(sqavg uint32, factor uint8) float64 {
	if factor == 0 {
		return -96
	}
	ratio := float64(sqavg) / float64(1<<24-1) / float64(factor)
	if ratio <= 0 {
		return -96
	}
	v := 20 * math.Log10(math.Sqrt(ratio))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return -96
	}
	return v
}

func decodeNoise(buf []byte) (*NoiseMessage, error) {
	c := newCursor(byte(SensorNoise), buf)
	m := &NoiseMessage{}

	var err error
	if m.Factor, err = c.u8(); err != nil {
		return nil, err
	}

	const recordSize = 2 + 4 + 2 + 2
	if c.remaining()%recordSize != 0 {
		return nil, decodeErr(byte(SensorNoise), c.off, "buffer does not contain an integer number of records")
	}

	for !c.atEnd() {
		ts, err := c.u16()
		if err != nil {
			return nil, err
		}
		sqavg, err := c.u32()
		if err != nil {
			return nil, err
		}
		min, err := c.i16()
		if err != nil {
			return nil, err
		}
		max, err := c.i16()
		if err != nil {
			return nil, err
		}
		m.Windows = append(m.Windows, NoiseWindow{Timestamp: ts, SqAvg: sqavg, Min: min, Max: max})
	}

	return m, nil
}

// LightMessage carries zero or more RGBC light readings.
type LightMessage struct {
	Readings []LightReading
}

// LightReading is one decoded RGBC sample.
type LightReading struct {
	Timestamp uint16
	R, G, B, Clear uint16
}

func (m *LightMessage) Type() MsgType { return SensorLight }

func (m *LightMessage) Samples() []RawSample {
	out := make([]RawSample, 0, len(m.Readings)*4)
	for _, r := range m.Readings {
		out = append(out,
			RawSample{Timestamp: r.Timestamp, Path: sensorpath.NewPath(sensorpath.TCS3200, 0, sensorpath.LightR), Value: float64(r.R)},
			RawSample{Timestamp: r.Timestamp, Path: sensorpath.NewPath(sensorpath.TCS3200, 0, sensorpath.LightG), Value: float64(r.G)},
			RawSample{Timestamp: r.Timestamp, Path: sensorpath.NewPath(sensorpath.TCS3200, 0, sensorpath.LightB), Value: float64(r.B)},
			RawSample{Timestamp: r.Timestamp, Path: sensorpath.NewPath(sensorpath.TCS3200, 0, sensorpath.LightC), Value: float64(r.Clear)},
		)
	}
	return out
}

func decodeLight(buf []byte) (*LightMessage, error) {
	c := newCursor(byte(SensorLight), buf)
	m := &LightMessage{}

	const recordSize = 2 + 2*4
	if c.remaining()%recordSize != 0 {
		return nil, decodeErr(byte(SensorLight), c.off, "buffer does not contain an integer number of records")
	}

	for !c.atEnd() {
		ts, err := c.u16()
		if err != nil {
			return nil, err
		}
		r, err := c.u16()
		if err != nil {
			return nil, err
		}
		g, err := c.u16()
		if err != nil {
			return nil, err
		}
		b, err := c.u16()
		if err != nil {
			return nil, err
		}
		clear, err := c.u16()
		if err != nil {
			return nil, err
		}
		m.Readings = append(m.Readings, LightReading{Timestamp: ts, R: r, G: g, B: b, Clear: clear})
	}

	return m, nil
}

// BME280Message carries one environmental sensor readout plus the
// calibration block needed to compensate it.
type BME280Message struct {
	Timestamp uint16
	Instance  uint8
	Dig88     [26]byte
	Dige1     [7]byte
	Readout   [8]byte
}

func (m *BME280Message) Type() MsgType { return SensorBME280 }

// Samples compensates the readout via pkg/bme280 and emits the three
// derived samples.
func (m *BME280Message) Samples() []RawSample {
	calib := bme280.GetCalibration(m.Dig88, m.Dige1)
	temp, pressure, humidity := bme280.Compensate(calib, m.Readout)
	inst := int(m.Instance)
	return []RawSample{
		{Timestamp: m.Timestamp, Path: sensorpath.NewPath(sensorpath.BME280, inst, sensorpath.BME280Temp), Value: temp},
		{Timestamp: m.Timestamp, Path: sensorpath.NewPath(sensorpath.BME280, inst, sensorpath.BME280Pressure), Value: pressure},
		{Timestamp: m.Timestamp, Path: sensorpath.NewPath(sensorpath.BME280, inst, sensorpath.BME280Humidity), Value: humidity},
	}
}

func decodeBME280(buf []byte) (*BME280Message, error) {
	c := newCursor(byte(SensorBME280), buf)
	m := &BME280Message{}

	var err error
	if m.Timestamp, err = c.u16(); err != nil {
		return nil, err
	}
	if m.Instance, err = c.u8(); err != nil {
		return nil, err
	}

	dig88, err := c.bytes(26)
	if err != nil {
		return nil, err
	}
	copy(m.Dig88[:], dig88)

	dige1, err := c.bytes(7)
	if err != nil {
		return nil, err
	}
	copy(m.Dige1[:], dige1)

	readout, err := c.bytes(8)
	if err != nil {
		return nil, err
	}
	copy(m.Readout[:], readout)

	if !c.atEnd() {
		return nil, decodeErr(byte(SensorBME280), c.off, "too much data in buffer")
	}

	return m, nil
}
