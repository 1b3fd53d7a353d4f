// Package sensorpath implements SensorPath, the (part, instance,
// subpart?) triple that identifies a sensor value, and the closed set
// of parts and per-part subparts it can take.
package sensorpath

import "fmt"

// Part is the closed set of sensor hardware kinds a node can report.
type Part int

const (
	DS18B20 Part = iota
	BME280
	TCS3200
	LSM303D
	CustomNoise
)

func (p Part) String() string {
	switch p {
	case DS18B20:
		return "ds18b20"
	case BME280:
		return "bme280"
	case TCS3200:
		return "tcs3200"
	case LSM303D:
		return "lsm303d"
	case CustomNoise:
		return "custom-noise"
	default:
		return fmt.Sprintf("part(%d)", int(p))
	}
}

// Subpart discriminates within a sensor part, e.g. an axis or channel.
// The zero value means "no subpart" and must only be used on bare paths.
type Subpart int

const (
	NoSubpart Subpart = iota
	BME280Temp
	BME280Pressure
	BME280Humidity
	LightR
	LightG
	LightB
	LightC
	AccelX
	AccelY
	AccelZ
	CompassX
	CompassY
	CompassZ
	NoiseRMS
	NoiseMin
	NoiseMax
)

func (s Subpart) String() string {
	switch s {
	case NoSubpart:
		return ""
	case BME280Temp:
		return "temp"
	case BME280Pressure:
		return "pres"
	case BME280Humidity:
		return "hum"
	case LightR:
		return "r"
	case LightG:
		return "g"
	case LightB:
		return "b"
	case LightC:
		return "c"
	case AccelX:
		return "accel-x"
	case AccelY:
		return "accel-y"
	case AccelZ:
		return "accel-z"
	case CompassX:
		return "compass-x"
	case CompassY:
		return "compass-y"
	case CompassZ:
		return "compass-z"
	case NoiseRMS:
		return "rms"
	case NoiseMin:
		return "min"
	case NoiseMax:
		return "max"
	default:
		return fmt.Sprintf("subpart(%d)", int(s))
	}
}

// Path identifies a sensor value. Instance is either a small integer
// (most parts) or a hex device id string (DS18B20); exactly one of
// InstanceN/InstanceID is meaningful, selected by HasStringInstance.
type Path struct {
	Part              Part
	InstanceN         int
	InstanceID        string
	HasStringInstance bool
	Subpart           Subpart
}

// NewPath builds a path with an integer instance.
func NewPath(part Part, instance int, subpart Subpart) Path {
	return Path{Part: part, InstanceN: instance, Subpart: subpart}
}

// NewPathID builds a path with a string (hex id) instance, as used by
// DS18B20.
func NewPathID(part Part, instanceID string, subpart Subpart) Path {
	return Path{Part: part, InstanceID: instanceID, HasStringInstance: true, Subpart: subpart}
}

// Bare returns the path with its subpart removed, the key batches are
// grouped by.
func (p Path) Bare() Path {
	b := p
	b.Subpart = NoSubpart
	return b
}

func (p Path) instanceString() string {
	if p.HasStringInstance {
		return p.InstanceID
	}
	return fmt.Sprintf("%d", p.InstanceN)
}

// String renders the canonical "part/instance[/subpart]" form.
func (p Path) String() string {
	s := p.Part.String() + "/" + p.instanceString()
	if p.Subpart != NoSubpart {
		s += "/" + p.Subpart.String()
	}
	return s
}

// Equal reports whether two paths name the same field triple.
func (p Path) Equal(o Path) bool {
	return p.Part == o.Part &&
		p.HasStringInstance == o.HasStringInstance &&
		p.InstanceN == o.InstanceN &&
		p.InstanceID == o.InstanceID &&
		p.Subpart == o.Subpart
}
