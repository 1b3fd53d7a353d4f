package message

import "time"

// IMUStreamState reports one IMU stream's current sequence/timestamp/
// period, used by the Ingestor to (re)align the matching StreamBuffer.
type IMUStreamState struct {
	Seq      uint16
	Ts       uint16
	PeriodMs uint16
}

// I2CMetrics reports bus-level error counters.
type I2CMetrics struct {
	TransactionOverruns uint16
}

// BME280Metrics reports one BME280 instance's driver health.
type BME280Metrics struct {
	ConfigureStatus uint8
	Timeouts        uint16
}

// TXMetrics reports the node's outgoing packet buffer pool health.
type TXMetrics struct {
	MostAllocated uint16
	Allocated     uint16
	Ready         uint16
	Total         uint16
}

// TasksMetrics reports per-task CPU tick counters, present only for
// status_version == 5.
type TasksMetrics struct {
	IdleTicks     uint16
	TaskCPUTicks  []uint16
}

// CPU counter array layout, present for status_version >= 6.
const (
	cpuCounterCount = 32
	cpuIdleIndex    = 0
	cpuSchedIndex   = 1
	cpuTaskBase     = 8
)

// cpuInterruptNames assigns the counters between the fixed Idle/Sched
// slots and TaskBase to the node firmware's named interrupt sources.
var cpuInterruptNames = []string{
	"gpio",
	"i2c",
	"spi",
	"uart",
	"timer",
	"wifi",
}

// CPUMetrics reports the node's 32-slot CPU counter array, present for
// status_version >= 6. Idle and Sched are broken out by fixed index;
// Interrupts maps the named interrupt sources; Tasks holds the
// remaining TASK_BASE..31 counters in task order.
type CPUMetrics struct {
	Idle        uint16
	Sched       uint16
	Interrupts  map[string]uint16
	Tasks       []uint16
}

// StatusMessage is the node's periodic heartbeat: RTC anchor, uptime
// counter, and a status_version-gated ladder of driver/runtime metrics.
type StatusMessage struct {
	RTCEpochSeconds uint32
	Uptime          uint16
	ProtocolVersion uint8
	StatusVersion   uint8

	AccelStreamState   IMUStreamState
	CompassStreamState IMUStreamState

	I2C            [2]I2CMetrics
	BME280         [2]BME280Metrics
	HasI2CAndBME280 bool

	TX      TXMetrics
	HasTX   bool

	Tasks    TasksMetrics
	HasTasks bool

	CPU    CPUMetrics
	HasCPU bool
}

func (s *StatusMessage) Type() MsgType { return Status }

// RTC returns the status's RTC anchor as a UTC time.Time.
func (s *StatusMessage) RTC() time.Time {
	return time.Unix(int64(s.RTCEpochSeconds), 0).UTC()
}

func readIMUStreamState(c *cursor) (IMUStreamState, error) {
	var st IMUStreamState
	var err error
	if st.Seq, err = c.u16(); err != nil {
		return st, err
	}
	if st.Ts, err = c.u16(); err != nil {
		return st, err
	}
	if st.PeriodMs, err = c.u16(); err != nil {
		return st, err
	}
	return st, nil
}

func decodeStatus(buf []byte) (*StatusMessage, error) {
	c := newCursor(byte(Status), buf)
	s := &StatusMessage{}

	var err error
	if s.RTCEpochSeconds, err = c.u32(); err != nil {
		return nil, err
	}
	if s.Uptime, err = c.u16(); err != nil {
		return nil, err
	}
	if s.ProtocolVersion, err = c.u8(); err != nil {
		return nil, err
	}
	if s.StatusVersion, err = c.u8(); err != nil {
		return nil, err
	}

	if s.ProtocolVersion != 1 {
		return nil, decodeErr(byte(Status), c.off, "unsupported protocol version")
	}
	if s.StatusVersion > 6 {
		return nil, decodeErr(byte(Status), c.off, "unsupported status version")
	}

	if s.StatusVersion >= 1 {
		if s.AccelStreamState, err = readIMUStreamState(c); err != nil {
			return nil, err
		}
		if s.CompassStreamState, err = readIMUStreamState(c); err != nil {
			return nil, err
		}
	}

	if s.StatusVersion >= 2 {
		s.HasI2CAndBME280 = true
		for i := range s.I2C {
			v, err := c.u16()
			if err != nil {
				return nil, err
			}
			s.I2C[i] = I2CMetrics{TransactionOverruns: v}
		}

		switch {
		case s.StatusVersion < 3:
			timeouts, err := c.u16()
			if err != nil {
				return nil, err
			}
			s.BME280[0] = BME280Metrics{ConfigureStatus: 0x00, Timeouts: timeouts}
			s.BME280[1] = BME280Metrics{ConfigureStatus: 0xFF, Timeouts: 0}
		case s.StatusVersion == 3:
			cfgStatus, err := c.u8()
			if err != nil {
				return nil, err
			}
			timeouts, err := c.u16()
			if err != nil {
				return nil, err
			}
			s.BME280[0] = BME280Metrics{ConfigureStatus: cfgStatus, Timeouts: timeouts}
			s.BME280[1] = BME280Metrics{ConfigureStatus: 0xFF, Timeouts: 0}
		default: // >= 4
			for i := range s.BME280 {
				cfgStatus, err := c.u8()
				if err != nil {
					return nil, err
				}
				timeouts, err := c.u16()
				if err != nil {
					return nil, err
				}
				s.BME280[i] = BME280Metrics{ConfigureStatus: cfgStatus, Timeouts: timeouts}
			}
		}
	}

	if s.StatusVersion >= 5 {
		s.HasTX = true
		if s.TX.MostAllocated, err = c.u16(); err != nil {
			return nil, err
		}
		if s.TX.Allocated, err = c.u16(); err != nil {
			return nil, err
		}
		if s.TX.Ready, err = c.u16(); err != nil {
			return nil, err
		}
		if s.TX.Total, err = c.u16(); err != nil {
			return nil, err
		}
	}

	if s.StatusVersion == 5 {
		s.HasTasks = true
		count, err := c.u8()
		if err != nil {
			return nil, err
		}
		if s.Tasks.IdleTicks, err = c.u16(); err != nil {
			return nil, err
		}
		s.Tasks.TaskCPUTicks = make([]uint16, count)
		for i := range s.Tasks.TaskCPUTicks {
			v, err := c.u16()
			if err != nil {
				return nil, err
			}
			s.Tasks.TaskCPUTicks[i] = v
		}
	}

	if s.StatusVersion >= 6 {
		s.HasCPU = true
		counters := make([]uint16, cpuCounterCount)
		for i := range counters {
			v, err := c.u16()
			if err != nil {
				return nil, err
			}
			counters[i] = v
		}
		s.CPU = CPUMetrics{
			Idle:       counters[cpuIdleIndex],
			Sched:      counters[cpuSchedIndex],
			Interrupts: make(map[string]uint16, len(cpuInterruptNames)),
			Tasks:      append([]uint16(nil), counters[cpuTaskBase:]...),
		}
		for i, name := range cpuInterruptNames {
			idx := 2 + i
			if idx >= cpuTaskBase {
				break
			}
			s.CPU.Interrupts[name] = counters[idx]
		}
	}

	return s, nil
}
