package message

import (
	"github.com/sn2d/ingestd/pkg/sensorpath"
	"github.com/sn2d/ingestd/pkg/streamcodec"
)

// StreamMessage carries one decompressed run of accelerometer or
// compass samples for a single axis, identified by its MsgType.
type StreamMessage struct {
	msgType MsgType
	Seq     uint16
	Samples []int16
}

func (m *StreamMessage) Type() MsgType              { return m.msgType }
func (m *StreamMessage) Sequence() uint16            { return m.Seq }
func (m *StreamMessage) Axis() sensorpath.Subpart    { return streamAxis[m.msgType] }
func (m *StreamMessage) Data() []int16               { return m.Samples }

// Path returns the lsm303d sensor path this stream message targets.
func (m *StreamMessage) Path() sensorpath.Path {
	return sensorpath.NewPath(sensorpath.LSM303D, 0, m.Axis())
}

func decodeStream(typ MsgType, buf []byte) (*StreamMessage, error) {
	c := newCursor(byte(typ), buf)

	seq, err := c.u16()
	if err != nil {
		return nil, err
	}
	reference, err := c.i16()
	if err != nil {
		return nil, err
	}

	rest, err := c.bytes(c.remaining())
	if err != nil {
		return nil, err
	}

	decoded, err := streamcodec.Decode(reference, rest)
	if err != nil {
		return nil, err
	}

	return &StreamMessage{msgType: typ, Seq: seq, Samples: decoded}, nil
}
