package message

import (
	"encoding/binary"

	"github.com/sn2d/ingestd/pkg/sn2derr"
)

// cursor is a bounds-checked little-endian reader over a decoder's
// remaining buffer, playing the role the teacher's RTP/H264 code plays
// with raw byte-slice indexing but centralizing the bounds checks so
// every decoder in this package fails the same way on overrun.
type cursor struct {
	buf    []byte
	off    int
	msgTyp byte
}

func newCursor(msgTyp byte, buf []byte) *cursor {
	return &cursor{buf: buf, msgTyp: msgTyp}
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) need(n int) error {
	if c.remaining() < n {
		return &sn2derr.DecodeError{MsgType: c.msgTyp, Offset: c.off, Reason: "buffer underrun"}
	}
	return nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

func (c *cursor) i8() (int8, error) {
	v, err := c.u8()
	return int8(v), err
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

func (c *cursor) i16() (int16, error) {
	v, err := c.u16()
	return int16(v), err
}

func (c *cursor) u32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.buf[c.off : c.off+n]
	c.off += n
	return v, nil
}

// atEnd reports whether the cursor has consumed the entire buffer.
func (c *cursor) atEnd() bool { return c.remaining() == 0 }

func decodeErr(msgTyp byte, offset int, reason string) error {
	return &sn2derr.DecodeError{MsgType: msgTyp, Offset: offset, Reason: reason}
}
