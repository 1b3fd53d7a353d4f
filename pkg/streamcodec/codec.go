// Package streamcodec decompresses the delta+bitmap code the device
// uses to pack a run of 16-bit samples relative to a reference value.
// Ported from original_source/sn2daemon/sensor_stream.py's
// decompress().
package streamcodec

import (
	"encoding/binary"

	"github.com/sn2d/ingestd/pkg/sn2derr"
)

// Decode decompresses payload into a slice beginning with ref followed
// by one decoded residual per bitmap bit. The bitmap is packed 8 bits
// per leading byte (MSB first); a set bit reserves one signed 8-bit
// residual byte, a clear bit reserves a signed 16-bit little-endian
// residual. Every payload byte must be consumed exactly.
func Decode(ref int16, payload []byte) ([]int16, error) {
	remaining := len(payload)
	var bitmap []bool

	cursor := 0
readBitmap:
	for remaining > 0 {
		if cursor >= len(payload) {
			return nil, &sn2derr.CodecError{Offset: cursor, Reason: "truncated bitmap byte"}
		}
		b := payload[cursor]
		cursor++
		remaining--

		for i := 7; i >= 0; i-- {
			bit := (b>>uint(i))&1 == 1
			bitmap = append(bitmap, bit)
			if bit {
				remaining--
			} else {
				remaining -= 2
			}
			if remaining <= 0 {
				if remaining < 0 {
					return nil, &sn2derr.CodecError{
						Offset: cursor,
						Reason: "remaining payload went negative while sizing residuals",
					}
				}
				break readBitmap
			}
		}
	}

	values := make([]int16, 0, len(bitmap)+1)
	values = append(values, ref)

	for _, set := range bitmap {
		if set {
			if cursor+1 > len(payload) {
				return nil, &sn2derr.CodecError{Offset: cursor, Reason: "truncated 8-bit residual"}
			}
			raw := int16(int8(payload[cursor]))
			cursor++
			values = append(values, raw+ref)
		} else {
			if cursor+2 > len(payload) {
				return nil, &sn2derr.CodecError{Offset: cursor, Reason: "truncated 16-bit residual"}
			}
			raw := int16(binary.LittleEndian.Uint16(payload[cursor : cursor+2]))
			cursor += 2
			values = append(values, raw+ref)
		}
	}

	if cursor != len(payload) {
		return nil, &sn2derr.CodecError{Offset: cursor, Reason: "trailing bytes left after decoding all bitmap bits"}
	}

	return values, nil
}
