package streambuffer

import (
	"encoding/binary"
	"time"

	"github.com/sigurn/crc16"
)

const (
	fileVersion   byte = 0x00
	sampleTypeI16 byte = 0x01

	// header: version(1) + t0_seconds(8) + t0_microseconds(4) +
	// period_microseconds(8) + sample_type(1)
	headerSize = 1 + 8 + 4 + 8 + 1
	// trailing CRC-16/CCITT over the header+payload, an ambient
	// addition over spec.md's file layout so a half-written "current"
	// is detected as corrupt before the version check even runs.
	trailerSize = 2
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// encodeFile renders the on-disk "current" file: header, packed int16
// samples, trailing CRC-16 over everything preceding it.
func encodeFile(t0 time.Time, period time.Duration, samples []int16) []byte {
	buf := make([]byte, headerSize+len(samples)*2+trailerSize)

	buf[0] = fileVersion
	sec := t0.Unix()
	micros := uint32(t0.Nanosecond() / 1000)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(sec))
	binary.LittleEndian.PutUint32(buf[9:13], micros)
	binary.LittleEndian.PutUint64(buf[13:21], uint64(period.Microseconds()))
	buf[21] = sampleTypeI16

	off := headerSize
	for _, s := range samples {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(s))
		off += 2
	}

	crc := crc16.Checksum(buf[:off], crcTable)
	binary.LittleEndian.PutUint16(buf[off:off+2], crc)

	return buf
}

// decodedFile is the parsed content of a "current" file.
type decodedFile struct {
	T0      time.Time
	Period  time.Duration
	Samples []int16
}

// decodeFile parses and CRC-validates a "current" file's contents.
// Any structural problem (short buffer, bad version, bad sample type,
// checksum mismatch, size not a whole number of samples) is reported
// so the caller can discard and unlink the file per spec.md §4.4/§9.
func decodeFile(buf []byte) (*decodedFile, error) {
	if len(buf) < headerSize+trailerSize {
		return nil, errCorruptFile("file too short")
	}

	payloadEnd := len(buf) - trailerSize
	wantCRC := binary.LittleEndian.Uint16(buf[payloadEnd:])
	gotCRC := crc16.Checksum(buf[:payloadEnd], crcTable)
	if wantCRC != gotCRC {
		return nil, errCorruptFile("checksum mismatch")
	}

	if buf[0] != fileVersion {
		return nil, errCorruptFile("unknown file version")
	}
	if buf[21] != sampleTypeI16 {
		return nil, errCorruptFile("unknown sample type")
	}

	sec := int64(binary.LittleEndian.Uint64(buf[1:9]))
	micros := int64(binary.LittleEndian.Uint32(buf[9:13]))
	periodMicros := int64(binary.LittleEndian.Uint64(buf[13:21]))

	sampleBytes := payloadEnd - headerSize
	if sampleBytes%2 != 0 {
		return nil, errCorruptFile("sample payload not a whole number of int16s")
	}

	n := sampleBytes / 2
	samples := make([]int16, n)
	off := headerSize
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
	}

	return &decodedFile{
		T0:      time.Unix(sec, micros*1000).UTC(),
		Period:  time.Duration(periodMicros) * time.Microsecond,
		Samples: samples,
	}, nil
}

type corruptFileError struct{ reason string }

func (e *corruptFileError) Error() string { return "corrupt stream file: " + e.reason }

func errCorruptFile(reason string) error { return &corruptFileError{reason: reason} }
