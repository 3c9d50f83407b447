package ad2cp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	syncByte       = 0xA5
	headerSize     = 10
	familyAD2CP    = 0x10
	checksumSeed   = 0xB58C
	byteOrderProbe = uint16(syncByte) | uint16(headerSize)<<8
)

// Endian combines the read and append halves of encoding/binary so one value
// can decode a session and build synthetic streams in the same byte order.
type Endian interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

var (
	// LittleEndian is the byte order of most instrument recordings.
	LittleEndian Endian = binary.LittleEndian
	// BigEndian is the byte order of byte-swapped recordings.
	BigEndian Endian = binary.BigEndian
)

// ParseHeader decodes the fixed record header. It does not validate the sync
// byte; see readHeader.
func ParseHeader(buf []byte, order binary.ByteOrder) (Header, error) {
	var hdr Header
	if len(buf) < headerSize {
		return hdr, io.ErrUnexpectedEOF
	}
	w0 := order.Uint16(buf[0:2])
	w1 := order.Uint16(buf[2:4])
	hdr.Sync = uint8(w0)
	hdr.HeaderSize = uint8(w0 >> 8)
	hdr.ID = uint8(w1)
	hdr.Family = uint8(w1 >> 8)
	hdr.DataSize = order.Uint16(buf[4:6])
	hdr.DataChecksum = order.Uint16(buf[6:8])
	hdr.HeaderChecksum = order.Uint16(buf[8:10])
	return hdr, nil
}

// Checksum computes the instrument checksum: the seed plus every 16-bit word,
// with an odd trailing byte counted as the high byte of a final word.
func Checksum(data []byte, order binary.ByteOrder) uint16 {
	sum := uint32(checksumSeed)
	n := len(data) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(order.Uint16(data[i : i+2]))
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	return uint16(sum)
}

// DetectByteOrder probes the first two bytes of the stream and returns the
// byte order under which they read as the sync/header-size marker.
func DetectByteOrder(r io.ReaderAt) (Endian, error) {
	probe := make([]byte, 2)
	n, err := r.ReadAt(probe, 0)
	if n < len(probe) {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, &FormatError{Offset: 0, Reason: "stream shorter than the byte order probe"}
	}
	for _, order := range []Endian{LittleEndian, BigEndian} {
		if order.Uint16(probe) == byteOrderProbe {
			return order, nil
		}
	}
	return nil, &FormatError{
		Offset: 0,
		Reason: fmt.Sprintf("could not determine byte order from leading bytes % X; not an AD2CP stream?", probe),
	}
}

// readHeader decodes and validates the header at offset. io.EOF means the
// stream ended cleanly on a record boundary; io.ErrUnexpectedEOF means a
// partial header.
func readHeader(src dataSource, offset int64, order binary.ByteOrder, verify bool) (Header, error) {
	if offset >= src.Size() {
		return Header{}, io.EOF
	}
	view, err := sliceExact(src, offset, headerSize)
	if err != nil {
		return Header{}, err
	}
	hdr, err := ParseHeader(view, order)
	if err != nil {
		return hdr, err
	}
	if hdr.Sync != syncByte {
		return hdr, &FormatError{Offset: offset, Reason: fmt.Sprintf("out of sync: got 0x%02X, want 0x%02X", hdr.Sync, syncByte)}
	}
	if hdr.HeaderSize < headerSize {
		return hdr, &FormatError{Offset: offset, Reason: fmt.Sprintf("header size %d below minimum %d", hdr.HeaderSize, headerSize)}
	}
	if verify {
		if cs := Checksum(view[:8], order); cs != hdr.HeaderChecksum {
			return hdr, &FormatError{Offset: offset, Reason: fmt.Sprintf("header checksum 0x%04X, computed 0x%04X", hdr.HeaderChecksum, cs)}
		}
	}
	return hdr, nil
}
