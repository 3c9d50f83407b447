package ad2cp

import (
	"errors"
	"fmt"
)

// Record type identifiers used by the instrument.
const (
	IDBurst       byte = 0x15
	IDAverage     byte = 0x16
	IDBottom      byte = 0x17
	IDBurstB5     byte = 0x18
	IDAltRaw      byte = 0x1A
	IDEchosounder byte = 0x1C
	IDString      byte = 0xA0
)

// DefaultBurstIDs are decoded with a burst layout unless Options overrides them.
var DefaultBurstIDs = []byte{IDBurst, IDBurstB5}

var (
	// ErrFormat is matched by every *FormatError.
	ErrFormat = errors.New("ad2cp: stream format error")
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("ad2cp: configuration error")
	// ErrNoData is returned when a stream holds no indexable records.
	ErrNoData = errors.New("ad2cp: no records in stream")
)

// FormatError reports a structural problem that makes the stream undecodable:
// a sync mismatch, an unknown byte order or a failed header checksum.
type FormatError struct {
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ad2cp: format error at offset %d: %s", e.Offset, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ConfigError reports a configuration value that must be constant across all
// occurrences of a record type but is not.
type ConfigError struct {
	ID     byte
	Field  string
	Offset int64
	Want   any
	Got    any
}

func (e *ConfigError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("ad2cp: record 0x%02X at offset %d: %s changed from %v to %v", e.ID, e.Offset, e.Field, e.Want, e.Got)
	}
	return fmt.Sprintf("ad2cp: record 0x%02X: %s is not constant (%v vs %v)", e.ID, e.Field, e.Want, e.Got)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Header is the fixed record header preceding every payload.
type Header struct {
	Sync           uint8
	HeaderSize     uint8
	ID             uint8
	Family         uint8
	DataSize       uint16
	DataChecksum   uint16
	HeaderChecksum uint16
}

// RecordSize is the number of bytes the record occupies in the stream.
func (h Header) RecordSize() int64 {
	return int64(h.HeaderSize) + int64(h.DataSize)
}

// IndexEntry locates a single record in the stream.
type IndexEntry struct {
	Offset     int64
	ID         uint8
	Family     uint8
	HeaderSize uint8
	Size       uint32
	Ens        uint32
	HasEns     bool
}

// PayloadOffset is the absolute offset of the record payload.
func (e IndexEntry) PayloadOffset() int64 {
	return e.Offset + int64(e.HeaderSize)
}

// End is the offset immediately after the record.
func (e IndexEntry) End() int64 {
	return e.PayloadOffset() + int64(e.Size)
}

// Index is the ordered list of records found in a stream.
type Index struct {
	Entries []IndexEntry
	// Size is the stream length the index was built against.
	Size int64
}

// Count returns the number of entries with the given id.
func (idx *Index) Count(id byte) int {
	if idx == nil {
		return 0
	}
	n := 0
	for _, e := range idx.Entries {
		if e.ID == id {
			n++
		}
	}
	return n
}

// First returns the first entry with the given id.
func (idx *Index) First(id byte) (IndexEntry, bool) {
	if idx == nil {
		return IndexEntry{}, false
	}
	for _, e := range idx.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return IndexEntry{}, false
}

// IDs returns the distinct record ids in order of first appearance.
func (idx *Index) IDs() []byte {
	if idx == nil {
		return nil
	}
	seen := make(map[byte]bool)
	var out []byte
	for _, e := range idx.Entries {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e.ID)
		}
	}
	return out
}
