package ad2cp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"example.com/ad2cpgate/internal/common"
)

// ensembleCounterOffset locates the 32-bit ensemble counter inside a burst
// payload.
const ensembleCounterOffset = 72

type indexer struct {
	src     dataSource
	order   binary.ByteOrder
	size    int64
	offset  int64
	verify  bool
	burst   map[byte]bool
	metrics *common.Metrics
	index   Index
}

func newIndexer(src dataSource, order binary.ByteOrder, burstIDs []byte) *indexer {
	if len(burstIDs) == 0 {
		burstIDs = DefaultBurstIDs
	}
	burst := make(map[byte]bool, len(burstIDs))
	for _, id := range burstIDs {
		burst[id] = true
	}
	return &indexer{
		src:   src,
		order: order,
		size:  src.Size(),
		burst: burst,
		index: Index{Size: src.Size()},
	}
}

// next records the entry at the current offset. io.EOF marks the end of the
// usable stream, including a truncated final record.
func (ix *indexer) next() (IndexEntry, error) {
	hdr, err := readHeader(ix.src, ix.offset, ix.order, ix.verify)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			common.Logf("truncated header at offset %d, %d bytes left", ix.offset, ix.size-ix.offset)
			return IndexEntry{}, io.EOF
		}
		return IndexEntry{}, err
	}
	next := ix.offset + hdr.RecordSize()
	if next > ix.size {
		common.Logf("record 0x%02X at offset %d declares %d payload bytes, only %d remain", hdr.ID, ix.offset, hdr.DataSize, ix.size-ix.offset-int64(hdr.HeaderSize))
		return IndexEntry{}, io.EOF
	}
	entry := IndexEntry{
		Offset:     ix.offset,
		ID:         hdr.ID,
		Family:     hdr.Family,
		HeaderSize: hdr.HeaderSize,
		Size:       uint32(hdr.DataSize),
	}
	if ix.burst[hdr.ID] && hdr.DataSize >= ensembleCounterOffset+4 {
		buf, err := sliceExact(ix.src, entry.PayloadOffset()+ensembleCounterOffset, 4)
		if err != nil {
			return IndexEntry{}, fmt.Errorf("read ensemble counter at offset %d: %w", ix.offset, err)
		}
		entry.Ens = ix.order.Uint32(buf)
		entry.HasEns = true
	}
	ix.index.Entries = append(ix.index.Entries, entry)
	ix.metrics.AddRecord(hdr.RecordSize())
	ix.offset = next
	return entry, nil
}

func buildIndex(src dataSource, order binary.ByteOrder, burstIDs []byte, verify bool, m *common.Metrics) (*Index, error) {
	ix := newIndexer(src, order, burstIDs)
	ix.verify = verify
	ix.metrics = m
	for {
		_, err := ix.next()
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return nil, err
	}
	common.Logf("indexed %d records over %d bytes", len(ix.index.Entries), ix.size)
	return &ix.index, nil
}

// BuildIndex walks the blob from offset 0 and records every complete record.
// Ensemble counters are peeked for the default burst ids.
func BuildIndex(b Blob, order binary.ByteOrder) (*Index, error) {
	return buildIndex(newBlockSource(b, 0), order, DefaultBurstIDs, false, nil)
}

// Truncated reports whether bytes after the last complete record were ignored.
func (idx *Index) Truncated() bool {
	if idx == nil {
		return false
	}
	if len(idx.Entries) == 0 {
		return idx.Size > 0
	}
	return idx.Entries[len(idx.Entries)-1].End() < idx.Size
}
