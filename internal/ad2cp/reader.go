package ad2cp

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RoaringBitmap/roaring/v2"

	"example.com/ad2cpgate/internal/common"
)

// Options tunes a decode session. The zero value detects the byte order,
// decodes DefaultBurstIDs and opens an ensemble at every 0x15 record.
type Options struct {
	// ByteOrder skips detection when set.
	ByteOrder       Endian
	BurstIDs        []byte
	Policy          BoundaryPolicy
	VerifyChecksums bool
	BufferSize      int
	// Mmap maps local files instead of reading them through a buffer.
	Mmap         bool
	RebuildIndex bool
	// Cache persists the index; nil disables caching.
	Cache   *IndexCache
	Metrics *common.Metrics
}

// Result is the output of one ReadFile call.
type Result struct {
	Datasets map[byte]*Dataset
	// Ensembles is the number of slots that received at least one record.
	Ensembles        int
	UnknownIDs       map[byte]int
	ShortPayloads    int
	ChecksumFailures int
	Duplicates       int
	// Truncated is set when the read stopped at an incomplete record.
	Truncated bool
}

// Reader is one decode session over a single stream.
type Reader struct {
	src      dataSource
	fp       Fingerprint
	order    Endian
	opts     Options
	burstIDs []byte
	index    *Index
	bounds   []int64
	configs  map[byte]Config
	layouts  map[byte]*Layout
	cacheHit bool
}

// Open starts a session on the local file at path.
func Open(path string, opts Options) (*Reader, error) {
	open := OpenFile
	if opts.Mmap {
		open = MapFile
	}
	b, fp, err := open(path)
	if err != nil {
		return nil, err
	}
	return OpenBlob(b, fp, opts)
}

// OpenBlob starts a session on b. The reader owns b and closes it, also when
// OpenBlob fails.
func OpenBlob(b Blob, fp Fingerprint, opts Options) (*Reader, error) {
	r := &Reader{
		src:  newBlockSource(b, opts.BufferSize),
		fp:   fp,
		opts: opts,
	}
	if err := r.init(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	r.burstIDs = append([]byte(nil), r.opts.BurstIDs...)
	if len(r.burstIDs) == 0 {
		r.burstIDs = append(r.burstIDs, DefaultBurstIDs...)
	}
	if r.opts.Policy == nil {
		r.opts.Policy = LeadingRecordPolicy{ID: IDBurst}
	}
	r.order = r.opts.ByteOrder
	if r.order == nil {
		order, err := DetectByteOrder(r.src)
		if err != nil {
			return err
		}
		r.order = order
	}
	r.opts.Metrics.AddTotalBytes(r.src.Size())

	if err := r.loadIndex(); err != nil {
		return err
	}
	if len(r.index.Entries) == 0 {
		return ErrNoData
	}
	r.bounds = r.opts.Policy.Boundaries(r.index)

	configs, err := resolveConfig(r.src, r.order, r.index, r.burstIDs)
	if err != nil {
		return err
	}
	r.configs = configs
	r.layouts = make(map[byte]*Layout, len(configs))
	for id, cfg := range configs {
		r.layouts[id] = BuildLayout(cfg)
	}
	return nil
}

func (r *Reader) loadIndex() error {
	cache := r.opts.Cache
	if cache != nil && r.fp.Path != "" && !r.opts.RebuildIndex {
		idx, err := cache.Load(r.fp, r.burstIDs)
		if err == nil {
			common.Logf("index cache hit for %s (%d records)", r.fp.Path, len(idx.Entries))
			r.index = idx
			r.cacheHit = true
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			common.Logf("index cache for %s unusable, rebuilding: %v", r.fp.Path, err)
		}
	}
	idx, err := buildIndex(r.src, r.order, r.burstIDs, r.opts.VerifyChecksums, r.opts.Metrics)
	if err != nil {
		return err
	}
	r.index = idx
	if cache != nil && r.fp.Path != "" {
		if err := cache.Store(r.fp, r.burstIDs, idx); err != nil {
			common.Logf("index cache write for %s failed: %v", r.fp.Path, err)
		}
	}
	return nil
}

// Close releases the stream. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	return err
}

// ByteOrder is the detected or forced session byte order.
func (r *Reader) ByteOrder() Endian { return r.order }

// Fingerprint identifies the opened stream revision.
func (r *Reader) Fingerprint() Fingerprint { return r.fp }

// Index is the record index, built or loaded from cache.
func (r *Reader) Index() *Index { return r.index }

// CacheHit reports whether the index came from the cache.
func (r *Reader) CacheHit() bool { return r.cacheHit }

// NumEnsembles is the number of ensemble boundaries.
func (r *Reader) NumEnsembles() int { return len(r.bounds) }

// Policy is the boundary policy in effect.
func (r *Reader) Policy() BoundaryPolicy { return r.opts.Policy }

// Layout returns the burst layout of id, or nil if id is not decoded.
func (r *Reader) Layout(id byte) *Layout { return r.layouts[id] }

// Boundaries returns a copy of the ensemble start offsets.
func (r *Reader) Boundaries() []int64 { return append([]int64(nil), r.bounds...) }

// BurstIDs returns a copy of the ids decoded with a burst layout.
func (r *Reader) BurstIDs() []byte { return append([]byte(nil), r.burstIDs...) }

// IDs lists the decoded record ids in ascending order.
func (r *Reader) IDs() []byte { return sortedIDs(r.configs) }

// Config returns the resolved configuration of id.
func (r *Reader) Config(id byte) (Config, bool) {
	c, ok := r.configs[id]
	return c, ok
}

// Configs returns the resolved configuration of every decoded id.
func (r *Reader) Configs() map[byte]Config {
	out := make(map[byte]Config, len(r.configs))
	for id, c := range r.configs {
		out[id] = c
	}
	return out
}

// InitData allocates one dataset of n slots per resolved id.
func (r *Reader) InitData(n int) map[byte]*Dataset {
	out := make(map[byte]*Dataset, len(r.layouts))
	for id, l := range r.layouts {
		out[id] = l.NewDataset(n)
	}
	return out
}

// ReadFile decodes ensembles [start, stop). A negative stop or one past the
// last ensemble reads to the end. With start 0 the read begins at the first
// record, and records before the first boundary go to slot 0. A stream that
// ends early yields the ensembles read so far without error.
func (r *Reader) ReadFile(start, stop int) (*Result, error) {
	if r.src == nil {
		return nil, errors.New("ad2cp: reader is closed")
	}
	total := len(r.bounds)
	if stop < 0 || stop > total {
		stop = total
	}
	if start < 0 || start > stop {
		return nil, fmt.Errorf("ad2cp: ensemble range [%d,%d) invalid for %d ensembles", start, stop, total)
	}
	nens := stop - start
	res := &Result{
		Datasets:   r.InitData(nens),
		UnknownIDs: make(map[byte]int),
	}
	if nens == 0 {
		return res, nil
	}

	size := r.src.Size()
	verify := r.opts.VerifyChecksums
	// Records before the first boundary belong to slot 0.
	pos := r.bounds[start]
	if start == 0 {
		pos = r.index.Entries[0].Offset
	}
	c := 0
	for c < nens {
		hdr, err := readHeader(r.src, pos, r.order, verify)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				res.Truncated = true
				break
			}
			return nil, err
		}
		end := pos + hdr.RecordSize()
		if end > size {
			common.Logf("record 0x%02X at offset %d runs past end of stream", hdr.ID, pos)
			res.Truncated = true
			break
		}
		if layout, ok := r.layouts[hdr.ID]; ok {
			if err := r.decodeRecord(layout, hdr, pos, res, c); err != nil {
				return nil, err
			}
		} else {
			if res.UnknownIDs[hdr.ID] == 0 {
				common.Logf("unknown record id 0x%02X at offset %d", hdr.ID, pos)
			}
			res.UnknownIDs[hdr.ID]++
			r.opts.Metrics.IncUnknown()
		}
		pos = end
		for c < nens {
			k := c + start + 1
			if k >= total || pos < r.bounds[k] {
				break
			}
			c++
		}
	}

	filled := make([]*roaring.Bitmap, 0, len(res.Datasets))
	for _, ds := range res.Datasets {
		filled = append(filled, ds.Filled)
	}
	res.Ensembles = int(roaring.FastOr(filled...).GetCardinality())
	r.opts.Metrics.AddEnsembles(int64(res.Ensembles))
	return res, nil
}

func (r *Reader) decodeRecord(layout *Layout, hdr Header, pos int64, res *Result, slot int) error {
	payload, err := sliceExact(r.src, pos+int64(hdr.HeaderSize), int(hdr.DataSize))
	if err != nil {
		return fmt.Errorf("read payload at offset %d: %w", pos, err)
	}
	if r.opts.VerifyChecksums && Checksum(payload, r.order) != hdr.DataChecksum {
		if res.ChecksumFailures == 0 {
			common.Logf("payload checksum mismatch for record 0x%02X at offset %d", hdr.ID, pos)
		}
		res.ChecksumFailures++
	}
	if len(payload) >= fixedHeaderSize {
		if err := layout.cfg.check(payload, r.order, pos); err != nil {
			return err
		}
	}
	ds := res.Datasets[hdr.ID]
	if ds.IsFilled(slot) {
		res.Duplicates++
		return nil
	}
	complete, err := layout.Decode(payload, r.order, ds, slot)
	if err != nil {
		return err
	}
	if !complete {
		res.ShortPayloads++
	}
	return nil
}
