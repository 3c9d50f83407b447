package ad2cp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"example.com/ad2cpgate/internal/compress"
)

const (
	cacheMagic     = "AD2CPIDX"
	cacheVersion   = 1
	cacheEntrySize = 20
	cacheSuffix    = ".index"
)

var errCacheStale = errors.New("index cache is stale")

// IndexCache persists indexes keyed by file fingerprint. With an empty Dir the
// cache lives next to the data file.
type IndexCache struct {
	Dir   string
	Codec compress.Codec
}

// Path returns the cache location for the data file at dataPath.
func (c *IndexCache) Path(dataPath string) string {
	if c.Dir == "" {
		return dataPath + cacheSuffix
	}
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		abs = dataPath
	}
	name := filepath.Base(dataPath) + "-" + strconv.FormatUint(xxhash.Sum64String(abs), 16) + cacheSuffix
	return filepath.Join(c.Dir, name)
}

// Load returns the cached index for fp. Any mismatch or decode failure is an
// error; callers rebuild.
func (c *IndexCache) Load(fp Fingerprint, burstIDs []byte) (*Index, error) {
	data, err := os.ReadFile(c.Path(fp.Path))
	if err != nil {
		return nil, err
	}
	return decodeIndexCache(data, fp, burstIDs)
}

// Store writes idx atomically through a temporary file in the cache directory.
func (c *IndexCache) Store(fp Fingerprint, burstIDs []byte, idx *Index) error {
	codec := c.Codec
	if codec == nil {
		codec, _ = compress.Get(compress.Zstd)
	}
	data, err := encodeIndexCache(idx, fp, burstIDs, codec)
	if err != nil {
		return err
	}
	path := c.Path(fp.Path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeIndexCache(idx *Index, fp Fingerprint, burstIDs []byte, codec compress.Codec) ([]byte, error) {
	if len(fp.Path) > 0xFFFF {
		return nil, fmt.Errorf("path too long for index cache: %d bytes", len(fp.Path))
	}
	raw := make([]byte, 0, len(idx.Entries)*cacheEntrySize)
	for _, e := range idx.Entries {
		raw = binary.LittleEndian.AppendUint64(raw, uint64(e.Offset))
		raw = binary.LittleEndian.AppendUint32(raw, e.Size)
		raw = binary.LittleEndian.AppendUint32(raw, e.Ens)
		var flags byte
		if e.HasEns {
			flags |= 1
		}
		raw = append(raw, e.ID, e.Family, e.HeaderSize, flags)
	}
	packed, err := codec.Compress(raw)
	if err != nil {
		return nil, fmt.Errorf("compress index: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(cacheMagic)
	le := binary.LittleEndian
	var scratch []byte
	scratch = le.AppendUint16(scratch, cacheVersion)
	scratch = append(scratch, byte(codec.Type()), byte(len(burstIDs)))
	scratch = append(scratch, burstIDs...)
	scratch = le.AppendUint16(scratch, uint16(len(fp.Path)))
	scratch = append(scratch, fp.Path...)
	scratch = le.AppendUint64(scratch, uint64(fp.Size))
	scratch = le.AppendUint64(scratch, uint64(fp.ModTime.UnixNano()))
	scratch = le.AppendUint64(scratch, uint64(idx.Size))
	scratch = le.AppendUint32(scratch, uint32(len(idx.Entries)))
	scratch = le.AppendUint32(scratch, uint32(len(raw)))
	scratch = le.AppendUint64(scratch, xxhash.Sum64(raw))
	buf.Write(scratch)
	buf.Write(packed)
	return buf.Bytes(), nil
}

type cacheCursor struct {
	data []byte
	pos  int
	err  error
}

func (c *cacheCursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || c.pos+n > len(c.data) {
		c.err = errors.New("index cache truncated")
		return nil
	}
	out := c.data[c.pos : c.pos+n]
	c.pos += n
	return out
}

func (c *cacheCursor) u8() byte {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cacheCursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (c *cacheCursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (c *cacheCursor) u64() uint64 {
	if b := c.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func decodeIndexCache(data []byte, fp Fingerprint, burstIDs []byte) (*Index, error) {
	cur := &cacheCursor{data: data}
	if string(cur.take(len(cacheMagic))) != cacheMagic {
		return nil, errors.New("index cache: bad magic")
	}
	if v := cur.u16(); v != cacheVersion {
		return nil, fmt.Errorf("index cache: version %d, want %d", v, cacheVersion)
	}
	codecType := compress.Type(cur.u8())
	ids := cur.take(int(cur.u8()))
	path := string(cur.take(int(cur.u16())))
	stored := Fingerprint{
		Path:    path,
		Size:    int64(cur.u64()),
		ModTime: time.Unix(0, int64(cur.u64())),
	}
	streamSize := int64(cur.u64())
	count := int(cur.u32())
	rawLen := int(cur.u32())
	digest := cur.u64()
	if cur.err != nil {
		return nil, cur.err
	}
	if !bytes.Equal(ids, burstIDs) || !stored.Matches(fp) {
		return nil, errCacheStale
	}
	if rawLen != count*cacheEntrySize {
		return nil, fmt.Errorf("index cache: %d bytes for %d entries", rawLen, count)
	}
	codec, err := compress.Get(codecType)
	if err != nil {
		return nil, fmt.Errorf("index cache: %w", err)
	}
	raw, err := codec.Decompress(data[cur.pos:], rawLen)
	if err != nil {
		return nil, fmt.Errorf("index cache: %w", err)
	}
	if xxhash.Sum64(raw) != digest {
		return nil, errors.New("index cache: digest mismatch")
	}
	idx := &Index{Size: streamSize, Entries: make([]IndexEntry, count)}
	for i := range idx.Entries {
		rec := raw[i*cacheEntrySize : (i+1)*cacheEntrySize]
		idx.Entries[i] = IndexEntry{
			Offset:     int64(binary.LittleEndian.Uint64(rec[0:8])),
			Size:       binary.LittleEndian.Uint32(rec[8:12]),
			Ens:        binary.LittleEndian.Uint32(rec[12:16]),
			ID:         rec[16],
			Family:     rec[17],
			HeaderSize: rec[18],
			HasEns:     rec[19]&1 != 0,
		}
	}
	return idx, nil
}
