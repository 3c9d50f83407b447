package ad2cp

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

const (
	defaultBlockSize = 1 << 20
	minBlockSize     = 4 << 10
)

// Blob is a read-only, random-access view of a recording. Local files, memory
// mappings and object-store objects all satisfy it.
type Blob interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Fingerprint identifies the exact revision of a recording; it keys the index
// cache.
type Fingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Matches reports whether two fingerprints describe the same file revision.
func (f Fingerprint) Matches(o Fingerprint) bool {
	return f.Path == o.Path && f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

type fileBlob struct {
	f    *os.File
	size int64
}

// OpenFile opens a local recording as a Blob and returns its fingerprint.
func OpenFile(path string) (Blob, Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Fingerprint{}, err
	}
	fp := Fingerprint{Path: path, Size: info.Size(), ModTime: info.ModTime()}
	return &fileBlob{f: f, size: info.Size()}, fp, nil
}

func (b *fileBlob) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

func (b *fileBlob) Size() int64 { return b.size }

func (b *fileBlob) Close() error {
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

type bytesBlob struct {
	*bytes.Reader
	data []byte
}

// BytesBlob serves an in-memory recording, e.g. an upload or a test stream.
func BytesBlob(data []byte) Blob {
	return &bytesBlob{Reader: bytes.NewReader(data), data: data}
}

func (b *bytesBlob) Bytes() []byte { return b.data }
func (b *bytesBlob) Close() error  { return nil }

type dataSource interface {
	Size() int64
	Slice(offset int64, length int) ([]byte, error)
	ReadAt(p []byte, offset int64) (int, error)
	Close() error
}

// sliceable is implemented by blobs that expose their whole content, such as
// memory mappings; blockSource then serves views without copying.
type sliceable interface {
	Bytes() []byte
}

type blockSource struct {
	blob      Blob
	size      int64
	blockSize int
	buf       []byte
	bufStart  int64
	bufLen    int
	mapped    []byte
}

func newBlockSource(b Blob, blockSize int) *blockSource {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}
	bs := &blockSource{blob: b, size: b.Size(), blockSize: blockSize}
	if m, ok := b.(sliceable); ok {
		bs.mapped = m.Bytes()
	}
	return bs
}

func (bs *blockSource) Size() int64 {
	return bs.size
}

func (bs *blockSource) Close() error {
	if bs.blob == nil {
		return nil
	}
	err := bs.blob.Close()
	bs.blob = nil
	bs.buf = nil
	bs.mapped = nil
	bs.bufLen = 0
	return err
}

func (bs *blockSource) grow(need int) {
	if need <= bs.blockSize {
		return
	}
	newSize := bs.blockSize
	for newSize < need {
		newSize *= 2
	}
	bs.blockSize = newSize
	bs.buf = make([]byte, bs.blockSize)
	bs.bufLen = 0
	bs.bufStart = 0
}

func (bs *blockSource) ensure(offset int64, length int) error {
	if bs.blob == nil {
		return io.EOF
	}
	if length > bs.blockSize {
		bs.grow(length)
	}
	if bs.buf == nil {
		bs.buf = make([]byte, bs.blockSize)
	}
	if offset >= bs.bufStart && offset+int64(length) <= bs.bufStart+int64(bs.bufLen) {
		return nil
	}
	if offset >= bs.size {
		bs.bufLen = 0
		return io.EOF
	}
	bs.bufStart = offset
	remain := bs.size - offset
	toRead := bs.blockSize
	if int64(toRead) > remain {
		toRead = int(remain)
	}
	if toRead <= 0 {
		bs.bufLen = 0
		return io.EOF
	}
	n, err := bs.blob.ReadAt(bs.buf[:toRead], offset)
	if n < toRead && err == nil {
		err = io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		bs.bufLen = 0
		return err
	}
	bs.bufLen = n
	if bs.bufLen == 0 {
		return io.EOF
	}
	return err
}

// Slice returns a view of up to length bytes at offset. The view is valid
// until the next call. A short view is returned together with io.EOF.
func (bs *blockSource) Slice(offset int64, length int) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}
	if offset < 0 {
		return nil, io.ErrUnexpectedEOF
	}
	if offset >= bs.size {
		return nil, io.EOF
	}
	if bs.mapped != nil {
		end := offset + int64(length)
		if end > int64(len(bs.mapped)) {
			return bs.mapped[offset:], io.EOF
		}
		return bs.mapped[offset:end], nil
	}
	err := bs.ensure(offset, length)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if bs.bufLen == 0 {
		return nil, io.EOF
	}
	start := int(offset - bs.bufStart)
	if start < 0 || start >= bs.bufLen {
		return nil, io.ErrUnexpectedEOF
	}
	end := start + length
	if end > bs.bufLen {
		end = bs.bufLen
	}
	view := bs.buf[start:end]
	if len(view) < length {
		return view, io.EOF
	}
	return view, nil
}

func (bs *blockSource) ReadAt(p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	view, err := bs.Slice(offset, len(p))
	n := copy(p, view)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func sliceExact(src dataSource, offset int64, length int) ([]byte, error) {
	view, err := src.Slice(offset, length)
	if len(view) < length {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}
	return view[:length], nil
}
