//go:build unix

package ad2cp

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

type mmapBlob struct {
	data []byte
}

// MapFile memory-maps a local recording read-only. Empty files cannot be
// mapped and are reported as ErrNoData.
func MapFile(path string) (Blob, Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, Fingerprint{}, err
	}
	if info.Size() == 0 {
		return nil, Fingerprint{}, ErrNoData
	}
	if int64(int(info.Size())) != info.Size() {
		return nil, Fingerprint{}, errors.New("ad2cp: file too large to map")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	fp := Fingerprint{Path: path, Size: info.Size(), ModTime: info.ModTime()}
	return &mmapBlob{data: data}, fp, nil
}

func (b *mmapBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *mmapBlob) Size() int64 { return int64(len(b.data)) }

func (b *mmapBlob) Bytes() []byte { return b.data }

func (b *mmapBlob) Close() error {
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	return err
}
