package compress

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

var lz4Compressors = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

type lz4Codec struct{}

func (lz4Codec) Type() Type { return LZ4 }

// Blocks carry a one-byte mode prefix: 1 for lz4 data, 0 for input stored
// as-is because it did not compress.
func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data))+1)
	lc := lz4Compressors.Get().(*lz4.Compressor)
	defer lz4Compressors.Put(lc)
	n, err := lc.CompressBlock(data, dst[1:])
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	if n == 0 {
		dst[0] = 0
		return append(dst[:1], data...), nil
	}
	dst[0] = 1
	return dst[:n+1], nil
}

func (lz4Codec) Decompress(data []byte, rawLen int) ([]byte, error) {
	if rawLen == 0 {
		return []byte{}, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("lz4: empty block, want %d bytes", rawLen)
	}
	if data[0] == 0 {
		return checkLen(LZ4, append([]byte(nil), data[1:]...), rawLen)
	}
	out := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(data[1:], out)
	if err != nil {
		return nil, fmt.Errorf("lz4: %w", err)
	}
	return checkLen(LZ4, out[:n], rawLen)
}
