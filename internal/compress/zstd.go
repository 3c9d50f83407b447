package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdDecoders = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("zstd decoder: %v", err))
		}
		return dec
	},
}

var zstdEncoders = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderCRC(false))
		if err != nil {
			panic(fmt.Sprintf("zstd encoder: %v", err))
		}
		return enc
	},
}

type zstdCodec struct{}

func (zstdCodec) Type() Type { return Zstd }

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	enc := zstdEncoders.Get().(*zstd.Encoder)
	defer zstdEncoders.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte, rawLen int) ([]byte, error) {
	if len(data) == 0 {
		return checkLen(Zstd, []byte{}, rawLen)
	}
	dec := zstdDecoders.Get().(*zstd.Decoder)
	defer zstdDecoders.Put(dec)
	out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return checkLen(Zstd, out, rawLen)
}
