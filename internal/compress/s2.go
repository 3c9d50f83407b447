package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

type s2Codec struct{}

func (s2Codec) Type() Type { return S2 }

func (s2Codec) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (s2Codec) Decompress(data []byte, rawLen int) ([]byte, error) {
	if n, err := s2.DecodedLen(data); err != nil {
		return nil, fmt.Errorf("s2: %w", err)
	} else if n != rawLen {
		return nil, fmt.Errorf("s2: block holds %d bytes, want %d", n, rawLen)
	}
	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("s2: %w", err)
	}
	return out, nil
}
