// Package compress holds the block codecs used for persisted index caches.
package compress

import (
	"fmt"
	"strings"
)

// Type identifies a codec in a persisted header. Values are stable.
type Type uint8

const (
	None Type = iota
	Zstd
	S2
	LZ4
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(t))
	}
}

// Codec compresses whole blocks. Decompress receives the expected raw length,
// which every caller stores next to the compressed block.
type Codec interface {
	Type() Type
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, rawLen int) ([]byte, error)
}

var builtin = map[Type]Codec{
	None: noneCodec{},
	Zstd: zstdCodec{},
	S2:   s2Codec{},
	LZ4:  lz4Codec{},
}

// Get returns the built-in codec for t.
func Get(t Type) (Codec, error) {
	if c, ok := builtin[t]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unsupported codec %s", t)
}

// Parse maps a configuration name to a codec. An empty name selects zstd.
func Parse(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return builtin[Zstd], nil
	case "s2":
		return builtin[S2], nil
	case "lz4":
		return builtin[LZ4], nil
	case "none", "off":
		return builtin[None], nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

func checkLen(t Type, out []byte, rawLen int) ([]byte, error) {
	if len(out) != rawLen {
		return nil, fmt.Errorf("%s: decoded %d bytes, want %d", t, len(out), rawLen)
	}
	return out, nil
}

type noneCodec struct{}

func (noneCodec) Type() Type { return None }

func (noneCodec) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (noneCodec) Decompress(data []byte, rawLen int) ([]byte, error) {
	return checkLen(None, append([]byte(nil), data...), rawLen)
}
