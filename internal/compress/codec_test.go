package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecsRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"repetitive": bytes.Repeat([]byte("AD2CPIDX"), 512),
		"short":      {0x01, 0x02, 0x03},
	}
	for _, typ := range []Type{None, Zstd, S2, LZ4} {
		codec, err := Get(typ)
		require.NoError(t, err)
		require.Equal(t, typ, codec.Type())
		for name, in := range inputs {
			t.Run(typ.String()+"/"+name, func(t *testing.T) {
				packed, err := codec.Compress(in)
				require.NoError(t, err)
				out, err := codec.Decompress(packed, len(in))
				require.NoError(t, err)
				require.Equal(t, len(in), len(out))
				require.True(t, bytes.Equal(in, out))
			})
		}
	}
}

func TestDecompressRejectsWrongLength(t *testing.T) {
	in := bytes.Repeat([]byte{0xA5, 0x0A}, 100)
	for _, typ := range []Type{None, Zstd, S2, LZ4} {
		codec, err := Get(typ)
		require.NoError(t, err)
		packed, err := codec.Compress(in)
		require.NoError(t, err)
		_, err = codec.Decompress(packed, len(in)+1)
		require.Error(t, err, typ.String())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Type
		err  bool
	}{
		{"", Zstd, false},
		{"ZSTD", Zstd, false},
		{"s2", S2, false},
		{"lz4", LZ4, false},
		{"none", None, false},
		{"gzip", None, true},
	}
	for _, tc := range tests {
		codec, err := Parse(tc.name)
		if tc.err {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, codec.Type())
	}
	_, err := Get(Type(42))
	require.Error(t, err)
}
