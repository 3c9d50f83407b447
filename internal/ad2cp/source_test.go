package ad2cp

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/compress"
)

type readerBlob struct {
	*bytes.Reader
}

func (readerBlob) Close() error { return nil }

func TestBlockSourceSlices(t *testing.T) {
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i)
	}
	for name, blob := range map[string]Blob{
		"buffered": readerBlob{bytes.NewReader(data)},
		"mapped":   BytesBlob(data),
	} {
		t.Run(name, func(t *testing.T) {
			src := newBlockSource(blob, 1)
			require.Equal(t, minBlockSize, src.blockSize)

			view, err := sliceExact(src, 4090, 12)
			require.NoError(t, err)
			require.Equal(t, data[4090:4102], view)

			view, err = sliceExact(src, 100, 9000)
			require.NoError(t, err)
			require.Equal(t, data[100:9100], view)

			_, err = sliceExact(src, 9995, 10)
			require.ErrorIs(t, err, io.ErrUnexpectedEOF)

			_, err = src.Slice(10_000, 1)
			require.ErrorIs(t, err, io.EOF)

			buf := make([]byte, 8)
			n, err := src.ReadAt(buf, 9996)
			require.Equal(t, 4, n)
			require.True(t, errors.Is(err, io.EOF))

			require.NoError(t, src.Close())
			require.NoError(t, src.Close())
		})
	}
}

func TestFingerprintMatches(t *testing.T) {
	now := time.Unix(1700000000, 123)
	a := Fingerprint{Path: "a", Size: 10, ModTime: now}
	require.True(t, a.Matches(Fingerprint{Path: "a", Size: 10, ModTime: time.Unix(0, now.UnixNano())}))
	require.False(t, a.Matches(Fingerprint{Path: "a", Size: 11, ModTime: now}))
	require.False(t, a.Matches(Fingerprint{Path: "b", Size: 10, ModTime: now}))
	require.False(t, a.Matches(Fingerprint{Path: "a", Size: 10, ModTime: now.Add(time.Nanosecond)}))
}

func TestIndexCacheEncoding(t *testing.T) {
	idx := &Index{Size: 500, Entries: []IndexEntry{
		{Offset: 0, ID: IDBurst, Family: 0x10, HeaderSize: 10, Size: 140, Ens: 7, HasEns: true},
		{Offset: 150, ID: IDString, Family: 0x10, HeaderSize: 10, Size: 5},
	}}
	fp := Fingerprint{Path: "/data/x.ad2cp", Size: 500, ModTime: time.Unix(1, 2)}
	codec, err := compress.Get(compress.None)
	require.NoError(t, err)
	data, err := encodeIndexCache(idx, fp, DefaultBurstIDs, codec)
	require.NoError(t, err)
	require.Equal(t, cacheMagic, string(data[:8]))

	got, err := decodeIndexCache(data, fp, DefaultBurstIDs)
	require.NoError(t, err)
	require.Equal(t, idx, got)

	other := fp
	other.Size = 501
	_, err = decodeIndexCache(data, other, DefaultBurstIDs)
	require.ErrorIs(t, err, errCacheStale)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xFF
	_, err = decodeIndexCache(flipped, fp, DefaultBurstIDs)
	require.Error(t, err)

	_, err = decodeIndexCache(data[:20], fp, DefaultBurstIDs)
	require.Error(t, err)
}
