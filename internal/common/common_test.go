package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "runs.jsonl")
	rl := NewRunLog(path)
	require.Equal(t, path, rl.Path())
	require.NoError(t, rl.Append(RunEntry{Input: "a.ad2cp", Records: 4, Ensembles: 2}))
	require.NoError(t, rl.Append(RunEntry{Input: "b.ad2cp", Unknown: map[string]int{"0xA0": 1}, Error: "truncated"}))
	require.Error(t, rl.Append(RunEntry{}))

	entries, err := ReadRunLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a.ad2cp", entries[0].Input)
	require.Equal(t, 2, entries[0].Ensembles)
	require.False(t, entries[0].Ts.IsZero())
	require.Equal(t, 1, entries[1].Unknown["0xA0"])
}

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	sum, n, err := Sha256OfFile(path)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.AddTotalBytes(200)
	m.AddRecord(50)
	m.AddRecord(50)
	m.AddRecord(0)
	m.IncUnknown()
	m.AddEnsembles(3)
	m.Stop()
	s := m.Snapshot()
	require.Equal(t, int64(100), s.Bytes)
	require.Equal(t, int64(2), s.Records)
	require.Equal(t, int64(1), s.Unknown)
	require.Equal(t, int64(3), s.Ensembles)
	require.InDelta(t, 0.5, s.Completion(), 1e-9)

	var nilMetrics *Metrics
	nilMetrics.AddRecord(10)
	nilMetrics.IncUnknown()
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", FormatBytes(512))
	require.Equal(t, "1.50 KiB", FormatBytes(1536))
	require.Equal(t, "2.00 MiB", FormatBytes(2<<20))
}
