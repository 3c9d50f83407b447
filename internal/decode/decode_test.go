package decode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/samples"
)

func TestRunLocalFile(t *testing.T) {
	dir := t.TempDir()
	path, err := samples.WriteFiles(dir)
	require.NoError(t, err)
	opts := ad2cp.Options{Cache: &ad2cp.IndexCache{Dir: filepath.Join(dir, "cache")}}

	out, err := Run(context.Background(), Job{Input: path, Options: opts, Stop: -1, Hash: true})
	require.NoError(t, err)
	require.Equal(t, 8, out.Result.Ensembles)
	require.True(t, out.Report.Reduced)
	require.Len(t, out.Report.Sha256, 64)
	require.False(t, out.Report.CacheHit)

	again, err := Run(context.Background(), Job{Input: path, Options: opts, Stop: -1})
	require.NoError(t, err)
	require.True(t, again.Report.CacheHit)

	entry := RunEntry(path, out, nil)
	require.Equal(t, 8, entry.Ensembles)
	require.Equal(t, map[string]int{"0x17": 1, "0xA0": 1}, entry.Unknown)
}

func TestRunRecordsIncompatibleRates(t *testing.T) {
	s := samples.DefaultSession()
	s.Ensembles = 7
	s.Ratio = 3
	data, err := s.Build()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "odd.ad2cp")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := Run(context.Background(), Job{Input: path, Stop: -1})
	require.NoError(t, err)
	require.False(t, out.Report.Reduced)
	require.Contains(t, out.Report.ReduceError, "incompatible")
}

func TestRunRemoteWithoutStore(t *testing.T) {
	_, err := Run(context.Background(), Job{Input: "s3://bucket/key", Stop: -1})
	require.Error(t, err)

	entry := RunEntry("s3://bucket/key", nil, errors.New("boom"))
	require.Equal(t, "boom", entry.Error)
}
