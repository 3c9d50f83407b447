package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/compress"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, []int{0x15, 0x18}, cfg.Decoder.BurstIDs)
	require.Equal(t, "leading", cfg.Decoder.Boundary)
	require.Equal(t, 0x15, cfg.Decoder.LeadingID)
	require.Equal(t, "zstd", cfg.Cache.Codec)
	require.Equal(t, 25, cfg.Logs.MaxSizeMB)
	require.Positive(t, cfg.Concurrency)

	opts, err := cfg.DecoderOptions()
	require.NoError(t, err)
	require.Equal(t, ad2cp.LeadingRecordPolicy{ID: ad2cp.IDBurst}, opts.Policy)
	require.NotNil(t, opts.Cache)
	require.Equal(t, compress.Zstd, opts.Cache.Codec.Type())
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "idx"), 0o755))
	path := writeConfig(t, dir, strings.Join([]string{
		"port: 9090",
		"cache:",
		"  dir: idx",
		"  codec: lz4",
		"decoder:",
		"  burstIds: [0x15, 0x18, 0x16]",
		"  boundary: period",
		"  verifyChecksums: true",
		"remote:",
		"  endpoint: minio.local:9000",
		"  retries: 5",
	}, "\n"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, filepath.Join(dir, "idx"), cfg.Cache.Dir)

	opts, err := cfg.DecoderOptions()
	require.NoError(t, err)
	require.Equal(t, []byte{0x15, 0x18, 0x16}, opts.BurstIDs)
	require.Equal(t, "period", opts.Policy.Name())
	require.True(t, opts.VerifyChecksums)
	require.Equal(t, compress.LZ4, opts.Cache.Codec.Type())

	remote := cfg.RemoteOptions()
	require.Equal(t, "minio.local:9000", remote.Endpoint)
	require.Equal(t, 5, remote.Retries)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, body := range []string{
		"decoder:\n  burstIds: [300]\n",
		"cache:\n  codec: brotli\n",
		"decoder:\n  leadingId: 512\n",
	} {
		_, err := Load(writeConfig(t, t.TempDir(), body))
		require.Error(t, err, body)
	}
}

func TestDecoderOptionsCacheDisabled(t *testing.T) {
	cfg := Default()
	cfg.Cache.Disabled = true
	opts, err := cfg.DecoderOptions()
	require.NoError(t, err)
	require.Nil(t, opts.Cache)
}

func TestSetupLogging(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	closer, err := SetupLogging(LogConfig{Directory: dir, MaxSizeMB: 1}, "ad2cpctl", &console)
	require.NoError(t, err)
	t.Cleanup(func() {
		common.SetLogOutput(nil)
		log.SetOutput(os.Stderr)
		closer.Close()
	})

	common.Logf("indexed %d records", 3)
	require.Contains(t, console.String(), "indexed 3 records")
	data, err := os.ReadFile(filepath.Join(dir, "ad2cpctl.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), "[ad2cpgate] indexed 3 records")

	_, err = SetupLogging(LogConfig{}, "ad2cpctl", nil)
	require.Error(t, err)
}
