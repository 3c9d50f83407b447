package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/report"
	"example.com/ad2cpgate/internal/reorg"
	"example.com/ad2cpgate/internal/samples"
)

func decodeSample(t *testing.T) *report.Report {
	t.Helper()
	data, err := samples.DefaultSession().Build()
	require.NoError(t, err)
	r, err := ad2cp.OpenBlob(ad2cp.BytesBlob(data), ad2cp.Fingerprint{Path: "sample.ad2cp"}, ad2cp.Options{})
	require.NoError(t, err)
	defer r.Close()
	res, err := r.ReadFile(0, -1)
	require.NoError(t, err)
	ad2cp.Scale(res.Datasets)
	d, err := reorg.Reorganize(res.Datasets)
	require.NoError(t, err)
	rep := report.Build(r, res, d)
	rep.Reduced = reorg.Reduce(d) == nil
	rep.Sha256 = strings.Repeat("ab", 32)
	return rep
}

func TestBuild(t *testing.T) {
	rep := decodeSample(t)
	require.Equal(t, "sample.ad2cp", rep.Input)
	require.Equal(t, "LittleEndian", rep.ByteOrder)
	require.Equal(t, "leading", rep.Boundary)
	require.Equal(t, 14, rep.Records)
	require.Equal(t, 8, rep.Ensembles)
	require.Equal(t, 8, rep.Slots)
	require.Equal(t, map[string]int{"0x17": 1, "0xA0": 1}, rep.UnknownIDs)
	require.Len(t, rep.Heads, 2)
	require.Equal(t, "0x15", rep.Heads[0].ID)
	require.Equal(t, "_b5", rep.Heads[1].Tag)
	require.Equal(t, 4, rep.Heads[1].Filled)

	var press report.ChannelStats
	for _, ch := range rep.Heads[0].Channels {
		if ch.Name == "press" {
			press = ch
		}
	}
	require.Equal(t, 8, press.Count)
	require.InDelta(t, 10.0, press.Min, 1e-9)
	require.InDelta(t, 10.7, press.Max, 1e-9)
	require.InDelta(t, 10.35, press.Mean, 1e-9)
	require.Equal(t, "dbar", press.Units)
}

func TestJSONRoundTrip(t *testing.T) {
	rep := decodeSample(t)
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.SaveJSON(rep, path))
	got, err := report.LoadJSON(path)
	require.NoError(t, err)
	require.Equal(t, rep.Ensembles, got.Ensembles)
	require.Equal(t, rep.Heads[0].Config, got.Heads[0].Config)
	require.True(t, rep.GeneratedAt.Equal(got.GeneratedAt))
}

func TestSavePDF(t *testing.T) {
	rep := decodeSample(t)
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, report.SavePDF(rep, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestFingerprintQR(t *testing.T) {
	png, err := report.FingerprintQR(strings.Repeat("0F", 32), 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = report.FingerprintQR("", 64)
	require.Error(t, err)
	_, err = report.FingerprintQR("abc", 64)
	require.Error(t, err)
}
