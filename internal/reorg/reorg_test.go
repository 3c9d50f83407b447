package reorg_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/reorg"
	"example.com/ad2cpgate/internal/samples"
)

func readSession(t *testing.T, s samples.Session) map[byte]*ad2cp.Dataset {
	t.Helper()
	data, err := s.Build()
	require.NoError(t, err)
	r, err := ad2cp.OpenBlob(ad2cp.BytesBlob(data), ad2cp.Fingerprint{}, ad2cp.Options{})
	require.NoError(t, err)
	defer r.Close()
	res, err := r.ReadFile(0, -1)
	require.NoError(t, err)
	ad2cp.Scale(res.Datasets)
	return res.Datasets
}

func TestReorganizeMergesHeads(t *testing.T) {
	d, err := reorg.Reorganize(readSession(t, samples.DefaultSession()))
	require.NoError(t, err)
	require.Equal(t, []string{"", "_b5"}, d.HeadTags())
	require.Equal(t, "ENU", d.CoordSys)

	tm, ok := d.Var("time")
	require.True(t, ok)
	require.Equal(t, reorg.GroupEssential, tm.Group)
	require.Equal(t, 8, tm.Len())
	base := float64(samples.BaseTime.Unix())
	for i := 0; i < 8; i++ {
		require.Equal(t, base+float64(i), tm.Data[i])
	}
	tb5, ok := d.Var("time_b5")
	require.True(t, ok)
	require.True(t, math.IsNaN(tb5.Data[0]))
	require.Equal(t, base+1, tb5.Data[1])

	vel, ok := d.Var("vel")
	require.True(t, ok)
	require.Equal(t, []int{4, 4}, vel.Dims)
	require.Equal(t, reorg.GroupEssential, vel.Group)
	pg, ok := d.Var("percent_good_b5")
	require.True(t, ok)
	require.Equal(t, reorg.GroupSignal, pg.Group)
	_, ok = d.Var("percent_good")
	require.False(t, ok)

	require.Contains(t, d.Group(reorg.GroupEnv), "temp_b5")
	require.Contains(t, d.Group(reorg.GroupOrient), "heading")
	require.Equal(t, "orient", reorg.GroupOrient.String())

	cfg := d.Config()
	require.Equal(t, 4, cfg["ncells"])
	require.Equal(t, 4, cfg["nbeams"])
	require.Equal(t, 1, cfg["nbeams_b5"])
	require.Equal(t, "BEAM", cfg["coord_sys_b5"])
	require.Equal(t, uint32(100123), cfg["serial_number"])
	require.InDelta(t, 1.0, cfg["cell_size"], 1e-12)
	require.InDelta(t, 0.5, cfg["blanking_b5"], 1e-12)
	require.Equal(t, -3, cfg["vel_scale"])
	flags := cfg["burst_config_b5"].(map[string]bool)
	require.True(t, flags["p_gd"])
	require.False(t, flags["ahrs"])
	for _, key := range []string{"nom_corr", "data_desc", "power_level", "burst_config"} {
		require.Contains(t, cfg, key)
	}
}

func TestReorganizeTimestampFields(t *testing.T) {
	cfg := samples.PrimaryConfig()
	ts := time.Date(1999, time.December, 31, 23, 59, 58, 123_400_000, time.UTC)
	st := samples.NewStream(ad2cp.LittleEndian)
	_, err := st.AddBurst(samples.Burst{Config: cfg, Time: ts})
	require.NoError(t, err)
	r, err := ad2cp.OpenBlob(ad2cp.BytesBlob(st.Bytes()), ad2cp.Fingerprint{}, ad2cp.Options{})
	require.NoError(t, err)
	defer r.Close()
	res, err := r.ReadFile(0, -1)
	require.NoError(t, err)

	d, err := reorg.Reorganize(res.Datasets)
	require.NoError(t, err)
	tm, _ := d.Var("time")
	require.InDelta(t, float64(ts.Unix())+0.1234, tm.Data[0], 1e-6)
}

func TestReorganizeRejectsVaryingConstants(t *testing.T) {
	cfg := samples.PrimaryConfig()
	st := samples.NewStream(ad2cp.LittleEndian)
	for i := 0; i < 2; i++ {
		_, err := st.AddBurst(samples.Burst{Config: cfg, Values: map[string][]float64{"SerialNum": {float64(500 + i)}}})
		require.NoError(t, err)
	}
	r, err := ad2cp.OpenBlob(ad2cp.BytesBlob(st.Bytes()), ad2cp.Fingerprint{}, ad2cp.Options{})
	require.NoError(t, err)
	defer r.Close()
	res, err := r.ReadFile(0, -1)
	require.NoError(t, err)

	_, err = reorg.Reorganize(res.Datasets)
	require.True(t, errors.Is(err, ad2cp.ErrConfig))
	var ce *ad2cp.ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "SerialNum", ce.Field)
}

func TestTagFor(t *testing.T) {
	for id, want := range map[byte]string{ad2cp.IDBurst: "", ad2cp.IDBurstB5: "_b5", ad2cp.IDAverage: "_avg"} {
		tag, ok := reorg.TagFor(id)
		require.True(t, ok)
		require.Equal(t, want, tag)
	}
	_, ok := reorg.TagFor(ad2cp.IDString)
	require.False(t, ok)
}
