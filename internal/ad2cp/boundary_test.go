package ad2cp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/ad2cpgate/internal/ad2cp"
)

func entries(specs ...ad2cp.IndexEntry) *ad2cp.Index {
	for i := range specs {
		specs[i].Offset = int64(i * 100)
		specs[i].HeaderSize = 10
	}
	return &ad2cp.Index{Entries: specs}
}

func TestBoundaryPolicies(t *testing.T) {
	idx := entries(
		ad2cp.IndexEntry{ID: ad2cp.IDString},
		ad2cp.IndexEntry{ID: ad2cp.IDBurst, Ens: 1, HasEns: true},
		ad2cp.IndexEntry{ID: ad2cp.IDBurstB5, Ens: 1, HasEns: true},
		ad2cp.IndexEntry{ID: ad2cp.IDBurst, Ens: 2, HasEns: true},
		ad2cp.IndexEntry{ID: 0x17},
		ad2cp.IndexEntry{ID: ad2cp.IDBurst, Ens: 3, HasEns: true},
		ad2cp.IndexEntry{ID: ad2cp.IDBurstB5, Ens: 3, HasEns: true},
	)
	tests := []struct {
		policy ad2cp.BoundaryPolicy
		want   []int64
	}{
		{ad2cp.LeadingRecordPolicy{ID: ad2cp.IDBurst}, []int64{100, 300, 500}},
		{ad2cp.LeadingRecordPolicy{ID: ad2cp.IDBurstB5}, []int64{200, 600}},
		{ad2cp.EnsembleCounterPolicy{}, []int64{100, 300, 500}},
		{ad2cp.FixedPeriodPolicy{IDs: []byte{ad2cp.IDBurst, ad2cp.IDBurstB5}}, []int64{100, 300, 500}},
	}
	for _, tc := range tests {
		t.Run(tc.policy.Name(), func(t *testing.T) {
			require.Equal(t, tc.want, tc.policy.Boundaries(idx))
		})
	}
}

func TestFixedPeriodPolicyCompletesSet(t *testing.T) {
	idx := entries(
		ad2cp.IndexEntry{ID: ad2cp.IDBurstB5},
		ad2cp.IndexEntry{ID: ad2cp.IDBurst},
		ad2cp.IndexEntry{ID: ad2cp.IDBurst},
		ad2cp.IndexEntry{ID: ad2cp.IDBurstB5},
	)
	got := ad2cp.FixedPeriodPolicy{}.Boundaries(idx)
	require.Equal(t, []int64{0, 200}, got)
}

func TestPolicyByName(t *testing.T) {
	p, err := ad2cp.PolicyByName("", 0, nil)
	require.NoError(t, err)
	require.Equal(t, ad2cp.LeadingRecordPolicy{ID: ad2cp.IDBurst}, p)

	p, err = ad2cp.PolicyByName("leading", ad2cp.IDBurstB5, nil)
	require.NoError(t, err)
	require.Equal(t, ad2cp.LeadingRecordPolicy{ID: ad2cp.IDBurstB5}, p)

	p, err = ad2cp.PolicyByName("Counter", 0, nil)
	require.NoError(t, err)
	require.Equal(t, "counter", p.Name())

	p, err = ad2cp.PolicyByName("period", 0, []byte{0x15})
	require.NoError(t, err)
	require.Equal(t, ad2cp.FixedPeriodPolicy{IDs: []byte{0x15}}, p)

	_, err = ad2cp.PolicyByName("hourly", 0, nil)
	require.Error(t, err)
}
