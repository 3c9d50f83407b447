package ad2cp

import (
	"fmt"
	"strings"
)

// BoundaryPolicy derives the byte offsets at which logical ensembles start.
// Offsets must be taken from index entries and be strictly increasing.
type BoundaryPolicy interface {
	Name() string
	Boundaries(idx *Index) []int64
}

// LeadingRecordPolicy opens an ensemble at every record of ID. Records of
// other ids belong to the ensemble opened before them.
type LeadingRecordPolicy struct {
	ID byte
}

func (LeadingRecordPolicy) Name() string { return "leading" }

func (p LeadingRecordPolicy) Boundaries(idx *Index) []int64 {
	var out []int64
	for _, e := range idx.Entries {
		if e.ID == p.ID {
			out = append(out, e.Offset)
		}
	}
	return out
}

// EnsembleCounterPolicy opens an ensemble wherever the counter embedded in a
// burst record differs from the previous burst record's counter.
type EnsembleCounterPolicy struct{}

func (EnsembleCounterPolicy) Name() string { return "counter" }

func (EnsembleCounterPolicy) Boundaries(idx *Index) []int64 {
	var out []int64
	var prev uint32
	seen := false
	for _, e := range idx.Entries {
		if !e.HasEns {
			continue
		}
		if !seen || e.Ens != prev {
			out = append(out, e.Offset)
		}
		prev = e.Ens
		seen = true
	}
	return out
}

// FixedPeriodPolicy closes an ensemble once every id in IDs has been seen. A
// repeated id before the set completes starts a new ensemble.
type FixedPeriodPolicy struct {
	IDs []byte
}

func (FixedPeriodPolicy) Name() string { return "period" }

func (p FixedPeriodPolicy) Boundaries(idx *Index) []int64 {
	ids := p.IDs
	if len(ids) == 0 {
		ids = DefaultBurstIDs
	}
	want := make(map[byte]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	seen := make(map[byte]bool, len(want))
	open := false
	var out []int64
	for _, e := range idx.Entries {
		if !want[e.ID] {
			continue
		}
		if !open || seen[e.ID] {
			out = append(out, e.Offset)
			clear(seen)
			open = true
		}
		seen[e.ID] = true
		if len(seen) == len(want) {
			open = false
		}
	}
	return out
}

// PolicyByName resolves a configured policy name. An empty name selects the
// leading-record policy.
func PolicyByName(name string, leading byte, ids []byte) (BoundaryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "leading":
		if leading == 0 {
			leading = IDBurst
		}
		return LeadingRecordPolicy{ID: leading}, nil
	case "counter":
		return EnsembleCounterPolicy{}, nil
	case "period":
		return FixedPeriodPolicy{IDs: ids}, nil
	default:
		return nil, fmt.Errorf("unknown boundary policy %q", name)
	}
}
