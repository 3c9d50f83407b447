// Package report summarises a decode session as JSON and PDF.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/reorg"
)

// Report describes one decoded recording.
type Report struct {
	Input            string         `json:"input"`
	Sha256           string         `json:"sha256,omitempty"`
	Bytes            int64          `json:"bytes"`
	ByteOrder        string         `json:"byteOrder"`
	Boundary         string         `json:"boundary"`
	Records          int            `json:"records"`
	Ensembles        int            `json:"ensembles"`
	Slots            int            `json:"slots"`
	CacheHit         bool           `json:"cacheHit"`
	Truncated        bool           `json:"truncated"`
	UnknownIDs       map[string]int `json:"unknownIds,omitempty"`
	ShortPayloads    int            `json:"shortPayloads"`
	ChecksumFailures int            `json:"checksumFailures"`
	Duplicates       int            `json:"duplicates"`
	Heads            []HeadSummary  `json:"heads"`
	Reduced          bool           `json:"reduced"`
	ReduceError      string         `json:"reduceError,omitempty"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}

type HeadSummary struct {
	Tag      string           `json:"tag"`
	ID       string           `json:"id"`
	Filled   int              `json:"filled"`
	Config   reorg.HeadConfig `json:"config"`
	Channels []ChannelStats   `json:"channels"`
}

// ChannelStats summarises the finite values of one scalar variable.
type ChannelStats struct {
	Name  string  `json:"name"`
	Units string  `json:"units,omitempty"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
}

// summaryChannels are reported for every head that carries them.
var summaryChannels = []string{"time", "temp", "press", "c_sound", "heading", "pitch", "roll", "batt_V"}

// Build assembles the report of a finished read. d may be nil when the
// datasets could not be reorganized.
func Build(r *ad2cp.Reader, res *ad2cp.Result, d *reorg.Data) *Report {
	fp := r.Fingerprint()
	rep := &Report{
		Input:            fp.Path,
		Bytes:            r.Index().Size,
		ByteOrder:        r.ByteOrder().String(),
		Boundary:         r.Policy().Name(),
		Records:          len(r.Index().Entries),
		Slots:            r.NumEnsembles(),
		CacheHit:         r.CacheHit(),
		Ensembles:        res.Ensembles,
		Truncated:        res.Truncated || r.Index().Truncated(),
		ShortPayloads:    res.ShortPayloads,
		ChecksumFailures: res.ChecksumFailures,
		Duplicates:       res.Duplicates,
		GeneratedAt:      time.Now().UTC(),
	}
	if len(res.UnknownIDs) > 0 {
		rep.UnknownIDs = make(map[string]int, len(res.UnknownIDs))
		for id, n := range res.UnknownIDs {
			rep.UnknownIDs[fmt.Sprintf("0x%02X", id)] = n
		}
	}
	if d == nil {
		return rep
	}
	for _, tag := range d.HeadTags() {
		h := d.Heads[tag]
		hs := HeadSummary{
			Tag:    tag,
			ID:     fmt.Sprintf("0x%02X", h.ID),
			Filled: len(h.Filled),
			Config: h.Config,
		}
		for _, name := range summaryChannels {
			v, ok := d.Var(name + tag)
			if !ok || v.Stride() != 1 {
				continue
			}
			hs.Channels = append(hs.Channels, channelStats(name, v))
		}
		rep.Heads = append(rep.Heads, hs)
	}
	sort.Slice(rep.Heads, func(i, j int) bool { return rep.Heads[i].ID < rep.Heads[j].ID })
	return rep
}

func channelStats(name string, v *reorg.Variable) ChannelStats {
	finite := make([]float64, 0, len(v.Data))
	for _, x := range v.Data {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			finite = append(finite, x)
		}
	}
	cs := ChannelStats{Name: name, Units: v.Units, Count: len(finite)}
	if len(finite) == 0 {
		return cs
	}
	cs.Min = floats.Min(finite)
	cs.Max = floats.Max(finite)
	cs.Mean = floats.Sum(finite) / float64(len(finite))
	return cs
}

func SaveJSON(rep *Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (*Report, error) {
	var rep Report
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
