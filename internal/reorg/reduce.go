package reorg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrIncompatibleRates is returned when the primary head's sample count is
// not a whole multiple of the secondary head's.
var ErrIncompatibleRates = errors.New("reorg: incompatible head sample rates")

// Channels averaged onto the secondary head's timeline.
var (
	linearChannels  = []string{"time", "c_sound", "temp", "press", "temp_press", "temp_clock", "temp_mag", "batt_V", "ensemble"}
	angularChannels = []string{"heading", "pitch", "roll"}
)

const (
	primaryTag   = ""
	secondaryTag = "_b5"
	// minResultant is the mean resultant length below which a set of angles
	// has no defined direction.
	minResultant = 1e-9
)

// Reduce replaces the secondary head's shared channels with block means of
// the primary head's samples, one block of len(primary)/len(secondary)
// consecutive decoded samples per secondary sample. Angles use the circular
// mean. Data is unchanged when an error is returned.
func Reduce(d *Data) error {
	p, okP := d.Heads[primaryTag]
	s, okS := d.Heads[secondaryTag]
	if !okP || !okS {
		return nil
	}
	np, ns := len(p.Filled), len(s.Filled)
	if ns == 0 || np%ns != 0 || np/ns == 0 {
		return fmt.Errorf("%w: %d primary samples for %d secondary samples", ErrIncompatibleRates, np, ns)
	}
	w := np / ns

	type update struct {
		v    *Variable
		vals []float64
	}
	var updates []update
	plan := func(names []string, mean func([]float64) float64) {
		for _, name := range names {
			pv, ok := d.Vars[name+primaryTag]
			if !ok {
				continue
			}
			sv, ok := d.Vars[name+secondaryTag]
			if !ok {
				continue
			}
			vals := make([]float64, ns)
			block := make([]float64, w)
			for k := range vals {
				for j := 0; j < w; j++ {
					block[j] = pv.Data[p.Filled[k*w+j]]
				}
				vals[k] = mean(block)
			}
			updates = append(updates, update{v: sv, vals: vals})
		}
	}
	plan(linearChannels, func(x []float64) float64 { return stat.Mean(x, nil) })
	plan(angularChannels, CircularMeanDeg)

	for _, u := range updates {
		for k, slot := range s.Filled {
			u.v.Data[slot] = u.vals[k]
		}
	}
	return nil
}

// CircularMeanDeg averages angles in degrees as unit vectors and returns a
// direction in [0, 360). Sets without a defined direction, such as two
// opposite angles, yield NaN.
func CircularMeanDeg(deg []float64) float64 {
	if len(deg) == 0 {
		return math.NaN()
	}
	rad := make([]float64, len(deg))
	var sx, sy float64
	for i, d := range deg {
		rad[i] = d * math.Pi / 180
		sx += math.Cos(rad[i])
		sy += math.Sin(rad[i])
	}
	if math.Hypot(sx, sy)/float64(len(deg)) < minResultant {
		return math.NaN()
	}
	mean := stat.CircularMean(rad, nil) * 180 / math.Pi
	if math.Abs(mean) < minResultant {
		return 0
	}
	return math.Mod(mean+360, 360)
}
