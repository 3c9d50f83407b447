// Package reorg merges the per-head datasets of a read into one set of
// suffix-tagged variables and reconciles the heads' timelines.
package reorg

import (
	"fmt"
	"math"
	"sort"
	"time"

	"example.com/ad2cpgate/internal/ad2cp"
)

// Head tags in merge order.
var heads = []struct {
	id  byte
	tag string
}{
	{ad2cp.IDBurst, ""},
	{ad2cp.IDBurstB5, "_b5"},
	{ad2cp.IDAverage, "_avg"},
}

// TagFor returns the variable suffix of a record id.
func TagFor(id byte) (string, bool) {
	for _, h := range heads {
		if h.id == id {
			return h.tag, true
		}
	}
	return "", false
}

// Variable is one merged field. Data is laid out like ad2cp.Column.
type Variable struct {
	Name  string
	Group Group
	Dims  []int
	Units string
	Data  []float64
}

// Stride is the number of values per ensemble.
func (v *Variable) Stride() int {
	n := 1
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// Len is the number of ensembles.
func (v *Variable) Len() int {
	s := v.Stride()
	if s == 0 {
		return 0
	}
	return len(v.Data) / s
}

// HeadConfig holds the values that are constant over a head's records.
type HeadConfig struct {
	NCells       int         `json:"ncells"`
	CoordSys     string      `json:"coord_sys"`
	NBeams       int         `json:"nbeams"`
	SerialNumber uint32      `json:"serial_number"`
	CellSize     float64     `json:"cell_size"`
	Blanking     float64     `json:"blanking"`
	NomCorr      float64     `json:"nom_corr"`
	DataDesc     uint16      `json:"data_desc"`
	VelScale     int         `json:"vel_scale"`
	PowerLevel   int         `json:"power_level"`
	BurstConfig  ad2cp.Flags `json:"burst_config"`
}

// Head describes one merged instrument head.
type Head struct {
	ID     byte
	Tag    string
	Len    int
	Filled []int
	Config HeadConfig
}

// Data is the merged result of Reorganize.
type Data struct {
	Vars  map[string]*Variable
	Names []string
	Heads map[string]*Head
	// CoordSys is the primary head's coordinate system.
	CoordSys string
}

func (d *Data) add(v *Variable) {
	if _, ok := d.Vars[v.Name]; !ok {
		d.Names = append(d.Names, v.Name)
	}
	d.Vars[v.Name] = v
}

// Var returns the named variable.
func (d *Data) Var(name string) (*Variable, bool) {
	v, ok := d.Vars[name]
	return v, ok
}

// Group lists the variables tagged g, in insertion order.
func (d *Data) Group(g Group) []string {
	var out []string
	for _, name := range d.Names {
		if d.Vars[name].Group == g {
			out = append(out, name)
		}
	}
	return out
}

// Config flattens every head's configuration into suffix-tagged keys.
func (d *Data) Config() map[string]any {
	out := make(map[string]any)
	for _, h := range d.Heads {
		c := h.Config
		t := h.Tag
		out["ncells"+t] = c.NCells
		out["coord_sys"+t] = c.CoordSys
		out["nbeams"+t] = c.NBeams
		out["serial_number"+t] = c.SerialNumber
		out["cell_size"+t] = c.CellSize
		out["blanking"+t] = c.Blanking
		out["nom_corr"+t] = c.NomCorr
		out["data_desc"+t] = c.DataDesc
		out["vel_scale"+t] = c.VelScale
		out["power_level"+t] = c.PowerLevel
		out["burst_config"+t] = c.BurstConfig.Map()
	}
	return out
}

// HeadTags lists the merged heads' tags in sorted order.
func (d *Data) HeadTags() []string {
	out := make([]string, 0, len(d.Heads))
	for tag := range d.Heads {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Reorganize merges datasets by head. Heads with no decoded records are
// left out. Constant fields that vary yield a *ad2cp.ConfigError.
func Reorganize(datasets map[byte]*ad2cp.Dataset) (*Data, error) {
	out := &Data{Vars: make(map[string]*Variable), Heads: make(map[string]*Head)}
	for _, h := range heads {
		ds, ok := datasets[h.id]
		if !ok || ds.FilledCount() == 0 {
			continue
		}
		head, err := mergeHead(out, ds, h.tag)
		if err != nil {
			return nil, err
		}
		out.Heads[h.tag] = head
	}
	if p, ok := out.Heads[""]; ok {
		out.CoordSys = p.Config.CoordSys
	}
	return out, nil
}

func mergeHead(out *Data, ds *ad2cp.Dataset, tag string) (*Head, error) {
	filled := ds.FilledSlots()
	head := &Head{ID: ds.ID, Tag: tag, Len: ds.Len, Filled: filled}

	collapsed := make(map[string]float64)
	for _, name := range []string{"config", "beam_config", "SerialNum", "cell_size", "blanking", "nom_corr", "data_desc", "vel_scale", "power_level"} {
		v, err := collapse(ds, name, filled)
		if err != nil {
			return nil, err
		}
		collapsed[name] = v
	}
	beam := ad2cp.BeamWord(collapsed["beam_config"])
	head.Config = HeadConfig{
		NCells:       beam.NCells(),
		CoordSys:     beam.CoordSys(),
		NBeams:       beam.NBeams(),
		SerialNumber: uint32(collapsed["SerialNum"]),
		CellSize:     collapsed["cell_size"],
		Blanking:     collapsed["blanking"],
		NomCorr:      collapsed["nom_corr"],
		DataDesc:     uint16(collapsed["data_desc"]),
		VelScale:     int(collapsed["vel_scale"]),
		PowerLevel:   int(collapsed["power_level"]),
		BurstConfig:  ad2cp.Flags(collapsed["config"]),
	}

	times, err := timestamps(ds, filled)
	if err != nil {
		return nil, err
	}
	out.add(&Variable{Name: "time" + tag, Group: GroupEssential, Units: "s", Data: times})

	for _, list := range [][]channel{perEnsemble, optional} {
		for _, ch := range list {
			col, ok := ds.Column(ch.name)
			if !ok {
				continue
			}
			out.add(&Variable{
				Name:  ch.name + tag,
				Group: ch.group,
				Dims:  append([]int(nil), col.Dims...),
				Units: col.Units,
				Data:  append([]float64(nil), col.Data...),
			})
		}
	}
	return head, nil
}

// collapse returns the single value a field holds across filled slots.
func collapse(ds *ad2cp.Dataset, name string, filled []int) (float64, error) {
	col, ok := ds.Column(name)
	if !ok {
		return 0, fmt.Errorf("record 0x%02X has no %s field", ds.ID, name)
	}
	first := col.At(filled[0])
	for _, slot := range filled[1:] {
		v := col.At(slot)
		if v != first && !(math.IsNaN(v) && math.IsNaN(first)) {
			return 0, &ad2cp.ConfigError{ID: ds.ID, Field: name, Offset: -1, Want: first, Got: v}
		}
	}
	return first, nil
}

var timeFields = []string{"year", "month", "day", "hour", "minute", "second", "usec100"}

// timestamps converts the date fields of each filled slot to Unix seconds.
// The instrument counts years from 1900 and months from 0.
func timestamps(ds *ad2cp.Dataset, filled []int) ([]float64, error) {
	cols := make([]*ad2cp.Column, len(timeFields))
	for i, name := range timeFields {
		col, ok := ds.Column(name)
		if !ok {
			return nil, fmt.Errorf("record 0x%02X has no %s field", ds.ID, name)
		}
		cols[i] = col
	}
	out := make([]float64, ds.Len)
	for i := range out {
		out[i] = math.NaN()
	}
	for _, slot := range filled {
		var f [7]int
		nan := false
		for i, col := range cols {
			v := col.At(slot)
			if math.IsNaN(v) {
				nan = true
				break
			}
			f[i] = int(v)
		}
		if nan {
			continue
		}
		ts := time.Date(f[0]+1900, time.Month(f[1]+1), f[2], f[3], f[4], f[5], f[6]*100*int(time.Microsecond), time.UTC)
		out[slot] = float64(ts.Unix()) + float64(ts.Nanosecond())/1e9
	}
	return out, nil
}
