package main

import (
	"encoding/json"
	"math"
	"os"

	"example.com/ad2cpgate/internal/reorg"
)

type exportVariable struct {
	Group string     `json:"group"`
	Dims  []int      `json:"dims,omitempty"`
	Units string     `json:"units,omitempty"`
	Data  []*float64 `json:"data"`
}

type exportDoc struct {
	CoordSys  string                    `json:"coord_sys"`
	Config    map[string]any            `json:"config"`
	Variables map[string]exportVariable `json:"variables"`
}

// writeVariables dumps d as JSON. Missing values become null.
func writeVariables(d *reorg.Data, path string) error {
	doc := exportDoc{
		CoordSys:  d.CoordSys,
		Config:    d.Config(),
		Variables: make(map[string]exportVariable, len(d.Names)),
	}
	for _, name := range d.Names {
		v := d.Vars[name]
		data := make([]*float64, len(v.Data))
		for i := range v.Data {
			if math.IsNaN(v.Data[i]) {
				continue
			}
			data[i] = &v.Data[i]
		}
		doc.Variables[name] = exportVariable{
			Group: v.Group.String(),
			Dims:  v.Dims,
			Units: v.Units,
			Data:  data,
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
