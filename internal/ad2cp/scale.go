package ad2cp

import "math"

// Scale converts raw counts to physical units in place: every column is
// multiplied by its unit factor, then vel and ambig_vel by 10^vel_scale of
// their ensemble. Applying it twice scales twice.
func Scale(datasets map[byte]*Dataset) {
	for _, ds := range datasets {
		scaleDataset(ds)
	}
}

func scaleDataset(ds *Dataset) {
	for _, col := range ds.cols {
		if col.Scale == 0 || col.Scale == 1 {
			continue
		}
		for i, v := range col.Data {
			col.Data[i] = v * col.Scale
		}
	}
	exp, ok := ds.Column("vel_scale")
	if !ok {
		return
	}
	for _, name := range []string{"vel", "ambig_vel"} {
		col, ok := ds.Column(name)
		if !ok {
			continue
		}
		for slot := 0; slot < ds.Len; slot++ {
			e := exp.At(slot)
			if math.IsNaN(e) {
				continue
			}
			row := col.Row(slot)
			for i, v := range row {
				row[i] = pow10(v, int(e))
			}
		}
	}
}

// pow10 returns v*10^e, dividing for negative exponents so decimal results
// round once.
func pow10(v float64, e int) float64 {
	if e < 0 {
		return v / math.Pow10(-e)
	}
	return v * math.Pow10(e)
}
