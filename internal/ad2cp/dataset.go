package ad2cp

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// Column stores one field for every ensemble slot, row-major with the slot as
// the leading dimension. Unwritten values are NaN.
type Column struct {
	Name   string
	Dims   []int
	Stride int
	Scale  float64
	Units  string
	Data   []float64
}

// Row returns the values of slot. The slice aliases the column.
func (c *Column) Row(slot int) []float64 {
	return c.Data[slot*c.Stride : (slot+1)*c.Stride]
}

// At returns the first value of slot.
func (c *Column) At(slot int) float64 {
	return c.Data[slot*c.Stride]
}

// Dataset holds the decoded records of one id. Each slot is written at most
// once; Filled records which.
type Dataset struct {
	ID     byte
	Len    int
	Fields []string
	Filled *roaring.Bitmap

	cols   []*Column
	byName map[string]*Column
}

func newDataset(id byte, n int, fields []Field) *Dataset {
	ds := &Dataset{
		ID:     id,
		Len:    n,
		Filled: roaring.New(),
		cols:   make([]*Column, len(fields)),
		byName: make(map[string]*Column, len(fields)),
	}
	for i, f := range fields {
		stride := f.Count()
		col := &Column{
			Name:   f.Name,
			Dims:   append([]int(nil), f.Dims...),
			Stride: stride,
			Scale:  f.Scale,
			Units:  f.Units,
			Data:   make([]float64, n*stride),
		}
		for j := range col.Data {
			col.Data[j] = math.NaN()
		}
		ds.cols[i] = col
		ds.byName[f.Name] = col
		ds.Fields = append(ds.Fields, f.Name)
	}
	return ds
}

// Column returns the named column.
func (ds *Dataset) Column(name string) (*Column, bool) {
	c, ok := ds.byName[name]
	return c, ok
}

// Has reports whether the dataset carries the named field.
func (ds *Dataset) Has(name string) bool {
	_, ok := ds.byName[name]
	return ok
}

// IsFilled reports whether a record was decoded into slot.
func (ds *Dataset) IsFilled(slot int) bool {
	return slot >= 0 && ds.Filled.Contains(uint32(slot))
}

// FilledCount is the number of decoded slots.
func (ds *Dataset) FilledCount() int {
	return int(ds.Filled.GetCardinality())
}

// FilledSlots lists decoded slots in increasing order.
func (ds *Dataset) FilledSlots() []int {
	out := make([]int, 0, ds.FilledCount())
	it := ds.Filled.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// Columns returns the columns in layout order.
func (ds *Dataset) Columns() []*Column {
	return ds.cols
}
