package ad2cp

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Kind is the on-wire representation of a field value.
type Kind uint8

const (
	KindU8 Kind = iota
	KindI8
	KindU16
	KindI16
	KindU32
	KindF32
)

func (k Kind) Size() int {
	switch k {
	case KindU8, KindI8:
		return 1
	case KindU16, KindI16:
		return 2
	case KindU32, KindF32:
		return 4
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "uint8"
	case KindI8:
		return "int8"
	case KindU16:
		return "uint16"
	case KindI16:
		return "int16"
	case KindU32:
		return "uint32"
	case KindF32:
		return "float32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field describes one value or array at a fixed payload offset.
type Field struct {
	Name   string
	Kind   Kind
	Offset int
	Dims   []int
	Scale  float64
	Units  string
}

// Count is the number of values per record.
func (f Field) Count() int {
	n := 1
	for _, d := range f.Dims {
		n *= d
	}
	return n
}

// ByteLen is the encoded length of the field.
func (f Field) ByteLen() int {
	return f.Count() * f.Kind.Size()
}

// Layout is the immutable decoding schema for one configuration.
type Layout struct {
	cfg    Config
	fields []Field
	size   int
}

const accScale = 1.0 / 16384 * 9.81

type layoutBuilder struct {
	fields []Field
	off    int
}

func (b *layoutBuilder) add(name string, kind Kind, scale float64, units string, dims ...int) {
	f := Field{Name: name, Kind: kind, Offset: b.off, Dims: dims, Scale: scale, Units: units}
	b.fields = append(b.fields, f)
	b.off += f.ByteLen()
}

func (b *layoutBuilder) skip(n int) {
	b.off += n
}

// BuildLayout derives the burst record schema from cfg: the fixed header
// followed by the data blocks its flags enable.
func BuildLayout(cfg Config) *Layout {
	b := &layoutBuilder{}
	b.add("ver", KindU8, 1, "")
	b.add("DayOffset", KindU8, 1, "")
	b.add("config", KindU16, 1, "")
	b.add("SerialNum", KindU32, 1, "")
	b.add("year", KindU8, 1, "")
	b.add("month", KindU8, 1, "")
	b.add("day", KindU8, 1, "")
	b.add("hour", KindU8, 1, "")
	b.add("minute", KindU8, 1, "")
	b.add("second", KindU8, 1, "")
	b.add("usec100", KindU16, 1, "")
	b.add("c_sound", KindU16, 0.1, "m/s")
	b.add("temp", KindI16, 0.01, "deg C")
	b.add("press", KindU32, 0.001, "dbar")
	b.add("heading", KindU16, 0.01, "deg")
	b.add("pitch", KindI16, 0.01, "deg")
	b.add("roll", KindI16, 0.01, "deg")
	b.add("beam_config", KindU16, 1, "")
	b.add("cell_size", KindU16, 0.001, "m")
	b.add("blanking", KindU16, 0.01, "m")
	b.add("nom_corr", KindU8, 1, "%")
	b.add("temp_press", KindU8, 0.2, "deg C")
	b.add("batt_V", KindU16, 0.1, "V")
	b.add("Mag", KindI16, 1, "", 3)
	b.add("Acc", KindI16, accScale, "m/s^2", 3)
	b.add("ambig_vel", KindI16, 1, "m/s")
	b.add("data_desc", KindU16, 1, "")
	b.add("xmit_energy", KindU16, 1, "")
	b.add("vel_scale", KindI8, 1, "")
	b.add("power_level", KindI8, 1, "dB")
	b.add("temp_mag", KindI16, 1, "")
	b.add("temp_clock", KindI16, 0.01, "deg C")
	b.add("error", KindU16, 1, "")
	b.add("status0", KindU16, 1, "")
	b.add("status", KindU32, 1, "")
	b.add("ensemble", KindU32, 1, "")

	nb, nc := cfg.NBeams(), cfg.NCells()
	f := cfg.Flags
	if f.Has(FlagVel) {
		b.add("vel", KindI16, 1, "m/s", nb, nc)
	}
	if f.Has(FlagAmp) {
		b.add("amp", KindU8, 0.5, "dB", nb, nc)
	}
	if f.Has(FlagCorr) {
		b.add("corr", KindU8, 1, "%", nb, nc)
	}
	if f.Has(FlagAlt) {
		b.add("alt_dist", KindF32, 1, "m")
		b.add("alt_quality", KindU16, 0.01, "dB")
		b.add("alt_status", KindU16, 1, "")
	}
	if f.Has(FlagAST) {
		b.add("ast_dist", KindF32, 1, "m")
		b.add("ast_quality", KindU16, 0.01, "dB")
		b.add("ast_offset_time", KindI16, 0.0001, "s")
		b.add("ast_pressure", KindF32, 1, "dbar")
		b.skip(8)
	}
	if f.Has(FlagAltRaw) {
		b.add("altraw_nsamp", KindU32, 1, "")
		b.add("altraw_dist", KindU16, 0.0001, "m")
		b.add("altraw_samp", KindI16, 1, "")
	}
	if f.Has(FlagEcho) {
		b.add("echo", KindU16, 0.01, "dB", nc)
	}
	if f.Has(FlagAHRS) {
		b.add("orientmat", KindF32, 1, "", 3, 3)
		b.add("quaternion", KindF32, 1, "", 4)
		b.add("ahrs_gyro", KindF32, 1, "deg/s", 3)
	}
	if f.Has(FlagPercentGood) {
		b.add("percent_good", KindU8, 1, "%", nc)
	}
	if f.Has(FlagStd) {
		b.add("std_pitch", KindI16, 0.01, "deg")
		b.add("std_roll", KindI16, 0.01, "deg")
		b.add("std_heading", KindI16, 0.01, "deg")
		b.add("std_press", KindI16, 0.1, "dbar")
		b.skip(24)
	}
	return &Layout{cfg: cfg, fields: b.fields, size: b.off}
}

func (l *Layout) Config() Config { return l.cfg }

// Size is the payload length the layout expects.
func (l *Layout) Size() int { return l.size }

// Fields returns a copy of the field descriptors in payload order.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	copy(out, l.fields)
	return out
}

// Field looks up a descriptor by name.
func (l *Layout) Field(name string) (Field, bool) {
	for _, f := range l.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// NewDataset allocates n NaN slots for every field.
func (l *Layout) NewDataset(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	return newDataset(l.cfg.ID, n, l.fields)
}

// Decode writes every field that lies fully inside payload into slot and
// marks the slot filled. It reports false when at least one field was cut
// off by a short payload.
func (l *Layout) Decode(payload []byte, order binary.ByteOrder, ds *Dataset, slot int) (bool, error) {
	if slot < 0 || slot >= ds.Len {
		return false, fmt.Errorf("slot %d out of range [0,%d)", slot, ds.Len)
	}
	if len(ds.cols) != len(l.fields) {
		return false, fmt.Errorf("dataset for record 0x%02X does not match layout", ds.ID)
	}
	complete := true
	for i, f := range l.fields {
		end := f.Offset + f.ByteLen()
		if end > len(payload) {
			complete = false
			continue
		}
		decodeValues(payload[f.Offset:end], f.Kind, order, ds.cols[i].Row(slot))
	}
	ds.Filled.Add(uint32(slot))
	return complete, nil
}

func decodeValues(buf []byte, kind Kind, order binary.ByteOrder, dst []float64) {
	size := kind.Size()
	for i := range dst {
		v := buf[i*size : (i+1)*size]
		switch kind {
		case KindU8:
			dst[i] = float64(v[0])
		case KindI8:
			dst[i] = float64(int8(v[0]))
		case KindU16:
			dst[i] = float64(order.Uint16(v))
		case KindI16:
			dst[i] = float64(int16(order.Uint16(v)))
		case KindU32:
			dst[i] = float64(order.Uint32(v))
		case KindF32:
			dst[i] = float64(math.Float32frombits(order.Uint32(v)))
		}
	}
}
