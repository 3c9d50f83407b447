// Package samples builds deterministic synthetic AD2CP streams for tests and
// the gensample tool.
package samples

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"example.com/ad2cpgate/internal/ad2cp"
)

const (
	syncByte   = 0xA5
	headerSize = 10
	family     = 0x10

	// FileName is the capture written by WriteFiles.
	FileName = "sample.ad2cp"
)

// BaseTime is the timestamp of the first ensemble in a generated session.
var BaseTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// Record frames payload with a header carrying valid checksums.
func Record(order ad2cp.Endian, id byte, payload []byte) []byte {
	hdr := make([]byte, 0, headerSize+len(payload))
	hdr = order.AppendUint16(hdr, uint16(syncByte)|uint16(headerSize)<<8)
	hdr = order.AppendUint16(hdr, uint16(id)|uint16(family)<<8)
	hdr = order.AppendUint16(hdr, uint16(len(payload)))
	hdr = order.AppendUint16(hdr, ad2cp.Checksum(payload, order))
	hdr = order.AppendUint16(hdr, ad2cp.Checksum(hdr, order))
	return append(hdr, payload...)
}

// Burst is one synthetic burst record. Values override field contents by
// layout name, in raw counts; configuration fields default to Config.
type Burst struct {
	Config ad2cp.Config
	Time   time.Time
	Values map[string][]float64
}

// Encode lays the burst out as BuildLayout(b.Config) describes it.
func (b Burst) Encode(order ad2cp.Endian) ([]byte, error) {
	layout := ad2cp.BuildLayout(b.Config)
	payload := make([]byte, layout.Size())
	defaults := b.defaults()
	for _, f := range layout.Fields() {
		vals, ok := b.Values[f.Name]
		if !ok {
			vals, ok = defaults[f.Name]
		}
		if !ok {
			continue
		}
		if len(vals) != f.Count() {
			return nil, fmt.Errorf("field %s: %d values, layout holds %d", f.Name, len(vals), f.Count())
		}
		putValues(payload[f.Offset:f.Offset+f.ByteLen()], f.Kind, order, vals)
	}
	return payload, nil
}

func (b Burst) defaults() map[string][]float64 {
	c := b.Config
	ts := b.Time
	if ts.IsZero() {
		ts = BaseTime
	}
	return map[string][]float64{
		"ver":         {3},
		"DayOffset":   {fixedHeaderOffset},
		"config":      {float64(c.Flags)},
		"SerialNum":   {float64(c.Serial)},
		"year":        {float64(ts.Year() - 1900)},
		"month":       {float64(ts.Month() - 1)},
		"day":         {float64(ts.Day())},
		"hour":        {float64(ts.Hour())},
		"minute":      {float64(ts.Minute())},
		"second":      {float64(ts.Second())},
		"usec100":     {float64(ts.Nanosecond() / 100_000)},
		"beam_config": {float64(c.Beam)},
		"cell_size":   {float64(c.CellSize)},
		"blanking":    {float64(c.Blanking)},
		"nom_corr":    {float64(c.NomCorr)},
		"data_desc":   {float64(c.DataDesc)},
		"vel_scale":   {float64(c.VelScale)},
		"power_level": {float64(c.PowerLevel)},
	}
}

// fixedHeaderOffset is the offsetOfData byte the instrument writes for DF3.
const fixedHeaderOffset = 76

func putValues(dst []byte, kind ad2cp.Kind, order ad2cp.Endian, vals []float64) {
	size := kind.Size()
	for i, v := range vals {
		out := dst[i*size : (i+1)*size]
		switch kind {
		case ad2cp.KindU8:
			out[0] = uint8(v)
		case ad2cp.KindI8:
			out[0] = uint8(int8(v))
		case ad2cp.KindU16:
			order.PutUint16(out, uint16(v))
		case ad2cp.KindI16:
			order.PutUint16(out, uint16(int16(v)))
		case ad2cp.KindU32:
			order.PutUint32(out, uint32(v))
		case ad2cp.KindF32:
			order.PutUint32(out, math.Float32bits(float32(v)))
		}
	}
}

// Stream accumulates framed records.
type Stream struct {
	Order ad2cp.Endian
	buf   bytes.Buffer
	n     int
}

func NewStream(order ad2cp.Endian) *Stream {
	return &Stream{Order: order}
}

// Add appends a record and returns its offset.
func (s *Stream) Add(id byte, payload []byte) int64 {
	off := int64(s.buf.Len())
	s.buf.Write(Record(s.Order, id, payload))
	s.n++
	return off
}

// AddBurst encodes b and appends it under id b.Config.ID.
func (s *Stream) AddBurst(b Burst) (int64, error) {
	payload, err := b.Encode(s.Order)
	if err != nil {
		return 0, err
	}
	return s.Add(b.Config.ID, payload), nil
}

func (s *Stream) Len() int      { return s.buf.Len() }
func (s *Stream) Records() int  { return s.n }
func (s *Stream) Bytes() []byte { return append([]byte(nil), s.buf.Bytes()...) }

// PrimaryConfig is the four-beam head used by generated sessions.
func PrimaryConfig() ad2cp.Config {
	return ad2cp.Config{
		ID:       ad2cp.IDBurst,
		Flags:    ad2cp.FlagPressValid | ad2cp.FlagTempValid | ad2cp.FlagCompassValid | ad2cp.FlagTiltValid | ad2cp.FlagVel | ad2cp.FlagAmp | ad2cp.FlagCorr,
		Beam:     ad2cp.BeamWord(4<<12 | 0<<10 | 4),
		Serial:   100123,
		CellSize: 1000,
		Blanking: 50,
		NomCorr:  60,
		VelScale: -3,
	}
}

// SecondaryConfig is the vertical fifth-beam head.
func SecondaryConfig() ad2cp.Config {
	return ad2cp.Config{
		ID:       ad2cp.IDBurstB5,
		Flags:    ad2cp.FlagPressValid | ad2cp.FlagTempValid | ad2cp.FlagVel | ad2cp.FlagAmp | ad2cp.FlagCorr | ad2cp.FlagPercentGood,
		Beam:     ad2cp.BeamWord(1<<12 | 2<<10 | 4),
		Serial:   100123,
		CellSize: 1000,
		Blanking: 50,
		NomCorr:  60,
		VelScale: -3,
	}
}

// Session describes a generated capture: Ensembles primary bursts, one
// secondary burst after every Ratio primaries, and an optional string record
// and bottom-track record to exercise unknown-id handling.
type Session struct {
	Order      ad2cp.Endian
	Ensembles  int
	Ratio      int
	Interval   time.Duration
	WithString bool
	WithBottom bool
}

// DefaultSession is the capture WriteFiles produces.
func DefaultSession() Session {
	return Session{
		Order:      ad2cp.LittleEndian,
		Ensembles:  8,
		Ratio:      2,
		Interval:   time.Second,
		WithString: true,
		WithBottom: true,
	}
}

// Heading returns the raw heading (0.01 deg) of primary ensemble i; the
// sequence straddles north so circular means are exercised.
func Heading(i int) float64 {
	return float64((35900 + i*100) % 36000)
}

// PrimaryValues are the raw counts written into primary ensemble i.
func PrimaryValues(i int, cfg ad2cp.Config) map[string][]float64 {
	nb, nc := cfg.NBeams(), cfg.NCells()
	vel := make([]float64, nb*nc)
	amp := make([]float64, nb*nc)
	corr := make([]float64, nb*nc)
	for j := range vel {
		vel[j] = float64(i*100 + j)
		amp[j] = float64(80 + j%8)
		corr[j] = float64(50 + j%40)
	}
	return map[string][]float64{
		"c_sound":    {float64(15000 + i)},
		"temp":       {float64(1200 + 10*i)},
		"press":      {float64(10000 + 100*i)},
		"heading":    {Heading(i)},
		"pitch":      {float64(-150 + 10*i)},
		"roll":       {float64(200 - 10*i)},
		"temp_press": {float64(60 + i)},
		"batt_V":     {float64(150 + i)},
		"Mag":        {1, 2, 3},
		"Acc":        {0, 0, 16384},
		"ambig_vel":  {5000},
		"temp_mag":   {float64(1300 + i)},
		"temp_clock": {float64(1250 + i)},
		"status":     {0x100},
		"ensemble":   {float64(i + 1)},
		"vel":        vel,
		"amp":        amp,
		"corr":       corr,
	}
}

// SecondaryValues are the raw counts written into secondary burst k.
func SecondaryValues(k int, cfg ad2cp.Config) map[string][]float64 {
	nc := cfg.NCells()
	vel := make([]float64, cfg.NBeams()*nc)
	amp := make([]float64, len(vel))
	corr := make([]float64, len(vel))
	pg := make([]float64, nc)
	for j := range vel {
		vel[j] = float64(-(k*10 + j))
		amp[j] = 70
		corr[j] = 40
	}
	for j := range pg {
		pg[j] = 100
	}
	return map[string][]float64{
		"c_sound":      {float64(15100 + k)},
		"temp":         {float64(900 + k)},
		"press":        {float64(20000 + k)},
		"heading":      {18000},
		"batt_V":       {140},
		"ambig_vel":    {5000},
		"ensemble":     {float64(k + 1)},
		"vel":          vel,
		"amp":          amp,
		"corr":         corr,
		"percent_good": pg,
	}
}

// Build renders the session.
func (s Session) Build() ([]byte, error) {
	if s.Order == nil {
		s.Order = ad2cp.LittleEndian
	}
	if s.Interval <= 0 {
		s.Interval = time.Second
	}
	st := NewStream(s.Order)
	if s.WithString {
		st.Add(ad2cp.IDString, []byte("ID,\"Signature1000\",STR=\"synthetic\"\r\n\x00"))
	}
	primary, secondary := PrimaryConfig(), SecondaryConfig()
	k := 0
	for i := 0; i < s.Ensembles; i++ {
		ts := BaseTime.Add(time.Duration(i) * s.Interval)
		if _, err := st.AddBurst(Burst{Config: primary, Time: ts, Values: PrimaryValues(i, primary)}); err != nil {
			return nil, fmt.Errorf("primary burst %d: %w", i, err)
		}
		if s.WithBottom && i == 1 {
			st.Add(ad2cp.IDBottom, make([]byte, 32))
		}
		if s.Ratio > 0 && (i+1)%s.Ratio == 0 {
			if _, err := st.AddBurst(Burst{Config: secondary, Time: ts, Values: SecondaryValues(k, secondary)}); err != nil {
				return nil, fmt.Errorf("secondary burst %d: %w", k, err)
			}
			k++
		}
	}
	return st.Bytes(), nil
}

// WriteFiles materializes the default session under dir.
func WriteFiles(dir string) (string, error) {
	data, err := DefaultSession().Build()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName)
	if err := writeFileIfChanged(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func writeFileIfChanged(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
