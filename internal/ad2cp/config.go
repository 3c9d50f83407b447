package ad2cp

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// fixedHeaderSize is the length of the burst record part that precedes the
// optional data blocks.
const fixedHeaderSize = 76

// Offsets of configuration fields inside a burst payload.
const (
	offConfig     = 2
	offSerial     = 4
	offBeamConfig = 30
	offCellSize   = 32
	offBlanking   = 34
	offNomCorr    = 36
	offDataDesc   = 54
	offVelScale   = 58
	offPowerLevel = 59
)

// Flags is the burst configuration word. Each bit announces a status value or
// an optional data block.
type Flags uint16

const (
	FlagPressValid   Flags = 1 << 0
	FlagTempValid    Flags = 1 << 1
	FlagCompassValid Flags = 1 << 2
	FlagTiltValid    Flags = 1 << 3
	FlagVel          Flags = 1 << 5
	FlagAmp          Flags = 1 << 6
	FlagCorr         Flags = 1 << 7
	FlagAlt          Flags = 1 << 8
	FlagAltRaw       Flags = 1 << 9
	FlagAST          Flags = 1 << 10
	FlagEcho         Flags = 1 << 11
	FlagAHRS         Flags = 1 << 12
	FlagPercentGood  Flags = 1 << 13
	FlagStd          Flags = 1 << 14
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagPressValid, "press_valid"},
	{FlagTempValid, "temp_valid"},
	{FlagCompassValid, "compass_valid"},
	{FlagTiltValid, "tilt_valid"},
	{FlagVel, "vel"},
	{FlagAmp, "amp"},
	{FlagCorr, "corr"},
	{FlagAlt, "alt"},
	{FlagAltRaw, "altraw"},
	{FlagAST, "ast"},
	{FlagEcho, "echo"},
	{FlagAHRS, "ahrs"},
	{FlagPercentGood, "p_gd"},
	{FlagStd, "std"},
}

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Map expands the word into named booleans.
func (f Flags) Map() map[string]bool {
	out := make(map[string]bool, len(flagNames))
	for _, fn := range flagNames {
		out[fn.name] = f.Has(fn.flag)
	}
	return out
}

// Names lists the set flags in bit order.
func (f Flags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			out = append(out, fn.name)
		}
	}
	return out
}

var coordSystems = [4]string{"ENU", "XYZ", "BEAM", ""}

// BeamWord is the packed cell count, coordinate system and beam count.
type BeamWord uint16

func (b BeamWord) NCells() int      { return int(b & 0x3FF) }
func (b BeamWord) CoordSys() string { return coordSystems[(b>>10)&0x3] }
func (b BeamWord) NBeams() int      { return int(b >> 12) }

// Config is the layout-defining configuration of one record id.
type Config struct {
	ID         byte
	Flags      Flags
	Beam       BeamWord
	Serial     uint32
	CellSize   uint16
	Blanking   uint16
	NomCorr    uint8
	DataDesc   uint16
	VelScale   int8
	PowerLevel int8
}

func (c Config) NBeams() int      { return c.Beam.NBeams() }
func (c Config) NCells() int      { return c.Beam.NCells() }
func (c Config) CoordSys() string { return c.Beam.CoordSys() }

func decodeConfig(id byte, payload []byte, order binary.ByteOrder) Config {
	return Config{
		ID:         id,
		Flags:      Flags(order.Uint16(payload[offConfig:])),
		Beam:       BeamWord(order.Uint16(payload[offBeamConfig:])),
		Serial:     order.Uint32(payload[offSerial:]),
		CellSize:   order.Uint16(payload[offCellSize:]),
		Blanking:   order.Uint16(payload[offBlanking:]),
		NomCorr:    payload[offNomCorr],
		DataDesc:   order.Uint16(payload[offDataDesc:]),
		VelScale:   int8(payload[offVelScale]),
		PowerLevel: int8(payload[offPowerLevel]),
	}
}

// check compares the layout-defining words of a later occurrence.
func (c Config) check(payload []byte, order binary.ByteOrder, offset int64) error {
	if f := Flags(order.Uint16(payload[offConfig:])); f != c.Flags {
		return &ConfigError{ID: c.ID, Field: "config", Offset: offset, Want: fmt.Sprintf("0x%04X", uint16(c.Flags)), Got: fmt.Sprintf("0x%04X", uint16(f))}
	}
	if b := BeamWord(order.Uint16(payload[offBeamConfig:])); b != c.Beam {
		return &ConfigError{ID: c.ID, Field: "beam_config", Offset: offset, Want: fmt.Sprintf("0x%04X", uint16(c.Beam)), Got: fmt.Sprintf("0x%04X", uint16(b))}
	}
	return nil
}

func resolveConfig(src dataSource, order binary.ByteOrder, idx *Index, ids []byte) (map[byte]Config, error) {
	out := make(map[byte]Config)
	for _, id := range ids {
		e, ok := idx.First(id)
		if !ok {
			continue
		}
		if e.Size < fixedHeaderSize {
			return nil, &FormatError{Offset: e.Offset, Reason: fmt.Sprintf("record 0x%02X payload of %d bytes is shorter than the %d byte burst header", id, e.Size, fixedHeaderSize)}
		}
		payload, err := sliceExact(src, e.PayloadOffset(), fixedHeaderSize)
		if err != nil {
			return nil, fmt.Errorf("read configuration of record 0x%02X: %w", id, err)
		}
		out[id] = decodeConfig(id, payload, order)
	}
	return out, nil
}

// ResolveConfig reads the first record of every id in ids that the index
// holds and returns its configuration.
func ResolveConfig(b Blob, order binary.ByteOrder, idx *Index, ids []byte) (map[byte]Config, error) {
	return resolveConfig(newBlockSource(b, 0), order, idx, ids)
}

func sortedIDs(m map[byte]Config) []byte {
	ids := make([]byte, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
