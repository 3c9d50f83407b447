package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/compress"
	"example.com/ad2cpgate/internal/config"
	"example.com/ad2cpgate/internal/objstore"
)

// decoderFlags are shared by every subcommand that opens a recording. Flags
// override the configuration file.
type decoderFlags struct {
	configPath string
	byteOrder  string
	boundary   string
	burstIDs   string
	leadingID  string
	verify     bool
	mmap       bool
	rebuild    bool
	noCache    bool
	cacheDir   string
	codec      string
	bufferSize int
}

func (f *decoderFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.byteOrder, "endian", "auto", "byte order: auto, le or be")
	fs.StringVar(&f.boundary, "boundary", "", "ensemble boundary policy: leading, counter or period")
	fs.StringVar(&f.burstIDs, "burst-ids", "", "comma-separated record ids to decode, e.g. 0x15,0x18")
	fs.StringVar(&f.leadingID, "leading-id", "", "record id that opens an ensemble for the leading policy")
	fs.BoolVar(&f.verify, "verify", false, "verify header and payload checksums")
	fs.BoolVar(&f.mmap, "mmap", false, "memory-map local inputs")
	fs.BoolVar(&f.rebuild, "rebuild-index", false, "ignore any cached index")
	fs.BoolVar(&f.noCache, "no-cache", false, "do not read or write index caches")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "directory for index caches (default: next to the input)")
	fs.StringVar(&f.codec, "cache-codec", "", "index cache compression: zstd, s2, lz4 or none")
	fs.IntVar(&f.bufferSize, "buffer-size", 0, "read block size in bytes")
}

func (f *decoderFlags) load() (config.Config, error) {
	if f.configPath == "" {
		return config.Default(), nil
	}
	return config.Load(f.configPath)
}

// options merges the configuration file with the command line.
func (f *decoderFlags) options(cfg config.Config) (ad2cp.Options, *objstore.Store, error) {
	if f.boundary != "" {
		cfg.Decoder.Boundary = f.boundary
	}
	if f.burstIDs != "" {
		ids, err := parseIDs(f.burstIDs)
		if err != nil {
			return ad2cp.Options{}, nil, err
		}
		cfg.Decoder.BurstIDs = ids
	}
	if f.leadingID != "" {
		ids, err := parseIDs(f.leadingID)
		if err != nil || len(ids) != 1 {
			return ad2cp.Options{}, nil, fmt.Errorf("invalid --leading-id %q", f.leadingID)
		}
		cfg.Decoder.LeadingID = ids[0]
	}
	if f.verify {
		cfg.Decoder.VerifyChecksums = true
	}
	if f.mmap {
		cfg.Decoder.Mmap = true
	}
	if f.bufferSize > 0 {
		cfg.Decoder.BufferSize = f.bufferSize
	}
	if f.noCache {
		cfg.Cache.Disabled = true
	}
	if f.cacheDir != "" {
		cfg.Cache.Dir = f.cacheDir
	}
	if f.codec != "" {
		if _, err := compress.Parse(f.codec); err != nil {
			return ad2cp.Options{}, nil, err
		}
		cfg.Cache.Codec = f.codec
	}
	opts, err := cfg.DecoderOptions()
	if err != nil {
		return ad2cp.Options{}, nil, err
	}
	opts.RebuildIndex = f.rebuild
	switch strings.ToLower(f.byteOrder) {
	case "", "auto":
	case "le", "little":
		opts.ByteOrder = ad2cp.LittleEndian
	case "be", "big":
		opts.ByteOrder = ad2cp.BigEndian
	default:
		return ad2cp.Options{}, nil, fmt.Errorf("invalid --endian %q", f.byteOrder)
	}
	var store *objstore.Store
	if cfg.Remote.Endpoint != "" {
		store, err = objstore.New(cfg.RemoteOptions())
		if err != nil {
			return ad2cp.Options{}, nil, err
		}
	}
	return opts, store, nil
}

func parseIDs(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q", part)
		}
		out = append(out, int(v))
	}
	return out, nil
}

// setupLogging tees logs into the configured directory, if any.
func setupLogging(cfg config.Config, console io.Writer) func() {
	if cfg.Logs.Directory == "" {
		return func() {}
	}
	closer, err := config.SetupLogging(cfg.Logs, "ad2cpctl", console)
	if err != nil {
		fmt.Println("setup logging:", err)
		return func() {}
	}
	return func() { closer.Close() }
}
