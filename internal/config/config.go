// Package config loads the YAML configuration shared by ad2cpctl and ad2cpd.
package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/compress"
	"example.com/ad2cpgate/internal/objstore"
)

type LogConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type DecoderConfig struct {
	BurstIDs        []int  `yaml:"burstIds"`
	Boundary        string `yaml:"boundary"`
	LeadingID       int    `yaml:"leadingId"`
	VerifyChecksums bool   `yaml:"verifyChecksums"`
	BufferSize      int    `yaml:"bufferSize"`
	Mmap            bool   `yaml:"mmap"`
}

type CacheConfig struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
	Codec    string `yaml:"codec"`
}

type RemoteConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
	Retries   int    `yaml:"retries"`
}

type Config struct {
	Port        int           `yaml:"port"`
	StorageDir  string        `yaml:"storageDir"`
	Concurrency int           `yaml:"concurrency"`
	Decoder     DecoderConfig `yaml:"decoder"`
	Cache       CacheConfig   `yaml:"cache"`
	Remote      RemoteConfig  `yaml:"remote"`
	Logs        LogConfig     `yaml:"logs"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads path and fills unset values. Relative paths are taken relative
// to the configuration file when that location exists.
func Load(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	cfg.Cache.Dir = resolvePath(cfg.Cache.Dir)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if len(cfg.Decoder.BurstIDs) == 0 {
		for _, id := range ad2cp.DefaultBurstIDs {
			cfg.Decoder.BurstIDs = append(cfg.Decoder.BurstIDs, int(id))
		}
	}
	if cfg.Decoder.Boundary == "" {
		cfg.Decoder.Boundary = "leading"
	}
	if cfg.Decoder.LeadingID == 0 {
		cfg.Decoder.LeadingID = int(ad2cp.IDBurst)
	}
	if cfg.Cache.Codec == "" {
		cfg.Cache.Codec = compress.Zstd.String()
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
}

// Validate checks the values that cannot be defaulted.
func (cfg Config) Validate() error {
	if _, err := cfg.burstIDs(); err != nil {
		return err
	}
	if cfg.Decoder.LeadingID < 0 || cfg.Decoder.LeadingID > 0xFF {
		return fmt.Errorf("decoder.leadingId %d out of range", cfg.Decoder.LeadingID)
	}
	if _, err := compress.Parse(cfg.Cache.Codec); err != nil {
		return fmt.Errorf("cache.codec: %w", err)
	}
	return nil
}

func (cfg Config) burstIDs() ([]byte, error) {
	out := make([]byte, 0, len(cfg.Decoder.BurstIDs))
	for _, id := range cfg.Decoder.BurstIDs {
		if id < 0 || id > 0xFF {
			return nil, fmt.Errorf("decoder.burstIds: 0x%X is not a record id", id)
		}
		out = append(out, byte(id))
	}
	return out, nil
}

// DecoderOptions translates the decoder and cache sections into read options.
func (cfg Config) DecoderOptions() (ad2cp.Options, error) {
	ids, err := cfg.burstIDs()
	if err != nil {
		return ad2cp.Options{}, err
	}
	policy, err := ad2cp.PolicyByName(cfg.Decoder.Boundary, byte(cfg.Decoder.LeadingID), ids)
	if err != nil {
		return ad2cp.Options{}, err
	}
	opts := ad2cp.Options{
		BurstIDs:        ids,
		Policy:          policy,
		VerifyChecksums: cfg.Decoder.VerifyChecksums,
		BufferSize:      cfg.Decoder.BufferSize,
		Mmap:            cfg.Decoder.Mmap,
	}
	if !cfg.Cache.Disabled {
		codec, err := compress.Parse(cfg.Cache.Codec)
		if err != nil {
			return ad2cp.Options{}, fmt.Errorf("cache.codec: %w", err)
		}
		opts.Cache = &ad2cp.IndexCache{Dir: cfg.Cache.Dir, Codec: codec}
	}
	return opts, nil
}

// RemoteOptions returns the object-store connection settings.
func (cfg Config) RemoteOptions() objstore.Options {
	r := cfg.Remote
	return objstore.Options{
		Endpoint:  r.Endpoint,
		AccessKey: r.AccessKey,
		SecretKey: r.SecretKey,
		Secure:    r.Secure,
		Region:    r.Region,
		Retries:   r.Retries,
	}
}

// SetupLogging tees log output into a rotating file named name under the
// configured directory. It returns the rotator so callers can close it.
func SetupLogging(cfg LogConfig, name string, console io.Writer) (io.Closer, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("no log directory configured")
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	if console == nil {
		console = os.Stderr
	}
	out := io.MultiWriter(console, rotator)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(out)
	return rotator, nil
}
