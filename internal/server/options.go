package server

import (
	"os"
	"path/filepath"
	"runtime"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/objstore"
)

// Options configures server creation.
type Options struct {
	StorageDir  string
	Concurrency int
	// Decoder is the base read configuration for every request. A cache
	// without a directory is placed under StorageDir.
	Decoder ad2cp.Options
	// Store serves s3:// inputs; nil rejects them.
	Store *objstore.Store
	// RunLog, when set, receives one line per decoded input.
	RunLog string
}

func (o Options) normalized() (Options, error) {
	if o.StorageDir == "" {
		o.StorageDir = os.TempDir()
	}
	if err := os.MkdirAll(o.StorageDir, 0o755); err != nil {
		return o, err
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.NumCPU()
	}
	if o.Decoder.Cache != nil && o.Decoder.Cache.Dir == "" {
		cache := *o.Decoder.Cache
		cache.Dir = filepath.Join(o.StorageDir, "index")
		o.Decoder.Cache = &cache
	}
	return o, nil
}
