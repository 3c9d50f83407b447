package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/samples"
)

func main() {
	outDir := flag.String("out", ".", "output directory for the generated capture")
	name := flag.String("name", samples.FileName, "output file name")
	ensembles := flag.Int("ensembles", 8, "primary bursts to write")
	ratio := flag.Int("ratio", 2, "primary bursts per secondary burst (0 disables the secondary head)")
	interval := flag.Duration("interval", time.Second, "time between primary bursts")
	endian := flag.String("endian", "le", "byte order: le or be")
	flag.Parse()

	session, err := newSession(*ensembles, *ratio, *interval, *endian)
	if err != nil {
		log.Fatal(err)
	}
	data, err := session.Build()
	if err != nil {
		log.Fatalf("generate sample: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("output dir: %v", err)
	}
	path := filepath.Join(*outDir, *name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("write sample: %v", err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
}

func newSession(ensembles, ratio int, interval time.Duration, endian string) (samples.Session, error) {
	session := samples.DefaultSession()
	if ensembles <= 0 {
		return session, fmt.Errorf("--ensembles must be positive, got %d", ensembles)
	}
	if ratio < 0 {
		return session, fmt.Errorf("--ratio must not be negative, got %d", ratio)
	}
	session.Ensembles = ensembles
	session.Ratio = ratio
	session.Interval = interval
	switch endian {
	case "le":
		session.Order = ad2cp.LittleEndian
	case "be":
		session.Order = ad2cp.BigEndian
	default:
		return session, fmt.Errorf("invalid --endian %q", endian)
	}
	return session, nil
}
