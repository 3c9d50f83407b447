package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/decode"
	"example.com/ad2cpgate/internal/objstore"
	"example.com/ad2cpgate/internal/report"
)

type batchOptions struct {
	InDir       string
	OutDir      string
	Ext         string
	Concurrency int
	RunLog      string
	PDF         bool
	Decoder     ad2cp.Options
	Store       *objstore.Store
}

type batchSummary struct {
	Decoded int
	Failed  []string
}

func batchCmd(args []string) {
	fset := flag.NewFlagSet("batch", flag.ExitOnError)
	var df decoderFlags
	df.register(fset)
	inDir := fset.String("in", ".", "input directory")
	outDir := fset.String("out-dir", "out", "results directory")
	ext := fset.String("ext", ".ad2cp", "input file extension")
	concurrency := fset.Int("concurrency", 0, "parallel decode sessions (default from config)")
	runLog := fset.String("runlog", "", "append one JSON line per input (default <out-dir>/runs.jsonl)")
	withPDF := fset.Bool("pdf", false, "also write PDF reports")
	metricsFlag := fset.Bool("metrics", false, "print throughput metrics")
	progressFlag := fset.Bool("progress", false, "display progress updates")
	fset.Parse(args)

	cfg, err := df.load()
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	defer setupLogging(cfg, os.Stderr)()
	opts, store, err := df.options(cfg)
	if err != nil {
		fmt.Println("options:", err)
		os.Exit(1)
	}
	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		opts.Metrics = metrics
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	n := *concurrency
	if n <= 0 {
		n = cfg.Concurrency
	}
	sum, err := runBatch(context.Background(), batchOptions{
		InDir:       *inDir,
		OutDir:      *outDir,
		Ext:         *ext,
		Concurrency: n,
		RunLog:      *runLog,
		PDF:         *withPDF,
		Decoder:     opts,
		Store:       store,
	})
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}
	if err != nil {
		fmt.Println("batch:", err)
		os.Exit(1)
	}
	fmt.Printf("Decoded %d file(s), %d failed\n", sum.Decoded, len(sum.Failed))
	for _, f := range sum.Failed {
		fmt.Printf("  failed: %s\n", f)
	}
	if metrics != nil && *metricsFlag {
		printMetrics(metrics)
	}
	if len(sum.Failed) > 0 {
		os.Exit(1)
	}
}

// runBatch decodes every matching file under InDir. Per-file failures are
// logged and summarised; only setup and output errors abort the batch.
func runBatch(ctx context.Context, opts batchOptions) (batchSummary, error) {
	var sum batchSummary
	inputs, err := collectInputs(opts.InDir, opts.Ext)
	if err != nil {
		return sum, err
	}
	if len(inputs) == 0 {
		return sum, fmt.Errorf("no %s files under %s", opts.Ext, opts.InDir)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return sum, err
	}
	runLogPath := opts.RunLog
	if runLogPath == "" {
		runLogPath = filepath.Join(opts.OutDir, "runs.jsonl")
	}
	runLog := common.NewRunLog(runLogPath)
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, in := range inputs {
		g.Go(func() error {
			out, err := decode.Run(ctx, decode.Job{
				Input:   in,
				Options: opts.Decoder,
				Store:   opts.Store,
				Stop:    -1,
				Hash:    true,
			})
			if lerr := runLog.Append(decode.RunEntry(in, out, err)); lerr != nil {
				return fmt.Errorf("run log: %w", lerr)
			}
			if err != nil {
				common.Logf("decode %s: %v", in, err)
				mu.Lock()
				sum.Failed = append(sum.Failed, in)
				mu.Unlock()
				return nil
			}
			base := outputBase(opts.InDir, in)
			if err := report.SaveJSON(out.Report, filepath.Join(opts.OutDir, base+".report.json")); err != nil {
				return err
			}
			if opts.PDF {
				if err := report.SavePDF(out.Report, filepath.Join(opts.OutDir, base+".report.pdf")); err != nil {
					return err
				}
			}
			mu.Lock()
			sum.Decoded++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	sort.Strings(sum.Failed)
	return sum, err
}

func collectInputs(dir, ext string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// outputBase flattens a path below root into a file name stem.
func outputBase(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
}
