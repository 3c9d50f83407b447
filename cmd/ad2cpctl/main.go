package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/decode"
	"example.com/ad2cpgate/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "index":
		indexCmd(os.Args[2:])
	case "read":
		readCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`ad2cpctl %s (built %s) <command> [options]

Commands:
  index   --in <file|s3://bucket/key> [--records]
  read    --in <file|s3://bucket/key> [--start N] [--stop N] [--no-reduce] [--out <data.json>]
  report  --in <file|s3://bucket/key> [--json <report.json>] [--pdf <report.pdf>]
  batch   --in <dir> --out-dir <dir> [--concurrency N] [--runlog <runs.jsonl>] [--progress] [--metrics]

Decoder options (all commands):
  --config <config.yaml> --endian auto|le|be --boundary leading|counter|period
  --burst-ids 0x15,0x18 --leading-id 0x15 --verify --mmap --rebuild-index
  --no-cache --cache-dir <dir> --cache-codec zstd|s2|lz4|none --buffer-size N
`, version, buildDate)
}

func indexCmd(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	var df decoderFlags
	df.register(fs)
	in := fs.String("in", "", "input recording")
	records := fs.Bool("records", false, "list every record")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
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
	r, err := decode.Open(context.Background(), *in, opts, store)
	if err != nil {
		fmt.Println("open:", err)
		os.Exit(1)
	}
	defer r.Close()

	idx := r.Index()
	fmt.Printf("%s: %s, %d records, %d ensembles (%s boundaries)",
		*in, common.FormatBytes(idx.Size), len(idx.Entries), r.NumEnsembles(), r.Policy().Name())
	if r.CacheHit() {
		fmt.Print(", cached index")
	}
	if idx.Truncated() {
		fmt.Print(", truncated tail")
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRECORDS\tFIRST OFFSET\tLAYOUT")
	for _, id := range idx.IDs() {
		first, _ := idx.First(id)
		layout := "-"
		if cfg, ok := r.Config(id); ok {
			layout = fmt.Sprintf("%d beams x %d cells %s %v", cfg.NBeams(), cfg.NCells(), cfg.CoordSys(), cfg.Flags.Names())
		}
		fmt.Fprintf(w, "0x%02X\t%d\t%d\t%s\n", id, idx.Count(id), first.Offset, layout)
	}
	w.Flush()

	if !*records {
		return
	}
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tID\tSIZE\tENSEMBLE")
	for _, e := range idx.Entries {
		ens := "-"
		if e.HasEns {
			ens = fmt.Sprint(e.Ens)
		}
		fmt.Fprintf(w, "%d\t0x%02X\t%d\t%s\n", e.Offset, e.ID, e.Size, ens)
	}
	w.Flush()
}

func readCmd(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var df decoderFlags
	df.register(fs)
	in := fs.String("in", "", "input recording")
	start := fs.Int("start", 0, "first ensemble")
	stop := fs.Int("stop", -1, "ensemble to stop before (negative reads to the end)")
	noReduce := fs.Bool("no-reduce", false, "keep the secondary head's own environmental channels")
	out := fs.String("out", "", "write variables and configuration as JSON")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
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
	outcome, err := decode.Run(context.Background(), decode.Job{
		Input:      *in,
		Options:    opts,
		Store:      store,
		Start:      *start,
		Stop:       *stop,
		SkipReduce: *noReduce,
	})
	if err != nil {
		fmt.Println("decode:", err)
		os.Exit(1)
	}
	printSummary(outcome.Report)
	if *out != "" {
		if err := writeVariables(outcome.Data, *out); err != nil {
			fmt.Println("write variables:", err)
			os.Exit(1)
		}
		fmt.Printf("Variables: %s\n", *out)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	var df decoderFlags
	df.register(fs)
	in := fs.String("in", "", "input recording")
	jsonOut := fs.String("json", "decode_report.json", "report JSON output")
	pdfOut := fs.String("pdf", "", "report PDF output")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
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
	outcome, err := decode.Run(context.Background(), decode.Job{
		Input:   *in,
		Options: opts,
		Store:   store,
		Stop:    -1,
		Hash:    true,
	})
	if err != nil {
		fmt.Println("decode:", err)
		os.Exit(1)
	}
	rep := outcome.Report
	if *jsonOut != "" {
		if err := report.SaveJSON(rep, *jsonOut); err != nil {
			fmt.Println("write report:", err)
			os.Exit(1)
		}
		fmt.Printf("Report JSON: %s\n", *jsonOut)
	}
	if *pdfOut != "" {
		if err := report.SavePDF(rep, *pdfOut); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
		fmt.Printf("Report PDF: %s\n", *pdfOut)
	}
	printSummary(rep)
}

func printSummary(rep *report.Report) {
	fmt.Printf("Ensembles=%d/%d records=%d truncated=%v short=%d checksum=%d duplicates=%d\n",
		rep.Ensembles, rep.Slots, rep.Records, rep.Truncated, rep.ShortPayloads, rep.ChecksumFailures, rep.Duplicates)
	if len(rep.UnknownIDs) > 0 {
		ids := make([]string, 0, len(rep.UnknownIDs))
		for id := range rep.UnknownIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("Unknown %s: %d\n", id, rep.UnknownIDs[id])
		}
	}
	for _, h := range rep.Heads {
		fmt.Printf("Head %s%s: %d ensembles, %d beams x %d cells %s\n", h.ID, h.Tag, h.Filled, h.Config.NBeams, h.Config.NCells, h.Config.CoordSys)
	}
	if rep.ReduceError != "" {
		fmt.Printf("Reduce skipped: %s\n", rep.ReduceError)
	}
}

func printMetrics(m *common.Metrics) {
	snap := m.Snapshot()
	throughputBps := snap.ThroughputBytesPerSecond()
	fmt.Printf("Metrics: duration=%s records=%d unknown=%d ensembles=%d processed=%s throughput=%.2f MB/s\n",
		snap.Duration.Round(10*time.Millisecond),
		snap.Records,
		snap.Unknown,
		snap.Ensembles,
		common.FormatBytes(snap.Bytes),
		throughputBps/1_000_000,
	)
}
