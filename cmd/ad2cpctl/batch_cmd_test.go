package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/report"
	"example.com/ad2cpgate/internal/samples"
)

func TestRunBatchGeneratesOutputs(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "inputs")
	nested := filepath.Join(inputDir, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if _, err := samples.WriteFiles(inputDir); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	be := samples.DefaultSession()
	be.Order = ad2cp.BigEndian
	data, err := be.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "beta.ad2cp"), data, 0o644); err != nil {
		t.Fatalf("WriteFile beta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "broken.ad2cp"), []byte("not a capture"), 0o644); err != nil {
		t.Fatalf("WriteFile broken: %v", err)
	}
	outDir := filepath.Join(root, "out")

	sum, err := runBatch(context.Background(), batchOptions{
		InDir:       inputDir,
		OutDir:      outDir,
		Ext:         ".ad2cp",
		Concurrency: 2,
		PDF:         true,
		Decoder:     ad2cp.Options{Cache: &ad2cp.IndexCache{Dir: filepath.Join(root, "cache")}},
	})
	if err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if sum.Decoded != 2 {
		t.Fatalf("decoded %d files, want 2", sum.Decoded)
	}
	if len(sum.Failed) != 1 || filepath.Base(sum.Failed[0]) != "broken.ad2cp" {
		t.Fatalf("unexpected failures: %v", sum.Failed)
	}

	rep, err := report.LoadJSON(filepath.Join(outDir, "nested_beta.report.json"))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if rep.ByteOrder != "BigEndian" || rep.Ensembles != 8 {
		t.Fatalf("unexpected report: order=%s ensembles=%d", rep.ByteOrder, rep.Ensembles)
	}
	for _, name := range []string{"sample.report.json", "sample.report.pdf", "nested_beta.report.pdf"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	entries, err := common.ReadRunLog(filepath.Join(outDir, "runs.jsonl"))
	if err != nil {
		t.Fatalf("ReadRunLog: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("run log has %d entries, want 3", len(entries))
	}
	failed := 0
	for _, e := range entries {
		if e.Error != "" {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("run log records %d failures, want 1", failed)
	}
}

func TestRunBatchEmptyDir(t *testing.T) {
	_, err := runBatch(context.Background(), batchOptions{InDir: t.TempDir(), OutDir: t.TempDir(), Ext: ".ad2cp"})
	if err == nil {
		t.Fatal("expected an error for an empty input directory")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("0x15, 24,0x16")
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 0x15 || ids[1] != 0x18 || ids[2] != 0x16 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, err := parseIDs("0x1FF"); err == nil {
		t.Fatal("expected an error for an out-of-range id")
	}
}

func TestOutputBase(t *testing.T) {
	if got := outputBase("/data", "/data/a/b/cap.ad2cp"); got != "a_b_cap" {
		t.Fatalf("outputBase = %q", got)
	}
}
