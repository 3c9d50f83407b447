// Package decode runs a complete decode session: open, read, scale,
// reorganize, reduce and report.
package decode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/ad2cpgate/internal/ad2cp"
	"example.com/ad2cpgate/internal/common"
	"example.com/ad2cpgate/internal/objstore"
	"example.com/ad2cpgate/internal/reorg"
	"example.com/ad2cpgate/internal/report"
)

// Job describes one input to decode.
type Job struct {
	// Input is a local path or an s3://bucket/key location.
	Input   string
	Options ad2cp.Options
	// Store serves s3:// inputs.
	Store *objstore.Store
	// Start and Stop bound the ensembles read; Stop < 0 reads to the end.
	Start, Stop int
	SkipReduce  bool
	// Hash computes the sha256 of local inputs for the report.
	Hash bool
}

// Outcome holds everything a session produced.
type Outcome struct {
	Result *ad2cp.Result
	Data   *reorg.Data
	Report *report.Report
}

// Open starts a reader on a local path or an object-store location.
func Open(ctx context.Context, input string, opts ad2cp.Options, store *objstore.Store) (*ad2cp.Reader, error) {
	if !objstore.IsURL(input) {
		return ad2cp.Open(input, opts)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: no object store configured", input)
	}
	blob, fp, err := store.Open(ctx, input)
	if err != nil {
		return nil, err
	}
	if opts.Cache != nil && opts.Cache.Dir == "" {
		// Cache files cannot live next to a remote object.
		opts.Cache = nil
	}
	return ad2cp.OpenBlob(blob, fp, opts)
}

// Run decodes job.Input. A failed reduction is recorded in the report, not
// returned.
func Run(ctx context.Context, job Job) (*Outcome, error) {
	r, err := Open(ctx, job.Input, job.Options, job.Store)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res, err := r.ReadFile(job.Start, job.Stop)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ad2cp.Scale(res.Datasets)
	data, err := reorg.Reorganize(res.Datasets)
	if err != nil {
		return nil, err
	}
	rep := report.Build(r, res, data)
	if !job.SkipReduce {
		switch err := reorg.Reduce(data); {
		case err == nil:
			rep.Reduced = len(data.Heads) > 1
		case errors.Is(err, reorg.ErrIncompatibleRates):
			common.Logf("%s: %v", job.Input, err)
			rep.ReduceError = err.Error()
		default:
			return nil, err
		}
	}
	if job.Hash && !objstore.IsURL(job.Input) {
		sum, _, err := common.Sha256OfFile(job.Input)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", job.Input, err)
		}
		rep.Sha256 = sum
	}
	return &Outcome{Result: res, Data: data, Report: rep}, nil
}

// RunEntry converts an outcome, or the error that prevented one, into a run
// log line.
func RunEntry(input string, out *Outcome, err error) common.RunEntry {
	entry := common.RunEntry{Input: input, Ts: time.Now().UTC()}
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	rep := out.Report
	entry.Sha256 = rep.Sha256
	entry.Bytes = rep.Bytes
	entry.Records = rep.Records
	entry.Ensembles = rep.Ensembles
	entry.Unknown = rep.UnknownIDs
	entry.ShortReads = rep.ShortPayloads
	entry.CacheHit = rep.CacheHit
	return entry
}
