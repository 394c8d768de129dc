package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/splatprune/internal/monitoring"
	"github.com/banshee-data/splatprune/internal/prune"
	"github.com/banshee-data/splatprune/internal/security"
)

type batchFailure struct {
	input string
	err   error
}

func runBatch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	flags := registerPruneFlags(fs)
	outDir := fs.String("out-dir", "", "Directory for pruned_<name>.ply outputs (required)")
	workers := fs.Int("workers", 1, "Files pruned concurrently")
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}
	defer flags.applyLogging()()

	if *outDir == "" {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "out-dir", Reason: "is required"})
	}
	if fs.NArg() == 0 {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "arguments", Reason: "expected at least one INPUT"})
	}

	cfg, err := flags.resolve(fs)
	if err != nil {
		return reportError(stderr, err)
	}
	limit := cfg.GetWorkers()
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "workers" {
			limit = *workers
		}
	})
	if limit < 1 {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "workers", Value: limit, Reason: "must be at least 1"})
	}

	s, err := newSession(cfg, stdout)
	if err != nil {
		return reportError(stderr, err)
	}
	defer s.close()

	if err := s.fs.MkdirAll(*outDir, 0755); err != nil {
		return reportError(stderr, fmt.Errorf("create output directory: %w", err))
	}
	jobs, err := batchJobs(*outDir, fs.Args())
	if err != nil {
		return reportError(stderr, err)
	}

	failures, done := s.runJobs(jobs, limit)
	for _, f := range failures {
		fmt.Fprintf(stderr, "%s: ", f.input)
		reportError(stderr, f.err)
	}
	monitoring.Logf("batch: %d succeeded, %d failed, %d skipped", done, len(failures), len(jobs)-done-len(failures))
	if len(failures) > 0 {
		return prune.ExitCode(failures[0].err)
	}
	return 0
}

type batchJob struct {
	input, output string
}

// batchJobs maps each input to its output path and rejects inputs whose
// outputs would collide.
func batchJobs(outDir string, inputs []string) ([]batchJob, error) {
	jobs := make([]batchJob, 0, len(inputs))
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		out, err := security.BatchOutputPath(outDir, in)
		if err != nil {
			return nil, &prune.InvalidArgumentError{Name: "input", Value: in, Reason: err.Error()}
		}
		if prev, ok := seen[out]; ok {
			return nil, &prune.InvalidArgumentError{Name: "input", Value: in, Reason: fmt.Sprintf("writes the same output as %s", prev)}
		}
		seen[out] = in
		jobs = append(jobs, batchJob{input: in, output: out})
	}
	return jobs, nil
}

// runJobs prunes jobs with at most limit in flight. The first failure stops
// new jobs from starting; jobs already running finish. It returns every
// failure in the order observed and the number of successful jobs.
func (s *session) runJobs(jobs []batchJob, limit int) ([]batchFailure, int) {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(limit)

	var (
		mu       sync.Mutex
		failures []batchFailure
		done     int
	)
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			err := s.pruneFile(job.input, job.output)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, batchFailure{input: job.input, err: err})
				return err
			}
			done++
			return nil
		})
	}
	g.Wait()
	return failures, done
}
