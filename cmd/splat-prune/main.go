// Command splat-prune removes low-contribution Gaussians from 3D Gaussian
// Splatting PLY files while preserving any trailing auxiliary data.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/splatprune/internal/monitoring"
	"github.com/banshee-data/splatprune/internal/ply"
	"github.com/banshee-data/splatprune/internal/prune"
	"github.com/banshee-data/splatprune/internal/report"
	"github.com/banshee-data/splatprune/internal/version"
)

// exitUsage is returned for malformed command lines.
const exitUsage = 2

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "batch":
			return runBatch(args[1:], stdout, stderr)
		case "cache":
			return runCache(args[1:], stdout, stderr)
		case "history":
			return runHistory(args[1:], stdout, stderr)
		case "version":
			fmt.Fprintln(stdout, version.String())
			return 0
		case "help":
			printUsage(stdout)
			return 0
		}
	}
	return runPrune(args, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `splat-prune - remove low-contribution Gaussians from splat PLY files

Usage:
  splat-prune [flags] INPUT OUTPUT
  splat-prune batch [flags] -out-dir DIR [-workers N] INPUT...
  splat-prune cache stats|cleanup -cache-dir DIR [-max-age D]
  splat-prune history -history-db FILE [-n N]
  splat-prune version

Flags:
  -config FILE       JSON run configuration; flags given explicitly override it
  -keep-ratio R      fraction of points to keep, in (0, 1] (default 0.5)
  -method M          importance, opacity or random (default importance)
  -seed N            seed for the random method; 0 draws a fresh seed
  -strict-aux        fail when trailing auxiliary data does not match the header
  -cache-dir DIR     reuse outputs of deterministic runs
  -history-db FILE   record every run in a SQLite database
  -report-dir DIR    write score histograms (PNG and HTML)
  -quiet             suppress diagnostic logging
  -v                 enable debug logging

Exit status: 0 success, 1 unknown error, 2 invalid argument, 3 parse error,
4 truncated data, 5 I/O error.
`)
}

// reportError prints err with its kind and returns the matching exit code.
func reportError(w io.Writer, err error) int {
	fmt.Fprintf(w, "error [%s]: %v\n", prune.KindOf(err), err)
	return prune.ExitCode(err)
}

// parseFlags parses args into fs, returning a non-negative exit code when
// the invocation should stop.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) (int, bool) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return exitUsage, false
	}
	return 0, true
}

func runPrune(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("splat-prune", flag.ContinueOnError)
	fs.Usage = func() { printUsage(stderr) }
	flags := registerPruneFlags(fs)
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}
	defer flags.applyLogging()()

	if fs.NArg() != 2 {
		return reportError(stderr, &prune.InvalidArgumentError{
			Name: "arguments", Value: fs.Args(), Reason: "expected INPUT and OUTPUT",
		})
	}
	in, out := fs.Arg(0), fs.Arg(1)

	cfg, err := flags.resolve(fs)
	if err != nil {
		return reportError(stderr, err)
	}
	s, err := newSession(cfg, stdout)
	if err != nil {
		return reportError(stderr, err)
	}
	defer s.close()

	if err := s.pruneFile(in, out); err != nil {
		return reportError(stderr, err)
	}
	return 0
}

// pruneFile runs one input through the pipeline, then records, reports and
// summarises the result.
func (s *session) pruneFile(in, out string) error {
	started := s.clock.Now()
	res, err := s.prune(in, out)
	s.record(in, out, started, res, err)
	if err != nil {
		return err
	}

	if !res.ConformsToSchema {
		monitoring.Warnf("%s: vertex properties differ from the 14-field splat schema; decoded as if they matched", in)
	}
	if res.CacheErr != nil {
		monitoring.Warnf("%s: could not store output in cache: %v", in, res.CacheErr)
	}
	if s.reportDir != "" {
		s.writeReport(res)
	}
	s.printSummary(res)
	return nil
}

func (s *session) prune(in, out string) (*prune.Result, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	if !s.fs.Exists(in) {
		return nil, &ply.IOError{Op: "open", Path: in, Err: os.ErrNotExist}
	}
	monitoring.Debugf("pruning %s -> %s (method=%s keep_ratio=%g)", in, out, s.opts.Method, s.opts.KeepRatio)
	return s.pruner.Prune(in, out, s.opts)
}

func (s *session) writeReport(res *prune.Result) {
	if res.Scores == nil {
		monitoring.Logf("%s: served from cache, no score report", res.InputPath)
		return
	}
	name := strings.TrimSuffix(filepath.Base(res.OutputPath), filepath.Ext(res.OutputPath))
	paths, err := report.WriteFiles(s.fs, s.reportDir, name, res.Scores, res.Kept)
	if err != nil {
		monitoring.Warnf("%s: score report: %v", res.InputPath, err)
		return
	}
	monitoring.Logf("wrote %s", strings.Join(paths, ", "))
}

func (s *session) printSummary(res *prune.Result) {
	kept := 0.0
	if res.InputPoints > 0 {
		kept = 100 * float64(res.OutputPoints) / float64(res.InputPoints)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s\n", res.InputPath, res.OutputPath)
	fmt.Fprintf(&b, "  points:  %s -> %s (%.1f%% kept)\n",
		humanize.Comma(int64(res.InputPoints)), humanize.Comma(int64(res.OutputPoints)), kept)
	fmt.Fprintf(&b, "  size:    %s -> %s (ratio %.2fx, %.1f%% saved)\n",
		humanize.Bytes(uint64(res.InputBytes)), humanize.Bytes(uint64(res.OutputBytes)),
		res.CompressionRatio(), 100*res.SpaceSaved())
	if res.AuxiliaryBytes > 0 {
		fmt.Fprintf(&b, "  aux:     %s preserved\n", humanize.Bytes(uint64(res.AuxiliaryBytes)))
	}
	if res.Scores != nil {
		fmt.Fprintf(&b, "  %s\n", report.Summarize(res.Scores, res.Kept))
	}
	elapsed := res.Elapsed.Round(time.Millisecond).String()
	if res.CacheHit {
		elapsed += " (cache hit)"
	}
	fmt.Fprintf(&b, "  elapsed: %s\n", elapsed)

	s.outMu.Lock()
	defer s.outMu.Unlock()
	io.WriteString(s.out, b.String())
}
