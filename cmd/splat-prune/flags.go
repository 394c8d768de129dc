package main

import (
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/splatprune/internal/config"
	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/monitoring"
	"github.com/banshee-data/splatprune/internal/plycache"
	"github.com/banshee-data/splatprune/internal/prune"
	"github.com/banshee-data/splatprune/internal/rundb"
	"github.com/banshee-data/splatprune/internal/timeutil"
)

// pruneFlags are shared by the prune and batch commands. Values only
// override the config file when given explicitly on the command line.
type pruneFlags struct {
	configPath *string
	keepRatio  *float64
	method     *string
	seed       *uint64
	strictAux  *bool
	cacheDir   *string
	historyDB  *string
	reportDir  *string
	quiet      *bool
	verbose    *bool
}

func registerPruneFlags(fs *flag.FlagSet) *pruneFlags {
	return &pruneFlags{
		configPath: fs.String("config", "", "JSON run configuration (see config/prune.defaults.json)"),
		keepRatio:  fs.Float64("keep-ratio", 0.5, "Fraction of points to keep, in (0, 1]"),
		method:     fs.String("method", string(prune.MethodImportance), "Ranking method: importance, opacity or random"),
		seed:       fs.Uint64("seed", 0, "Seed for the random method (0 draws a fresh seed)"),
		strictAux:  fs.Bool("strict-aux", false, "Fail when trailing auxiliary data does not match the header"),
		cacheDir:   fs.String("cache-dir", "", "Reuse outputs of deterministic runs from this directory"),
		historyDB:  fs.String("history-db", "", "Record every run in this SQLite database"),
		reportDir:  fs.String("report-dir", "", "Write score histograms (PNG and HTML) to this directory"),
		quiet:      fs.Bool("quiet", false, "Suppress diagnostic logging"),
		verbose:    fs.Bool("v", false, "Enable debug logging"),
	}
}

// resolve loads the config file, if any, and applies explicitly set flags
// on top of it.
func (f *pruneFlags) resolve(fs *flag.FlagSet) (*config.PruneConfig, error) {
	cfg := config.EmptyPruneConfig()
	if *f.configPath != "" {
		loaded, err := config.LoadPruneConfig(*f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "keep-ratio":
			cfg.KeepRatio = f.keepRatio
		case "method":
			cfg.Method = f.method
		case "seed":
			cfg.Seed = f.seed
		case "strict-aux":
			cfg.StrictAuxiliary = f.strictAux
		case "cache-dir":
			cfg.CacheDir = f.cacheDir
		case "history-db":
			cfg.HistoryDB = f.historyDB
		case "report-dir":
			cfg.ReportDir = f.reportDir
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyLogging configures monitoring for this invocation and returns a
// function restoring the previous logger.
func (f *pruneFlags) applyLogging() func() {
	original := monitoring.Logf
	if *f.quiet {
		monitoring.SetLogger(nil)
	}
	monitoring.SetVerbose(*f.verbose && !*f.quiet)
	return func() {
		monitoring.Logf = original
		monitoring.SetVerbose(false)
	}
}

// session holds what a prune or batch invocation shares across files.
type session struct {
	fs        fsutil.FileSystem
	clock     timeutil.Clock
	pruner    *prune.Pruner
	opts      prune.Options
	history   *rundb.DB
	reportDir string

	outMu sync.Mutex
	out   io.Writer
}

func newSession(cfg *config.PruneConfig, out io.Writer) (*session, error) {
	s := &session{
		fs:        fsutil.OSFileSystem{},
		clock:     timeutil.RealClock{},
		opts:      cfg.Options(),
		reportDir: cfg.GetReportDir(),
		out:       out,
	}
	s.pruner = prune.NewPruner(s.fs, s.clock)

	if dir := cfg.GetCacheDir(); dir != "" {
		cache, err := plycache.New(s.fs, s.clock, dir)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		cache.SetMaxAge(cfg.GetCacheMaxAge())
		s.pruner.WithCache(cache)
		monitoring.Debugf("using cache %s (max age %s)", dir, cache.MaxAge())
	}

	if path := cfg.GetHistoryDB(); path != "" {
		db, err := rundb.Open(path)
		if err != nil {
			return nil, err
		}
		s.history = db
	}
	return s, nil
}

func (s *session) close() {
	if s.history != nil {
		s.history.Close()
	}
}

// record stores one run in the history database. Failing to record is
// logged and does not fail the run.
func (s *session) record(in, out string, started time.Time, res *prune.Result, runErr error) {
	if s.history == nil {
		return
	}
	run := rundb.Run{
		StartedAt:  started,
		InputPath:  in,
		OutputPath: out,
		Method:     string(s.opts.Method),
		KeepRatio:  s.opts.KeepRatio,
		Seed:       s.opts.Seed,
	}
	if res != nil {
		run.InputPoints = res.InputPoints
		run.OutputPoints = res.OutputPoints
		run.InputBytes = res.InputBytes
		run.OutputBytes = res.OutputBytes
		run.Elapsed = res.Elapsed
		run.CacheHit = res.CacheHit
	}
	if runErr != nil {
		run.ErrorKind = string(prune.KindOf(runErr))
		run.ErrorMessage = runErr.Error()
	}
	if _, err := s.history.RecordRun(run); err != nil {
		monitoring.Warnf("failed to record run for %s: %v", in, err)
	}
}
