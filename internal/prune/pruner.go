package prune

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/ply"
	"github.com/banshee-data/splatprune/internal/plycache"
	"github.com/banshee-data/splatprune/internal/timeutil"
)

// cacheFormat is mixed into cache keys; bump it when output bytes change.
const cacheFormat = "splat-prune/2"

// Options configures one prune run.
type Options struct {
	KeepRatio       float64
	Method          Method
	Params          ScoreParams
	Seed            uint64
	StrictAuxiliary bool
}

// DefaultOptions keeps half of the points by importance.
func DefaultOptions() Options {
	return Options{
		KeepRatio: 0.5,
		Method:    MethodImportance,
		Params:    DefaultScoreParams(),
	}
}

// Validate checks every parameter without touching the filesystem.
func (o Options) Validate() error {
	if err := ValidateKeepRatio(o.KeepRatio); err != nil {
		return err
	}
	if _, err := ParseMethod(string(o.Method)); err != nil {
		return err
	}
	if o.Method == MethodImportance {
		return o.Params.Validate()
	}
	return nil
}

// Deterministic reports whether two runs over the same input produce the
// same output bytes.
func (o Options) Deterministic() bool {
	return o.Method != MethodRandom || o.Seed != 0
}

func (o Options) cacheKey(input []byte) string {
	parts := []string{
		cacheFormat,
		string(o.Method),
		strconv.FormatFloat(o.KeepRatio, 'g', -1, 64),
		strconv.FormatBool(o.StrictAuxiliary),
	}
	switch o.Method {
	case MethodImportance:
		for _, v := range []float64{o.Params.OpacityWeight, o.Params.ScaleWeight, o.Params.ColorWeight, o.Params.VolumePower} {
			parts = append(parts, strconv.FormatFloat(v, 'g', -1, 64))
		}
	case MethodRandom:
		parts = append(parts, strconv.FormatUint(o.Seed, 10))
	}
	return plycache.Key(input, parts...)
}

// Result describes a completed run.
type Result struct {
	InputPath      string
	OutputPath     string
	InputPoints    int
	OutputPoints   int
	InputBytes     int64
	OutputBytes    int64
	AuxiliaryBytes int
	Elapsed        time.Duration
	CacheHit       bool

	// ConformsToSchema is false when the input declared a vertex layout
	// other than the fixed 14-field record. Decoding assumed it anyway.
	ConformsToSchema bool

	// Scores and Kept are nil on a cache hit.
	Scores []float64
	Kept   []int

	// CacheErr records a failed cache write. The output is still complete.
	CacheErr error
}

// CompressionRatio is input size over output size.
func (r *Result) CompressionRatio() float64 {
	if r.OutputBytes == 0 {
		return 0
	}
	return float64(r.InputBytes) / float64(r.OutputBytes)
}

// SpaceSaved is the fraction of input bytes removed.
func (r *Result) SpaceSaved() float64 {
	if r.InputBytes == 0 {
		return 0
	}
	return 1 - float64(r.OutputBytes)/float64(r.InputBytes)
}

// Pruner runs the read, score, select and write pipeline against a
// FileSystem. It holds no per-run state and may be shared between
// goroutines.
type Pruner struct {
	fs    fsutil.FileSystem
	clock timeutil.Clock
	cache *plycache.Manager
}

// NewPruner returns a Pruner. A nil clock uses the real clock.
func NewPruner(fsys fsutil.FileSystem, clock timeutil.Clock) *Pruner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Pruner{fs: fsys, clock: clock}
}

// WithCache enables output caching for deterministic runs.
func (p *Pruner) WithCache(c *plycache.Manager) *Pruner {
	p.cache = c
	return p
}

// Prune reads in, keeps the top fraction of its points and writes out.
// No file appears at out unless the whole run succeeds.
func (p *Pruner) Prune(in, out string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := p.clock.Now()

	if p.cache != nil && opts.Deterministic() {
		return p.pruneCached(in, out, opts, start)
	}

	file, err := ply.ReadFile(p.fs, in, ply.ReadOptions{StrictAuxiliary: opts.StrictAuxiliary})
	if err != nil {
		return nil, err
	}
	inputBytes, err := p.size(in)
	if err != nil {
		return nil, err
	}

	res, err := p.run(file, opts)
	if err != nil {
		return nil, err
	}
	n, err := ply.WriteFile(p.fs, out, res.Points, file.Header.Auxiliary, file.Auxiliary)
	if err != nil {
		return nil, err
	}

	return p.result(in, out, file, res, inputBytes, n, start), nil
}

func (p *Pruner) pruneCached(in, out string, opts Options, start time.Time) (*Result, error) {
	input, err := p.fs.ReadFile(in)
	if err != nil {
		return nil, &ply.IOError{Op: "read", Path: in, Err: err}
	}
	key := opts.cacheKey(input)

	if cached, ok := p.cache.Load(key); ok {
		if r, err := p.fromCache(in, out, input, cached, start); err == nil {
			return r, nil
		}
	}

	file, err := ply.DecodeBytes(input, ply.ReadOptions{StrictAuxiliary: opts.StrictAuxiliary})
	if err != nil {
		return nil, addPath(err, in)
	}
	res, err := p.run(file, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := ply.Encode(&buf, res.Points, file.Header.Auxiliary, file.Auxiliary); err != nil {
		return nil, &ply.IOError{Op: "encode", Path: out, Err: err}
	}
	n, err := p.writeBytes(out, buf.Bytes())
	if err != nil {
		return nil, err
	}

	r := p.result(in, out, file, res, int64(len(input)), n, start)
	r.CacheErr = p.cache.Save(key, buf.Bytes())
	return r, nil
}

// fromCache serves a run from a cached output. A cached file that no longer
// parses is reported as an error so the caller recomputes.
func (p *Pruner) fromCache(in, out string, input, cached []byte, start time.Time) (*Result, error) {
	inHeader, err := ply.ParseHeader(bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	outHeader, err := ply.ParseHeader(bytes.NewReader(cached))
	if err != nil {
		return nil, err
	}
	n, err := p.writeBytes(out, cached)
	if err != nil {
		return nil, err
	}
	aux := int64(len(cached)) - outHeader.DataOffset - outHeader.PointDataSize()
	return &Result{
		InputPath:        in,
		OutputPath:       out,
		InputPoints:      inHeader.VertexCount,
		OutputPoints:     outHeader.VertexCount,
		InputBytes:       int64(len(input)),
		OutputBytes:      n,
		AuxiliaryBytes:   int(max(aux, 0)),
		Elapsed:          p.clock.Since(start),
		CacheHit:         true,
		ConformsToSchema: inHeader.ConformsToSchema(),
	}, nil
}

func (p *Pruner) run(file *ply.File, opts Options) (*Selection, error) {
	return Select(file.Points, SelectOptions{
		KeepRatio: opts.KeepRatio,
		Method:    opts.Method,
		Params:    opts.Params,
		Seed:      opts.Seed,
	})
}

func (p *Pruner) result(in, out string, file *ply.File, sel *Selection, inputBytes, outputBytes int64, start time.Time) *Result {
	return &Result{
		InputPath:        in,
		OutputPath:       out,
		InputPoints:      file.Points.Len(),
		OutputPoints:     sel.Points.Len(),
		InputBytes:       inputBytes,
		OutputBytes:      outputBytes,
		AuxiliaryBytes:   len(file.Auxiliary),
		Elapsed:          p.clock.Since(start),
		ConformsToSchema: file.Header.ConformsToSchema(),
		Scores:           sel.Scores,
		Kept:             sel.Indices,
	}
}

func (p *Pruner) writeBytes(path string, data []byte) (int64, error) {
	n, err := fsutil.WriteAtomic(p.fs, path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return 0, &ply.IOError{Op: "write", Path: path, Err: err}
	}
	return n, nil
}

func (p *Pruner) size(path string) (int64, error) {
	info, err := p.fs.Stat(path)
	if err != nil {
		return 0, &ply.IOError{Op: "stat", Path: path, Err: err}
	}
	return info.Size(), nil
}

func addPath(err error, path string) error {
	if ioErr, ok := err.(*ply.IOError); ok && ioErr.Path == "" {
		ioErr.Path = path
	}
	return err
}
