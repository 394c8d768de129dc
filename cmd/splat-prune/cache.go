package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/splatprune/internal/fsutil"
	"github.com/banshee-data/splatprune/internal/plycache"
	"github.com/banshee-data/splatprune/internal/prune"
	"github.com/banshee-data/splatprune/internal/timeutil"
)

// runCache accepts its action before or after the flags:
// "cache stats -cache-dir D" and "cache -cache-dir D stats" are equivalent.
func runCache(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	dir := fs.String("cache-dir", "", "Cache directory (required)")
	maxAge := fs.Duration("max-age", plycache.DefaultMaxAge, "Entries older than this are expired")
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}
	var action string
	if fs.NArg() > 0 {
		action = fs.Arg(0)
		if code, ok := parseFlags(fs, fs.Args()[1:], stderr); !ok {
			return code
		}
	}
	if fs.NArg() > 0 {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "arguments", Value: fs.Args(), Reason: "unexpected after the action"})
	}

	if *dir == "" {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "cache-dir", Reason: "is required"})
	}
	if *maxAge <= 0 {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "max-age", Value: *maxAge, Reason: "must be positive"})
	}

	cache, err := plycache.New(fsutil.OSFileSystem{}, timeutil.RealClock{}, *dir)
	if err != nil {
		return reportError(stderr, err)
	}
	cache.SetMaxAge(*maxAge)

	switch strings.ToLower(action) {
	case "stats":
		stats, err := cache.Stats()
		if err != nil {
			return reportError(stderr, err)
		}
		fmt.Fprintf(stdout, "cache %s: %d files, %s (max age %s)\n",
			cache.Dir(), stats.FileCount, humanize.Bytes(uint64(stats.TotalBytes)), formatAge(cache.MaxAge()))
	case "cleanup":
		removed, err := cache.CleanupExpired()
		if err != nil {
			return reportError(stderr, err)
		}
		fmt.Fprintf(stdout, "cache %s: removed %d expired files\n", cache.Dir(), removed)
	default:
		return reportError(stderr, &prune.InvalidArgumentError{Name: "cache action", Value: action, Reason: "must be stats or cleanup"})
	}
	return 0
}

func formatAge(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return d.String()
}
