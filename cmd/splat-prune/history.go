package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/splatprune/internal/prune"
	"github.com/banshee-data/splatprune/internal/rundb"
)

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	dbPath := fs.String("history-db", "", "Run history database (required)")
	limit := fs.Int("n", 20, "Number of runs to show")
	if code, ok := parseFlags(fs, args, stderr); !ok {
		return code
	}
	if *dbPath == "" {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "history-db", Reason: "is required"})
	}
	if *limit < 1 {
		return reportError(stderr, &prune.InvalidArgumentError{Name: "n", Value: *limit, Reason: "must be at least 1"})
	}

	db, err := rundb.Open(*dbPath)
	if err != nil {
		return reportError(stderr, err)
	}
	defer db.Close()

	runs, err := db.RecentRuns(*limit)
	if err != nil {
		return reportError(stderr, err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs recorded")
		return 0
	}
	writeRuns(stdout, runs, time.Now())
	return 0
}

func writeRuns(w io.Writer, runs []rundb.Run, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMETHOD\tKEEP\tPOINTS\tSIZE\tELAPSED\tSTATUS\tINPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			r.Method,
			r.KeepRatio,
			fmt.Sprintf("%s/%s", humanize.Comma(int64(r.OutputPoints)), humanize.Comma(int64(r.InputPoints))),
			humanize.Bytes(uint64(r.OutputBytes)),
			r.Elapsed,
			runStatus(r),
			r.InputPath,
		)
	}
	tw.Flush()
}

func runStatus(r rundb.Run) string {
	switch {
	case r.Failed():
		return "error [" + r.ErrorKind + "]"
	case r.CacheHit:
		return "ok (cache)"
	default:
		return "ok"
	}
}
