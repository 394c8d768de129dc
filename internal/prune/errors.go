package prune

import (
	"errors"
	"fmt"

	"github.com/banshee-data/splatprune/internal/ply"
)

// InvalidArgumentError reports a rejected pruning parameter.
type InvalidArgumentError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Name, e.Value, e.Reason)
}

// ErrorKind classifies a failure for reporting and exit status.
type ErrorKind string

const (
	KindParse           ErrorKind = "parse"
	KindTruncated       ErrorKind = "truncated"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindIO              ErrorKind = "io"
	KindUnknown         ErrorKind = "unknown"
)

// KindOf walks the error chain and returns the first recognised kind.
func KindOf(err error) ErrorKind {
	var (
		invalid   *InvalidArgumentError
		parse     *ply.ParseError
		truncated *ply.TruncatedDataError
		ioErr     *ply.IOError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return KindInvalidArgument
	case errors.As(err, &parse):
		return KindParse
	case errors.As(err, &truncated):
		return KindTruncated
	case errors.As(err, &ioErr):
		return KindIO
	default:
		return KindUnknown
	}
}

// ExitCode maps an error to a process exit status. nil maps to 0.
func ExitCode(err error) int {
	switch KindOf(err) {
	case "":
		return 0
	case KindInvalidArgument:
		return 2
	case KindParse:
		return 3
	case KindTruncated:
		return 4
	case KindIO:
		return 5
	default:
		return 1
	}
}
