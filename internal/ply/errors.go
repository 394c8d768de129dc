package ply

import "fmt"

// ParseError reports a malformed or unsupported header.
type ParseError struct {
	Line   int    // 1-based header line, 0 when not tied to a line
	Text   string // offending line, if any
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("ply header line %d %q: %s", e.Line, e.Text, e.Reason)
	}
	return "ply: " + e.Reason
}

// TruncatedDataError reports that the file holds fewer point bytes than the
// header declares.
type TruncatedDataError struct {
	Want int64
	Got  int64
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("ply: point data truncated: header declares %d bytes, file has %d", e.Want, e.Got)
}

// IOError wraps a filesystem failure while reading or writing a PLY file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("ply: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ply: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
