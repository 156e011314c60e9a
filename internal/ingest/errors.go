package ingest

import (
	"errors"
	"fmt"

	"barreplay/internal/market"
)

// IngestionError reports a load that could not complete.
type IngestionError struct {
	Op   string // open, read, parse
	Path string
	Line int
	Err  error
}

func (e *IngestionError) Error() string {
	switch {
	case e.Line > 0 && e.Path != "":
		return fmt.Sprintf("ingest %s %s line %d: %v", e.Op, e.Path, e.Line, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("ingest %s line %d: %v", e.Op, e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("ingest %s %s: %v", e.Op, e.Path, e.Err)
	default:
		return fmt.Sprintf("ingest %s: %v", e.Op, e.Err)
	}
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Rejection records a malformed record skipped under the lenient policy.
type Rejection struct {
	Line   int
	Reason string
	Err    error
}

func parseFailure(line int, err error) *IngestionError {
	return &IngestionError{Op: "parse", Line: line, Err: err}
}

func reasonOf(err error) string {
	var perr *market.ParseError
	if errors.As(err, &perr) {
		return perr.Reason()
	}
	return "unknown"
}
