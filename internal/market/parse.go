package market

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Delimiter separates fields of a raw record.
const Delimiter = ","

// recordFields is the minimum field count: ignored, epoch millis, open, high, low, close, volume.
const recordFields = 7

var (
	// ErrMalformed marks a record whose numeric field could not be parsed.
	ErrMalformed = errors.New("malformed record")
	// ErrShortRecord marks a record with fewer fields than required.
	ErrShortRecord = errors.New("short record")
)

// ParseError describes why a single record was rejected.
type ParseError struct {
	Kind   error // ErrMalformed or ErrShortRecord
	Field  string
	Value  string
	Fields int
}

func (e *ParseError) Error() string {
	if errors.Is(e.Kind, ErrShortRecord) {
		return fmt.Sprintf("%v: got %d fields, want %d", e.Kind, e.Fields, recordFields)
	}
	return fmt.Sprintf("%v: field %s=%q", e.Kind, e.Field, e.Value)
}

// Unwrap exposes the kind so callers can use errors.Is.
func (e *ParseError) Unwrap() error { return e.Kind }

// Reason is a short label usable as a metric dimension.
func (e *ParseError) Reason() string {
	if errors.Is(e.Kind, ErrShortRecord) {
		return "short"
	}
	return "malformed"
}

var numericFields = [...]string{"open", "high", "low", "close", "volume"}

// ParseRecord converts one delimited record into a Bar.
// It has no side effects and is safe for concurrent use.
func ParseRecord(line string) (Bar, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, Delimiter)
	if len(parts) < recordFields {
		return Bar{}, &ParseError{Kind: ErrShortRecord, Fields: len(parts)}
	}

	ms, err := parseNumber(parts[1])
	if err == nil && !validMillis(ms) {
		err = fmt.Errorf("timestamp %q outside integral millisecond range", parts[1])
	}
	if err != nil {
		return Bar{}, &ParseError{Kind: ErrMalformed, Field: "timestamp", Value: parts[1]}
	}

	var values [len(numericFields)]float64
	for i, name := range numericFields {
		raw := parts[2+i]
		v, err := parseNumber(raw)
		if err != nil {
			return Bar{}, &ParseError{Kind: ErrMalformed, Field: name, Value: raw}
		}
		values[i] = v
	}

	return Bar{
		Ts:     time.UnixMilli(int64(ms)).UTC(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// validMillis accepts whole numbers representable as int64 milliseconds.
func validMillis(ms float64) bool {
	return ms == math.Trunc(ms) && ms >= math.MinInt64 && ms < math.MaxInt64
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", raw)
	}
	return v, nil
}
