package ingest

import (
	"bufio"
	"io"
	"strings"
)

const maxLineBytes = 1 << 20

// record is one data line tagged with its 1-based line number in the source.
type record struct {
	line int
	text string
}

// chunk is a run of whole records; chunks never split a record.
type chunk struct {
	seq     int
	records []record
}

type lineSource struct {
	sc   *bufio.Scanner
	line int
}

func newLineSource(r io.Reader) *lineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &lineSource{sc: sc}
}

// skipHeader discards the first line. It reports false on an empty source.
func (s *lineSource) skipHeader() bool {
	if !s.sc.Scan() {
		return false
	}
	s.line++
	return true
}

// next returns the next non-blank record.
func (s *lineSource) next() (record, bool) {
	for s.sc.Scan() {
		s.line++
		text := s.sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		return record{line: s.line, text: text}, true
	}
	return record{}, false
}

// nextChunk gathers records until their combined size reaches limit bytes.
func (s *lineSource) nextChunk(seq, limit int) (chunk, bool) {
	c := chunk{seq: seq}
	size := 0
	for size < limit {
		rec, ok := s.next()
		if !ok {
			break
		}
		c.records = append(c.records, rec)
		size += len(rec.text) + 1
	}
	return c, len(c.records) > 0
}

func (s *lineSource) err() error { return s.sc.Err() }
