package ingest

import (
	"fmt"
	"runtime"
)

// Policy selects how records are distributed to parser workers.
type Policy string

const (
	// Chunked groups whole lines into chunks and parses each chunk on the task pool.
	Chunked Policy = "chunked"
	// Queued streams single records through a bounded queue to parser workers.
	Queued Policy = "queued"
)

// ErrorPolicy decides what a malformed record does to the load.
type ErrorPolicy string

const (
	// FailFast aborts the whole load on the first malformed record.
	FailFast ErrorPolicy = "fail_fast"
	// Lenient skips malformed records and counts them.
	Lenient ErrorPolicy = "lenient"
)

const (
	defaultChunkBytes    = 1 << 20
	defaultQueueCapacity = 1024
	maxRejected          = 100
)

// Config controls the ingestion pipeline.
type Config struct {
	Workers       int
	Policy        Policy
	OnError       ErrorPolicy
	ChunkBytes    int
	QueueCapacity int
}

// WithDefaults fills zero fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Policy == "" {
		c.Policy = Chunked
	}
	if c.OnError == "" {
		c.OnError = FailFast
	}
	if c.ChunkBytes == 0 {
		c.ChunkBytes = defaultChunkBytes
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("invalid ingest config: Workers must be > 0")
	}
	switch c.Policy {
	case Chunked, Queued:
	default:
		return fmt.Errorf("invalid ingest config: unknown policy %q", c.Policy)
	}
	switch c.OnError {
	case FailFast, Lenient:
	default:
		return fmt.Errorf("invalid ingest config: unknown error policy %q", c.OnError)
	}
	if c.ChunkBytes <= 0 {
		return fmt.Errorf("invalid ingest config: ChunkBytes must be > 0")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("invalid ingest config: QueueCapacity must be > 0")
	}
	return nil
}
