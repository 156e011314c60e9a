// Package market holds the bar model and the record parser feeding ingestion.
package market

import "time"

// Bar is one OHLCV interval. Bars are immutable once parsed.
type Bar struct {
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Key returns the epoch-millisecond ordering key of the bar.
func (b Bar) Key() int64 { return b.Ts.UnixMilli() }
