// Package signal standardizes the decision payloads passed from the generator to the ledger.
package signal

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"barreplay/internal/market"
)

// Action is the trading decision carried by a Signal.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Hold:
		return "Hold"
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction maps a case-insensitive name onto an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hold":
		return Hold, nil
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return Hold, fmt.Errorf("unknown action %q", s)
}

// Decision expresses what to do with a bar.
type Decision struct {
	Action         Action
	Fraction       float64 // portion of the relevant balance to transact, [0,1]
	ReferencePrice float64 // 0 means unset
}

// Signal is the payload of a Signal event: the decision and the bar that produced it.
type Signal struct {
	Bar      market.Bar
	Decision Decision
}

// ErrNoPrice reports a trade decision without a usable reference price.
var ErrNoPrice = errors.New("signal has no reference price")

// ValidPrice reports whether p is a finite, positive price.
func ValidPrice(p float64) bool { return p > 0 && !math.IsInf(p, 0) }

// Clamp limits v to [0,1].
func Clamp(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
