package models

import "math"

// Tick is one price update from the upstream feed. Raw quotes are reduced to
// their last decimal digit immediately after arrival; only the digit stream is
// retained by the analyzers.
type Tick struct {
	Market    string
	Quote     float64
	Timestamp int64 // server epoch seconds
}

// LastDigit extracts the final decimal digit of a quote at pip precision.
// The result is always in [0,9].
func LastDigit(quote float64) int {
	d := int(math.Floor(math.Mod(quote*10000, 10)))
	if d < 0 {
		d += 10
	}
	return d
}

// Digit returns the tick's last digit.
func (t Tick) Digit() int {
	return LastDigit(t.Quote)
}
