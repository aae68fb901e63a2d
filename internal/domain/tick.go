package domain

import "time"

// Tick is one price update for an instrument.
type Tick struct {
	Symbol string    // Instrument symbol (e.g. "R_10")
	Quote  float64   // Numeric quote for indicator math
	Raw    string    // Quote exactly as the broker formatted it
	Digit  int       // Last digit of the formatted quote; -1 if not derivable
	Epoch  time.Time // Broker timestamp for the tick
}

// HasDigit reports whether a last digit could be derived from the raw quote.
func (t Tick) HasDigit() bool {
	return t.Digit >= 0 && t.Digit <= 9
}
