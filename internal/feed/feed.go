// Package feed maintains a bounded rolling history of recent ticks for one
// instrument. It is a leaf component: ticks are validated before they reach
// Push, and the trade cycle never mutates the history.
package feed

import "derivbot/internal/domain"

// History is a bounded, newest-first tick window. The window size is the
// active strategy's longest lookback; inserting into a full window drops the
// oldest entry.
type History struct {
	window int
	ticks  []domain.Tick
}

// New creates a history bounded to the given window. A non-positive window
// defaults to 1.
func New(window int) *History {
	if window <= 0 {
		window = 1
	}
	return &History{
		window: window,
		ticks:  make([]domain.Tick, 0, window),
	}
}

// Push prepends a new observation, evicting the oldest once the window is
// full.
func (h *History) Push(t domain.Tick) {
	h.ticks = append([]domain.Tick{t}, h.ticks...)
	if len(h.ticks) > h.window {
		h.ticks = h.ticks[:h.window]
	}
}

// Snapshot returns a copy of the current window, newest first. The copy is
// safe to hold across further pushes.
func (h *History) Snapshot() []domain.Tick {
	out := make([]domain.Tick, len(h.ticks))
	copy(out, h.ticks)
	return out
}

// Quotes returns the numeric quotes, newest first.
func (h *History) Quotes() []float64 {
	out := make([]float64, len(h.ticks))
	for i, t := range h.ticks {
		out[i] = t.Quote
	}
	return out
}

// Digits returns the last digits of the formatted quotes, newest first,
// skipping ticks without a derivable digit.
func (h *History) Digits() []int {
	out := make([]int, 0, len(h.ticks))
	for _, t := range h.ticks {
		if t.HasDigit() {
			out = append(out, t.Digit)
		}
	}
	return out
}

// HasEnough reports whether at least n ticks are held.
func (h *History) HasEnough(n int) bool {
	return len(h.ticks) >= n
}

// Len returns the number of ticks currently held.
func (h *History) Len() int {
	return len(h.ticks)
}

// Window returns the configured window size.
func (h *History) Window() int {
	return h.window
}
