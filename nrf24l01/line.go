package nrf24l01

import "time"

// LineMode configures the direction of a digital line.
type LineMode uint8

const (
	LineIn   LineMode = iota // Input.
	LineOut                  // Output, level unchanged.
	LineLow                  // Output driven low.
	LineHigh                 // Output driven high.
)

// Line is a digital I/O line such as the CE pin.
type Line interface {
	SetMode(mode LineMode) error
	Set(level bool) error
	Get() (bool, error)
}

// Edge selects the transition an IRQLine reports.
type Edge uint8

const (
	RisingEdge Edge = iota + 1
	FallingEdge
)

// IRQLine is a Line that can report edges, used for the chip's active low
// IRQ output.
type IRQLine interface {
	Line
	// Watch calls handler on every edge until Unwatch is called. The
	// handler may be called from any goroutine.
	Watch(edge Edge, handler func()) error
	// Unwatch stops edge reporting. It must not wait for a handler call
	// in progress to return.
	Unwatch() error
}

// MinPulseWidth is the minimum time CE must be held high to start a
// transmission.
const MinPulseWidth = 10 * time.Microsecond

// activeWait spins for at least d without sleeping. Used for delays below
// scheduler granularity, where time.Sleep would wait orders of magnitude
// longer than asked.
func activeWait(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
