// Package host connects the nrf24l01 driver to Linux single board computers
// through periph.io.
package host

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soypat/nrf24/nrf24l01"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	periphhost "periph.io/x/host/v3"
)

// MaxSPIFrequency is the fastest SPI clock the nRF24L01(+) supports.
const MaxSPIFrequency = 10 * physic.MegaHertz

// Init loads the periph.io host drivers. It must be called before opening
// SPI ports or GPIO pins by name.
func Init() error {
	_, err := periphhost.Init()
	return err
}

// Open connects to the transceiver on port using SPI mode 0, 8 bit words.
// A zero freq selects MaxSPIFrequency. The returned connection frames chip
// select on every transfer and can be passed to nrf24l01.New as the bus.
func Open(port spi.Port, freq physic.Frequency) (spi.Conn, error) {
	if freq == 0 || freq > MaxSPIFrequency {
		freq = MaxSPIFrequency
	}
	conn, err := port.Connect(freq, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connect SPI: %w", err)
	}
	return conn, nil
}

// Line adapts a periph.io GPIO pin to nrf24l01.Line and nrf24l01.IRQLine.
type Line struct {
	pin gpio.PinIO
	// Poll bounds how long the edge watcher blocks in WaitForEdge before
	// checking for Unwatch.
	poll time.Duration

	mu      sync.Mutex
	handler func()
	// running is set while the watcher goroutine is alive. At most one
	// goroutine waits for edges on pin.
	running bool
}

// NewLine returns a Line driving pin.
func NewLine(pin gpio.PinIO) *Line {
	return &Line{pin: pin, poll: 100 * time.Millisecond}
}

var errWatching = errors.New("host: line already watched")

// SetMode configures the pin direction.
func (l *Line) SetMode(mode nrf24l01.LineMode) error {
	switch mode {
	case nrf24l01.LineIn:
		return l.pin.In(gpio.PullNoChange, gpio.NoEdge)
	case nrf24l01.LineOut:
		return l.pin.Out(l.pin.Read())
	case nrf24l01.LineLow:
		return l.pin.Out(gpio.Low)
	case nrf24l01.LineHigh:
		return l.pin.Out(gpio.High)
	}
	return fmt.Errorf("host: unknown line mode %d", mode)
}

// Set drives the pin.
func (l *Line) Set(level bool) error {
	return l.pin.Out(gpio.Level(level))
}

// Get reads the pin level.
func (l *Line) Get() (bool, error) {
	return bool(l.pin.Read()), nil
}

// Watch configures the pin as input with pull up and calls handler from a
// background goroutine on every edge. A watcher left over from a previous
// Watch that has not exited yet is reused.
func (l *Line) Watch(edge nrf24l01.Edge, handler func()) error {
	pe := gpio.FallingEdge
	pull := gpio.PullUp
	if edge == nrf24l01.RisingEdge {
		pe = gpio.RisingEdge
		pull = gpio.PullDown
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return errWatching
	}
	if err := l.pin.In(pull, pe); err != nil {
		return fmt.Errorf("host: enable edge detection on %s: %w", l.pin, err)
	}
	l.handler = handler
	if !l.running {
		l.running = true
		go l.watch()
	}
	return nil
}

func (l *Line) watch() {
	for {
		edge := l.pin.WaitForEdge(l.poll)
		l.mu.Lock()
		h := l.handler
		if h == nil {
			l.running = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		if edge {
			h()
		}
	}
}

// Unwatch stops edge reporting. It does not wait for the watcher goroutine
// to exit; edges seen before it does are dropped.
func (l *Line) Unwatch() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler == nil {
		return nil
	}
	l.handler = nil
	return l.pin.In(gpio.PullNoChange, gpio.NoEdge)
}

var _ nrf24l01.IRQLine = (*Line)(nil)
