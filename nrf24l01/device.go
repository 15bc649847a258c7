/*
Package nrf24l01 implements a driver for the Nordic nRF24L01(+) 2.4GHz
transceiver.

The chip is driven through its SPI command set and two control lines: CE,
which starts transmissions and enables the receiver, and the optional active
low IRQ output. All bus traffic goes through an [Engine], which never lets
two commands overlap.

# Register fields

Registers are accessed by field mnemonic as named in the datasheet, e.g.
"RF_CH" or "PWR_UP". Batch reads group fields by register so every register
is read at most once:

	f, err := dev.GetFields("RF_CH", "RF_PWR", "RF_DR_HIGH")

Batch writes only touch the bits of the given fields. Registers shared by
several fields are read, merged and written back.

# Modes and pipes

A [Device] is Off, in Transmit or in Receive mode. Pipes are opened against
the current mode and are closed by the next mode change:

	err := dev.SetMode(ctx, nrf24l01.Transmit, nil)
	tx, err := dev.OpenPipe(nrf24l01.Tx, nrf24l01.PipeConfig{Address: addr})
	_, err = tx.Write([]byte("hello"))

A Write to a transmit pipe returns once the chip reports the packet was
acknowledged, or [ErrPacketTimeout] when the retransmit count ran out.

Pipes learn about transmit completion and received payloads only through
the interrupt stream published by the [Dispatcher].
*/
package nrf24l01

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/nrf24/trace"
)

// Mode is the operating state of the radio.
type Mode uint8

const (
	Off Mode = iota
	Transmit
	Receive
)

func (m Mode) String() (s string) {
	switch m {
	case Off:
		s = "off"
	case Transmit:
		s = "transmit"
	case Receive:
		s = "receive"
	default:
		s = "unknown"
	}
	return s
}

// Config holds driver options. The zero value is usable.
type Config struct {
	// Logger receives warnings and debug output. Defaults to slog.Default().
	Logger *slog.Logger
	// Tracer records every bus transaction. Defaults to trace.NoopLogger.
	Tracer trace.Logger
	// CS is driven low around every transfer when the bus does not frame
	// chip select itself.
	CS PinOutput
	// PollInterval is the STATUS polling period used without an IRQ line.
	// Defaults to 1ms.
	PollInterval time.Duration
	// PulseWidth is how long CE is held high to start a transmission.
	// Values under MinPulseWidth are raised to it.
	PulseWidth time.Duration
	// PowerUpDelay is waited after setting PWR_UP before CE may be raised.
	// Defaults to 1.5ms; negative disables the delay.
	PowerUpDelay time.Duration
}

func (cfg *Config) setDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.PulseWidth < MinPulseWidth {
		cfg.PulseWidth = MinPulseWidth
	}
	if cfg.PowerUpDelay == 0 {
		cfg.PowerUpDelay = 1500 * time.Microsecond
	}
}

// Device is an nRF24L01(+) transceiver. It owns the mode state machine and
// the set of open pipes.
type Device struct {
	eng  *Engine
	disp *Dispatcher
	ce   Line
	log  *slog.Logger
	cfg  Config

	mu    sync.Mutex
	mode  Mode
	pipes map[pipeKey]*Pipe
}

// New returns a Device on bus. ce is the chip enable line. irq is the
// chip's IRQ line and may be nil, in which case interrupts are detected by
// polling. The device starts in mode Off; call SetMode to reset the chip to
// a known state.
func New(bus Bus, ce Line, irq IRQLine, cfg Config) (*Device, error) {
	cfg.setDefaults()
	if err := ce.SetMode(LineLow); err != nil {
		return nil, fmt.Errorf("configure CE: %w", err)
	}
	if irq != nil {
		if err := irq.SetMode(LineIn); err != nil {
			return nil, fmt.Errorf("configure IRQ: %w", err)
		}
	}
	eng := newEngine(bus, &cfg)
	d := &Device{
		eng:   eng,
		disp:  newDispatcher(eng, irq, &cfg),
		ce:    ce,
		log:   cfg.Logger,
		cfg:   cfg,
		pipes: make(map[pipeKey]*Pipe),
	}
	return d, nil
}

// Engine returns the command engine, for raw command access.
func (d *Device) Engine() *Engine { return d.eng }

// Mode returns the current mode.
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetMode closes every open pipe and moves the radio into mode:
//   - Off: interrupts are no longer dispatched, CE goes low, both FIFOs are
//     flushed and the reset register image is written with fields merged over it.
//   - Transmit: as Off but the link settings (channel, power, data rate,
//     retransmit and CRC setup, address width) are kept unless given in
//     fields. The chip is powered up as primary transmitter and interrupts
//     are dispatched.
//   - Receive: both FIFOs are flushed, fields are written, the chip is
//     powered up as primary receiver, interrupts are dispatched and CE goes
//     high. Receive pipes are configured when opened.
//
// SetMode returns once every command of the transition has completed. On
// error the remaining steps are skipped and the radio is left in mode Off.
func (d *Device) SetMode(ctx context.Context, mode Mode, fields Fields) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, p := range d.pipes {
		p.terminate()
		delete(d.pipes, k)
	}
	old := d.mode
	// Off until the transition completes so no pipe can be opened halfway.
	d.mode = Off
	var steps []func() error
	switch mode {
	case Off:
		steps = []func() error{
			d.disp.Deactivate,
			func() error { return d.ce.Set(false) },
			d.flushTx,
			d.flushRx,
			func() error { return d.eng.SetFields(merge(defaults, fields)) },
		}
	case Transmit:
		steps = []func() error{
			func() error { return d.ce.Set(false) },
			d.flushTx,
			d.flushRx,
			func() error {
				image := merge(defaults, nil)
				for _, name := range linkFields {
					delete(image, name)
				}
				image["PWR_UP"] = Flag(true)
				image["PRIM_RX"] = Flag(false)
				return d.eng.SetFields(merge(image, fields))
			},
			d.powerUpDelay,
			d.disp.Activate,
		}
	case Receive:
		steps = []func() error{
			d.flushTx,
			d.flushRx,
			func() error {
				return d.eng.SetFields(merge(Fields{
					"PWR_UP":  Flag(true),
					"PRIM_RX": Flag(true),
					"RX_DR":   Flag(true),
					"TX_DS":   Flag(true),
					"MAX_RT":  Flag(true),
				}, fields))
			},
			d.powerUpDelay,
			d.disp.Activate,
			func() error { return d.ce.Set(true) },
		}
	default:
		return fmt.Errorf("nrf24l01: unknown mode %d", mode)
	}
	if err := runSteps(ctx, steps...); err != nil {
		return errors.Join(fmt.Errorf("entering %s mode: %w", mode, err), d.ce.Set(false), d.disp.Deactivate())
	}
	d.mode = mode
	d.log.Debug("mode change", slog.String("old_mode", old.String()), slog.String("new_mode", mode.String()))
	return nil
}

// runSteps runs steps in order and stops at the first failure.
func runSteps(ctx context.Context, steps ...func() error) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// merge returns a copy of base with over applied on top.
func merge(base, over Fields) Fields {
	out := make(Fields, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func (d *Device) flushTx() error {
	_, err := d.eng.Exec(Command{Opcode: FlushTx})
	return err
}

func (d *Device) flushRx() error {
	_, err := d.eng.Exec(Command{Opcode: FlushRx})
	return err
}

func (d *Device) powerUpDelay() error {
	if d.cfg.PowerUpDelay > 0 {
		time.Sleep(d.cfg.PowerUpDelay)
	}
	return nil
}

// pulseCE holds CE high for the configured pulse width.
func (d *Device) pulseCE() error {
	if err := d.ce.Set(true); err != nil {
		return err
	}
	activeWait(d.cfg.PulseWidth)
	return d.ce.Set(false)
}

// GetFields reads register fields by mnemonic. Unknown names are skipped.
func (d *Device) GetFields(names ...string) (Fields, error) { return d.eng.GetFields(names...) }

// SetFields writes register fields by mnemonic. Unknown names are skipped.
func (d *Device) SetFields(values Fields) error { return d.eng.SetFields(values) }

// Status returns the STATUS register.
func (d *Device) Status() (Status, error) { return d.eng.Status() }

// Subscribe returns a subscription to the interrupt stream. Snapshots are
// only published while the device is in Transmit or Receive mode.
//
// Snapshots queue without bound until taken with Next, so a subscriber must
// keep calling Next or Close the subscription. Without an IRQ line the
// queue grows with every poll that finds something pending.
func (d *Device) Subscribe() (*Subscription, error) { return d.disp.Subscribe() }

// IsConnected reads SETUP_AW and checks it holds a legal value. An absent
// chip reads as all zeros or all ones.
func (d *Device) IsConnected() bool {
	aw, err := d.eng.Exec(Command{Opcode: ReadRegister.With(regSETUP_AW), ReadLen: 1})
	return err == nil && aw[0] >= 1 && aw[0] <= 3
}

// ReuseTx makes the chip retransmit the last transmitted payload on the
// next CE pulse.
func (d *Device) ReuseTx() error {
	_, err := d.eng.Exec(Command{Opcode: ReuseTxPayload})
	return err
}

// ObserveTx returns the lost packet counter and the retransmit count of the
// last packet. The lost packet counter saturates at 15 and is reset by
// writing RF_CH.
func (d *Device) ObserveTx() (lost, retransmits int, err error) {
	f, err := d.eng.GetFields("PLOS_CNT", "ARC_CNT")
	if err != nil {
		return 0, 0, err
	}
	return int(f["PLOS_CNT"].Uint8()), int(f["ARC_CNT"].Uint8()), nil
}

// CarrierDetected reports whether a signal above -64dBm was present on the
// channel during the last reception (RPD).
func (d *Device) CarrierDetected() (bool, error) {
	f, err := d.eng.GetFields("RPD")
	if err != nil {
		return false, err
	}
	return f["RPD"].Flag(), nil
}

// DumpRegisters reads every documented register into registers, indexed by
// address. Address registers contribute their least significant byte.
func (d *Device) DumpRegisters(registers []byte) error {
	if len(registers) <= regFEATURE {
		return errors.New("nrf24l01: register buffer must hold 30 bytes")
	}
	for addr := uint8(0); addr <= regFEATURE; addr++ {
		if !regstr(addr).valid() {
			registers[addr] = 0
			continue
		}
		b, err := d.eng.Exec(Command{Opcode: ReadRegister.With(addr), ReadLen: 1})
		if err != nil {
			return err
		}
		registers[addr] = b[0]
	}
	return nil
}
