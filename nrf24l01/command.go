package nrf24l01

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/soypat/nrf24/trace"
)

// Opcode is an SPI command byte. Commands that take a parameter (register
// address or pipe number) are formed with [Opcode.With].
type Opcode byte

const (
	ReadRegister     Opcode = 0x00 // R_REGISTER | address
	WriteRegister    Opcode = 0x20 // W_REGISTER | address
	ReadRxPayload    Opcode = 0x61 // R_RX_PAYLOAD
	WriteTxPayload   Opcode = 0xA0 // W_TX_PAYLOAD
	FlushTx          Opcode = 0xE1 // FLUSH_TX
	FlushRx          Opcode = 0xE2 // FLUSH_RX
	ReuseTxPayload   Opcode = 0xE3 // REUSE_TX_PL
	ReadRxPayloadLen Opcode = 0x60 // R_RX_PL_WID
	WriteAckPayload  Opcode = 0xA8 // W_ACK_PAYLOAD | pipe
	WriteTxNoAck     Opcode = 0xB0 // W_TX_PAYLOAD_NOACK
	Nop              Opcode = 0xFF // NOP
)

// With returns the opcode parameterized by a register address (5 bits) or a
// pipe number (3 bits).
func (op Opcode) With(param uint8) Opcode {
	switch op {
	case ReadRegister, WriteRegister:
		return op | Opcode(param&0x1f)
	case WriteAckPayload:
		return op | Opcode(param&0x07)
	}
	panic("nrf24l01: opcode " + op.String() + " takes no parameter") // Bug in caller if hit.
}

func (op Opcode) String() string {
	switch {
	case op&0xe0 == ReadRegister:
		return "R_REGISTER(" + regstr(op&0x1f).String() + ")"
	case op&0xe0 == WriteRegister:
		return "W_REGISTER(" + regstr(op&0x1f).String() + ")"
	case op&^0x07 == WriteAckPayload:
		return "W_ACK_PAYLOAD(P" + strconv.Itoa(int(op&0x07)) + ")"
	}
	switch op {
	case ReadRxPayload:
		return "R_RX_PAYLOAD"
	case WriteTxPayload:
		return "W_TX_PAYLOAD"
	case FlushTx:
		return "FLUSH_TX"
	case FlushRx:
		return "FLUSH_RX"
	case ReuseTxPayload:
		return "REUSE_TX_PL"
	case ReadRxPayloadLen:
		return "R_RX_PL_WID"
	case WriteTxNoAck:
		return "W_TX_PAYLOAD_NOACK"
	case Nop:
		return "NOP"
	}
	return "0x" + strconv.FormatUint(uint64(op), 16)
}

// Command is a single chip-select framed transaction.
type Command struct {
	Opcode Opcode
	// Data is written after the opcode. At most 32 bytes.
	Data []byte
	// ReadLen is the number of response bytes wanted after the status
	// echo. At most 32.
	ReadLen int
}

// Bus performs full duplex transfers. The bytes written are clocked out
// while len(r) bytes are clocked in, len(r) == len(w). Chip select is
// asserted for the duration of the transfer unless a chip select pin is
// given in [Config]. periph.io's spi.Conn implements Bus.
type Bus interface {
	Tx(w, r []byte) error
}

// PinOutput sets the logic level of a pin.
type PinOutput func(level bool)

// Engine serializes all traffic with the chip. There is never more than one
// command in flight, and multi-register operations hold the bus until their
// last command completes.
type Engine struct {
	mu      sync.Mutex
	bus     Bus
	cs      PinOutput
	log     *slog.Logger
	tracer  trace.Logger
	session string
	seq     uint64
	buf     [33]byte
	rbuf    [33]byte
}

func newEngine(bus Bus, cfg *Config) *Engine {
	e := &Engine{
		bus:     bus,
		cs:      cfg.CS,
		log:     cfg.Logger,
		tracer:  cfg.Tracer,
		session: trace.NewSession(),
	}
	if e.tracer == nil {
		e.tracer = trace.NoopLogger{}
	}
	return e
}

// Session is the identifier stamped on trace events of this engine.
func (e *Engine) Session() string { return e.session }

// Exec executes cmd and returns its response bytes.
func (e *Engine) Exec(cmd Command) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	resp, _, err := e.exec(cmd)
	return resp, err
}

// Status issues a NOP and returns the status register echoed by the chip.
func (e *Engine) Status() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, stat, err := e.exec(Command{Opcode: Nop})
	return decodeStatus(stat), err
}

// exec must be called with e.mu held.
func (e *Engine) exec(cmd Command) (resp []byte, status byte, err error) {
	if len(cmd.Data) > 32 || cmd.ReadLen > 32 || cmd.ReadLen < 0 {
		return nil, 0, errCommandTooLong
	}
	n := 1 + max(len(cmd.Data), cmd.ReadLen)
	w, r := e.buf[:n], e.rbuf[:n]
	w[0] = byte(cmd.Opcode)
	copy(w[1:], cmd.Data)
	clear(w[1+len(cmd.Data):])
	e.csEnable(true)
	err = e.bus.Tx(w, r)
	e.csEnable(false)
	if cmd.ReadLen > 0 {
		resp = append([]byte(nil), r[1:1+cmd.ReadLen]...)
	}
	e.seq++
	ev := trace.Event{
		Session: e.session,
		Seq:     e.seq,
		Time:    time.Now(),
		Opcode:  byte(cmd.Opcode),
		Write:   cmd.Data,
		Read:    resp,
		Status:  r[0],
	}
	if err != nil {
		ev.Err = err.Error()
		e.tracer.Log(ev)
		return nil, 0, &BusError{Opcode: cmd.Opcode, Err: err}
	}
	e.tracer.Log(ev)
	return resp, r[0], nil
}

func (e *Engine) csEnable(b bool) {
	if e.cs != nil {
		e.cs(!b)
	}
}

// GetFields reads the named fields. Fields sharing a register are read with
// a single command. Unknown names are logged and skipped.
func (e *Engine) GetFields(names ...string) (Fields, error) {
	plan, unknown := planRead(names)
	e.warnUnknown(unknown)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(Fields, len(names))
	for _, rp := range plan {
		raw, _, err := e.exec(Command{Opcode: ReadRegister.With(rp.addr), ReadLen: rp.length})
		if err != nil {
			return out, err
		}
		rp.decode(raw, out)
	}
	return out, nil
}

// SetFields writes the given field values. Registers shared by several
// fields are read first and only the bits of the given fields change.
// Unknown names are logged and skipped.
func (e *Engine) SetFields(values Fields) error {
	ops, unknown := planWrite(values)
	e.warnUnknown(unknown)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, op := range ops {
		if err := e.write(op); err != nil {
			return err
		}
	}
	return nil
}

// write must be called with e.mu held.
func (e *Engine) write(op writeOp) error {
	data := op.data
	if op.merge {
		cur, _, err := e.exec(Command{Opcode: ReadRegister.With(op.addr), ReadLen: 1})
		if err != nil {
			return err
		}
		data = []byte{op.apply(cur[0])}
	}
	_, _, err := e.exec(Command{Opcode: WriteRegister.With(op.addr), Data: data})
	return err
}

func (e *Engine) warnUnknown(names []string) {
	if len(names) == 0 {
		return
	}
	sort.Strings(names)
	for _, name := range names {
		e.log.Warn("skipping register field", slog.Any("err", &UnknownFieldError{Name: name}))
	}
}
