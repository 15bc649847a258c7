package nrf24l01

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type rxPacket struct {
	pipe uint8
	data []byte
}

// chip simulates an nRF24L01+ behind the SPI bus: register file, both
// FIFOs, interrupt flags and CE driven transmissions.
type chip struct {
	busy    atomic.Bool
	overlap atomic.Bool

	mu     sync.Mutex
	regs   [0x20][]byte
	flags  byte
	ce     bool
	txFifo [][]byte
	rxFifo []rxPacket
	sent   [][]byte
	acks   map[uint8][]byte
	ops    []Opcode
	// fail makes transmissions end in MAX_RT.
	fail bool
	// width overrides the R_RX_PL_WID response when non-zero.
	width int
	// levelIRQ makes the IRQ line fall only when the first flag is raised,
	// like the real active low output. Otherwise every event fires it.
	levelIRQ bool
	// spurious makes a CE pulse raise an interrupt without a TX outcome.
	spurious bool
	// statusWrites logs the bytes written to STATUS.
	statusWrites []byte
	irq   *fakeIRQ
}

func newChip() *chip {
	c := &chip{acks: make(map[uint8][]byte), irq: &fakeIRQ{}}
	for i := range c.regs {
		c.regs[i] = []byte{0}
	}
	c.regs[regCONFIG][0] = 0x08
	c.regs[regEN_AA][0] = 0x3f
	c.regs[regEN_RXADDR][0] = 0x03
	c.regs[regSETUP_AW][0] = 0x03
	c.regs[regSETUP_RETR][0] = 0x03
	c.regs[regRF_CH][0] = 0x02
	c.regs[regRF_SETUP][0] = 0x0e
	c.regs[regRX_ADDR_P0] = bytes.Repeat([]byte{0xe7}, 5)
	c.regs[regRX_ADDR_P1] = bytes.Repeat([]byte{0xc2}, 5)
	c.regs[regRX_ADDR_P2][0] = 0xc3
	c.regs[regRX_ADDR_P3][0] = 0xc4
	c.regs[regRX_ADDR_P4][0] = 0xc5
	c.regs[regRX_ADDR_P5][0] = 0xc6
	c.regs[regTX_ADDR] = bytes.Repeat([]byte{0xe7}, 5)
	return c
}

func (c *chip) Tx(w, r []byte) error {
	if c.busy.CompareAndSwap(false, true) {
		defer c.busy.Store(false)
	} else {
		c.overlap.Store(true)
	}
	runtime.Gosched()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(w) == 0 || len(w) != len(r) {
		return errors.New("chip: malformed transfer")
	}
	op := Opcode(w[0])
	data := w[1:]
	c.ops = append(c.ops, op)
	r[0] = c.status()
	clear(r[1:])
	switch {
	case op <= 0x1f:
		copy(r[1:], c.read(uint8(op)))
	case op <= 0x3f:
		c.write(uint8(op&0x1f), data)
	case op&^0x07 == WriteAckPayload:
		c.acks[uint8(op&0x07)] = append([]byte(nil), data...)
	}
	switch op {
	case ReadRxPayload:
		if len(c.rxFifo) > 0 {
			copy(r[1:], c.rxFifo[0].data)
			c.rxFifo = c.rxFifo[1:]
		}
	case ReadRxPayloadLen:
		if c.width != 0 {
			r[1] = byte(c.width)
		} else if len(c.rxFifo) > 0 {
			r[1] = byte(len(c.rxFifo[0].data))
		}
	case WriteTxPayload, WriteTxNoAck:
		if len(c.txFifo) < 3 {
			c.txFifo = append(c.txFifo, append([]byte(nil), data...))
		}
	case FlushTx:
		c.txFifo = nil
	case FlushRx:
		c.rxFifo = nil
	}
	return nil
}

func (c *chip) status() byte {
	s := c.flags
	if len(c.rxFifo) == 0 {
		s |= RxPipeEmpty << 1
	} else {
		s |= c.rxFifo[0].pipe << 1
	}
	if len(c.txFifo) == 3 {
		s |= statusTX_FULL
	}
	return s
}

func (c *chip) read(addr uint8) []byte {
	switch addr {
	case regSTATUS:
		return []byte{c.status()}
	case regFIFO_STATUS:
		var b byte
		if len(c.txFifo) == 0 {
			b |= 1 << 4
		}
		if len(c.txFifo) == 3 {
			b |= 1 << 5
		}
		if len(c.rxFifo) == 0 {
			b |= 1 << 0
		}
		if len(c.rxFifo) == 3 {
			b |= 1 << 1
		}
		return []byte{b}
	}
	return c.regs[addr]
}

func (c *chip) write(addr uint8, data []byte) {
	switch addr {
	case regSTATUS:
		if len(data) > 0 {
			c.statusWrites = append(c.statusWrites, data[0])
			c.flags &^= data[0] & (statusRX_DR | statusTX_DS | statusMAX_RT)
		}
	case regOBSERVE_TX, regRPD, regFIFO_STATUS:
	default:
		copy(c.regs[addr], data)
	}
}

// setCE transmits the head of the TX FIFO on a falling CE edge while
// powered up as primary transmitter.
func (c *chip) setCE(level bool) {
	c.mu.Lock()
	fall := c.ce && !level
	c.ce = level
	fire := false
	if fall && c.regs[regCONFIG][0]&0x03 == 0x02 && len(c.txFifo) > 0 {
		fire = c.edge()
		if c.spurious {
			c.txFifo = c.txFifo[1:]
		} else if c.fail {
			c.flags |= statusMAX_RT
		} else {
			c.sent = append(c.sent, c.txFifo[0])
			c.txFifo = c.txFifo[1:]
			c.flags |= statusTX_DS
		}
	}
	c.mu.Unlock()
	if fire {
		c.irq.fire()
	}
}

// deliver places a received payload in the RX FIFO.
func (c *chip) deliver(pipe uint8, data []byte) {
	c.mu.Lock()
	c.rxFifo = append(c.rxFifo, rxPacket{pipe: pipe, data: data})
	fire := c.edge()
	c.flags |= statusRX_DR
	c.mu.Unlock()
	if fire {
		c.irq.fire()
	}
}

// edge reports whether raising a flag now makes the IRQ line fall. Must
// hold c.mu and be called before the flag is raised.
func (c *chip) edge() bool {
	return !c.levelIRQ || c.flags == 0
}

func (c *chip) resetOps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

func (c *chip) opLog() []Opcode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Opcode(nil), c.ops...)
}

func (c *chip) count(op Opcode) (n int) {
	for _, o := range c.opLog() {
		if o == op {
			n++
		}
	}
	return n
}

func (c *chip) reg(addr uint8) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.read(addr)...)
}

func (c *chip) set(addr uint8, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[addr][0] = v
}

type ceLine struct{ c *chip }

func (l ceLine) SetMode(mode LineMode) error {
	if mode == LineLow || mode == LineHigh {
		l.c.setCE(mode == LineHigh)
	}
	return nil
}

func (l ceLine) Set(level bool) error {
	l.c.setCE(level)
	return nil
}

func (l ceLine) Get() (bool, error) {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return l.c.ce, nil
}

type fakeIRQ struct {
	mu      sync.Mutex
	handler func()
}

func (l *fakeIRQ) SetMode(LineMode) error { return nil }
func (l *fakeIRQ) Set(bool) error         { return nil }
func (l *fakeIRQ) Get() (bool, error)     { return true, nil }

func (l *fakeIRQ) Watch(_ Edge, handler func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return errors.New("irq: already watched")
	}
	l.handler = handler
	return nil
}

func (l *fakeIRQ) Unwatch() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = nil
	return nil
}

func (l *fakeIRQ) watching() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

func (l *fakeIRQ) fire() {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h()
	}
}

type mockLine struct{ mock.Mock }

func (m *mockLine) SetMode(mode LineMode) error { return m.Called(mode).Error(0) }
func (m *mockLine) Set(level bool) error        { return m.Called(level).Error(0) }
func (m *mockLine) Get() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func testConfig(logs *syncBuffer) Config {
	return Config{
		Logger:       slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		PollInterval: time.Millisecond,
		PowerUpDelay: -1,
	}
}

// newTestDevice returns a device wired to a simulated chip. With withIRQ
// unset interrupts are detected by polling.
func newTestDevice(t *testing.T, withIRQ bool) (*Device, *chip, *syncBuffer) {
	t.Helper()
	c := newChip()
	logs := new(syncBuffer)
	var irq IRQLine
	if withIRQ {
		irq = c.irq
	}
	d, err := New(c, ceLine{c: c}, irq, testConfig(logs))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, d.SetMode(context.Background(), Off, nil))
		assert.False(t, c.overlap.Load(), "overlapping bus transfers")
	})
	return d, c, logs
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (c *chip) ceHigh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ce
}
