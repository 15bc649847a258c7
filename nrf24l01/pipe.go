package nrf24l01

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/soypat/nrf24"
)

// Role selects what a pipe is bound to: the transmitter, or one of the six
// receive pipes.
type Role struct {
	rx  bool
	num uint8
}

// Tx is the transmit role. A transmit pipe sends to its address and
// receives acknowledgment payloads on hardware pipe 0.
var Tx = Role{}

// Rx returns the role of receive pipe n (0..5). Writes to a receive pipe
// queue acknowledgment payloads for that pipe.
func Rx(n uint8) Role { return Role{rx: true, num: n} }

// Pipe reports the hardware pipe number payloads for this role arrive on.
func (r Role) Pipe() uint8 { return r.num }

// IsRx reports whether r is a receive role.
func (r Role) IsRx() bool { return r.rx }

func (r Role) String() string {
	if !r.rx {
		return "tx"
	}
	return "rx" + strconv.Itoa(int(r.num))
}

type pipeKey struct {
	rx  bool
	num uint8
}

// PipeConfig configures a pipe when it is opened.
type PipeConfig struct {
	// Address is the pipe address, least significant byte first. Receive
	// pipes 2..5 only take a single byte; the rest is shared with pipe 1.
	Address nrf24.Address
	// PayloadSize is the fixed payload width in bytes. Zero selects dynamic
	// payload length.
	PayloadSize uint8
	// NoAck sends packets without requesting acknowledgment, or disables
	// auto acknowledgment for a receive pipe.
	NoAck bool
	// Buffer is the number of received payloads held before the pipe stops
	// reading from the chip. Defaults to 1.
	Buffer int
}

// Pipe is a duplex packet channel bound to a hardware pipe.
//
// Received payloads are pulled from the chip only while the consumer is
// ready, which is when Recv is waiting or the receive buffer has room.
// A consumer that stops calling Recv leaves its payloads in the chip's
// shared RX FIFO, which blocks payloads for every other pipe behind them.
type Pipe struct {
	dev  *Device
	role Role
	cfg  PipeConfig
	sub  *Subscription
	log  *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	wantsRead bool
	rxq       []rxItem
	rxNotify  chan struct{}
	txWait    chan Status
	txAfter   uint64
	closed    chan struct{}
	closeOnce sync.Once
}

type rxItem struct {
	data []byte
	err  error
}

// OpenPipe opens a pipe for role. Transmit pipes can only be opened in
// Transmit mode. Receive pipes can be opened in Transmit or Receive mode.
func (d *Device) OpenPipe(role Role, cfg PipeConfig) (*Pipe, error) {
	switch {
	case cfg.PayloadSize > nrf24.MaxPayload:
		return nil, ErrPayloadTooLarge
	case role.num > 5:
		return nil, ErrBadPipe
	case len(cfg.Address) > 5, role.rx && role.num > 1 && len(cfg.Address) > 1:
		return nil, ErrBadAddress
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == Off || (!role.rx && d.mode != Transmit) {
		return nil, ErrInvalidMode
	}
	key := pipeKey{rx: role.rx, num: role.num}
	if _, ok := d.pipes[key]; ok {
		return nil, ErrPipeInUse
	}
	// The transmitter receives acknowledgments on pipe 0.
	if _, ok := d.pipes[pipeKey{rx: !role.rx, num: 0}]; ok && role.num == 0 {
		return nil, ErrPipeInUse
	}
	if err := d.eng.SetFields(pipeFields(role, cfg)); err != nil {
		return nil, err
	}
	sub, err := d.disp.Subscribe()
	if err != nil {
		return nil, err
	}
	p := &Pipe{
		dev:      d,
		role:     role,
		cfg:      cfg,
		sub:      sub,
		log:      d.log.With(slog.String("pipe", role.String())),
		rxNotify: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	d.pipes[key] = p
	go p.run()
	return p, nil
}

// pipeFields returns the register fields that set up role.
func pipeFields(role Role, cfg PipeConfig) Fields {
	n := strconv.Itoa(int(role.num))
	f := Fields{
		"ERX_P" + n:  Flag(true),
		"ENAA_P" + n: Flag(!cfg.NoAck || !role.rx),
	}
	if cfg.PayloadSize == 0 {
		f["DPL_P"+n] = Flag(true)
		f["EN_DPL"] = Flag(true)
	} else {
		f["DPL_P"+n] = Flag(false)
		f["RX_PW_P"+n] = Uint(cfg.PayloadSize)
	}
	if !role.rx {
		if cfg.NoAck {
			f["EN_DYN_ACK"] = Flag(true)
		}
		if len(cfg.Address) > 0 {
			f["TX_ADDR"] = Bytes(cfg.Address...)
			f["RX_ADDR_P0"] = Bytes(cfg.Address...)
		}
		return f
	}
	f["EN_ACK_PAY"] = Flag(true)
	if len(cfg.Address) > 0 {
		f["RX_ADDR_P"+n] = Bytes(cfg.Address...)
	}
	return f
}

// Role returns the role the pipe was opened with.
func (p *Pipe) Role() Role { return p.role }

func (p *Pipe) run() {
	for {
		ev, err := p.sub.next(context.Background())
		if err != nil {
			return
		}
		p.handle(ev)
	}
}

func (p *Pipe) handle(ev event) {
	p.mu.Lock()
	if p.txWait != nil && ev.seq > p.txAfter {
		p.txWait <- ev.status // Buffered, never blocks.
		p.txWait = nil
	}
	ready := p.wantsRead
	p.mu.Unlock()
	if ready && ev.status.RxPipe == p.role.num {
		p.receive()
	}
}

// receive moves one payload from the chip into the receive buffer. The
// snapshot that triggered it may be stale, so the head of the RX FIFO is
// checked again first.
func (p *Pipe) receive() {
	st, err := p.dev.eng.Status()
	if err == nil && st.RxPipe != p.role.num {
		return
	}
	var data []byte
	if err == nil {
		data, err = p.readPayload()
	}
	p.mu.Lock()
	select {
	case <-p.closed:
		p.mu.Unlock()
		return
	default:
	}
	p.rxq = append(p.rxq, rxItem{data: data, err: err})
	if len(p.rxq) >= p.cfg.Buffer {
		p.wantsRead = false
	}
	ready := p.wantsRead
	p.mu.Unlock()
	select {
	case p.rxNotify <- struct{}{}:
	default:
	}
	if ready && err == nil {
		// The FIFO may hold more payloads than interrupts were raised for.
		p.poke()
	}
}

func (p *Pipe) readPayload() ([]byte, error) {
	eng := p.dev.eng
	width := int(p.cfg.PayloadSize)
	if width == 0 {
		w, err := eng.Exec(Command{Opcode: ReadRxPayloadLen, ReadLen: 1})
		if err != nil {
			return nil, err
		}
		width = int(w[0])
		if width > nrf24.MaxPayload {
			p.log.Warn("RX FIFO corrupted, flushing", slog.Int("width", width))
			if _, err := eng.Exec(Command{Opcode: FlushRx}); err != nil {
				return nil, err
			}
			// IRQ stays asserted, and no new edge arrives, until RX_DR is cleared.
			if err := eng.SetFields(Fields{"RX_DR": Flag(true)}); err != nil {
				return nil, err
			}
			return nil, ErrInvalidPayloadSize
		}
	}
	data, err := eng.Exec(Command{Opcode: ReadRxPayload, ReadLen: width})
	if err != nil {
		return nil, err
	}
	if err := eng.SetFields(Fields{"RX_DR": Flag(true)}); err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (p *Pipe) poke() {
	if err := p.dev.disp.Poke(); err != nil {
		p.log.Warn("re-reading status", slog.Any("err", err))
	}
}

// Recv returns the next received payload. Calling Recv signals the pipe is
// ready to receive.
func (p *Pipe) Recv(ctx context.Context) ([]byte, error) {
	for {
		p.mu.Lock()
		if len(p.rxq) > 0 {
			item := p.rxq[0]
			p.rxq = p.rxq[1:]
			resumed := p.resume()
			p.mu.Unlock()
			if resumed {
				p.poke()
			}
			return item.data, item.err
		}
		select {
		case <-p.closed:
			p.mu.Unlock()
			return nil, ErrPipeClosed
		default:
		}
		resumed := p.resume()
		p.mu.Unlock()
		if resumed {
			p.poke()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.closed:
		case <-p.rxNotify:
		}
	}
}

// resume marks the pipe ready if its buffer has room and reports whether it
// was not ready before. Must hold p.mu.
func (p *Pipe) resume() bool {
	if p.wantsRead || len(p.rxq) >= p.cfg.Buffer {
		return false
	}
	p.wantsRead = true
	return true
}

// Read receives a payload into b. It returns io.ErrShortBuffer if b
// cannot hold the whole payload, in which case the payload is lost.
func (p *Pipe) Read(b []byte) (int, error) {
	data, err := p.Recv(context.Background())
	if err != nil {
		return 0, err
	}
	if len(data) > len(b) {
		return 0, io.ErrShortBuffer
	}
	return copy(b, data), nil
}

// Write sends b as a single packet.
//
// On a transmit pipe Write returns once the chip reports the outcome: nil
// when the packet was sent (and acknowledged unless NoAck is set) or
// ErrPacketTimeout after the retransmit count ran out. A write cannot be
// cancelled; it ends early only if the pipe is closed, e.g. by a mode change.
//
// On a receive pipe Write queues b as the payload of the next
// acknowledgment sent on that pipe and returns immediately.
func (p *Pipe) Write(b []byte) (int, error) {
	if len(b) > nrf24.MaxPayload {
		return 0, ErrPayloadTooLarge
	}
	select {
	case <-p.closed:
		return 0, ErrPipeClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	eng := p.dev.eng
	if p.role.rx {
		_, err := eng.Exec(Command{Opcode: WriteAckPayload.With(p.role.num), Data: b})
		if err != nil {
			return 0, err
		}
		return len(b), nil
	}

	op := WriteTxPayload
	if p.cfg.NoAck {
		op = WriteTxNoAck
	}
	if _, err := eng.Exec(Command{Opcode: op, Data: b}); err != nil {
		return 0, err
	}
	wait := make(chan Status, 1)
	p.mu.Lock()
	p.txWait = wait
	p.txAfter = p.dev.disp.published()
	p.mu.Unlock()
	if err := p.dev.pulseCE(); err != nil {
		p.mu.Lock()
		p.txWait = nil
		p.mu.Unlock()
		return 0, err
	}
	var st Status
	select {
	case st = <-wait:
	case <-p.closed:
		return 0, ErrPipeClosed
	}

	var err error
	switch {
	case st.MaxRetransmits:
		if _, ferr := eng.Exec(Command{Opcode: FlushTx}); ferr != nil {
			err = ferr
		} else {
			err = ErrPacketTimeout
		}
	case !st.TxDataSent:
		p.log.Warn("unexpected interrupt while transmitting", slog.String("status", st.String()))
	}
	if cerr := eng.SetFields(Fields{"TX_DS": Flag(true), "MAX_RT": Flag(true)}); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the pipe. A receive pipe is disabled in EN_RXADDR. Blocked
// Recv and Write calls return ErrPipeClosed.
func (p *Pipe) Close() error {
	d := p.dev
	d.mu.Lock()
	key := pipeKey{rx: p.role.rx, num: p.role.num}
	owned := d.pipes[key] == p
	if owned {
		delete(d.pipes, key)
	}
	d.mu.Unlock()
	p.terminate()
	if owned && p.role.rx {
		return d.eng.SetFields(Fields{"ERX_P" + strconv.Itoa(int(p.role.num)): Flag(false)})
	}
	return nil
}

// terminate releases the subscription and wakes blocked callers without
// touching the chip.
func (p *Pipe) terminate() {
	p.closeOnce.Do(func() {
		p.sub.Close()
		p.mu.Lock()
		close(p.closed)
		p.rxq = nil
		p.txWait = nil
		p.mu.Unlock()
	})
}

var _ io.ReadWriteCloser = (*Pipe)(nil)
