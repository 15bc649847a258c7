package nrf24l01

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher publishes status snapshots to subscribers whenever the chip
// signals an interrupt. With an IRQ line it reacts to falling edges,
// otherwise it polls the STATUS register.
//
// The trigger source runs only while the dispatcher is active and has at
// least one subscriber.
type Dispatcher struct {
	eng  *Engine
	irq  IRQLine
	poll time.Duration
	log  *slog.Logger
	warn sync.Once

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	seq     uint64
	active  bool
	running bool
	stop    chan struct{}
}

func newDispatcher(eng *Engine, irq IRQLine, cfg *Config) *Dispatcher {
	return &Dispatcher{
		eng:  eng,
		irq:  irq,
		poll: cfg.PollInterval,
		log:  cfg.Logger,
		subs: make(map[uint64]*Subscription),
	}
}

// Activate enables the trigger source. Calling Activate on an active
// dispatcher does nothing.
func (d *Dispatcher) Activate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	return d.reconcile()
}

// Deactivate disables the trigger source. Subscriptions stay open but
// receive nothing until the dispatcher is activated again.
func (d *Dispatcher) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	return d.reconcile()
}

// Subscribe registers a new subscriber. It receives every snapshot
// published from now on, in publication order, until closed.
func (d *Dispatcher) Subscribe() (*Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	s := &Subscription{
		id:     d.nextID,
		d:      d,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.subs[s.id] = s
	if err := d.reconcile(); err != nil {
		delete(d.subs, s.id)
		return nil, err
	}
	return s, nil
}

func (d *Dispatcher) unsubscribe(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[id]; !ok {
		return
	}
	delete(d.subs, id)
	if err := d.reconcile(); err != nil {
		d.log.Warn("stopping interrupt source", slog.Any("err", err))
	}
}

// reconcile starts or stops the trigger source. Must hold d.mu.
func (d *Dispatcher) reconcile() error {
	want := d.active && len(d.subs) > 0
	switch {
	case want && !d.running:
		if d.irq != nil {
			if err := d.irq.Watch(FallingEdge, d.onEdge); err != nil {
				return err
			}
		} else {
			d.warn.Do(func() {
				d.log.Warn("no IRQ line, polling STATUS; unsuitable for high throughput",
					slog.Duration("interval", d.poll))
			})
			d.stop = make(chan struct{})
			go d.pollLoop(d.stop)
		}
		d.running = true
	case !want && d.running:
		d.running = false
		if d.irq != nil {
			return d.irq.Unwatch()
		}
		close(d.stop)
	}
	return nil
}

// onEdge is called on every falling edge of the IRQ line. An edge always
// means there is something to report.
func (d *Dispatcher) onEdge() {
	if err := d.sample(nil, false); err != nil {
		d.log.Warn("reading status after interrupt", slog.Any("err", err))
	}
}

func (d *Dispatcher) pollLoop(stop chan struct{}) {
	tick := time.NewTicker(d.poll)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tick.C:
		}
		if err := d.sample(stop, true); err != nil {
			d.log.Warn("polling status", slog.Any("err", err))
		}
	}
}

// Poke reads the STATUS register and publishes it if there is anything to
// act upon. Consumers call it when they become ready again so that an
// interrupt that fired while nobody was listening is not lost.
func (d *Dispatcher) Poke() error {
	return d.sample(nil, true)
}

// sample reads the STATUS register and publishes it. With onlyPending set,
// snapshots reporting nothing are dropped. Reading and publishing happen
// under d.mu so a snapshot is never published after a later one was
// observed through published.
func (d *Dispatcher) sample(stop chan struct{}, onlyPending bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	select {
	case <-stop:
		return nil // A stale poll loop.
	default:
	}
	f, err := d.eng.GetFields(statusFields...)
	if err != nil {
		return err
	}
	st := statusFromFields(f)
	if onlyPending && !st.pending() {
		return nil
	}
	d.publish(st)
	return nil
}

// publish must be called with d.mu held.
func (d *Dispatcher) publish(st Status) {
	d.seq++
	ev := event{seq: d.seq, status: st}
	for _, s := range d.subs {
		s.push(ev) // Never blocks.
	}
}

// published returns the sequence number of the last published snapshot.
func (d *Dispatcher) published() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

type event struct {
	seq    uint64
	status Status
}

// Subscription is a handle on the interrupt stream. It must be closed to
// release it. Its queue is unbounded: publishing never blocks on a slow
// subscriber.
type Subscription struct {
	id     uint64
	d      *Dispatcher
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	queue []event
}

func (s *Subscription) push(ev event) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until the next snapshot is available and returns it.
func (s *Subscription) Next(ctx context.Context) (Status, error) {
	ev, err := s.next(ctx)
	return ev.status, err
}

func (s *Subscription) next(ctx context.Context) (event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()
		select {
		case <-s.done:
			return event{}, ErrSubscriptionClosed
		case <-ctx.Done():
			return event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close releases the subscription. Pending snapshots are discarded.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.queue = nil
		s.mu.Unlock()
		s.d.unsubscribe(s.id)
	})
}
