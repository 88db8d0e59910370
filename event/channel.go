package event

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type state int32

const (
	stateEmpty state = iota
	statePending
	stateDelivering
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateDelivering:
		return "delivering"
	default:
		return "empty"
	}
}

// Handler receives deliveries from a channel. It runs synchronously on the
// goroutine that triggered the delivery and is never invoked concurrently
// for the same channel.
type Handler[T any] func(d *Delivery[T])

// Delivery is an emitted event as seen by its handler. The handler may call
// Veto before returning to leave the event pending for a later activation.
type Delivery[T any] struct {
	Event T

	consumed   atomic.Bool
	onConsumed func()
}

func (d *Delivery[T]) Veto() {
	d.consumed.Store(false)
}

func (d *Delivery[T]) Vetoed() bool {
	return !d.consumed.Load()
}

type Option func(*options)

type options struct {
	tracker Tracker
}

func WithTracker(t Tracker) Option {
	return func(o *options) {
		if t != nil {
			o.tracker = t
		}
	}
}

// Channel hands one-shot events from a producer to at most one subscriber.
// Only the latest emitted event is kept: emitting while a previous event is
// still pending silently replaces it. A pending event waits until an active
// subscriber is attached, and is delivered once; afterwards the channel is
// empty until the next Emit.
type Channel[T any] struct {
	name    string
	tracker Tracker

	lock     sync.Mutex
	state    state
	latest   *Delivery[T]
	sub      *Subscription[T]
	inFlight bool
	retired  bool

	// idle is called without the lock whenever the channel may have been
	// left with no subscriber and no event.
	idle func()
}

func NewChannel[T any](name string, opts ...Option) *Channel[T] {
	o := options{tracker: NopTracker}
	for _, opt := range opts {
		opt(&o)
	}
	return &Channel[T]{name: name, tracker: o.tracker}
}

func (c *Channel[T]) Name() string {
	return c.name
}

func (c *Channel[T]) Emit(ev T) {
	c.emit(ev, nil)
}

// EmitFunc emits ev and calls onConsumed once ev itself has been accepted by
// a subscriber. onConsumed never runs if ev is replaced, reset or vetoed
// until replaced.
func (c *Channel[T]) EmitFunc(ev T, onConsumed func()) {
	c.emit(ev, onConsumed)
}

func (c *Channel[T]) emit(ev T, onConsumed func()) bool {
	c.lock.Lock()
	if c.retired {
		c.lock.Unlock()
		return false
	}
	if c.state == statePending {
		c.tracker.Track(c.name, OutcomeDropped)
		logger(c.name, "event_overwritten").Debug("Replacing unconsumed one-shot event")
	}
	c.latest = &Delivery[T]{Event: ev, onConsumed: onConsumed}
	c.state = statePending
	c.tracker.Track(c.name, OutcomeEmitted)
	c.tracker.SetPending(c.name, true)
	c.lock.Unlock()

	c.dispatch()
	return true
}

// Reset discards the pending event, if any, without delivering it.
func (c *Channel[T]) Reset() {
	c.lock.Lock()
	if c.state != stateEmpty {
		c.state = stateEmpty
		c.latest = nil
		c.tracker.Track(c.name, OutcomeReset)
		c.tracker.SetPending(c.name, false)
	}
	c.lock.Unlock()

	c.notifyIdle()
}

func (c *Channel[T]) Pending() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state != stateEmpty
}

// Attach makes h the channel's only subscriber, replacing any previous one.
// A pending event is delivered right away if owner is active, otherwise on
// the owner's next activation.
func (c *Channel[T]) Attach(owner Owner, h Handler[T]) *Subscription[T] {
	sub, _ := c.attach(owner, h)
	return sub
}

func (c *Channel[T]) attach(owner Owner, h Handler[T]) (*Subscription[T], bool) {
	sub := newSubscription(c, owner, h)

	c.lock.Lock()
	if c.retired {
		c.lock.Unlock()
		return nil, false
	}
	prev := c.sub
	c.sub = sub
	c.lock.Unlock()

	if prev != nil {
		prev.release()
	}
	sub.observeOwner()
	c.dispatch()
	return sub, true
}

// Detach stops deliveries to sub. Detaching a subscription that was already
// replaced or detached is a no-op. A handler already running is not interrupted.
func (c *Channel[T]) Detach(sub *Subscription[T]) {
	if sub == nil {
		return
	}
	c.lock.Lock()
	if c.sub == sub {
		c.sub = nil
	}
	c.lock.Unlock()
	sub.release()
	c.notifyIdle()
}

// Status is a point-in-time view of a channel.
type Status struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Attached bool   `json:"attached"`
	Active   bool   `json:"active"`
}

func (c *Channel[T]) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	st := Status{Name: c.name, State: c.state.String(), Attached: c.sub != nil}
	if c.sub != nil {
		st.Active = c.sub.owner.Active()
	}
	return st
}

func (c *Channel[T]) current(sub *Subscription[T]) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sub == sub
}

// retireIfIdle marks the channel unusable when nothing references its state
// anymore. Emits and attaches on a retired channel are refused so the owner
// can redirect them to a fresh instance.
func (c *Channel[T]) retireIfIdle() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.sub != nil || c.state != stateEmpty || c.inFlight {
		return false
	}
	c.retired = true
	return true
}

func (c *Channel[T]) notifyIdle() {
	if c.idle != nil {
		c.idle()
	}
}

func (c *Channel[T]) isRetired() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.retired
}

func (c *Channel[T]) dispatch() {
	for c.deliverNext() {
	}
}

// deliverNext runs one delivery attempt and reports whether another attempt
// is due: a newer event arrived, or a pending event now has a different
// subscriber than the one the handler ran for. A handler panic still hands
// such work on before the panic goes up.
func (c *Channel[T]) deliverNext() (more bool) {
	c.lock.Lock()
	d, sub := c.nextLocked()
	if d == nil {
		c.lock.Unlock()
		return false
	}
	c.state = stateDelivering
	c.inFlight = true
	d.consumed.Store(true)
	c.lock.Unlock()

	completed := false
	defer func() {
		c.lock.Lock()
		var onConsumed func()
		more, onConsumed = c.settleLocked(d, sub, completed)
		unsubscribed := c.sub == nil
		c.lock.Unlock()

		if onConsumed != nil {
			onConsumed()
		}
		if unsubscribed {
			c.notifyIdle()
		}
		if !completed && more {
			c.dispatch()
		}
	}()

	sub.handler(d)
	completed = true
	return false
}

func (c *Channel[T]) nextLocked() (*Delivery[T], *Subscription[T]) {
	if c.inFlight || c.state != statePending || c.sub == nil {
		return nil, nil
	}
	if !c.sub.owner.Active() {
		return nil, nil
	}
	return c.latest, c.sub
}

func (c *Channel[T]) settleLocked(d *Delivery[T], sub *Subscription[T], completed bool) (more bool, onConsumed func()) {
	c.inFlight = false
	current := c.latest == d && c.state == stateDelivering

	switch {
	case !completed:
		// handler panicked, keep the event around for the next attempt
		if current {
			c.state = statePending
		}
	case d.consumed.Load():
		c.tracker.Track(c.name, OutcomeDelivered)
		onConsumed = d.onConsumed
		if current {
			c.state = stateEmpty
			c.latest = nil
			c.tracker.SetPending(c.name, false)
		}
	default:
		c.tracker.Track(c.name, OutcomeVetoed)
		if current {
			c.state = statePending
		}
	}

	// A vetoed or panicking event is only retried by the same subscriber on
	// its next activation, never in this turn.
	more = c.state == statePending && (c.latest != d || (c.sub != nil && c.sub != sub))
	return more, onConsumed
}

func logger(channel, code string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"category": "oneshot_channel",
		"channel":  channel,
		"code":     code,
	})
}
