package event

import (
	"sync"

	"github.com/google/uuid"
)

// Owner gates deliveries: a subscription only receives events while its
// owner is active. Active is called with the channel lock held.
type Owner interface {
	Active() bool
}

type OwnerFunc func() bool

func (f OwnerFunc) Active() bool {
	return f()
}

var AlwaysActive Owner = OwnerFunc(func() bool { return true })

// LifecycleObserver is notified of owner transitions.
type LifecycleObserver interface {
	OnActive()
	OnDestroy()
}

// Observable owners announce their transitions, so channels can deliver on
// activation and detach on teardown without any help from the consumer.
type Observable interface {
	Owner
	Observe(o LifecycleObserver) (cancel func())
}

// Subscription binds a handler and its owner to a channel. It stays attached
// until detached, replaced by another Attach, or its owner is destroyed.
type Subscription[T any] struct {
	id      string
	channel *Channel[T]
	owner   Owner
	handler Handler[T]

	lock          sync.Mutex
	released      bool
	cancelObserve func()
	done          chan struct{}
}

func newSubscription[T any](c *Channel[T], owner Owner, h Handler[T]) *Subscription[T] {
	if owner == nil {
		owner = AlwaysActive
	}
	return &Subscription[T]{
		id:      uuid.NewString(),
		channel: c,
		owner:   owner,
		handler: h,
		done:    make(chan struct{}),
	}
}

func (s *Subscription[T]) ID() string {
	return s.id
}

func (s *Subscription[T]) Attached() bool {
	return s.channel.current(s)
}

// Done is closed once the subscription stops receiving, whether it was
// detached, replaced or its owner was destroyed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) Detach() {
	s.channel.Detach(s)
}

// Resume tells the channel the owner became active. Owners that are not
// Observable must call it themselves to receive events held while inactive.
func (s *Subscription[T]) Resume() {
	if s.Attached() {
		s.channel.dispatch()
	}
}

func (s *Subscription[T]) OnActive() {
	s.Resume()
}

func (s *Subscription[T]) OnDestroy() {
	s.Detach()
}

func (s *Subscription[T]) observeOwner() {
	obs, ok := s.owner.(Observable)
	if !ok {
		return
	}
	cancel := obs.Observe(s)

	s.lock.Lock()
	if s.released {
		s.lock.Unlock()
		cancel()
		return
	}
	s.cancelObserve = cancel
	s.lock.Unlock()
}

func (s *Subscription[T]) release() {
	s.lock.Lock()
	if s.released {
		s.lock.Unlock()
		return
	}
	s.released = true
	cancel := s.cancelObserve
	s.cancelObserve = nil
	close(s.done)
	s.lock.Unlock()

	if cancel != nil {
		cancel()
	}
}
