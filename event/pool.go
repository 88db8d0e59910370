package event

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pool manages a group of event channels which are accessed via an ID,
// created on first use and dropped once they are left with neither a
// subscriber nor a pending event.
//
// Attach takes a context.Context and detaches automatically when it is done,
// so views bound to a request or a screen session don't have to remember
// to unsubscribe.
type Pool struct {
	tracker Tracker

	lock     sync.RWMutex
	channels map[string]*Channel[Event]
}

func NewPool(tracker Tracker) *Pool {
	if tracker == nil {
		tracker = NopTracker
	}
	return &Pool{
		tracker:  tracker,
		channels: map[string]*Channel[Event]{},
	}
}

func (p *Pool) Emit(id string, ev Event) error {
	return p.EmitFunc(id, ev, nil)
}

func (p *Pool) EmitFunc(id string, ev Event, onConsumed func()) error {
	if err := ensureValidChannelID(id); err != nil {
		return err
	}
	// A retired channel refuses the emit, in which case it has already
	// been removed and the next lookup creates a fresh one.
	for {
		if p.channel(id).emit(ev, onConsumed) {
			return nil
		}
		p.forget(id)
	}
}

func (p *Pool) Reset(id string) error {
	if err := ensureValidChannelID(id); err != nil {
		return err
	}
	p.lock.RLock()
	ch, ok := p.channels[id]
	p.lock.RUnlock()
	if ok {
		// retired through the idle hook if nobody is attached
		ch.Reset()
	}
	return nil
}

func (p *Pool) Attach(ctx context.Context, id string, owner Owner, h Handler[Event]) (*Subscription[Event], error) {
	if err := ensureValidChannelID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "Attach to channel %s with finished context", id)
	}

	var sub *Subscription[Event]
	for {
		var ok bool
		if sub, ok = p.channel(id).attach(owner, h); ok {
			break
		}
		p.forget(id)
	}

	go func() {
		select {
		case <-ctx.Done():
			p.Detach(id, sub)
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// Detach removes sub from its channel, dropping the channel when it is idle.
// Subscriptions detached on their own, e.g. by a destroyed lifecycle, drop
// idle channels all the same.
func (p *Pool) Detach(id string, sub *Subscription[Event]) {
	if sub == nil {
		return
	}

	p.lock.RLock()
	ch, ok := p.channels[id]
	p.lock.RUnlock()

	if (!ok || sub.channel != ch) && sub.Attached() {
		logrus.WithFields(logrus.Fields{
			"code":      "channel_not_found_err",
			"channelId": id,
			"subsId":    sub.ID(),
		}).Error("Detaching from channel not in pool anymore")
	}
	sub.Detach()
}

func (p *Pool) Snapshot() []Status {
	p.lock.RLock()
	statuses := make([]Status, 0, len(p.channels))
	for _, ch := range p.channels {
		statuses = append(statuses, ch.Status())
	}
	p.lock.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

func (p *Pool) channel(id string) *Channel[Event] {
	p.lock.RLock()
	ch, ok := p.channels[id]
	p.lock.RUnlock()
	if ok {
		return ch
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if ch, ok := p.channels[id]; ok {
		return ch
	}
	ch = NewChannel[Event](id, WithTracker(p.tracker))
	ch.idle = func() { p.retire(id, ch) }
	p.channels[id] = ch
	return ch
}

// retire drops ch from the pool if it is still the channel registered for id
// and nothing references its state anymore.
func (p *Pool) retire(id string, ch *Channel[Event]) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.channels[id] == ch && ch.retireIfIdle() {
		delete(p.channels, id)
	}
}

// forget drops a retired channel from the pool.
func (p *Pool) forget(id string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if ch, ok := p.channels[id]; ok && ch.isRetired() {
		delete(p.channels, id)
	}
}

func ensureValidChannelID(id string) error {
	if id == "" {
		return errors.New("Channel ID must not be empty")
	}
	return nil
}
