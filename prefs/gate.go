package prefs

import (
	"github.com/pkg/errors"

	"github.com/vtex/go-oneshot/event"
)

const gateLogCategory = "once_gate"

// Gate remembers which "show once" events were consumed already, e.g. an
// onboarding tip or a "what's new" dialog, so they are never shown again
// even across restarts when backed by a persistent store.
//
// A key is only marked once its event is accepted by a subscriber; events
// replaced or reset before that can be emitted again.
type Gate struct {
	store     Store
	namespace string
}

func NewGate(store Store, namespace string) *Gate {
	return &Gate{store: store, namespace: namespace}
}

func (g *Gate) Seen(key string) (bool, error) {
	if err := ensureValidKey(key); err != nil {
		return false, err
	}

	var seen bool
	found, err := g.store.Get(g.storeKey(key), &seen)
	if err != nil {
		return false, errors.Wrapf(err, "Failed to read once-gate key %s", key)
	}
	return found && seen, nil
}

func (g *Gate) Mark(key string) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}
	return g.store.Set(g.storeKey(key), true, 0)
}

func (g *Gate) Forget(key string) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}
	return g.store.Del(g.storeKey(key))
}

// EmitOnceTo emits ev to the pool channel id unless key was already consumed.
func (g *Gate) EmitOnceTo(pool *event.Pool, id, key string, ev event.Event) (bool, error) {
	if err := ensureValidKey(key); err != nil {
		return false, err
	}
	if !g.shouldEmit(key) {
		return false, nil
	}
	if err := pool.EmitFunc(id, ev, g.marker(key)); err != nil {
		return false, err
	}
	return true, nil
}

// EmitOnce emits ev to ch unless key was already consumed. Failures to read
// the store are logged and the event is emitted anyway: showing a tip twice
// beats never showing it.
func EmitOnce[T any](g *Gate, ch *event.Channel[T], key string, ev T) (bool, error) {
	if err := ensureValidKey(key); err != nil {
		return false, err
	}
	if !g.shouldEmit(key) {
		return false, nil
	}
	ch.EmitFunc(ev, g.marker(key))
	return true, nil
}

func (g *Gate) shouldEmit(key string) bool {
	seen, err := g.Seen(key)
	if err != nil {
		logger(gateLogCategory, "gate_read_error", key).
			WithError(err).
			Error("Failed to check once-gate, emitting anyway")
		return true
	}
	return !seen
}

func (g *Gate) marker(key string) func() {
	return func() {
		if err := g.Mark(key); err != nil {
			logger(gateLogCategory, "gate_mark_error", key).
				WithError(err).
				Error("Failed to mark once-gate key as consumed")
		}
	}
}

func (g *Gate) storeKey(key string) string {
	if g.namespace == "" {
		return "once:" + key
	}
	return g.namespace + ":once:" + key
}
