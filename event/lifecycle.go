package event

import (
	"sync"
)

// Lifecycle is an Observable owner driven explicitly by its consumer, e.g. a
// view going to foreground (Start), background (Stop) or away for good
// (Destroy). Once destroyed it never becomes active again.
type Lifecycle struct {
	lock      sync.Mutex
	active    bool
	destroyed bool
	nextID    int
	observers []observerEntry
}

type observerEntry struct {
	id  int
	obs LifecycleObserver
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

func (l *Lifecycle) Active() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.active
}

func (l *Lifecycle) Destroyed() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.destroyed
}

// Start activates the lifecycle, notifying observers if it was inactive.
func (l *Lifecycle) Start() {
	l.lock.Lock()
	if l.active || l.destroyed {
		l.lock.Unlock()
		return
	}
	l.active = true
	observers := l.snapshotLocked()
	l.lock.Unlock()

	for _, obs := range observers {
		obs.OnActive()
	}
}

func (l *Lifecycle) Stop() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.active = false
}

func (l *Lifecycle) Destroy() {
	l.lock.Lock()
	if l.destroyed {
		l.lock.Unlock()
		return
	}
	l.destroyed = true
	l.active = false
	observers := l.snapshotLocked()
	l.observers = nil
	l.lock.Unlock()

	for _, obs := range observers {
		obs.OnDestroy()
	}
}

// Observe registers o for transitions. Observing a destroyed lifecycle
// calls OnDestroy immediately.
func (l *Lifecycle) Observe(o LifecycleObserver) (cancel func()) {
	l.lock.Lock()
	if l.destroyed {
		l.lock.Unlock()
		o.OnDestroy()
		return func() {}
	}
	id := l.nextID
	l.nextID++
	l.observers = append(l.observers, observerEntry{id, o})
	l.lock.Unlock()

	return func() { l.remove(id) }
}

func (l *Lifecycle) remove(id int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	for i, entry := range l.observers {
		if entry.id == id {
			l.observers = append(l.observers[:i], l.observers[i+1:]...)
			return
		}
	}
}

func (l *Lifecycle) snapshotLocked() []LifecycleObserver {
	observers := make([]LifecycleObserver, len(l.observers))
	for i, entry := range l.observers {
		observers[i] = entry.obs
	}
	return observers
}
