package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const defaultTimeout = 1 * time.Second

type recorder struct {
	mu  sync.Mutex
	got []Event
}

func (r *recorder) handle(d *Delivery[Event]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d.Event)
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.got...)
}

type countingTracker struct {
	mu       sync.Mutex
	outcomes map[Outcome]int
	pending  bool
}

func newCountingTracker() *countingTracker {
	return &countingTracker{outcomes: map[Outcome]int{}}
}

func (t *countingTracker) Track(_ string, o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes[o]++
}

func (t *countingTracker) SetPending(_ string, pending bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = pending
}

func (t *countingTracker) isPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *countingTracker) count(o Outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcomes[o]
}

func TestChannelDelivery(t *testing.T) {
	Convey("Given a channel", t, withTimeout(func() {
		tracker := newCountingTracker()
		ch := NewChannel[Event]("checkout", WithTracker(tracker))
		rec := &recorder{}

		Convey("Only the latest of two undelivered emits is delivered", func() {
			ch.Emit(Exit{})
			ch.Emit(ExitWithResult{Result: 7})
			ch.Attach(AlwaysActive, rec.handle)

			So(rec.events(), ShouldResemble, []Event{ExitWithResult{Result: 7}})
			So(tracker.count(OutcomeDropped), ShouldEqual, 1)
		})

		Convey("An event emitted before attaching is delivered exactly once", func() {
			msg := ShowMessage{Message: 42, Args: []string{"Jane"}}
			ch.Emit(msg)
			So(ch.Pending(), ShouldBeTrue)

			sub := ch.Attach(AlwaysActive, rec.handle)
			So(len(rec.events()), ShouldEqual, 1)
			So(rec.events()[0].(ShowMessage).Equal(msg), ShouldBeTrue)

			sub.Resume()
			So(len(rec.events()), ShouldEqual, 1)
			So(ch.Pending(), ShouldBeFalse)
			So(tracker.isPending(), ShouldBeFalse)
		})

		Convey("An inactive owner holds delivery until it is activated", func() {
			lc := NewLifecycle()
			ch.Attach(lc, rec.handle)

			ch.Emit(Exit{})
			So(rec.events(), ShouldBeEmpty)
			So(ch.Status().State, ShouldEqual, "pending")

			lc.Start()
			So(rec.events(), ShouldResemble, []Event{Exit{}})

			Convey("And later activations deliver nothing", func() {
				lc.Stop()
				lc.Start()
				So(len(rec.events()), ShouldEqual, 1)
			})
		})

		Convey("A plain owner is resumed manually", func() {
			var active atomic.Bool
			sub := ch.Attach(OwnerFunc(active.Load), rec.handle)

			ch.Emit(Exit{})
			So(rec.events(), ShouldBeEmpty)

			active.Store(true)
			So(rec.events(), ShouldBeEmpty)
			sub.Resume()
			So(rec.events(), ShouldResemble, []Event{Exit{}})
		})

		Convey("Reset discards the pending event without calling the handler", func() {
			var active atomic.Bool
			sub := ch.Attach(OwnerFunc(active.Load), rec.handle)
			ch.Emit(Exit{})

			ch.Reset()
			So(ch.Pending(), ShouldBeFalse)

			active.Store(true)
			sub.Resume()
			So(rec.events(), ShouldBeEmpty)
			So(tracker.count(OutcomeReset), ShouldEqual, 1)
		})

		Convey("Reset of an empty channel is not tracked", func() {
			ch.Reset()
			So(tracker.count(OutcomeReset), ShouldEqual, 0)
		})

		Convey("An event survives subscriber churn", func() {
			first := ch.Attach(AlwaysActive, rec.handle)
			ch.Detach(first)
			So(first.Attached(), ShouldBeFalse)

			ch.Emit(Exit{})
			So(rec.events(), ShouldBeEmpty)

			second := &recorder{}
			ch.Attach(AlwaysActive, second.handle)
			So(second.events(), ShouldResemble, []Event{Exit{}})
			So(rec.events(), ShouldBeEmpty)
		})

		Convey("Attaching again replaces the previous subscription", func() {
			first := ch.Attach(AlwaysActive, rec.handle)
			second := &recorder{}
			ch.Attach(AlwaysActive, second.handle)

			ch.Emit(Exit{})
			So(first.Attached(), ShouldBeFalse)
			So(rec.events(), ShouldBeEmpty)
			So(second.events(), ShouldResemble, []Event{Exit{}})

			Convey("And detaching the replaced one changes nothing", func() {
				first.Detach()
				ch.Emit(Exit{})
				So(len(second.events()), ShouldEqual, 2)
			})
		})

		Convey("Emitting with an active subscriber delivers synchronously", func() {
			ch.Attach(AlwaysActive, rec.handle)
			ch.Emit(Exit{})
			So(rec.events(), ShouldResemble, []Event{Exit{}})
			So(tracker.count(OutcomeDelivered), ShouldEqual, 1)
			So(tracker.count(OutcomeDropped), ShouldEqual, 0)
		})
	}))
}

func TestChannelVeto(t *testing.T) {
	Convey("Given a subscriber that vetoes the first delivery", t, withTimeout(func() {
		tracker := newCountingTracker()
		ch := NewChannel[Event]("dialogs", WithTracker(tracker))
		lc := NewLifecycle()
		lc.Start()

		calls := 0
		ch.Attach(lc, func(d *Delivery[Event]) {
			calls++
			if calls == 1 {
				d.Veto()
			}
		})

		ch.Emit(Exit{})

		Convey("The event stays pending and is not retried right away", func() {
			So(calls, ShouldEqual, 1)
			So(ch.Pending(), ShouldBeTrue)
			So(tracker.count(OutcomeVetoed), ShouldEqual, 1)
		})

		Convey("The next activation delivers it again", func() {
			lc.Stop()
			lc.Start()
			So(calls, ShouldEqual, 2)
			So(ch.Pending(), ShouldBeFalse)
		})

		Convey("A newer emit replaces the vetoed event", func() {
			ch.Emit(ExitWithResult{Result: "ok"})
			So(calls, ShouldEqual, 2)
			So(ch.Pending(), ShouldBeFalse)
		})
	}))
}

func TestChannelHandover(t *testing.T) {
	Convey("A subscriber attached during a vetoed delivery", t, withTimeout(func() {
		ch := NewChannel[Event]("dialogs")
		second := &recorder{}
		var firstCalls int

		ch.Attach(AlwaysActive, func(d *Delivery[Event]) {
			firstCalls++
			d.Veto()
			ch.Attach(AlwaysActive, second.handle)
		})
		ch.Emit(Exit{})

		Convey("Receives the event once the handler returns", func() {
			So(firstCalls, ShouldEqual, 1)
			So(second.events(), ShouldResemble, []Event{Exit{}})
			So(ch.Pending(), ShouldBeFalse)
		})

		Convey("And keeps receiving later emits", func() {
			ch.Emit(ExitWithResult{Result: 7})
			So(second.events(), ShouldResemble, []Event{Exit{}, ExitWithResult{Result: 7}})
			So(firstCalls, ShouldEqual, 1)
		})
	}))

	Convey("A subscriber attached during a delivery from another goroutine", t, withTimeout(func() {
		ch := NewChannel[Event]("dialogs")
		second := &recorder{}
		entered := make(chan struct{})
		release := make(chan struct{})

		ch.Attach(AlwaysActive, func(d *Delivery[Event]) {
			close(entered)
			<-release
			d.Veto()
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			ch.Emit(Exit{})
		}()
		<-entered
		ch.Attach(AlwaysActive, second.handle)
		So(second.events(), ShouldBeEmpty)

		close(release)
		<-done
		So(second.events(), ShouldResemble, []Event{Exit{}})
	}))

	Convey("A panicking handler that attaches a replacement", t, withTimeout(func() {
		ch := NewChannel[Event]("nav")
		rec := &recorder{}
		ch.Attach(AlwaysActive, func(d *Delivery[Event]) {
			ch.Attach(AlwaysActive, rec.handle)
			panic("boom")
		})

		So(func() { ch.Emit(Exit{}) }, ShouldPanic)
		So(rec.events(), ShouldResemble, []Event{Exit{}})
		So(ch.Pending(), ShouldBeFalse)
	}))
}

func TestChannelConsumedCallback(t *testing.T) {
	Convey("onConsumed", t, withTimeout(func() {
		ch := NewChannel[Event]("onboarding")
		consumed := 0
		onConsumed := func() { consumed++ }

		Convey("Runs once the event is accepted", func() {
			ch.EmitFunc(Exit{}, onConsumed)
			So(consumed, ShouldEqual, 0)

			ch.Attach(AlwaysActive, func(*Delivery[Event]) {})
			So(consumed, ShouldEqual, 1)
		})

		Convey("Does not run for a replaced event", func() {
			ch.EmitFunc(Exit{}, onConsumed)
			ch.Emit(Exit{})
			ch.Attach(AlwaysActive, func(*Delivery[Event]) {})
			So(consumed, ShouldEqual, 0)
		})

		Convey("Does not run for a reset event", func() {
			ch.EmitFunc(Exit{}, onConsumed)
			ch.Reset()
			ch.Attach(AlwaysActive, func(*Delivery[Event]) {})
			So(consumed, ShouldEqual, 0)
		})

		Convey("Does not run while vetoed", func() {
			ch.EmitFunc(Exit{}, onConsumed)
			ch.Attach(AlwaysActive, func(d *Delivery[Event]) { d.Veto() })
			So(consumed, ShouldEqual, 0)
		})
	}))
}

func TestChannelReentrancy(t *testing.T) {
	Convey("Emitting from inside a handler", t, withTimeout(func() {
		ch := NewChannel[Event]("nav")
		rec := &recorder{}
		depth, maxDepth := 0, 0

		ch.Attach(AlwaysActive, func(d *Delivery[Event]) {
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
			rec.handle(d)
			if _, ok := d.Event.(Exit); ok {
				ch.Emit(ExitWithResult{Result: 1})
			}
			depth--
		})
		ch.Emit(Exit{})

		Convey("Delivers the new event after the handler returns", func() {
			So(rec.events(), ShouldResemble, []Event{Exit{}, ExitWithResult{Result: 1}})
			So(maxDepth, ShouldEqual, 1)
			So(ch.Pending(), ShouldBeFalse)
		})
	}))

	Convey("A panicking handler", t, withTimeout(func() {
		ch := NewChannel[Event]("nav")
		ch.Attach(AlwaysActive, func(d *Delivery[Event]) {
			panic("boom")
		})

		So(func() { ch.Emit(Exit{}) }, ShouldPanic)

		Convey("Leaves the event pending for the next subscriber", func() {
			So(ch.Pending(), ShouldBeTrue)

			rec := &recorder{}
			ch.Attach(AlwaysActive, rec.handle)
			So(rec.events(), ShouldResemble, []Event{Exit{}})
		})
	}))
}

func TestChannelConcurrentEmits(t *testing.T) {
	Convey("Concurrent emits never run the handler concurrently", t, withTimeout(func() {
		ch := NewChannel[Event]("concurrent")
		var running, overlaps int32
		var delivered int32

		ch.Attach(AlwaysActive, func(*Delivery[Event]) {
			if atomic.AddInt32(&running, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&delivered, 1)
			atomic.AddInt32(&running, -1)
		})

		wg := sync.WaitGroup{}
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ch.Emit(ExitWithResult{Result: i})
			}(i)
		}
		wg.Wait()

		So(atomic.LoadInt32(&overlaps), ShouldEqual, 0)
		So(atomic.LoadInt32(&delivered), ShouldBeGreaterThan, 0)
		So(ch.Pending(), ShouldBeFalse)
	}))
}

func withTimeout(f func()) func() {
	return func() {
		done := make(chan struct{})
		defer close(done)

		go func() {
			select {
			case <-done:
			case <-time.After(defaultTimeout):
				panic("Timeout in event tests!")
			}
		}()

		f()
	}
}
