package event

// Outcome of a single step in a channel's life, reported to a Tracker.
type Outcome string

const (
	OutcomeEmitted   Outcome = "emitted"
	OutcomeDelivered Outcome = "delivered"
	OutcomeDropped   Outcome = "dropped"
	OutcomeVetoed    Outcome = "vetoed"
	OutcomeReset     Outcome = "reset"
)

// Tracker receives channel activity, typically to feed metrics. Calls happen
// with channel locks held so implementations must not call back into channels.
type Tracker interface {
	Track(channel string, outcome Outcome)
	SetPending(channel string, pending bool)
}

type nopTracker struct{}

func (nopTracker) Track(string, Outcome)   {}
func (nopTracker) SetPending(string, bool) {}

// NopTracker discards everything.
var NopTracker Tracker = nopTracker{}
