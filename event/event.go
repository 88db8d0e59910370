package event

// Event is the closed set of one-shot occurrences a producer can hand to a
// view. Producer code needing an ad-hoc kind should use Custom instead of
// implementing Event.
type Event interface {
	isEvent()
}

// ResID identifies a localized string resource. The zero value means "none".
type ResID int

const NoRes ResID = 0

// Resources used by DiscardChangesDialog.
const (
	DiscardChangesMessage ResID = 1000 + iota
	DiscardChangesPositive
	KeepEditingNegative
)

// Action is an opaque zero-argument callback carried by events. Two events
// are only equal when they carry the very same *Action.
type Action struct {
	fn func()
}

func NewAction(fn func()) *Action {
	return &Action{fn: fn}
}

// Run invokes the callback. Nil actions are no-ops.
func (a *Action) Run() {
	if a != nil && a.fn != nil {
		a.fn()
	}
}

type Exit struct{}

type ExitWithResult struct {
	Result interface{}
}

type ShowMessage struct {
	Message ResID
	Args    []string
	Undo    *Action
}

// Equal compares the message, its arguments and the identity of the undo action.
func (m ShowMessage) Equal(other ShowMessage) bool {
	if m.Message != other.Message || m.Undo != other.Undo || len(m.Args) != len(other.Args) {
		return false
	}
	for i := range m.Args {
		if m.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

type ShowDialog struct {
	Title      ResID
	Message    ResID
	Positive   ResID
	OnPositive *Action
	Negative   ResID
	OnNegative *Action
}

func (d ShowDialog) Equal(other ShowDialog) bool {
	return d == other
}

// HasNegative reports whether the dialog carries a negative button.
func (d ShowDialog) HasNegative() bool {
	return d.Negative != NoRes
}

// DiscardChangesDialog builds the usual "discard unsaved changes?" prompt.
func DiscardChangesDialog(onDiscard, onKeepEditing *Action) ShowDialog {
	return ShowDialog{
		Message:    DiscardChangesMessage,
		Positive:   DiscardChangesPositive,
		OnPositive: onDiscard,
		Negative:   KeepEditingNegative,
		OnNegative: onKeepEditing,
	}
}

// Custom wraps a producer-defined payload. Kind lets handlers tell custom
// events apart without type-asserting the payload.
type Custom struct {
	Kind    string
	Payload interface{}
}

func (Exit) isEvent()           {}
func (ExitWithResult) isEvent() {}
func (ShowMessage) isEvent()    {}
func (ShowDialog) isEvent()     {}
func (Custom) isEvent()         {}
