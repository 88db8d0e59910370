package event

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotTransferable is returned when encoding an event which carries
// callbacks, as those only make sense inside the emitting process.
var ErrNotTransferable = errors.New("Event carries callbacks and cannot leave the process")

const (
	kindExit           = "exit"
	kindExitWithResult = "exit_with_result"
	kindShowMessage    = "show_message"
	kindCustom         = "custom"
)

// Envelope is the JSON representation of an event addressed to a channel.
// Results and custom payloads are kept raw on decoding; consumers know the
// concrete type to unmarshal them into.
type Envelope struct {
	ID         string          `json:"id,omitempty"`
	Channel    string          `json:"channel"`
	Kind       string          `json:"kind"`
	Message    ResID           `json:"message,omitempty"`
	Args       []string        `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CustomKind string          `json:"custom_kind,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func Encode(channel string, ev Event) ([]byte, error) {
	env, err := NewEnvelope(channel, ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func NewEnvelope(channel string, ev Event) (Envelope, error) {
	if err := ensureValidChannelID(channel); err != nil {
		return Envelope{}, err
	}
	env := Envelope{ID: uuid.NewString(), Channel: channel}

	var err error
	switch e := ev.(type) {
	case Exit:
		env.Kind = kindExit
	case ExitWithResult:
		env.Kind = kindExitWithResult
		env.Result, err = marshalRaw(e.Result)
	case ShowMessage:
		if e.Undo != nil {
			return Envelope{}, errors.WithStack(ErrNotTransferable)
		}
		env.Kind = kindShowMessage
		env.Message = e.Message
		env.Args = e.Args
	case Custom:
		env.Kind = kindCustom
		env.CustomKind = e.Kind
		env.Payload, err = marshalRaw(e.Payload)
	case ShowDialog:
		return Envelope{}, errors.WithStack(ErrNotTransferable)
	default:
		return Envelope{}, errors.Errorf("Unknown event type %T", ev)
	}
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "Failed to marshal %s event for channel %s", env.Kind, channel)
	}
	return env, nil
}

func Decode(data []byte) (Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, errors.Wrap(err, "Failed to unmarshal event envelope")
	}
	ev, err := env.Event()
	return env, ev, err
}

// Event rebuilds the event carried by the envelope.
func (env Envelope) Event() (Event, error) {
	if env.Channel == "" {
		return nil, errors.New("Event envelope is missing its channel")
	}

	switch env.Kind {
	case kindExit:
		return Exit{}, nil
	case kindExitWithResult:
		return ExitWithResult{Result: env.Result}, nil
	case kindShowMessage:
		if env.Message == NoRes {
			return nil, errors.New("show_message envelope is missing its message")
		}
		return ShowMessage{Message: env.Message, Args: env.Args}, nil
	case kindCustom:
		return Custom{Kind: env.CustomKind, Payload: env.Payload}, nil
	default:
		return nil, errors.Errorf("Unknown event kind %q", env.Kind)
	}
}

func marshalRaw(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	bytes, err := json.Marshal(v)
	return json.RawMessage(bytes), err
}
