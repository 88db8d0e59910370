package prefs

import (
	"encoding/json"
	"time"
)

// storedValue keeps some data together with its expiration time, so that
// backends without native expiry and remote stores shared by many instances
// agree on when a value stops being valid.
type storedValue struct {
	FreshUntil time.Time       `json:"freshUntil"`
	Value      json.RawMessage `json:"value"`
}

func newStoredValue(value interface{}, ttl time.Duration) (storedValue, error) {
	bytes, err := json.Marshal(value)
	if err != nil {
		return storedValue{}, err
	}

	v := storedValue{Value: json.RawMessage(bytes)}
	if ttl > 0 {
		v.FreshUntil = time.Now().Add(ttl)
	}
	return v, nil
}

func (v storedValue) Expires() bool {
	return !v.FreshUntil.IsZero()
}

func (v storedValue) TTL() time.Duration {
	return time.Until(v.FreshUntil)
}

func (v storedValue) Fresh() bool {
	return !v.Expires() || v.TTL() > 0
}
