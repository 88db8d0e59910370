package testUtils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	methodGet = "Get"
	methodSet = "Set"
	methodDel = "Del"

	Any anyMatcher = "any"
)

// FakeStore is a JSON-backed prefs.Store recording its calls and able to
// fail chosen methods for chosen keys.
type FakeStore struct {
	mu     sync.Mutex
	data   map[string]*storeEntry
	toFail map[string]error
	calls  []*methodCall
}

type storeEntry struct {
	expiration time.Time
	value      json.RawMessage
}

type methodCall struct {
	method string
	count  int
	key    string
	args   []interface{}
}

type Matcher interface {
	Matches(value interface{}) bool
}

type anyMatcher string

func NewFakeStore() *FakeStore {
	s := &FakeStore{}
	return s.Reset()
}

func (s *FakeStore) Reset() *FakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]*storeEntry)
	s.toFail = make(map[string]error)
	s.calls = make([]*methodCall, 0, 10)
	return s
}

func (s *FakeStore) Get(key string, result interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logCall(methodGet, key)
	if err := s.shouldFail(methodGet, key); err != nil {
		return false, err
	}

	entry, exists := s.data[key]
	if !exists || (!entry.expiration.IsZero() && entry.expiration.Before(time.Now())) {
		return false, nil
	}
	if err := json.Unmarshal(entry.value, result); err != nil {
		return false, errors.Wrapf(err, "Failed to unmarshal stored data")
	}
	return true, nil
}

func (s *FakeStore) Set(key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logCall(methodSet, key, value, ttl)
	if err := s.shouldFail(methodSet, key); err != nil {
		return err
	}
	return s.populate(key, value, ttl)
}

func (s *FakeStore) Del(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logCall(methodDel, key)
	if err := s.shouldFail(methodDel, key); err != nil {
		return err
	}
	delete(s.data, key)
	return nil
}

// Populate stores data bypassing call recording and failures.
func (s *FakeStore) Populate(key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.populate(key, value, ttl)
}

func (s *FakeStore) DeleteKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

func (s *FakeStore) GetMustHaveBeenCalledWith(key string, times int) error {
	return s.ensureCalled(methodGet, times, key)
}

func (s *FakeStore) SetMustHaveBeenCalledWith(key string, value interface{}, ttl interface{}) error {
	return s.ensureCalled(methodSet, -1, key, value, ttl)
}

func (s *FakeStore) GetMustNotHaveBeenCalledWith(key string) error {
	return s.ensureNotCalled(methodGet, key)
}

func (s *FakeStore) SetMustNotHaveBeenCalledWith(key string, value interface{}, ttl interface{}) error {
	return s.ensureNotCalled(methodSet, key, value, ttl)
}

func (s *FakeStore) FailGetFor(key string, err error) {
	s.failMethodFor(methodGet, key, err)
}

func (s *FakeStore) FailSetFor(key string, err error) {
	s.failMethodFor(methodSet, key, err)
}

func (s *FakeStore) FailDelFor(key string, err error) {
	s.failMethodFor(methodDel, key, err)
}

func (s *FakeStore) populate(key string, value interface{}, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "Failed to save data to fake store")
	}

	entry := &storeEntry{value: json.RawMessage(bytes)}
	if ttl > 0 {
		entry.expiration = time.Now().Add(ttl)
	}
	s.data[key] = entry
	return nil
}

func (s *FakeStore) logCall(method, key string, args ...interface{}) {
	if call := s.findCallMatching(method, key, args...); call != nil {
		call.count++
		return
	}

	s.calls = append(s.calls, &methodCall{
		method: method,
		count:  1,
		key:    key,
		args:   args,
	})
}

func (s *FakeStore) ensureCalled(method string, times int, key string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.findCallMatching(method, key, args...)
	if call == nil || call.count == 0 {
		return errors.Errorf("Expected %s(%s) to have been called, but it was not", method, key)
	}

	if times >= 0 && call.count != times {
		return errors.Errorf("Expected %s(%s) to have been called %d times, but it was called %d times", method, key, times, call.count)
	}
	call.count = 0

	return nil
}

func (s *FakeStore) ensureNotCalled(method, key string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.findCallMatching(method, key, args...)
	if call != nil && call.count != 0 {
		return errors.Errorf("Expected %s(%s) to have not been called, but it was", method, key)
	}
	return nil
}

func (s *FakeStore) findCallMatching(method, key string, args ...interface{}) *methodCall {
	for _, call := range s.calls {
		if call.matches(method, key, args...) {
			return call
		}
	}
	return nil
}

func (s *FakeStore) failMethodFor(method, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toFail[failFingerprint(method, key)] = err
}

func (s *FakeStore) shouldFail(method, key string) error {
	return s.toFail[failFingerprint(method, key)]
}

func (c *methodCall) matches(method, key string, args ...interface{}) bool {
	if c.method != method || c.key != key || len(c.args) != len(args) {
		return false
	}

	for i, value := range c.args {
		if m, isMatcher := args[i].(Matcher); isMatcher {
			if !m.Matches(value) {
				return false
			}
			continue
		}

		v := reflect.ValueOf(value)
		a := reflect.ValueOf(args[i])
		if v.Type() != a.Type() {
			return false
		}

		callBytes, _ := json.Marshal(value)
		argBytes, _ := json.Marshal(args[i])

		if !bytes.Equal(callBytes, argBytes) {
			return false
		}
	}

	return true
}

func (m anyMatcher) Matches(value interface{}) bool {
	return true
}

func failFingerprint(method, key string) string {
	return fmt.Sprintf("%s::%s", method, key)
}
