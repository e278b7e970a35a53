package wsmux

import "sync"

// Storage is state private to one connection. It is created on connect and
// released on disconnect; release runs the OnRelease hooks in reverse order.
type Storage struct {
	mu       sync.Mutex
	values   map[any]any
	hooks    []func()
	released bool
}

func newStorage() *Storage {
	return &Storage{values: map[any]any{}}
}

func (s *Storage) Get(key any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Storage) Set(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.values[key] = value
}

func (s *Storage) Delete(key any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// LoadOrStore returns the value for key, creating it with init when absent.
// Check and create happen under one lock.
func (s *Storage) LoadOrStore(key any, init func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	v := init()
	if !s.released {
		s.values[key] = v
	}
	return v
}

// OnRelease registers f to run when the connection closes. If the storage is
// already released f runs immediately.
func (s *Storage) OnRelease(f func()) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		f()
		return
	}
	s.hooks = append(s.hooks, f)
	s.mu.Unlock()
}

func (s *Storage) release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	hooks := s.hooks
	s.hooks = nil
	s.values = map[any]any{}
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// Value returns the typed value stored under key, creating it with init when
// absent.
func Value[T any](s *Storage, key any, init func() T) T {
	return s.LoadOrStore(key, func() any { return init() }).(T)
}
