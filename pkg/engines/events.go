package engines

import "sync"

// Kind classifies partial content.
type Kind string

const (
	KindRegular   Kind = "regular"
	KindReasoning Kind = "reasoning"
)

// Event is one of Partial, Finish or Failure.
type Event interface {
	isEvent()
}

type Partial struct {
	Content string
	Kind    Kind
}

type Finish struct {
	Text      string
	Reasoning string
}

type Failure struct {
	Message string
}

func (Partial) isEvent() {}
func (Finish) isEvent()  {}
func (Failure) isEvent() {}

type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// OnPartial subscribes f to partial events only.
func OnPartial(e Engine, f func(Partial)) func() {
	return e.Subscribe(ListenerFunc(func(ev Event) {
		if p, ok := ev.(Partial); ok {
			f(p)
		}
	}))
}

// OnFinish subscribes f to finish events only.
func OnFinish(e Engine, f func(Finish)) func() {
	return e.Subscribe(ListenerFunc(func(ev Event) {
		if fin, ok := ev.(Finish); ok {
			f(fin)
		}
	}))
}

// OnError subscribes f to failure events only.
func OnError(e Engine, f func(Failure)) func() {
	return e.Subscribe(ListenerFunc(func(ev Event) {
		if fail, ok := ev.(Failure); ok {
			f(fail)
		}
	}))
}

type subscription struct {
	id int
	l  Listener
}

// broadcaster fans events out to listeners in registration order.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
	closed bool
}

func (b *broadcaster) subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, l: l})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *broadcaster) emit(ev Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.l.OnEvent(ev)
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	b.closed = true
	b.subs = nil
	b.mu.Unlock()
}
