// Package session keeps at most one live engine per chat and wires its events
// to persistence and to the connections attached to the chat.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/eventbus"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/profiles"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	ErrChatNotFound      = errors.New("session: chat not found")
	ErrDashboardNotFound = errors.New("session: dashboard not found")
	ErrProfileNotFound   = profiles.ErrProfileNotFound
	ErrClosed            = errors.New("session: registry closed")
)

// Store is the persistence the registry needs.
type Store interface {
	FindChat(ctx context.Context, chatUUID string) (*chatstore.Chat, error)
	CreateChat(ctx context.Context, profile, dashboardUUID string) (*chatstore.Chat, error)
	DeleteChat(ctx context.Context, chatUUID string) error
	ListMessages(ctx context.Context, chatUUID string) ([]chatstore.Message, error)
	AppendMessage(ctx context.Context, chatUUID string, in chatstore.NewMessage) (*chatstore.Message, error)
}

type ProfileResolver interface {
	Resolve(name string) (profiles.Profile, error)
}

// Session is a live chat: its engine plus the plumbing that carries the
// engine's events to attached connections.
type Session struct {
	ChatID  string
	Profile profiles.Profile
	Engine  engines.Engine

	pool        *ConnectionPool
	stream      *StreamCoordinator
	unsubscribe func()

	mu           sync.Mutex
	lastActivity time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Pool returns the connections attached to the chat.
func (s *Session) Pool() *ConnectionPool { return s.pool }

type Registry struct {
	store     Store
	resolver  ProfileResolver
	newEngine profiles.EngineFactory
	bus       *eventbus.Bus

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu     sync.Mutex
	live   map[string]*Session
	closed bool
	// chats being deleted or already deleted; loads finishing late must not
	// bring them back.
	removing map[string]int
	removed  map[string]struct{}

	// beforeAttach runs in Open between loading and attaching.
	beforeAttach func(chatID string)

	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewRegistry(store Store, resolver ProfileResolver, newEngine profiles.EngineFactory, bus *eventbus.Bus) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:     store,
		resolver:  resolver,
		newEngine: newEngine,
		bus:       bus,
		ctx:       ctx,
		cancel:    cancel,
		live:      map[string]*Session{},
		removing:  map[string]int{},
		removed:   map[string]struct{}{},
	}
}

func (r *Registry) lookup(chatID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.live[chatID]
	return s, ok
}

// GetOrLoad returns the live session for chatID, rehydrating it from the
// store when none is held. Concurrent calls for one id share a single load.
func (r *Registry) GetOrLoad(ctx context.Context, chatID string) (*Session, error) {
	if s, ok := r.lookup(chatID); ok {
		s.touch()
		return s, nil
	}
	v, err, _ := r.group.Do(chatID, func() (any, error) {
		if s, ok := r.lookup(chatID); ok {
			return s, nil
		}
		chat, err := r.store.FindChat(ctx, chatID)
		if errors.Is(err, chatstore.ErrNotFound) {
			return nil, errors.Wrapf(ErrChatNotFound, "%q", chatID)
		}
		if err != nil {
			return nil, err
		}
		msgs, err := r.store.ListMessages(ctx, chatID)
		if err != nil {
			return nil, err
		}
		p, err := r.resolver.Resolve(chat.ProfileName)
		if err != nil {
			return nil, err
		}
		eng, err := r.newEngine(p, historyFromMessages(msgs))
		if err != nil {
			return nil, err
		}
		log.Info().Str("component", "session").Str("chat_id", chatID).Int("turns", len(msgs)).Msg("rehydrated chat")
		return r.start(chatID, p, eng)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Open returns the live session for chatID with sink attached, loading the chat
// when needed. The sink is added under the registry lock, so an eviction can
// never leave it attached to a session that is no longer live.
func (r *Registry) Open(ctx context.Context, chatID string, sink Sink) (*Session, error) {
	for attempt := 0; attempt < 3; attempt++ {
		s, err := r.GetOrLoad(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if r.beforeAttach != nil {
			r.beforeAttach(chatID)
		}
		r.mu.Lock()
		if r.live[chatID] == s {
			s.pool.Add(sink)
			r.mu.Unlock()
			s.touch()
			return s, nil
		}
		r.mu.Unlock()
		log.Debug().Str("component", "session").Str("chat_id", chatID).Msg("session unloaded before attach, reloading")
	}
	return nil, errors.Errorf("session: chat %q keeps unloading", chatID)
}

// Create persists a new chat and starts a live session for it with sinks
// already attached.
func (r *Registry) Create(ctx context.Context, profile, dashboardID string, sinks ...Sink) (*chatstore.Chat, *Session, error) {
	p, err := r.resolver.Resolve(profile)
	if err != nil {
		return nil, nil, err
	}
	chat, err := r.store.CreateChat(ctx, profile, dashboardID)
	if errors.Is(err, chatstore.ErrNotFound) {
		return nil, nil, errors.Wrapf(ErrDashboardNotFound, "%q", dashboardID)
	}
	if err != nil {
		return nil, nil, err
	}
	v, err, _ := r.group.Do(chat.UUID, func() (any, error) {
		eng, err := r.newEngine(p, nil)
		if err != nil {
			return nil, err
		}
		return r.start(chat.UUID, p, eng, sinks...)
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("component", "session").Str("chat_id", chat.UUID).Str("profile", profile).Msg("created chat")
	return chat, v.(*Session), nil
}

// start wires eng to the bus and registers the session. Called under the
// single-flight key for chatID.
func (r *Registry) start(chatID string, p profiles.Profile, eng engines.Engine, sinks ...Sink) (*Session, error) {
	s := &Session{
		ChatID:  chatID,
		Profile: p,
		Engine:  eng,
		pool:    NewConnectionPool(chatID),
	}
	s.touch()
	s.stream = NewStreamCoordinator(chatID, r.bus, func(ctx context.Context, ev engines.Event) {
		r.deliver(ctx, s, ev)
	})
	if err := s.stream.Start(r.ctx); err != nil {
		eng.Destroy()
		return nil, err
	}
	s.unsubscribe = eng.Subscribe(engines.ListenerFunc(func(ev engines.Event) {
		if err := r.bus.Publish(chatID, ev); err != nil {
			log.Error().Err(err).Str("component", "session").Str("chat_id", chatID).Msg("failed to publish engine event")
		}
	}))

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.stop(s)
		return nil, ErrClosed
	}
	if r.isRemovedLocked(chatID) {
		r.mu.Unlock()
		r.stop(s)
		return nil, errors.Wrapf(ErrChatNotFound, "%q", chatID)
	}
	for _, sink := range sinks {
		s.pool.Add(sink)
	}
	r.live[chatID] = s
	r.mu.Unlock()
	return s, nil
}

// deliver turns one engine event into outbound messages. A finished reply is
// stored before the finish notification goes out.
func (r *Registry) deliver(ctx context.Context, s *Session, ev engines.Event) {
	s.touch()
	switch e := ev.(type) {
	case engines.Partial:
		s.pool.Broadcast(protocol.PartialReply(s.ChatID, e.Content, e.Kind))
	case engines.Finish:
		_, err := r.store.AppendMessage(ctx, s.ChatID, chatstore.NewMessage{
			Kind:      chatstore.KindAssistant,
			Body:      e.Text,
			Reasoning: e.Reasoning,
		})
		if err != nil {
			log.Error().Err(err).Str("component", "session").Str("chat_id", s.ChatID).Msg("failed to store assistant reply")
			s.pool.Broadcast(protocol.ChatErrorMsg(s.ChatID, "Failed to save reply"))
			return
		}
		s.pool.Broadcast(protocol.ReplyFinish(s.ChatID))
	case engines.Failure:
		log.Warn().Str("component", "session").Str("chat_id", s.ChatID).Str("error", e.Message).Msg("vendor error")
		s.pool.Broadcast(protocol.ChatErrorMsg(s.ChatID, e.Message))
	}
}

func (r *Registry) stop(s *Session) {
	s.Engine.Destroy()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.stream.Stop()
	s.pool.Clear()
}

func (r *Registry) isRemovedLocked(chatID string) bool {
	if r.removing[chatID] > 0 {
		return true
	}
	_, ok := r.removed[chatID]
	return ok
}

// Remove deletes the chat with its messages from the store, then destroys the
// live engine, if any. When the delete fails the live session is untouched.
func (r *Registry) Remove(ctx context.Context, chatID string) error {
	r.mu.Lock()
	r.removing[chatID]++
	r.mu.Unlock()

	err := r.store.DeleteChat(ctx, chatID)

	r.mu.Lock()
	r.removing[chatID]--
	if r.removing[chatID] <= 0 {
		delete(r.removing, chatID)
	}
	if err != nil {
		r.mu.Unlock()
		if errors.Is(err, chatstore.ErrNotFound) {
			return errors.Wrapf(ErrChatNotFound, "%q", chatID)
		}
		return err
	}
	r.removed[chatID] = struct{}{}
	s, ok := r.live[chatID]
	delete(r.live, chatID)
	r.mu.Unlock()

	if ok {
		r.stop(s)
	}
	log.Info().Str("component", "session").Str("chat_id", chatID).Bool("was_live", ok).Msg("removed chat")
	return nil
}

// Attach adds sink to the pool of the live chat. Chats that are not live are
// reported as ErrChatNotFound; Open loads them first.
func (r *Registry) Attach(chatID string, sink Sink) error {
	r.mu.Lock()
	s, ok := r.live[chatID]
	if ok {
		s.pool.Add(sink)
	}
	r.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrChatNotFound, "%q", chatID)
	}
	s.touch()
	return nil
}

// Detach removes sink from every chat it is attached to.
func (r *Registry) Detach(sink Sink) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.pool.Remove(sink)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Shutdown stops every live session. The registry cannot be used afterwards.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := r.live
	r.live = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range sessions {
		r.stop(s)
	}
	r.cancel()
}

func historyFromMessages(msgs []chatstore.Message) []engines.Turn {
	out := make([]engines.Turn, 0, len(msgs))
	for _, m := range msgs {
		t := engines.Turn{Content: m.Body, Reasoning: m.Reasoning}
		switch m.Kind {
		case chatstore.KindUser:
			t.Role = engines.RoleUser
		case chatstore.KindAssistant:
			t.Role = engines.RoleAssistant
		default:
			continue
		}
		if m.ImageData != "" {
			t.Image = &engines.Attachment{Data: m.ImageData, MediaType: m.ImageType}
		}
		out = append(out, t)
	}
	return out
}
