package session

import (
	"sync"

	"github.com/odosui/agora/pkg/wsmux"
	"github.com/rs/zerolog/log"
)

// Sink receives outbound envelopes for a chat. *wsmux.Context is the usual
// implementation.
type Sink interface {
	ID() string
	Send(env wsmux.Envelope) error
}

// ConnectionPool holds the sinks attached to one chat.
type ConnectionPool struct {
	chatID string
	mu     sync.Mutex
	sinks  map[string]Sink
}

func NewConnectionPool(chatID string) *ConnectionPool {
	return &ConnectionPool{
		chatID: chatID,
		sinks:  map[string]Sink{},
	}
}

func (cp *ConnectionPool) Add(s Sink) {
	if cp == nil || s == nil {
		return
	}
	cp.mu.Lock()
	cp.sinks[s.ID()] = s
	cp.mu.Unlock()
}

func (cp *ConnectionPool) Remove(s Sink) {
	if cp == nil || s == nil {
		return
	}
	cp.mu.Lock()
	delete(cp.sinks, s.ID())
	cp.mu.Unlock()
}

// Broadcast sends env to every sink. Sinks that fail are dropped.
func (cp *ConnectionPool) Broadcast(env wsmux.Envelope) {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	for id, s := range cp.sinks {
		if err := s.Send(env); err != nil {
			log.Warn().Err(err).Str("component", "session").Str("chat_id", cp.chatID).Str("conn_id", id).Msg("send failed, dropping sink")
			delete(cp.sinks, id)
		}
	}
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.sinks)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

// Clear detaches every sink. The sinks themselves stay open.
func (cp *ConnectionPool) Clear() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	clear(cp.sinks)
	cp.mu.Unlock()
}
