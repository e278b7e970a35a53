package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SetEvictionConfig enables eviction of sessions idle for longer than idle,
// checked every interval. A zero idle disables eviction.
func (r *Registry) SetEvictionConfig(idle, interval time.Duration) {
	r.mu.Lock()
	r.evictIdle = idle
	r.evictInterval = interval
	r.mu.Unlock()
}

// RunEviction blocks until ctx is done, evicting idle sessions. It returns
// immediately when eviction is disabled or already running.
func (r *Registry) RunEviction(ctx context.Context) {
	r.mu.Lock()
	idle, interval := r.evictIdle, r.evictInterval
	if r.evictRunning || idle <= 0 || interval <= 0 {
		r.mu.Unlock()
		return
	}
	r.evictRunning = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.evictRunning = false
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.evictIdleOnce(now); n > 0 {
				log.Info().Str("component", "session").Int("evicted", n).Msg("evicted idle chats")
			}
		}
	}
}

type busyEngine interface {
	Busy() bool
}

func (r *Registry) evictIdleOnce(now time.Time) int {
	r.mu.Lock()
	idle := r.evictIdle
	if idle <= 0 {
		r.mu.Unlock()
		return 0
	}
	sessions := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	evicted := 0
	for _, s := range sessions {
		if !shouldEvict(now, idle, s) {
			continue
		}
		r.mu.Lock()
		current, ok := r.live[s.ChatID]
		// sinks are only added under r.mu, so this check is final
		if !ok || current != s || !s.pool.IsEmpty() {
			r.mu.Unlock()
			continue
		}
		delete(r.live, s.ChatID)
		r.mu.Unlock()

		r.stop(s)
		evicted++
	}
	return evicted
}

func shouldEvict(now time.Time, idle time.Duration, s *Session) bool {
	if !s.pool.IsEmpty() {
		return false
	}
	if b, ok := s.Engine.(busyEngine); ok && b.Busy() {
		return false
	}
	s.mu.Lock()
	last := s.lastActivity
	s.mu.Unlock()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= idle
}
