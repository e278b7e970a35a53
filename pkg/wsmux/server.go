// Package wsmux multiplexes typed messages over one websocket per client.
//
// Every frame is a JSON envelope {type, payload}. Handlers are registered per
// type; each connection dispatches its frames in arrival order and owns a
// private Storage that lives exactly as long as the connection.
package wsmux

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Envelope is the wire shape of every message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HandlerFunc handles one inbound payload. A returned error is logged; it does
// not close the connection.
type HandlerFunc func(ctx context.Context, c *Context, payload json.RawMessage) error

// Handle registers a handler whose payload is decoded into P first. Payloads
// that do not decode go to the OnInvalidPayload hooks instead of h.
func Handle[P any](s *Server, typ string, h func(ctx context.Context, c *Context, p P) error) {
	s.Register(typ, func(ctx context.Context, c *Context, raw json.RawMessage) error {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				c.log.Warn().Err(err).Str("type", typ).Msg("rejecting undecodable payload")
				s.invalidPayload(c, typ, err)
				return nil
			}
		}
		return h(ctx, c, p)
	})
}

type Options struct {
	ReadLimit   int64
	WriteWait   time.Duration
	PongWait    time.Duration
	PingPeriod  time.Duration
	SendBuffer  int
	CheckOrigin func(r *http.Request) bool
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:  16 << 20,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 50 * time.Second,
		SendBuffer: 256,
	}
}

type Option func(*Options)

func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(o *Options) { o.CheckOrigin = f }
}

func WithSendBuffer(n int) Option {
	return func(o *Options) { o.SendBuffer = n }
}

func WithReadLimit(n int64) Option {
	return func(o *Options) { o.ReadLimit = n }
}

func WithPingPeriod(ping, pong time.Duration) Option {
	return func(o *Options) {
		o.PingPeriod = ping
		o.PongWait = pong
	}
}

type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	onConnect    []func(*Context)
	onDisconnect []func(*Context)
	onInvalid    []func(c *Context, typ string, err error)
	conns        map[*Context]struct{}
	closed       bool
}

func NewServer(opts ...Option) *Server {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	checkOrigin := o.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		opts: o,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		handlers: map[string]HandlerFunc{},
		conns:    map[*Context]struct{}{},
	}
}

// Register binds h to typ, replacing any previous handler.
func (s *Server) Register(typ string, h HandlerFunc) *Server {
	s.mu.Lock()
	s.handlers[typ] = h
	s.mu.Unlock()
	return s
}

func (s *Server) OnConnect(f func(*Context)) {
	s.mu.Lock()
	s.onConnect = append(s.onConnect, f)
	s.mu.Unlock()
}

func (s *Server) OnDisconnect(f func(*Context)) {
	s.mu.Lock()
	s.onDisconnect = append(s.onDisconnect, f)
	s.mu.Unlock()
}

// OnInvalidPayload registers f to answer frames whose payload does not match
// the handler's type.
func (s *Server) OnInvalidPayload(f func(c *Context, typ string, err error)) {
	s.mu.Lock()
	s.onInvalid = append(s.onInvalid, f)
	s.mu.Unlock()
}

func (s *Server) invalidPayload(c *Context, typ string, err error) {
	s.mu.RLock()
	hooks := append([]func(*Context, string, error){}, s.onInvalid...)
	s.mu.RUnlock()
	for _, f := range hooks {
		f(c, typ, err)
	}
}

// Count returns the number of open connections.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) handler(typ string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[typ]
	return h, ok
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "wsmux").Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	c := newContext(uuid.NewString(), ws, s.opts)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c] = struct{}{}
	connectHooks := append([]func(*Context){}, s.onConnect...)
	s.mu.Unlock()

	c.log.Info().Str("remote", r.RemoteAddr).Msg("connection opened")
	for _, f := range connectHooks {
		f(c)
	}

	go c.writePump()
	s.readPump(c)
}

func (s *Server) readPump(c *Context) {
	defer s.disconnect(c)

	c.ws.SetReadLimit(s.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			c.log.Debug().Int("message_type", mt).Msg("dropping non-text frame")
			continue
		}
		s.dispatch(c, data)
	}
}

func (s *Server) dispatch(c *Context, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}
	h, ok := s.handler(env.Type)
	if !ok {
		c.log.Warn().Str("type", env.Type).Msg("dropping frame of unknown type")
		return
	}
	c.log.Debug().Str("type", env.Type).Int("bytes", len(data)).Msg("dispatch")
	if err := h(c.ctx, c, env.Payload); err != nil {
		c.log.Error().Err(err).Str("type", env.Type).Msg("handler failed")
	}
}

func (s *Server) disconnect(c *Context) {
	s.mu.Lock()
	delete(s.conns, c)
	hooks := append([]func(*Context){}, s.onDisconnect...)
	s.mu.Unlock()

	c.close()
	for _, f := range hooks {
		f(c)
	}
	c.storage.release()
	c.wg.Wait()
	c.log.Info().Msg("connection closed")
}

// Shutdown closes every connection and waits for their background work, or
// for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Context, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for s.Count() > 0 {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "wsmux: shutdown")
		case <-ticker.C:
		}
	}
	return nil
}
