package wsmux

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnClosed     = errors.New("wsmux: connection closed")
	ErrSendBufferFull = errors.New("wsmux: send buffer full")
)

// Context is the per-connection handle passed to every handler.
type Context struct {
	id      string
	ws      *websocket.Conn
	opts    Options
	send    chan []byte
	storage *Storage
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

func newContext(id string, ws *websocket.Conn, opts Options) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	return &Context{
		id:      id,
		ws:      ws,
		opts:    opts,
		send:    make(chan []byte, opts.SendBuffer),
		storage: newStorage(),
		log:     log.With().Str("component", "wsmux").Str("conn_id", id).Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Context) ID() string { return c.id }

func (c *Context) Logger() *zerolog.Logger { return &c.log }

// Storage returns the connection-scoped state.
func (c *Context) Storage() *Storage { return c.storage }

// Done is closed when the connection goes away.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

// Send queues one envelope for writing. It never blocks: a connection whose
// buffer is full is closed.
func (c *Context) Send(env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "wsmux: marshal envelope")
	}
	return c.SendRaw(b)
}

// SendMessage marshals payload into an envelope of type typ and sends it.
func (c *Context) SendMessage(typ string, payload any) error {
	env := Envelope{Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrapf(err, "wsmux: marshal %s payload", typ)
		}
		env.Payload = b
	}
	return c.Send(env)
}

func (c *Context) SendRaw(b []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
		c.log.Warn().Int("buffer", cap(c.send)).Msg("send buffer full, closing connection")
		c.close()
		return ErrSendBufferFull
	}
}

// Go runs f in the background, bound to the connection lifetime. The context
// passed to f is cancelled on disconnect, and disconnect waits for f.
func (c *Context) Go(f func(ctx context.Context)) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		f(c.ctx)
	}()
}

func (c *Context) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

func (c *Context) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
