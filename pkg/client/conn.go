package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Conn is a websocket connection to the chat server.
type Conn struct {
	ws      *websocket.Conn
	in      chan protocol.Envelope
	writeMu sync.Mutex

	errMu sync.Mutex
	err   error
}

// Dial connects to url (ws:// or wss://) and starts reading envelopes.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "client: dial %s", url)
	}
	c := &Conn{ws: ws, in: make(chan protocol.Envelope, 64)}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.in)
	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setErr(err)
			}
			return
		}
		log.Debug().Str("component", "client").Str("type", env.Type).Msg("received")
		c.in <- env
	}
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Incoming is closed when the connection ends.
func (c *Conn) Incoming() <-chan protocol.Envelope { return c.in }

func (c *Conn) Send(typ string, payload any) error {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrapf(c.ws.WriteJSON(env), "client: send %s", typ)
}

func (c *Conn) StartChat(profile, dashboardID string) error {
	return c.Send(protocol.TypeStartChat, protocol.StartChat{Profile: profile, DashboardID: dashboardID})
}

func (c *Conn) PostMessage(chatID, content string, img *protocol.Image) error {
	return c.Send(protocol.TypePostMessage, protocol.PostMessage{ChatID: chatID, Content: content, Image: img})
}

func (c *Conn) DeleteChat(chatID string) error {
	return c.Send(protocol.TypeDeleteChat, protocol.DeleteChat{ChatID: chatID})
}

func (c *Conn) RunWidget(widgetID string) error {
	return c.Send(protocol.TypeRunWidget, protocol.RunWidget{UUID: widgetID})
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
