package wsmux

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoPayload struct {
	Text string `json:"text"`
}

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestDispatchesTypedHandlersInOrder(t *testing.T) {
	s := NewServer()
	Handle(s, "ECHO", func(_ context.Context, c *Context, p echoPayload) error {
		return c.SendMessage("ECHOED", echoPayload{Text: strings.ToUpper(p.Text)})
	})
	conn := dial(t, startServer(t, s))

	for _, w := range []string{"a", "b", "c"} {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "ECHO", "payload": map[string]any{"text": w}}))
	}
	for _, want := range []string{"A", "B", "C"} {
		env := readEnvelope(t, conn)
		require.Equal(t, "ECHOED", env.Type)
		var p echoPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, want, p.Text)
	}
}

func TestUnknownAndMalformedFramesKeepConnectionOpen(t *testing.T) {
	s := NewServer()
	Handle(s, "PING", func(_ context.Context, c *Context, _ struct{}) error {
		return c.SendMessage("PONG", nil)
	})
	conn := dial(t, startServer(t, s))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "NOPE", "payload": 1}))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "PING"}))

	env := readEnvelope(t, conn)
	assert.Equal(t, "PONG", env.Type)
}

func TestUndecodablePayloadIsAnswered(t *testing.T) {
	s := NewServer()
	Handle(s, "ECHO", func(_ context.Context, c *Context, p echoPayload) error {
		return c.SendMessage("ECHOED", p)
	})
	s.OnInvalidPayload(func(c *Context, typ string, _ error) {
		_ = c.SendMessage("REJECTED", echoPayload{Text: typ})
	})
	conn := dial(t, startServer(t, s))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ECHO", "payload": map[string]any{"text": 42}}))
	env := readEnvelope(t, conn)
	require.Equal(t, "REJECTED", env.Type)
	var p echoPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "ECHO", p.Text)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ECHO", "payload": map[string]any{"text": "ok"}}))
	assert.Equal(t, "ECHOED", readEnvelope(t, conn).Type)
}

func TestStorageIsPrivatePerConnection(t *testing.T) {
	type counterKey struct{}
	s := NewServer()
	Handle(s, "INC", func(_ context.Context, c *Context, _ struct{}) error {
		n := Value(c.Storage(), counterKey{}, func() *int { return new(int) })
		*n++
		return c.SendMessage("COUNT", *n)
	})
	url := startServer(t, s)
	a := dial(t, url)
	b := dial(t, url)

	inc := map[string]any{"type": "INC"}
	require.NoError(t, a.WriteJSON(inc))
	require.Equal(t, json.RawMessage("1"), readEnvelope(t, a).Payload)
	require.NoError(t, a.WriteJSON(inc))
	require.Equal(t, json.RawMessage("2"), readEnvelope(t, a).Payload)
	require.NoError(t, b.WriteJSON(inc))
	require.Equal(t, json.RawMessage("1"), readEnvelope(t, b).Payload)
}

func TestDisconnectReleasesStorageAndBackgroundWork(t *testing.T) {
	released := make(chan struct{})
	cancelled := make(chan struct{})
	disconnected := make(chan string, 1)

	s := NewServer()
	s.OnDisconnect(func(c *Context) { disconnected <- c.ID() })
	Handle(s, "HOLD", func(_ context.Context, c *Context, _ struct{}) error {
		c.Storage().OnRelease(func() { close(released) })
		c.Go(func(ctx context.Context) {
			<-ctx.Done()
			close(cancelled)
		})
		return c.SendMessage("HOLDING", nil)
	})
	conn := dial(t, startServer(t, s))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "HOLD"}))
	assert.Equal(t, "HOLDING", readEnvelope(t, conn).Type)
	require.Equal(t, 1, s.Count())

	require.NoError(t, conn.Close())

	for _, ch := range []chan struct{}{released, cancelled} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for release")
		}
	}
	select {
	case id := <-disconnected:
		assert.NotEmpty(t, id)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for disconnect hook")
	}
	assert.Eventually(t, func() bool { return s.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesConnections(t *testing.T) {
	s := NewServer()
	Handle(s, "PING", func(_ context.Context, c *Context, _ struct{}) error {
		return c.SendMessage("PONG", nil)
	})
	conn := dial(t, startServer(t, s))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "PING"}))
	readEnvelope(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestStorageReleaseRunsHooksInReverse(t *testing.T) {
	st := newStorage()
	var order []int
	st.OnRelease(func() { order = append(order, 1) })
	st.OnRelease(func() { order = append(order, 2) })
	st.Set("k", "v")
	st.release()
	st.release()

	assert.Equal(t, []int{2, 1}, order)
	_, ok := st.Get("k")
	assert.False(t, ok)

	ran := false
	st.OnRelease(func() { ran = true })
	assert.True(t, ran)
}
