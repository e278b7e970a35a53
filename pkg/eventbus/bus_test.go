package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/odosui/agora/pkg/engines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewInMemory(nil)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, "c1")
	require.NoError(t, err)

	sent := []engines.Event{
		engines.Partial{Content: "hm", Kind: engines.KindReasoning},
		engines.Partial{Content: "Hel", Kind: engines.KindRegular},
		engines.Partial{Content: "lo", Kind: engines.KindRegular},
		engines.Finish{Text: "Hello", Reasoning: "hm"},
	}
	go func() {
		for _, ev := range sent {
			_ = bus.Publish("c1", ev)
		}
	}()

	var got []engines.Event
	for len(got) < len(sent) {
		select {
		case msg := <-ch:
			ev, err := Decode(msg.Payload)
			require.NoError(t, err)
			assert.Equal(t, "c1", msg.Metadata.Get("chat_id"))
			got = append(got, ev)
			msg.Ack()
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for events")
		}
	}
	assert.Equal(t, sent, got)
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewInMemory(nil)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	other, err := bus.Subscribe(ctx, "other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish("c1", engines.Failure{Message: "x"}))

	select {
	case msg := <-other:
		t.Fatalf("unexpected message %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`))
	require.Error(t, err)
	_, err = Decode([]byte(`not json`))
	require.Error(t, err)

	ev, err := Decode([]byte(`{"type":"partial","content":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, engines.Partial{Content: "x", Kind: engines.KindRegular}, ev)
}
