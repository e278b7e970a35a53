package session

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/eventbus"
	"github.com/rs/zerolog/log"
)

type eventSubscriber interface {
	Subscribe(ctx context.Context, chatID string) (<-chan *message.Message, error)
}

// StreamCoordinator consumes a chat's bus topic and hands decoded events to
// onEvent one at a time, in delivery order.
type StreamCoordinator struct {
	chatID     string
	subscriber eventSubscriber
	onEvent    func(context.Context, engines.Event)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewStreamCoordinator(chatID string, subscriber eventSubscriber, onEvent func(context.Context, engines.Event)) *StreamCoordinator {
	return &StreamCoordinator{
		chatID:     chatID,
		subscriber: subscriber,
		onEvent:    onEvent,
	}
}

// Start subscribes before returning, so events published afterwards are
// never missed.
func (sc *StreamCoordinator) Start(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := sc.subscriber.Subscribe(runCtx, sc.chatID)
	if err != nil {
		cancel()
		return err
	}
	sc.cancel = cancel
	sc.done = make(chan struct{})
	sc.running = true
	go sc.consume(runCtx, ch, sc.done)
	return nil
}

// Stop cancels the subscription and waits for the consumer to exit.
func (sc *StreamCoordinator) Stop() {
	sc.mu.Lock()
	cancel, done := sc.cancel, sc.done
	sc.cancel = nil
	sc.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (sc *StreamCoordinator) IsRunning() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.running
}

func (sc *StreamCoordinator) consume(ctx context.Context, ch <-chan *message.Message, done chan struct{}) {
	defer close(done)
	logger := log.With().Str("component", "session").Str("chat_id", sc.chatID).Logger()
	logger.Debug().Msg("stream coordinator: started")
	for msg := range ch {
		ev, err := eventbus.Decode(msg.Payload)
		if err != nil {
			logger.Warn().Err(err).Msg("stream coordinator: failed to decode event")
			msg.Ack()
			continue
		}
		if ctx.Err() == nil {
			sc.onEvent(ctx, ev)
		}
		msg.Ack()
	}
	logger.Debug().Msg("stream coordinator: stopped")
	sc.mu.Lock()
	sc.running = false
	sc.mu.Unlock()
}
