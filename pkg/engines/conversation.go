package engines

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// turnFunc performs one vendor round trip over history (the new user turn is
// the last entry). onDelta must only be called before turnFunc returns.
type turnFunc func(ctx context.Context, history []Turn, onDelta func(Kind, string)) (text string, reasoning string, err error)

type queuedTurn struct {
	text string
	att  *Attachment
}

// conversation holds the state shared by every adapter: the canonical
// transcript, the FIFO of posted turns and the listener set. Turns run one at
// a time in posting order.
type conversation struct {
	vendor Vendor
	model  string
	run    turnFunc

	bc broadcaster

	mu        sync.Mutex
	history   []Turn
	queue     []queuedTurn
	running   bool
	destroyed bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newConversation(vendor Vendor, model string, seed []Turn, run turnFunc) *conversation {
	ctx, cancel := context.WithCancel(context.Background())
	history := make([]Turn, len(seed))
	copy(history, seed)
	return &conversation{
		vendor:  vendor,
		model:   model,
		run:     run,
		history: history,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *conversation) PostMessage(text string, att *Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.enqueueLocked(queuedTurn{text: text, att: att})
	if !c.running {
		c.running = true
		go c.drain()
	}
}

func (c *conversation) Subscribe(l Listener) func() {
	return c.bc.subscribe(l)
}

func (c *conversation) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.history))
	copy(out, c.history)
	return out
}

// Destroy also cancels the in-flight vendor call, if any.
func (c *conversation) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.queue = nil
	c.history = nil
	c.mu.Unlock()
	c.cancel()
	c.bc.close()
}

// Busy reports whether a turn is running or queued.
func (c *conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running || len(c.queue) > 0
}

func (c *conversation) enqueueLocked(q queuedTurn) {
	c.queue = append(c.queue, q)
}

func (c *conversation) dequeueLocked() (queuedTurn, bool) {
	if len(c.queue) == 0 {
		return queuedTurn{}, false
	}
	q := c.queue[0]
	c.queue = c.queue[1:]
	return q, true
}

func (c *conversation) drain() {
	for {
		c.mu.Lock()
		q, ok := c.dequeueLocked()
		if !ok || c.destroyed {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.history = append(c.history, Turn{Role: RoleUser, Content: q.text, Image: q.att})
		snapshot := make([]Turn, len(c.history))
		copy(snapshot, c.history)
		c.mu.Unlock()

		c.runTurn(snapshot)
	}
}

func (c *conversation) runTurn(history []Turn) {
	text, reasoning, err := c.run(c.ctx, history, func(k Kind, s string) {
		c.bc.emit(Partial{Content: s, Kind: k})
	})

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.mu.Unlock()
		log.Warn().Err(err).Str("component", "engines").Str("vendor", string(c.vendor)).Str("model", c.model).Msg("vendor turn failed")
		c.bc.emit(Failure{Message: describeError(err)})
		return
	}
	c.history = append(c.history, Turn{Role: RoleAssistant, Content: text, Reasoning: reasoning})
	c.mu.Unlock()

	c.bc.emit(Finish{Text: text, Reasoning: reasoning})
}
