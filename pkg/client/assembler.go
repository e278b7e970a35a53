// Package client is the consuming side of the chat protocol: a websocket
// connection plus the reply assembler that turns the event stream into a
// visible transcript.
package client

import (
	"encoding/json"

	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/pkg/errors"
)

var (
	ErrDisabled = errors.New("client: sending is disabled for this chat")
	ErrAwaiting = errors.New("client: still waiting for a reply")
)

type Message struct {
	Role      engines.Role
	Content   string
	Reasoning string
	Image     *protocol.Image
}

// Assembler builds the visible transcript of one chat from outbound events.
type Assembler struct {
	ChatID   string
	Messages []Message
	Awaiting bool
	Err      string
	Disabled bool
}

func NewAssembler(chatID string, history []Message) *Assembler {
	return &Assembler{ChatID: chatID, Messages: append([]Message(nil), history...)}
}

// MessagesFromDTOs converts a stored transcript as served by the REST API.
func MessagesFromDTOs(dtos []chatstore.MessageDTO) []Message {
	out := make([]Message, 0, len(dtos))
	for _, d := range dtos {
		m := Message{Role: engines.Role(d.Kind), Content: d.Body, Reasoning: d.Reasoning}
		if d.Image != nil {
			m.Image = &protocol.Image{Data: d.Image.Data, Type: d.Image.Type}
		}
		out = append(out, m)
	}
	return out
}

// CanSend reports whether Submit would accept a message.
func (a *Assembler) CanSend() bool {
	return !a.Disabled && !a.Awaiting
}

// Submit records a user message and marks the chat as awaiting a reply.
func (a *Assembler) Submit(text string, img *protocol.Image) error {
	if a.Disabled {
		return ErrDisabled
	}
	if a.Awaiting {
		return ErrAwaiting
	}
	a.Messages = append(a.Messages, Message{Role: engines.RoleUser, Content: text, Image: img})
	a.Awaiting = true
	return nil
}

// Apply folds one envelope into the transcript. It reports whether the
// envelope concerned this chat.
func (a *Assembler) Apply(env protocol.Envelope) (bool, error) {
	switch env.Type {
	case protocol.TypeChatPartialReply:
		var p protocol.ChatPartialReply
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return false, errors.Wrap(err, "client: decode partial")
		}
		if p.ChatID != a.ChatID {
			return false, nil
		}
		a.partial(p.Content, p.Kind)
	case protocol.TypeChatReplyFinish:
		var p protocol.ChatReplyFinish
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return false, errors.Wrap(err, "client: decode finish")
		}
		if p.ChatID != a.ChatID {
			return false, nil
		}
		a.Awaiting = false
	case protocol.TypeChatError:
		var p protocol.ChatError
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return false, errors.Wrap(err, "client: decode error")
		}
		if p.ChatID != a.ChatID {
			return false, nil
		}
		a.Err = p.Error
		a.Disabled = true
		a.Awaiting = false
	default:
		return false, nil
	}
	return true, nil
}

// partial grows the assistant message of the current turn, creating it on
// the first fragment. Reasoning is kept apart from the visible content.
func (a *Assembler) partial(content string, kind engines.Kind) {
	if n := len(a.Messages); n == 0 || a.Messages[n-1].Role != engines.RoleAssistant {
		a.Messages = append(a.Messages, Message{Role: engines.RoleAssistant})
	}
	last := &a.Messages[len(a.Messages)-1]
	if kind == engines.KindReasoning {
		last.Reasoning += content
		return
	}
	last.Content += content
}
