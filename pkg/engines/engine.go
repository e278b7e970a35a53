// Package engines normalizes vendor chat APIs into one canonical event stream.
//
// Every adapter emits, per posted turn, zero or more Partial events followed by
// exactly one terminal event (Finish or Failure).
package engines

import (
	"context"
)

// Engine drives the vendor calls of one conversation.
type Engine interface {
	// PostMessage queues a user turn and returns immediately. Output is observed
	// through subscribed listeners only.
	PostMessage(text string, att *Attachment)
	// Subscribe registers a listener for every subsequent event. The returned
	// func removes it again.
	Subscribe(l Listener) (unsubscribe func())
	// Destroy drops history, queued turns and listeners. The engine must not be
	// used afterwards.
	Destroy()
	// OneTimeRun sends a single stateless request and returns the completion text.
	OneTimeRun(ctx context.Context, text string) (string, error)
	// History returns a copy of the canonical transcript held by the engine.
	History() []Turn
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is an inline image sent along with a user turn. Data is raw
// base64 without a data-URL prefix.
type Attachment struct {
	Data      string `json:"data"`
	MediaType string `json:"type"`
}

func (a *Attachment) dataURL() string {
	return "data:" + a.MediaType + ";base64," + a.Data
}

// Turn is one transcript entry.
type Turn struct {
	Role      Role
	Content   string
	Reasoning string
	Image     *Attachment
}
