// Package protocol defines the message types exchanged over the chat websocket.
package protocol

import (
	"encoding/json"

	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/wsmux"
)

// Inbound message types.
const (
	TypeStartChat   = "START_CHAT"
	TypePostMessage = "POST_MESSAGE"
	TypeDeleteChat  = "DELETE_CHAT"
	TypeRunWidget   = "RUN_WIDGET"
)

// Outbound message types.
const (
	TypeChatStarted      = "CHAT_STARTED"
	TypeChatPartialReply = "CHAT_PARTIAL_REPLY"
	TypeChatReplyFinish  = "CHAT_REPLY_FINISH"
	TypeChatError        = "CHAT_ERROR"
	TypeGeneralError     = "GENERAL_ERROR"
	TypeWidgetUpdated    = "WIDGET_UPDATED"
)

// User-facing error strings.
const (
	ErrChatNotFound      = "Chat not found"
	ErrDashboardNotFound = "Dashboard not found"
	ErrWidgetNotFound    = "Widget not found"
	ErrProfileNotFound   = "Profile not found"
	ErrInvalidPayload    = "Invalid payload"
	ErrInternal          = "Internal server error"
)

type Envelope = wsmux.Envelope

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: typ}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: b}, nil
}

type StartChat struct {
	Profile     string `json:"profile"`
	DashboardID string `json:"dashboardId"`
}

type Image struct {
	Data string `json:"data"`
	Type string `json:"type"`
}

func (i *Image) Attachment() *engines.Attachment {
	if i == nil || i.Data == "" {
		return nil
	}
	return &engines.Attachment{Data: i.Data, MediaType: i.Type}
}

type PostMessage struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	Image   *Image `json:"image,omitempty"`
}

type DeleteChat struct {
	ChatID string `json:"chatId"`
}

type RunWidget struct {
	UUID string `json:"uuid"`
}

type ChatPartialReply struct {
	ChatID  string       `json:"chatId"`
	Content string       `json:"content"`
	Kind    engines.Kind `json:"kind"`
}

type ChatReplyFinish struct {
	ChatID string `json:"chatId"`
}

type ChatError struct {
	ChatID string `json:"chatId"`
	Error  string `json:"error"`
}

type GeneralError struct {
	Error string `json:"error"`
}
