package protocol

import (
	"encoding/json"

	"github.com/odosui/agora/pkg/engines"
)

// envelope is used for payloads that always marshal.
func envelope(typ string, payload any) Envelope {
	b, err := json.Marshal(payload)
	if err != nil {
		panic("protocol: marshal " + typ + ": " + err.Error())
	}
	return Envelope{Type: typ, Payload: b}
}

func PartialReply(chatID, content string, kind engines.Kind) Envelope {
	return envelope(TypeChatPartialReply, ChatPartialReply{ChatID: chatID, Content: content, Kind: kind})
}

func ReplyFinish(chatID string) Envelope {
	return envelope(TypeChatReplyFinish, ChatReplyFinish{ChatID: chatID})
}

func ChatErrorMsg(chatID, msg string) Envelope {
	return envelope(TypeChatError, ChatError{ChatID: chatID, Error: msg})
}

func GeneralErrorMsg(msg string) Envelope {
	return envelope(TypeGeneralError, GeneralError{Error: msg})
}

// ChatStarted wraps a chat DTO.
func ChatStarted(dto any) (Envelope, error) {
	return NewEnvelope(TypeChatStarted, dto)
}

// WidgetUpdated wraps a widget DTO.
func WidgetUpdated(dto any) (Envelope, error) {
	return NewEnvelope(TypeWidgetUpdated, dto)
}
