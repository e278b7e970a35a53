package eventbus

import (
	"encoding/json"

	"github.com/odosui/agora/pkg/engines"
	"github.com/pkg/errors"
)

const (
	wirePartial = "partial"
	wireFinish  = "finish"
	wireError   = "error"
)

type wireEvent struct {
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	Kind      engines.Kind `json:"kind,omitempty"`
	Text      string       `json:"text,omitempty"`
	Reasoning string       `json:"reasoning,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Encode serializes a canonical engine event for the bus.
func Encode(ev engines.Event) ([]byte, error) {
	var w wireEvent
	switch e := ev.(type) {
	case engines.Partial:
		w = wireEvent{Type: wirePartial, Content: e.Content, Kind: e.Kind}
	case engines.Finish:
		w = wireEvent{Type: wireFinish, Text: e.Text, Reasoning: e.Reasoning}
	case engines.Failure:
		w = wireEvent{Type: wireError, Message: e.Message}
	default:
		return nil, errors.Errorf("eventbus: cannot encode %T", ev)
	}
	return json.Marshal(w)
}

func Decode(b []byte) (engines.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, errors.Wrap(err, "eventbus: decode")
	}
	switch w.Type {
	case wirePartial:
		kind := w.Kind
		if kind == "" {
			kind = engines.KindRegular
		}
		return engines.Partial{Content: w.Content, Kind: kind}, nil
	case wireFinish:
		return engines.Finish{Text: w.Text, Reasoning: w.Reasoning}, nil
	case wireError:
		return engines.Failure{Message: w.Message}, nil
	}
	return nil, errors.Errorf("eventbus: unknown event type %q", w.Type)
}
