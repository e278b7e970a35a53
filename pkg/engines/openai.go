package engines

import (
	"context"
	"io"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// Models that reject both streaming and system messages.
var nonStreamingModels = map[string]struct{}{
	"o1-preview": {},
	"o1-mini":    {},
}

func supportsStreaming(model string) bool {
	_, ok := nonStreamingModels[model]
	return !ok
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	*conversation
	client *openai.Client
	system string
}

var _ Engine = (*OpenAI)(nil)

func NewOpenAI(s Spec) *OpenAI {
	return newOpenAICompatible(VendorOpenAI, s, "")
}

func newOpenAICompatible(vendor Vendor, s Spec, defaultBaseURL string) *OpenAI {
	cfg := openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	} else if defaultBaseURL != "" {
		cfg.BaseURL = defaultBaseURL
	}
	if s.HTTPClient != nil {
		cfg.HTTPClient = s.HTTPClient
	}

	e := &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		system: s.System,
	}
	e.conversation = newConversation(vendor, s.Model, s.History, e.turn)
	return e
}

func (e *OpenAI) OneTimeRun(ctx context.Context, text string) (string, error) {
	msgs := e.messages([]Turn{{Role: RoleUser, Content: text}})
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: msgs,
	})
	if err != nil {
		return "", errors.Wrapf(err, "%s: one time run", e.vendor)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// messages renders the canonical history in chat completion form.
func (e *OpenAI) messages(history []Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if supportsStreaming(e.model) && e.system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: e.system})
	}
	for _, t := range history {
		switch t.Role {
		case RoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: t.Content})
		default:
			out = append(out, userMessage(t))
		}
	}
	return out
}

func userMessage(t Turn) openai.ChatCompletionMessage {
	if t.Image == nil {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.Content}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: t.Content},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: t.Image.dataURL()}},
		},
	}
}

func (e *OpenAI) turn(ctx context.Context, history []Turn, onDelta func(Kind, string)) (string, string, error) {
	req := openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: e.messages(history),
	}

	if !supportsStreaming(e.model) {
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", "", err
		}
		text := ""
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		// one synthesized partial carrying the whole reply
		onDelta(KindRegular, text)
		return text, "", nil
	}

	req.Stream = true
	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", "", err
	}
	defer stream.Close()

	var text, reasoning []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.ReasoningContent != "" {
			reasoning = append(reasoning, delta.ReasoningContent...)
			onDelta(KindReasoning, delta.ReasoningContent)
		}
		if delta.Content != "" {
			text = append(text, delta.Content...)
			onDelta(KindRegular, delta.Content)
		}
	}
	return string(text), string(reasoning), nil
}
