package engines

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

const defaultAnthropicMaxTokens int64 = 4096

type Anthropic struct {
	*conversation
	client         anthropic.Client
	system         string
	maxTokens      int64
	thinkingBudget int64
}

var _ Engine = (*Anthropic)(nil)

func NewAnthropic(s Spec) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(s.HTTPClient))
	}

	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	if s.ThinkingBudget > 0 && maxTokens <= s.ThinkingBudget {
		maxTokens = s.ThinkingBudget + defaultAnthropicMaxTokens
	}

	e := &Anthropic{
		client:         anthropic.NewClient(opts...),
		system:         s.System,
		maxTokens:      maxTokens,
		thinkingBudget: s.ThinkingBudget,
	}
	e.conversation = newConversation(VendorAnthropic, s.Model, s.History, e.turn)
	return e
}

func (e *Anthropic) params(history []Turn, withThinking bool) anthropic.MessageNewParams {
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages:  anthropicMessages(history),
	}
	if e.system != "" {
		p.System = []anthropic.TextBlockParam{{Text: e.system}}
	}
	if withThinking && e.thinkingBudget > 0 {
		p.Thinking = anthropic.ThinkingConfigParamOfEnabled(e.thinkingBudget)
	}
	return p
}

func anthropicMessages(history []Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, t := range history {
		if t.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
			continue
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, 2)
		if t.Image != nil {
			blocks = append(blocks, anthropic.NewImageBlockBase64(t.Image.MediaType, t.Image.Data))
		}
		blocks = append(blocks, anthropic.NewTextBlock(t.Content))
		out = append(out, anthropic.NewUserMessage(blocks...))
	}
	return out
}

func (e *Anthropic) OneTimeRun(ctx context.Context, text string) (string, error) {
	msg, err := e.client.Messages.New(ctx, e.params([]Turn{{Role: RoleUser, Content: text}}, false))
	if err != nil {
		return "", errors.Wrap(err, "anthropic: one time run")
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (e *Anthropic) turn(ctx context.Context, history []Turn, onDelta func(Kind, string)) (string, string, error) {
	stream := e.client.Messages.NewStreaming(ctx, e.params(history, true))
	defer stream.Close()

	var text, reasoning strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					text.WriteString(ev.Delta.Text)
					onDelta(KindRegular, ev.Delta.Text)
				}
			case "thinking_delta":
				if ev.Delta.Thinking != "" {
					reasoning.WriteString(ev.Delta.Thinking)
					onDelta(KindReasoning, ev.Delta.Thinking)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", "", err
	}
	return text.String(), reasoning.String(), nil
}
