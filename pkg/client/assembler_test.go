package client

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(t testing.TB, typ string, payload any) protocol.Envelope {
	t.Helper()
	e, err := protocol.NewEnvelope(typ, payload)
	require.NoError(t, err)
	return e
}

func partial(t testing.TB, chatID, content string, kind engines.Kind) protocol.Envelope {
	return env(t, protocol.TypeChatPartialReply, protocol.ChatPartialReply{ChatID: chatID, Content: content, Kind: kind})
}

func TestAssemblerBuildsReply(t *testing.T) {
	a := NewAssembler("c1", nil)
	require.NoError(t, a.Submit("Hi", nil))
	assert.ErrorIs(t, a.Submit("again", nil), ErrAwaiting)

	for _, e := range []protocol.Envelope{
		partial(t, "c1", "thinking ", engines.KindReasoning),
		partial(t, "c1", "Hel", engines.KindRegular),
		partial(t, "c1", "hard", engines.KindReasoning),
		partial(t, "c1", "lo", engines.KindRegular),
	} {
		ok, err := a.Apply(e)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.True(t, a.Awaiting)

	ok, err := a.Apply(env(t, protocol.TypeChatReplyFinish, protocol.ChatReplyFinish{ChatID: "c1"}))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, a.Awaiting)
	assert.True(t, a.CanSend())

	require.Len(t, a.Messages, 2)
	assert.Equal(t, Message{Role: engines.RoleUser, Content: "Hi"}, a.Messages[0])
	assert.Equal(t, Message{Role: engines.RoleAssistant, Content: "Hello", Reasoning: "thinking hard"}, a.Messages[1])
}

func TestAssemblerIgnoresOtherChats(t *testing.T) {
	a := NewAssembler("c1", nil)
	ok, err := a.Apply(partial(t, "c2", "x", engines.KindRegular))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Apply(env(t, protocol.TypeChatError, protocol.ChatError{ChatID: "c2", Error: "boom"}))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.Apply(env(t, protocol.TypeChatStarted, map[string]string{"uuid": "c3"}))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, a.Messages)
	assert.True(t, a.CanSend())
}

func TestAssemblerErrorDisablesSending(t *testing.T) {
	a := NewAssembler("c1", nil)
	require.NoError(t, a.Submit("fail", nil))
	_, err := a.Apply(env(t, protocol.TypeChatError, protocol.ChatError{ChatID: "c1", Error: "quota exceeded"}))
	require.NoError(t, err)

	assert.Equal(t, "quota exceeded", a.Err)
	assert.False(t, a.Awaiting)
	assert.ErrorIs(t, a.Submit("more", nil), ErrDisabled)
	assert.Len(t, a.Messages, 1)
}

func TestAssemblerRejectsMalformedPayload(t *testing.T) {
	a := NewAssembler("c1", nil)
	_, err := a.Apply(protocol.Envelope{Type: protocol.TypeChatPartialReply, Payload: []byte(`"nope"`)})
	require.Error(t, err)
}

func TestAssemblerStartsFromHistory(t *testing.T) {
	msgs := MessagesFromDTOs([]chatstore.MessageDTO{
		{Kind: "user", Body: "look", Image: &chatstore.ImageDTO{Data: "AAAA", Type: "image/png"}},
		{Kind: "assistant", Body: "a cat", Reasoning: "whiskers"},
	})
	a := NewAssembler("c1", msgs)
	require.Len(t, a.Messages, 2)
	assert.Equal(t, &protocol.Image{Data: "AAAA", Type: "image/png"}, a.Messages[0].Image)
	assert.Equal(t, "whiskers", a.Messages[1].Reasoning)

	// a new reply gets its own assistant message
	require.NoError(t, a.Submit("again", nil))
	_, err := a.Apply(partial(t, "c1", "sure", engines.KindRegular))
	require.NoError(t, err)
	require.Len(t, a.Messages, 4)
	assert.Equal(t, "a cat", a.Messages[1].Content)
	assert.Equal(t, "sure", a.Messages[3].Content)
}

func TestAssemblerConcatenatesPartials(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("assistant content is the concatenation of regular partials", prop.ForAll(
		func(regular []string, reasoning []string) bool {
			a := NewAssembler("c", nil)
			if a.Submit("q", nil) != nil {
				return false
			}
			for i, r := range regular {
				if _, err := a.Apply(partial(t, "c", r, engines.KindRegular)); err != nil {
					return false
				}
				if i < len(reasoning) {
					if _, err := a.Apply(partial(t, "c", reasoning[i], engines.KindReasoning)); err != nil {
						return false
					}
				}
			}
			if _, err := a.Apply(env(t, protocol.TypeChatReplyFinish, protocol.ChatReplyFinish{ChatID: "c"})); err != nil {
				return false
			}
			used := reasoning
			if len(used) > len(regular) {
				used = used[:len(regular)]
			}
			if len(regular) == 0 {
				return len(a.Messages) == 1 && !a.Awaiting
			}
			last := a.Messages[len(a.Messages)-1]
			return len(a.Messages) == 2 &&
				last.Role == engines.RoleAssistant &&
				last.Content == strings.Join(regular, "") &&
				last.Reasoning == strings.Join(used, "") &&
				!a.Awaiting
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
