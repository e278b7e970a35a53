package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/profiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	delays map[string]time.Duration
	fail   string
}

func (f fakeFetcher) FetchAsText(ctx context.Context, url string) (string, error) {
	if url == f.fail {
		return "", errors.New("boom")
	}
	select {
	case <-time.After(f.delays[url]):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "md of " + url, nil
}

type oneShotEngine struct {
	mu        sync.Mutex
	prompts   []string
	destroyed bool
}

func (e *oneShotEngine) PostMessage(string, *engines.Attachment) {}
func (e *oneShotEngine) Subscribe(engines.Listener) func()       { return func() {} }
func (e *oneShotEngine) History() []engines.Turn                 { return nil }

func (e *oneShotEngine) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
}

func (e *oneShotEngine) OneTimeRun(_ context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prompts = append(e.prompts, text)
	return "summary", nil
}

func newRunner(t *testing.T, f Fetcher) (*Runner, *oneShotEngine, *[]profiles.Profile) {
	t.Helper()
	set := profiles.NewSet(profiles.Profile{Name: "GPT-4o", Vendor: engines.VendorOpenAI, Model: "gpt-4o"})
	eng := &oneShotEngine{}
	var built []profiles.Profile
	factory := func(p profiles.Profile, history []engines.Turn) (engines.Engine, error) {
		assert.Empty(t, history)
		built = append(built, p)
		return eng, nil
	}
	return NewRunner(f, set, factory), eng, &built
}

func TestParseFlow(t *testing.T) {
	tpl, ok := FindTemplate("top_hacker_news")
	require.True(t, ok)
	steps := ParseFlow(tpl.Flow)
	require.Len(t, steps, 2)
	assert.Equal(t, "url2md", steps[0].Service)
	assert.Empty(t, steps[0].Conf)
	assert.Equal(t, "chat", steps[1].Service)
	require.Len(t, steps[1].Conf, 2)
	assert.Equal(t, "GPT-4o", steps[1].Conf[0])
	assert.True(t, strings.HasSuffix(steps[1].Conf[1], "\n\n $$"))
	assert.False(t, strings.HasPrefix(steps[1].Conf[1], `"`))
}

func TestRunKeepsInputOrderAndFillsPrompt(t *testing.T) {
	f := fakeFetcher{delays: map[string]time.Duration{"https://a.test": 50 * time.Millisecond}}
	r, eng, built := newRunner(t, f)

	out, err := r.Run(context.Background(), "summarize_websites", []string{"https://a.test", "https://b.test"})
	require.NoError(t, err)
	assert.Equal(t, "summary", out)

	require.Len(t, *built, 1)
	assert.Equal(t, "gpt-4o", (*built)[0].Model)
	require.Len(t, eng.prompts, 1)
	assert.Contains(t, eng.prompts[0], "## https://a.test\nmd of https://a.test\n\n## https://b.test\nmd of https://b.test")
	assert.NotContains(t, eng.prompts[0], Placeholder)
	assert.True(t, eng.destroyed)
}

func TestRunFlowJoinsFinalOutputs(t *testing.T) {
	r, _, _ := newRunner(t, fakeFetcher{})
	out, err := r.RunFlow(context.Background(), "|> url2md", []string{"https://a.test", "https://b.test"})
	require.NoError(t, err)
	assert.Equal(t, "## https://a.test\nmd of https://a.test\n\n## https://b.test\nmd of https://b.test", out)
}

func TestRunErrors(t *testing.T) {
	r, _, _ := newRunner(t, fakeFetcher{fail: "https://bad.test"})
	ctx := context.Background()

	_, err := r.Run(ctx, "nope", nil)
	require.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = r.RunFlow(ctx, "|> shout", nil)
	require.ErrorIs(t, err, ErrUnknownService)

	_, err = r.Run(ctx, "top_hacker_news", []string{"https://ok.test", "https://bad.test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = r.RunFlow(ctx, `|> chat::Unknown::"x $$"`, []string{"a"})
	require.ErrorIs(t, err, profiles.ErrProfileNotFound)
}

func TestSplitInput(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, SplitInput("  a \n\n\t\n b c\n"))
	assert.Nil(t, SplitInput("   "))
}
