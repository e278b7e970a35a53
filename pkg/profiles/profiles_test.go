package profiles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odosui/agora/pkg/engines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `listen: ":3000"
# vendor profiles
profiles:
  gpt:
    vendor: openai
    model: gpt-4o
  claude:
    vendor: Anthropic
    model: claude-3-7-sonnet-latest
    thinking_budget: 2048 # tokens
  grok:
    vendor: xai
    model: grok-2
    system: Be brief.
`

func TestParseKeepsDeclaredOrder(t *testing.T) {
	set, err := Parse([]byte(sample))
	require.NoError(t, err)

	var names []string
	for _, p := range set.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"gpt", "claude", "grok"}, names)

	claude, err := set.Resolve("claude")
	require.NoError(t, err)
	assert.Equal(t, engines.VendorAnthropic, claude.Vendor)
	assert.EqualValues(t, 2048, claude.ThinkingBudget)

	_, err = set.Resolve("missing")
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestParseRejectsInvalidProfiles(t *testing.T) {
	_, err := Parse([]byte("profiles:\n  x:\n    vendor: cohere\n    model: m\n"))
	require.ErrorIs(t, err, engines.ErrUnknownVendor)

	_, err = Parse([]byte("profiles:\n  x:\n    vendor: openai\n"))
	require.Error(t, err)

	set, err := Parse([]byte("listen: \":1\"\n"))
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestEngineSpecDefaultsSystemPrompt(t *testing.T) {
	set, err := Parse([]byte(sample))
	require.NoError(t, err)

	gpt, _ := set.Resolve("gpt")
	spec := gpt.EngineSpec("k", nil)
	assert.Equal(t, DefaultSystem, spec.System)
	assert.Equal(t, "gpt-4o", spec.Model)
	assert.Equal(t, "k", spec.APIKey)

	grok, _ := set.Resolve("grok")
	assert.Equal(t, "Be brief.", grok.EngineSpec("k", nil).System)
}

func TestEditorSetAndDeletePreservesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	ed, err := NewEditor(path)
	require.NoError(t, err)
	require.NoError(t, ed.Set(Profile{Name: "gpt", Vendor: engines.VendorOpenAI, Model: "gpt-4o-mini"}))
	require.NoError(t, ed.Set(Profile{Name: "ds", Vendor: engines.VendorDeepSeek, Model: "deepseek-reasoner"}))
	require.NoError(t, ed.Delete("grok"))
	require.ErrorIs(t, ed.Delete("grok"), ErrProfileNotFound)
	require.NoError(t, ed.Save())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "listen:")
	assert.Contains(t, out, "# vendor profiles")
	assert.Contains(t, out, "# tokens")
	assert.NotContains(t, out, "grok")

	set, err := LoadFile(path)
	require.NoError(t, err)
	var names []string
	for _, p := range set.List() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"gpt", "claude", "ds"}, names)
	gpt, _ := set.Resolve("gpt")
	assert.Equal(t, "gpt-4o-mini", gpt.Model)
}

func TestEditorCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	ed, err := NewEditor(path)
	require.NoError(t, err)
	require.Error(t, ed.Set(Profile{Name: "x", Vendor: "nope", Model: "m"}))
	require.NoError(t, ed.Set(Profile{Name: "x", Vendor: engines.VendorAnthropic, Model: "m", ThinkingBudget: 1024}))
	require.NoError(t, ed.Save())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "profiles:"))

	set, err := ed.Profiles()
	require.NoError(t, err)
	p, err := set.Resolve("x")
	require.NoError(t, err)
	assert.EqualValues(t, 1024, p.ThinkingBudget)
}
