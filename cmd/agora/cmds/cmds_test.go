package cmds

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odosui/agora/pkg/client"
	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/odosui/agora/pkg/wsmux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestProfilesCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`listen: ":4000"
# vendors
profiles:
  gpt:
    vendor: openai
    model: gpt-4o
`), 0o644))

	out, err := execute(t, "--config", path, "profiles", "set", "claude", "--vendor", "anthropic", "--model", "claude-3-7-sonnet", "--thinking-budget", "2048")
	require.NoError(t, err)
	assert.Equal(t, "Set profile claude\n", out)

	out, err = execute(t, "--config", path, "profiles", "list", "--concise")
	require.NoError(t, err)
	assert.Equal(t, "gpt\nclaude\n", out)

	out, err = execute(t, "--config", path, "profiles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "claude:\n  vendor: anthropic\n  model: claude-3-7-sonnet\n  thinking_budget: 2048\n")

	_, err = execute(t, "--config", path, "profiles", "delete", "gpt")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "profiles", "delete", "gpt")
	require.Error(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "# vendors")
	assert.Contains(t, string(b), `listen: ":4000"`)
	assert.NotContains(t, string(b), "gpt-4o")
}

func TestProfilesSetRejectsUnknownVendor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_, err := execute(t, "--config", path, "profiles", "set", "x", "--vendor", "acme", "--model", "m")
	require.ErrorIs(t, err, engines.ErrUnknownVendor)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestInvalidLogFlags(t *testing.T) {
	_, err := execute(t, "--log-level", "loud", "profiles", "list")
	require.Error(t, err)
	_, err = execute(t, "--log-format", "xml", "profiles", "list")
	require.Error(t, err)
}

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	db := filepath.Join(dir, "agora.db")
	require.NoError(t, os.WriteFile(path, []byte("database_url: "+db+"\n"), 0o644))

	_, err := execute(t, "--config", path, "migrate")
	require.NoError(t, err)
	_, err = os.Stat(db)
	require.NoError(t, err)
}

func chatServer(t *testing.T) string {
	t.Helper()
	s := wsmux.NewServer()
	wsmux.Handle(s, protocol.TypeStartChat, func(_ context.Context, c *wsmux.Context, p protocol.StartChat) error {
		if p.DashboardID != "d1" {
			return c.SendMessage(protocol.TypeGeneralError, protocol.GeneralError{Error: protocol.ErrDashboardNotFound})
		}
		return c.SendMessage(protocol.TypeChatStarted, chatstore.ChatDTO{UUID: "c1", Name: chatstore.DefaultChatName, ProfileName: p.Profile})
	})
	wsmux.Handle(s, protocol.TypePostMessage, func(_ context.Context, c *wsmux.Context, p protocol.PostMessage) error {
		if p.Content == "fail" {
			return c.SendMessage(protocol.TypeChatError, protocol.ChatError{ChatID: p.ChatID, Error: "quota exceeded"})
		}
		parts := []protocol.ChatPartialReply{
			{ChatID: p.ChatID, Content: "think", Kind: engines.KindReasoning},
			{ChatID: p.ChatID, Content: "Hel", Kind: engines.KindRegular},
			{ChatID: p.ChatID, Content: "lo", Kind: engines.KindRegular},
		}
		for _, part := range parts {
			if err := c.SendMessage(protocol.TypeChatPartialReply, part); err != nil {
				return err
			}
		}
		return c.SendMessage(protocol.TypeChatReplyFinish, protocol.ChatReplyFinish{ChatID: p.ChatID})
	})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialChat(t *testing.T) *client.Conn {
	t.Helper()
	conn, err := client.Dial(context.Background(), chatServer(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRunChatRendersReplies(t *testing.T) {
	var out bytes.Buffer
	err := runChat(dialChat(t), "gpt", "d1", strings.NewReader("hi\n\nbye\n"), newRenderer(&out, false))
	require.NoError(t, err)
	assert.Equal(t, "New Chat · gpt\n> thinkHello\n> > thinkHello\n> ", out.String())
}

func TestRunChatStopsOnChatError(t *testing.T) {
	var out bytes.Buffer
	err := runChat(dialChat(t), "gpt", "d1", strings.NewReader("fail\nignored\n"), newRenderer(&out, false))
	require.EqualError(t, err, "quota exceeded")
	assert.Contains(t, out.String(), "error: quota exceeded\n")
}

func TestRunChatUnknownDashboard(t *testing.T) {
	var out bytes.Buffer
	err := runChat(dialChat(t), "gpt", "nope", strings.NewReader("hi\n"), newRenderer(&out, false))
	require.EqualError(t, err, protocol.ErrDashboardNotFound)
	assert.Empty(t, out.String())
}
