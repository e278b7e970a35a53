package cmds

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/odosui/agora/pkg/client"
	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5"))
	reasoningStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func newChatCommand(opts *rootOptions) *cobra.Command {
	var server, profile, dashboard string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a profile from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := client.Dial(cmd.Context(), server, nil)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			out := cmd.OutOrStdout()
			return runChat(conn, profile, dashboard, cmd.InOrStdin(), newRenderer(out, isTerminal(out)))
		},
	}
	cmd.Flags().StringVar(&server, "server", "ws://localhost:3000/ws", "websocket endpoint of the server")
	cmd.Flags().StringVar(&profile, "profile", "", "profile to chat with")
	cmd.Flags().StringVar(&dashboard, "dashboard", "", "dashboard uuid the chat belongs to")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("dashboard")
	return cmd
}

// runChat starts a chat, then posts every non-empty input line and renders
// the reply as it streams in.
func runChat(conn *client.Conn, profile, dashboard string, in io.Reader, r *renderer) error {
	if err := conn.StartChat(profile, dashboard); err != nil {
		return err
	}
	var chat chatstore.ChatDTO
	for {
		env, err := receive(conn)
		if err != nil {
			return err
		}
		if env.Type == protocol.TypeChatStarted {
			if err := json.Unmarshal(env.Payload, &chat); err != nil {
				return errors.Wrap(err, "decode chat")
			}
			break
		}
	}
	r.header(chat)

	a := client.NewAssembler(chat.UUID, nil)
	scanner := bufio.NewScanner(in)
	for r.prompt(); scanner.Scan(); r.prompt() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := a.Submit(text, nil); err != nil {
			return err
		}
		if err := conn.PostMessage(chat.UUID, text, nil); err != nil {
			return err
		}
		r.startReply()
		for a.Awaiting {
			env, err := receive(conn)
			if err != nil {
				return err
			}
			if _, err := a.Apply(env); err != nil {
				return err
			}
			r.reply(a)
		}
		if a.Disabled {
			return errors.New(a.Err)
		}
	}
	return scanner.Err()
}

// receive returns the next envelope, turning GENERAL_ERROR and a closed
// connection into errors.
func receive(conn *client.Conn) (protocol.Envelope, error) {
	env, ok := <-conn.Incoming()
	if !ok {
		if err := conn.Err(); err != nil {
			return env, err
		}
		return env, errors.New("connection closed")
	}
	if env.Type == protocol.TypeGeneralError {
		var p protocol.GeneralError
		_ = json.Unmarshal(env.Payload, &p)
		return env, errors.New(p.Error)
	}
	return env, nil
}

type renderer struct {
	out    io.Writer
	styled bool

	content   int
	reasoning int
}

func newRenderer(out io.Writer, styled bool) *renderer {
	return &renderer{out: out, styled: styled}
}

func (r *renderer) paint(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *renderer) header(c chatstore.ChatDTO) {
	fmt.Fprintln(r.out, r.paint(headerStyle, fmt.Sprintf("%s · %s", c.Name, c.ProfileName)))
}

func (r *renderer) prompt() {
	fmt.Fprint(r.out, r.paint(promptStyle, "> "))
}

func (r *renderer) startReply() {
	r.content, r.reasoning = 0, 0
}

// reply prints whatever the assembler added since the last call.
func (r *renderer) reply(a *client.Assembler) {
	if a.Err != "" {
		fmt.Fprintln(r.out, r.paint(errorStyle, "error: "+a.Err))
		return
	}
	if n := len(a.Messages); n > 0 && a.Messages[n-1].Role == engines.RoleAssistant {
		m := a.Messages[n-1]
		if len(m.Reasoning) > r.reasoning {
			fmt.Fprint(r.out, r.paint(reasoningStyle, m.Reasoning[r.reasoning:]))
			r.reasoning = len(m.Reasoning)
		}
		if len(m.Content) > r.content {
			fmt.Fprint(r.out, r.paint(assistantStyle, m.Content[r.content:]))
			r.content = len(m.Content)
		}
	}
	if !a.Awaiting {
		fmt.Fprintln(r.out)
	}
}
