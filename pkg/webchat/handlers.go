package webchat

import (
	"context"
	"strings"

	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/pipeline"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/odosui/agora/pkg/session"
	"github.com/odosui/agora/pkg/wsmux"
	"github.com/pkg/errors"
)

// Store is the persistence used by the websocket handlers and the REST API.
type Store interface {
	session.Store
	ListChats(ctx context.Context, dashboardUUID string) ([]chatstore.Chat, error)
	CreateDashboard(ctx context.Context, name string) (*chatstore.Dashboard, error)
	FindDashboard(ctx context.Context, dashboardUUID string) (*chatstore.Dashboard, error)
	ListDashboards(ctx context.Context) ([]chatstore.Dashboard, error)
	CreateWidget(ctx context.Context, dashboardUUID, name, templateName, input string) (*chatstore.Widget, error)
	FindWidget(ctx context.Context, widgetUUID string) (*chatstore.Widget, error)
	ListWidgets(ctx context.Context, dashboardUUID string) ([]chatstore.Widget, error)
	CreateWidgetRun(ctx context.Context, widgetID int64, input string) (*chatstore.WidgetRun, error)
	FinishWidgetRun(ctx context.Context, runID int64, output, runErr string) (*chatstore.WidgetRun, error)
	LastWidgetRun(ctx context.Context, widgetID int64) (*chatstore.WidgetRun, error)
}

type templateRunner interface {
	Run(ctx context.Context, templateID string, input []string) (string, error)
}

// Handlers implements the inbound websocket message types.
type Handlers struct {
	registry *session.Registry
	store    Store
	runner   templateRunner
}

func NewHandlers(registry *session.Registry, store Store, runner templateRunner) *Handlers {
	return &Handlers{registry: registry, store: store, runner: runner}
}

// Register binds the handlers to srv and detaches connections from their
// chats on disconnect.
func (h *Handlers) Register(srv *wsmux.Server) {
	srv.OnConnect(func(c *wsmux.Context) {
		c.Storage().OnRelease(func() { h.registry.Detach(c) })
	})
	srv.OnInvalidPayload(func(c *wsmux.Context, typ string, err error) {
		_ = generalError(c, protocol.ErrInvalidPayload)
	})
	wsmux.Handle(srv, protocol.TypeStartChat, h.StartChat)
	wsmux.Handle(srv, protocol.TypePostMessage, h.PostMessage)
	wsmux.Handle(srv, protocol.TypeDeleteChat, h.DeleteChat)
	wsmux.Handle(srv, protocol.TypeRunWidget, h.RunWidget)
}

func generalError(c *wsmux.Context, msg string) error {
	return c.Send(protocol.GeneralErrorMsg(msg))
}

func (h *Handlers) StartChat(ctx context.Context, c *wsmux.Context, p protocol.StartChat) error {
	_, err := h.store.FindDashboard(ctx, p.DashboardID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.Logger().Warn().Str("dashboard_id", p.DashboardID).Msg("dashboard not found")
		return generalError(c, protocol.ErrDashboardNotFound)
	}
	if err != nil {
		_ = generalError(c, protocol.ErrInternal)
		return err
	}

	chat, _, err := h.registry.Create(ctx, p.Profile, p.DashboardID, c)
	switch {
	case errors.Is(err, session.ErrProfileNotFound):
		c.Logger().Warn().Str("profile", p.Profile).Msg("profile not found")
		return generalError(c, protocol.ErrProfileNotFound)
	case errors.Is(err, session.ErrDashboardNotFound):
		return generalError(c, protocol.ErrDashboardNotFound)
	case err != nil:
		_ = generalError(c, protocol.ErrInternal)
		return err
	}
	env, err := protocol.ChatStarted(chat.DTO())
	if err != nil {
		return err
	}
	c.Logger().Info().Str("chat_id", chat.UUID).Str("profile", p.Profile).Msg("chat started")
	return c.Send(env)
}

func (h *Handlers) PostMessage(ctx context.Context, c *wsmux.Context, p protocol.PostMessage) error {
	if strings.TrimSpace(p.Content) == "" && p.Image.Attachment() == nil {
		return generalError(c, protocol.ErrInvalidPayload)
	}
	// attached before the user turn is stored so the reply cannot be missed
	s, err := h.registry.Open(ctx, p.ChatID, c)
	switch {
	case errors.Is(err, session.ErrChatNotFound):
		c.Logger().Warn().Str("chat_id", p.ChatID).Msg("chat not found")
		return generalError(c, protocol.ErrChatNotFound)
	case errors.Is(err, session.ErrProfileNotFound):
		return generalError(c, protocol.ErrProfileNotFound)
	case err != nil:
		_ = c.Send(protocol.ChatErrorMsg(p.ChatID, protocol.ErrInternal))
		return err
	}

	in := chatstore.NewMessage{Kind: chatstore.KindUser, Body: p.Content}
	if att := p.Image.Attachment(); att != nil {
		in.ImageData, in.ImageType = att.Data, att.MediaType
	}
	if _, err := h.store.AppendMessage(ctx, p.ChatID, in); err != nil {
		_ = c.Send(protocol.ChatErrorMsg(p.ChatID, "Failed to save message"))
		return err
	}
	s.Engine.PostMessage(p.Content, p.Image.Attachment())
	return nil
}

func (h *Handlers) DeleteChat(ctx context.Context, c *wsmux.Context, p protocol.DeleteChat) error {
	err := h.registry.Remove(ctx, p.ChatID)
	if errors.Is(err, session.ErrChatNotFound) {
		c.Logger().Warn().Str("chat_id", p.ChatID).Msg("chat not found")
		return generalError(c, protocol.ErrChatNotFound)
	}
	if err != nil {
		_ = generalError(c, protocol.ErrInternal)
		return err
	}
	c.Logger().Info().Str("chat_id", p.ChatID).Msg("chat deleted")
	return nil
}

// RunWidget records a run, reports it, and finishes it in the background.
func (h *Handlers) RunWidget(ctx context.Context, c *wsmux.Context, p protocol.RunWidget) error {
	w, err := h.store.FindWidget(ctx, p.UUID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.Logger().Warn().Str("widget_id", p.UUID).Msg("widget not found")
		return generalError(c, protocol.ErrWidgetNotFound)
	}
	if err != nil {
		_ = generalError(c, protocol.ErrInternal)
		return err
	}

	run, err := h.store.CreateWidgetRun(ctx, w.ID, w.Input)
	if err != nil {
		_ = generalError(c, protocol.ErrInternal)
		return err
	}
	if err := sendWidget(c, w, run); err != nil {
		return err
	}

	input := pipeline.SplitInput(w.Input)
	c.Go(func(ctx context.Context) {
		output, runErr := h.runner.Run(ctx, w.TemplateName, input)
		errText := ""
		if runErr != nil {
			errText = runErr.Error()
			c.Logger().Warn().Err(runErr).Str("widget_id", w.UUID).Msg("widget run failed")
		}
		// the run record is closed even when the connection is gone
		done, err := h.store.FinishWidgetRun(context.WithoutCancel(ctx), run.ID, output, errText)
		if err != nil {
			c.Logger().Error().Err(err).Str("widget_id", w.UUID).Msg("failed to finish widget run")
			return
		}
		if err := sendWidget(c, w, done); err != nil && !errors.Is(err, wsmux.ErrConnClosed) {
			c.Logger().Warn().Err(err).Msg("failed to send widget update")
		}
	})
	return nil
}

func sendWidget(c *wsmux.Context, w *chatstore.Widget, run *chatstore.WidgetRun) error {
	env, err := protocol.WidgetUpdated(w.DTO(run))
	if err != nil {
		return err
	}
	return c.Send(env)
}
