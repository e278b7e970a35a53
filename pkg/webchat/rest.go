package webchat

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/odosui/agora/pkg/persistence/chatstore"
	"github.com/odosui/agora/pkg/pipeline"
	"github.com/odosui/agora/pkg/profiles"
	"github.com/odosui/agora/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type profileLister interface {
	List() []profiles.Profile
}

// API serves the REST endpoints.
type API struct {
	store    Store
	profiles profileLister
}

func NewAPI(store Store, ps profileLister) *API {
	return &API{store: store, profiles: ps}
}

func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/", a.Health)
	e.GET("/api/profiles", a.ListProfiles)
	e.GET("/api/templates", a.ListTemplates)
	e.GET("/api/dashboards", a.ListDashboards)
	e.POST("/api/dashboards", a.CreateDashboard)
	e.GET("/api/dashboards/:id", a.GetDashboard)
	e.GET("/api/dashboards/:id/chats", a.ListChats)
	e.GET("/api/dashboards/:id/widgets", a.ListWidgets)
	e.POST("/api/dashboards/:id/widgets", a.CreateWidget)
	e.GET("/api/chats/:id/messages", a.ListMessages)
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

func internalError(c echo.Context, err error) error {
	log.Error().Err(err).Str("component", "webchat").Str("path", c.Path()).Msg("request failed")
	return jsonError(c, http.StatusInternalServerError, protocol.ErrInternal)
}

func (a *API) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
}

type profileDTO struct {
	Name   string `json:"name"`
	Vendor string `json:"vendor"`
	Model  string `json:"model"`
}

func (a *API) ListProfiles(c echo.Context) error {
	out := []profileDTO{}
	for _, p := range a.profiles.List() {
		out = append(out, profileDTO{Name: p.Name, Vendor: string(p.Vendor), Model: p.Model})
	}
	return c.JSON(http.StatusOK, out)
}

type templateDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) ListTemplates(c echo.Context) error {
	out := make([]templateDTO, 0, len(pipeline.Templates))
	for _, t := range pipeline.Templates {
		out = append(out, templateDTO{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	return c.JSON(http.StatusOK, out)
}

func (a *API) ListDashboards(c echo.Context) error {
	ds, err := a.store.ListDashboards(c.Request().Context())
	if err != nil {
		return internalError(c, err)
	}
	out := make([]chatstore.DashboardDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.DTO())
	}
	return c.JSON(http.StatusOK, out)
}

type createDashboardRequest struct {
	Name string `json:"name"`
}

func (a *API) CreateDashboard(c echo.Context) error {
	var req createDashboardRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return jsonError(c, http.StatusBadRequest, "Name is required")
	}
	d, err := a.store.CreateDashboard(c.Request().Context(), req.Name)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, d.DTO())
}

// dashboard loads the :id dashboard, writing the 404 itself when missing.
func (a *API) dashboard(c echo.Context) (*chatstore.Dashboard, error) {
	d, err := a.store.FindDashboard(c.Request().Context(), c.Param("id"))
	if errors.Is(err, chatstore.ErrNotFound) {
		return nil, jsonError(c, http.StatusNotFound, protocol.ErrDashboardNotFound)
	}
	if err != nil {
		return nil, internalError(c, err)
	}
	return d, nil
}

func (a *API) GetDashboard(c echo.Context) error {
	d, err := a.dashboard(c)
	if d == nil {
		return err
	}
	return c.JSON(http.StatusOK, d.DTO())
}

func (a *API) ListChats(c echo.Context) error {
	d, err := a.dashboard(c)
	if d == nil {
		return err
	}
	chats, err := a.store.ListChats(c.Request().Context(), d.UUID)
	if err != nil {
		return internalError(c, err)
	}
	out := make([]chatstore.ChatDTO, 0, len(chats))
	for _, ch := range chats {
		out = append(out, ch.DTO())
	}
	return c.JSON(http.StatusOK, out)
}

func (a *API) ListWidgets(c echo.Context) error {
	d, err := a.dashboard(c)
	if d == nil {
		return err
	}
	ctx := c.Request().Context()
	ws, err := a.store.ListWidgets(ctx, d.UUID)
	if err != nil {
		return internalError(c, err)
	}
	out := make([]chatstore.WidgetDTO, 0, len(ws))
	for _, w := range ws {
		last, err := a.store.LastWidgetRun(ctx, w.ID)
		if err != nil {
			return internalError(c, err)
		}
		out = append(out, w.DTO(last))
	}
	return c.JSON(http.StatusOK, out)
}

type createWidgetRequest struct {
	Name         string `json:"name"`
	TemplateName string `json:"templateName"`
	Input        string `json:"input"`
}

func (a *API) CreateWidget(c echo.Context) error {
	d, err := a.dashboard(c)
	if d == nil {
		return err
	}
	var req createWidgetRequest
	if err := c.Bind(&req); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return jsonError(c, http.StatusBadRequest, "Name is required")
	}
	if _, ok := pipeline.FindTemplate(req.TemplateName); !ok {
		return jsonError(c, http.StatusBadRequest, "Template not found")
	}
	w, err := a.store.CreateWidget(c.Request().Context(), d.UUID, req.Name, req.TemplateName, req.Input)
	if err != nil {
		return internalError(c, err)
	}
	return c.JSON(http.StatusOK, w.DTO(nil))
}

func (a *API) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if _, err := a.store.FindChat(ctx, id); err != nil {
		if errors.Is(err, chatstore.ErrNotFound) {
			return jsonError(c, http.StatusNotFound, protocol.ErrChatNotFound)
		}
		return internalError(c, err)
	}
	msgs, err := a.store.ListMessages(ctx, id)
	if err != nil {
		return internalError(c, err)
	}
	out := make([]chatstore.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.DTO())
	}
	return c.JSON(http.StatusOK, out)
}
