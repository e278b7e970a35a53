package chatstore

import (
	"context"
	"strings"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const widgetColumns = `id, uuid, name, input, template_name, dashboard_id, created_at, updated_at`

const widgetRunColumns = `id, uuid, widget_id, input, output, error, status, created_at, updated_at, finished_at`

func (s *SQLiteStore) CreateWidget(ctx context.Context, dashboardUUID, name, templateName, input string) (*Widget, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(templateName) == "" {
		return nil, errors.New("chatstore: widget name and template are required")
	}
	d, err := s.FindDashboard(ctx, dashboardUUID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	w := &Widget{
		UUID:         uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Input:        input,
		TemplateName: templateName,
		DashboardID:  d.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO widgets (uuid, name, input, template_name, dashboard_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.UUID, w.Name, w.Input, w.TemplateName, w.DashboardID, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: create widget")
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "chatstore: create widget")
	}
	return w, nil
}

func (s *SQLiteStore) FindWidget(ctx context.Context, widgetUUID string) (*Widget, error) {
	var w Widget
	if err := getOne(ctx, s.db, &w, `SELECT `+widgetColumns+` FROM widgets WHERE uuid = ?`, widgetUUID); err != nil {
		return nil, errors.Wrapf(err, "chatstore: find widget %s", widgetUUID)
	}
	return &w, nil
}

func (s *SQLiteStore) ListWidgets(ctx context.Context, dashboardUUID string) ([]Widget, error) {
	d, err := s.FindDashboard(ctx, dashboardUUID)
	if err != nil {
		return nil, err
	}
	var out []Widget
	if err := sqlscan.Select(ctx, s.db, &out,
		`SELECT `+widgetColumns+` FROM widgets WHERE dashboard_id = ? ORDER BY created_at ASC, id ASC`, d.ID); err != nil {
		return nil, errors.Wrap(err, "chatstore: list widgets")
	}
	return out, nil
}

// CreateWidgetRun records a run in the running state.
func (s *SQLiteStore) CreateWidgetRun(ctx context.Context, widgetID int64, input string) (*WidgetRun, error) {
	now := s.now()
	r := &WidgetRun{
		UUID:      uuid.NewString(),
		WidgetID:  widgetID,
		Input:     input,
		Status:    RunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO widget_runs (uuid, widget_id, input, output, error, status, created_at, updated_at) VALUES (?, ?, ?, '', '', ?, ?, ?)`,
		r.UUID, r.WidgetID, r.Input, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: create widget run")
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "chatstore: create widget run")
	}
	return r, nil
}

// FinishWidgetRun moves a running run to finished (runErr empty) or error.
func (s *SQLiteStore) FinishWidgetRun(ctx context.Context, runID int64, output, runErr string) (*WidgetRun, error) {
	status := RunFinished
	if runErr != "" {
		status = RunError
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE widget_runs SET status = ?, output = ?, error = ?, updated_at = ?, finished_at = ? WHERE id = ? AND status = ?`,
		status, output, runErr, now, now, runID, RunRunning)
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: finish widget run")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errors.Wrapf(ErrNotFound, "chatstore: no running widget run %d", runID)
	}
	var r WidgetRun
	if err := getOne(ctx, s.db, &r, `SELECT `+widgetRunColumns+` FROM widget_runs WHERE id = ?`, runID); err != nil {
		return nil, errors.Wrap(err, "chatstore: finish widget run")
	}
	return &r, nil
}

// LastWidgetRun returns the most recent run of a widget, or nil when it never ran.
func (s *SQLiteStore) LastWidgetRun(ctx context.Context, widgetID int64) (*WidgetRun, error) {
	var r WidgetRun
	err := getOne(ctx, s.db, &r,
		`SELECT `+widgetRunColumns+` FROM widget_runs WHERE widget_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, widgetID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: last widget run")
	}
	return &r, nil
}
