package chatstore

import (
	"context"
	"strings"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const dashboardColumns = `id, uuid, name, created_at, updated_at`

func (s *SQLiteStore) CreateDashboard(ctx context.Context, name string) (*Dashboard, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("chatstore: dashboard name is required")
	}
	now := s.now()
	d := &Dashboard{UUID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dashboards (uuid, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		d.UUID, d.Name, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: create dashboard")
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "chatstore: create dashboard")
	}
	return d, nil
}

func (s *SQLiteStore) FindDashboard(ctx context.Context, dashboardUUID string) (*Dashboard, error) {
	var d Dashboard
	if err := getOne(ctx, s.db, &d, `SELECT `+dashboardColumns+` FROM dashboards WHERE uuid = ?`, dashboardUUID); err != nil {
		return nil, errors.Wrapf(err, "chatstore: find dashboard %s", dashboardUUID)
	}
	return &d, nil
}

func (s *SQLiteStore) ListDashboards(ctx context.Context) ([]Dashboard, error) {
	var out []Dashboard
	if err := sqlscan.Select(ctx, s.db, &out, `SELECT `+dashboardColumns+` FROM dashboards ORDER BY created_at ASC, id ASC`); err != nil {
		return nil, errors.Wrap(err, "chatstore: list dashboards")
	}
	return out, nil
}
