package chatstore

import (
	"context"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const chatColumns = `id, uuid, name, profile_name, dashboard_id, created_at, updated_at`

const messageColumns = `id, uuid, chat_id, kind, body, reasoning, image_data, image_type, created_at, updated_at`

// CreateChat inserts a chat bound to the dashboard identified by dashboardUUID.
func (s *SQLiteStore) CreateChat(ctx context.Context, profile, dashboardUUID string) (*Chat, error) {
	d, err := s.FindDashboard(ctx, dashboardUUID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c := &Chat{
		UUID:        uuid.NewString(),
		Name:        DefaultChatName,
		ProfileName: profile,
		DashboardID: d.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (uuid, name, profile_name, dashboard_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.UUID, c.Name, c.ProfileName, c.DashboardID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: create chat")
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "chatstore: create chat")
	}
	return c, nil
}

func (s *SQLiteStore) FindChat(ctx context.Context, chatUUID string) (*Chat, error) {
	var c Chat
	if err := getOne(ctx, s.db, &c, `SELECT `+chatColumns+` FROM chats WHERE uuid = ?`, chatUUID); err != nil {
		return nil, errors.Wrapf(err, "chatstore: find chat %s", chatUUID)
	}
	return &c, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, dashboardUUID string) ([]Chat, error) {
	d, err := s.FindDashboard(ctx, dashboardUUID)
	if err != nil {
		return nil, err
	}
	var out []Chat
	if err := sqlscan.Select(ctx, s.db, &out,
		`SELECT `+chatColumns+` FROM chats WHERE dashboard_id = ? ORDER BY created_at ASC, id ASC`, d.ID); err != nil {
		return nil, errors.Wrap(err, "chatstore: list chats")
	}
	return out, nil
}

// DeleteChat removes the chat and its messages. Deleting an unknown chat
// returns ErrNotFound.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatUUID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "chatstore: delete chat")
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	if err := getOne(ctx, tx, &id, `SELECT id FROM chats WHERE uuid = ?`, chatUUID); err != nil {
		return errors.Wrapf(err, "chatstore: delete chat %s", chatUUID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return errors.Wrap(err, "chatstore: delete chat messages")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "chatstore: delete chat")
	}
	return errors.Wrap(tx.Commit(), "chatstore: delete chat")
}

// ListMessages returns the transcript in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatUUID string) ([]Message, error) {
	c, err := s.FindChat(ctx, chatUUID)
	if err != nil {
		return nil, err
	}
	var out []Message
	if err := sqlscan.Select(ctx, s.db, &out,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC`, c.ID); err != nil {
		return nil, errors.Wrap(err, "chatstore: list messages")
	}
	return out, nil
}

// NewMessage describes a turn to append.
type NewMessage struct {
	Kind      MessageKind
	Body      string
	Reasoning string
	ImageData string
	ImageType string
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, chatUUID string, in NewMessage) (*Message, error) {
	if in.Kind != KindUser && in.Kind != KindAssistant {
		return nil, errors.Errorf("chatstore: invalid message kind %q", in.Kind)
	}
	c, err := s.FindChat(ctx, chatUUID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	m := &Message{
		UUID:      uuid.NewString(),
		ChatID:    c.ID,
		Kind:      in.Kind,
		Body:      in.Body,
		Reasoning: in.Reasoning,
		ImageData: in.ImageData,
		ImageType: in.ImageType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (uuid, chat_id, kind, body, reasoning, image_data, image_type, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UUID, m.ChatID, m.Kind, m.Body, m.Reasoning, m.ImageData, m.ImageType, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "chatstore: append message")
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "chatstore: append message")
	}
	return m, nil
}
