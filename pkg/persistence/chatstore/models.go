package chatstore

import (
	"database/sql"
	"time"
)

type MessageKind string

const (
	KindUser      MessageKind = "user"
	KindAssistant MessageKind = "assistant"
)

type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunError    RunStatus = "error"
)

const DefaultChatName = "New Chat"

type Dashboard struct {
	ID        int64     `db:"id"`
	UUID      string    `db:"uuid"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Chat struct {
	ID          int64     `db:"id"`
	UUID        string    `db:"uuid"`
	Name        string    `db:"name"`
	ProfileName string    `db:"profile_name"`
	DashboardID int64     `db:"dashboard_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type Message struct {
	ID        int64       `db:"id"`
	UUID      string      `db:"uuid"`
	ChatID    int64       `db:"chat_id"`
	Kind      MessageKind `db:"kind"`
	Body      string      `db:"body"`
	Reasoning string      `db:"reasoning"`
	ImageData string      `db:"image_data"`
	ImageType string      `db:"image_type"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

type Widget struct {
	ID           int64     `db:"id"`
	UUID         string    `db:"uuid"`
	Name         string    `db:"name"`
	Input        string    `db:"input"`
	TemplateName string    `db:"template_name"`
	DashboardID  int64     `db:"dashboard_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type WidgetRun struct {
	ID         int64        `db:"id"`
	UUID       string       `db:"uuid"`
	WidgetID   int64        `db:"widget_id"`
	Input      string       `db:"input"`
	Output     string       `db:"output"`
	Error      string       `db:"error"`
	Status     RunStatus    `db:"status"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

// DTOs are the JSON shapes served to clients.

type DashboardDTO struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type ChatDTO struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	ProfileName string `json:"profileName"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type ImageDTO struct {
	Data string `json:"data"`
	Type string `json:"type"`
}

type MessageDTO struct {
	UUID      string    `json:"uuid"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	Reasoning string    `json:"reasoning,omitempty"`
	Image     *ImageDTO `json:"image,omitempty"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
}

type WidgetRunDTO struct {
	UUID       string  `json:"uuid"`
	Output     string  `json:"output"`
	Error      string  `json:"error"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
	FinishedAt *string `json:"finishedAt"`
}

type WidgetDTO struct {
	UUID         string        `json:"uuid"`
	Name         string        `json:"name"`
	TemplateName string        `json:"templateName"`
	Input        string        `json:"input"`
	CreatedAt    string        `json:"createdAt"`
	UpdatedAt    string        `json:"updatedAt"`
	LastRun      *WidgetRunDTO `json:"lastRun"`
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (d Dashboard) DTO() DashboardDTO {
	return DashboardDTO{UUID: d.UUID, Name: d.Name, CreatedAt: ts(d.CreatedAt), UpdatedAt: ts(d.UpdatedAt)}
}

func (c Chat) DTO() ChatDTO {
	return ChatDTO{UUID: c.UUID, Name: c.Name, ProfileName: c.ProfileName, CreatedAt: ts(c.CreatedAt), UpdatedAt: ts(c.UpdatedAt)}
}

func (m Message) DTO() MessageDTO {
	dto := MessageDTO{
		UUID:      m.UUID,
		Kind:      string(m.Kind),
		Body:      m.Body,
		Reasoning: m.Reasoning,
		CreatedAt: ts(m.CreatedAt),
		UpdatedAt: ts(m.UpdatedAt),
	}
	if m.ImageData != "" {
		dto.Image = &ImageDTO{Data: m.ImageData, Type: m.ImageType}
	}
	return dto
}

func (r WidgetRun) DTO() WidgetRunDTO {
	dto := WidgetRunDTO{
		UUID:      r.UUID,
		Output:    r.Output,
		Error:     r.Error,
		Status:    string(r.Status),
		CreatedAt: ts(r.CreatedAt),
		UpdatedAt: ts(r.UpdatedAt),
	}
	if r.FinishedAt.Valid {
		s := ts(r.FinishedAt.Time)
		dto.FinishedAt = &s
	}
	return dto
}

// WidgetDTO renders w with its most recent run, if any.
func (w Widget) DTO(lastRun *WidgetRun) WidgetDTO {
	dto := WidgetDTO{
		UUID:         w.UUID,
		Name:         w.Name,
		TemplateName: w.TemplateName,
		Input:        w.Input,
		CreatedAt:    ts(w.CreatedAt),
		UpdatedAt:    ts(w.UpdatedAt),
	}
	if lastRun != nil {
		r := lastRun.DTO()
		dto.LastRun = &r
	}
	return dto
}
