package widget

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("widget configuration not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetConfig(ctx context.Context, identifier string) (*Configuration, error) {
	var cfg Configuration
	err := r.db.WithContext(ctx).Where("identifier = ?", strings.TrimSpace(identifier)).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig inserts or replaces the configuration for cfg.Identifier.
func (r *Repo) SaveConfig(ctx context.Context, cfg *Configuration) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"theme_color", "initial_message", "require_email_first", "updated_at"}),
	}).Create(cfg).Error
}

func (r *Repo) InsertEvent(ctx context.Context, e *Event) error {
	e.ID = 0
	return r.db.WithContext(ctx).Create(e).Error
}

type EventFilter struct {
	ConversationID string
	EventType      string
	Limit          int
}

func (r *Repo) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	q := r.db.WithContext(ctx).Order("id desc").Limit(f.Limit)
	if f.ConversationID != "" {
		q = q.Where("conversation_id = ?", f.ConversationID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	var out []Event
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
