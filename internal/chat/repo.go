package chat

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable record of conversations, messages and leads.
type Store interface {
	// FindConversationByThread returns nil, nil when the thread has no record yet.
	FindConversationByThread(ctx context.Context, threadID string) (*Conversation, error)
	// CreateConversation inserts c, or returns the row another writer created for
	// the same thread first.
	CreateConversation(ctx context.Context, c *Conversation) (*Conversation, error)
	InsertMessage(ctx context.Context, m *Message) error
	// UpsertCallbackLead keeps at most one callback lead per conversation.
	UpsertCallbackLead(ctx context.Context, l *Lead) error
	InsertLead(ctx context.Context, l *Lead) error
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) FindConversationByThread(ctx context.Context, threadID string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) (*Conversation, error) {
	err := r.db.WithContext(ctx).Create(c).Error
	if err == nil {
		return c, nil
	}

	// lost the race on thread_id: read back the winner
	existing, getErr := r.FindConversationByThread(ctx, c.ThreadID)
	if getErr != nil {
		return nil, getErr
	}
	if existing != nil {
		return existing, nil
	}
	return nil, err
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns conversations newest first.
func (r *Repo) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []Conversation
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns a conversation's messages in insertion order.
func (r *Repo) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (r *Repo) InsertLead(ctx context.Context, l *Lead) error {
	if l.Kind == "" {
		l.Kind = LeadKindLead
	}
	if l.Status == "" {
		l.Status = LeadNew
	}
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *Repo) UpsertCallbackLead(ctx context.Context, l *Lead) error {
	l.Kind = LeadKindCallback
	key := l.ConversationID
	l.CallbackConversationID = &key
	if l.Status == "" {
		l.Status = LeadNew
	}

	// status is left alone on conflict so a re-submission keeps its pipeline state
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "callback_conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "phone", "enquiry_matter", "callback_date", "callback_time_slot", "raw_data", "updated_at",
		}),
	}).Create(l).Error
}

type LeadFilter struct {
	Status   LeadStatus
	Kind     LeadKind
	Limit    int
	BeforeID uint64
}

// ListLeads returns leads in DESC id order (newest -> oldest).
func (r *Repo) ListLeads(ctx context.Context, f LeadFilter) ([]Lead, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.BeforeID > 0 {
		q = q.Where("id < ?", f.BeforeID)
	}
	var leads []Lead
	err := q.Find(&leads).Error
	return leads, err
}

func (r *Repo) UpdateLeadStatus(ctx context.Context, id uint64, status LeadStatus) error {
	res := r.db.WithContext(ctx).Model(&Lead{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
