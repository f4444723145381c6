package chat

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
	RoleSystem    = "system"
)

type Conversation struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ThreadID    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"thread_id"`
	Channel     *string        `gorm:"type:varchar(32);index" json:"channel"`
	StartURL    *string        `gorm:"type:text" json:"start_url"`
	IPAddress   *string        `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent   *string        `gorm:"type:text" json:"user_agent"`
	UserID      *uint64        `gorm:"index" json:"user_id"`
	CountryCode *string        `gorm:"type:varchar(8);index" json:"country_code"`
	City        *string        `gorm:"type:varchar(128)" json:"city"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Message struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string         `gorm:"type:varchar(36);index;not null" json:"conversation_id"`
	Role           string         `gorm:"type:varchar(16);index;not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	RunID          *string        `gorm:"type:varchar(64)" json:"run_id"`
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

type LeadKind string

const (
	LeadKindLead     LeadKind = "lead"
	LeadKindCallback LeadKind = "callback"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadLost      LeadStatus = "lost"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadQualified, LeadLost:
		return true
	}
	return false
}

type Lead struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string `gorm:"type:varchar(36);index;not null" json:"conversation_id"`
	// Only set on callback leads; the unique index keeps one callback per conversation.
	CallbackConversationID *string `gorm:"type:varchar(36);uniqueIndex" json:"-"`

	Kind   LeadKind   `gorm:"type:varchar(16);index;not null" json:"kind"`
	Status LeadStatus `gorm:"type:varchar(16);index;not null;default:new" json:"status"`

	Name             string `gorm:"type:varchar(255)" json:"name"`
	Email            string `gorm:"type:varchar(255);index" json:"email"`
	Phone            string `gorm:"type:varchar(64)" json:"phone"`
	Interest         string `gorm:"type:text" json:"interest"`
	EnquiryMatter    string `gorm:"type:text" json:"enquiry_matter"`
	CallbackDate     string `gorm:"type:varchar(64)" json:"callback_date"`
	CallbackTimeSlot string `gorm:"type:varchar(32)" json:"callback_time_slot"`

	RawData datatypes.JSON `json:"raw_data"`
	UserID  *uint64        `gorm:"index" json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Conversation{}, &Message{}, &Lead{})
}
