package widget

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Configuration struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	Identifier        string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"`
	ThemeColor        string    `gorm:"type:varchar(16);not null" json:"theme_color"`
	InitialMessage    string    `gorm:"type:text;not null" json:"initial_message"`
	RequireEmailFirst bool      `gorm:"not null;default:false" json:"require_email_first"`
	CreatedAt         time.Time `json:"-"`
	UpdatedAt         time.Time `json:"-"`
}

func (Configuration) TableName() string { return "widget_configurations" }

const (
	EventFlowStart   = "flow_start"
	EventButtonClick = "button_click"
	EventFormSubmit  = "form_submit"
)

// Event is one telemetry record from the widget. It is also the queue payload.
type Event struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID *string        `gorm:"type:varchar(36);index" json:"conversationId,omitempty"`
	ThreadID       *string        `gorm:"type:varchar(64)" json:"threadId,omitempty"`
	EventType      string         `gorm:"type:varchar(64);index;not null" json:"eventType"`
	EventDetails   datatypes.JSON `json:"eventDetails,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (Event) TableName() string { return "widget_events" }

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Configuration{}, &Event{})
}
