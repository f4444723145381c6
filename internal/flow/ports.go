package flow

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ThreadStorageKey is where the assistant thread handle survives reloads.
const ThreadStorageKey = "dawsbot_thread_id"

const DefaultChannel = "website_widget"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

type Message struct {
	Role Role
	Text string
}

type WidgetConfig struct {
	ThemeColor        string `json:"theme_color"`
	InitialMessage    string `json:"initial_message"`
	RequireEmailFirst bool   `json:"require_email_first"`
}

func (c WidgetConfig) Valid() bool {
	return strings.TrimSpace(c.ThemeColor) != "" && strings.TrimSpace(c.InitialMessage) != ""
}

// FallbackConfig is used whenever the configured one cannot be loaded.
func FallbackConfig() WidgetConfig {
	return WidgetConfig{
		ThemeColor:     "#dc2626",
		InitialMessage: "Sorry, could not load settings. How can I help?",
	}
}

type ExchangeRequest struct {
	Message   string `json:"message"`
	ThreadID  string `json:"threadId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	StartURL  string `json:"startUrl,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

type Reply struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type ExchangeResult struct {
	Messages       []Reply `json:"messages"`
	ThreadID       string  `json:"threadId"`
	ConversationID string  `json:"conversationId"`
}

// Exchanger delivers one utterance to the assistant backend.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error)
}

type ConfigSource interface {
	GetConfig(ctx context.Context, identifier string) (WidgetConfig, error)
}

// SessionStore is durable client-side storage. Get returns "" for a missing key.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type EventType string

const (
	EventFlowStart   EventType = "flow_start"
	EventButtonClick EventType = "button_click"
	EventFormSubmit  EventType = "form_submit"
)

type Event struct {
	Type           EventType      `json:"eventType"`
	Details        map[string]any `json:"eventDetails"`
	ConversationID string         `json:"conversationId,omitempty"`
	ThreadID       string         `json:"threadId,omitempty"`
}

// EventSink receives telemetry. The controller never waits on it.
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

type URLOpener interface {
	Open(url string) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// MemorySessions is a process-lifetime SessionStore.
type MemorySessions struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{m: map[string]string{}}
}

func (s *MemorySessions) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *MemorySessions) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}
