package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/leadchat/internal/ai"
	"github.com/suPer8Hu/leadchat/internal/geo"
	"gorm.io/datatypes"
)

var (
	ErrEmptyMessage     = errors.New("message is required")
	ErrThreadCreate     = errors.New("could not create assistant thread")
	ErrConversation     = errors.New("could not resolve conversation")
	ErrRunFailed        = errors.New("assistant run failed")
	ErrUnexpectedAction = errors.New("unexpected required action")
)

const defaultPollInterval = time.Second

type Service struct {
	store        Store
	assistant    ai.Assistant
	assistantID  string
	tools        *ToolRegistry
	geo          geo.Locator
	pollInterval time.Duration
}

type Option func(*Service)

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithLocator(l geo.Locator) Option {
	return func(s *Service) {
		if l != nil {
			s.geo = l
		}
	}
}

func WithTools(t *ToolRegistry) Option {
	return func(s *Service) {
		if t != nil {
			s.tools = t
		}
	}
}

func NewService(store Store, assistant ai.Assistant, assistantID string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		assistant:    assistant,
		assistantID:  assistantID,
		tools:        DefaultTools(store),
		geo:          geo.Unknown{},
		pollInterval: defaultPollInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ExchangeMetadata describes where an utterance came from. Only the first
// exchange of a thread records it on the conversation.
type ExchangeMetadata struct {
	UserEmail string
	Channel   string
	StartURL  string
	IPAddress string
	UserAgent string
	UserID    *uint64
}

type ExchangeRequest struct {
	Message  string
	ThreadID string
	Metadata ExchangeMetadata
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

// HandleExchange sends one utterance to the assistant and blocks until its run ends.
func (s *Service) HandleExchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		id, err := s.assistant.CreateThread(ctx)
		if err != nil {
			log.Printf("[HandleExchange] create thread failed err=%v", err)
			return nil, fmt.Errorf("%w: %v", ErrThreadCreate, err)
		}
		threadID = id
		log.Printf("[HandleExchange] new thread=%s", threadID)
	}

	conv, err := s.ResolveConversation(ctx, threadID, req.Metadata)
	if err != nil {
		log.Printf("[HandleExchange] resolve conversation failed thread=%s err=%v", threadID, err)
		return nil, fmt.Errorf("%w: %v", ErrConversation, err)
	}

	res, err := s.exchange(ctx, conv, threadID, text, req.Metadata.UserID)
	if err != nil {
		if !errors.Is(err, ErrRunFailed) {
			s.logMessage(ctx, &Message{
				ConversationID: conv.ID,
				Role:           RoleError,
				Content:        "Server Error: " + err.Error(),
			})
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) exchange(ctx context.Context, conv *Conversation, threadID, text string, userID *uint64) (*ExchangeResult, error) {
	if err := s.store.InsertMessage(ctx, &Message{
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        text,
	}); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	if err := s.assistant.AddMessage(ctx, threadID, RoleUser, text); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	run, err := s.assistant.CreateRun(ctx, threadID, s.assistantID)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	log.Printf("[HandleExchange] run=%s thread=%s conversation=%s", run.ID, threadID, conv.ID)

	run, err = s.awaitRun(ctx, threadID, run, ToolContext{ConversationID: conv.ID, UserID: userID})
	if err != nil {
		return nil, err
	}

	if run.Status != ai.RunCompleted {
		reason := run.LastError
		if reason == "" {
			reason = string(run.Status)
		}
		log.Printf("[HandleExchange] run=%s ended status=%s reason=%s", run.ID, run.Status, reason)
		runID := run.ID
		s.logMessage(ctx, &Message{
			ConversationID: conv.ID,
			Role:           RoleError,
			Content:        "Run failed: " + reason,
			RunID:          &runID,
		})
		return nil, fmt.Errorf("%w: %s", ErrRunFailed, reason)
	}

	replies, err := s.finalReply(ctx, conv.ID, threadID, run.ID)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{Messages: replies, ThreadID: threadID, ConversationID: conv.ID}, nil
}

// awaitRun polls until the run leaves queued/in_progress/requires_action.
func (s *Service) awaitRun(ctx context.Context, threadID string, run *ai.Run, tc ToolContext) (*ai.Run, error) {
	for run.Status.Pending() || run.Status == ai.RunRequiresAction {
		next, err := s.assistant.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("get run: %w", err)
		}
		run = next

		switch {
		case run.Status == ai.RunRequiresAction:
			if !run.NeedsToolOutputs() {
				return nil, fmt.Errorf("%w: %q", ErrUnexpectedAction, run.RequiredActionType)
			}
			outputs := make([]ai.ToolOutput, 0, len(run.RequiredToolCalls))
			for _, call := range run.RequiredToolCalls {
				res := s.tools.Dispatch(ctx, call, tc)
				log.Printf("[HandleExchange] tool=%s call=%s success=%t", call.FunctionName, call.ID, res.Success)
				outputs = append(outputs, ai.ToolOutput{ToolCallID: call.ID, Output: res.String()})
			}
			submitted, err := s.assistant.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
			if err != nil {
				return nil, fmt.Errorf("submit tool outputs: %w", err)
			}
			run = submitted
		case run.Status.Pending():
			if err := sleepCtx(ctx, s.pollInterval); err != nil {
				return nil, err
			}
		}
	}
	return run, nil
}

func (s *Service) finalReply(ctx context.Context, conversationID, threadID, runID string) ([]Reply, error) {
	msgs, err := s.assistant.ListMessages(ctx, threadID, ai.ListOptions{Order: "desc", Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var found *ai.ThreadMessage
	for i := range msgs {
		if msgs[i].RunID == runID && msgs[i].Role == RoleAssistant {
			found = &msgs[i]
			break
		}
	}
	if found == nil || len(found.Text) == 0 {
		log.Printf("[HandleExchange] run=%s produced no text reply", runID)
		return []Reply{}, nil
	}

	parts := make([]string, 0, len(found.Text))
	for _, t := range found.Text {
		parts = append(parts, t.Value)
	}
	raw := strings.Join(parts, "\n")

	m := &Message{
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        raw,
		RunID:          &runID,
	}
	if ann := found.Text[0].Annotations; len(ann) > 0 && string(ann) != "null" {
		if b, err := json.Marshal(map[string]json.RawMessage{"citations": ann}); err == nil {
			m.Metadata = datatypes.JSON(b)
		}
	}
	s.logMessage(ctx, m)

	clean := ai.StripCitations(raw)
	if clean == "" {
		return []Reply{}, nil
	}
	return []Reply{{Role: RoleAssistant, Text: clean}}, nil
}

// ResolveConversation maps a thread to its single conversation row, creating it
// on first sight.
func (s *Service) ResolveConversation(ctx context.Context, threadID string, meta ExchangeMetadata) (*Conversation, error) {
	existing, err := s.store.FindConversationByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	c := &Conversation{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Channel:   optional(meta.Channel),
		StartURL:  optional(meta.StartURL),
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
		UserID:    meta.UserID,
	}
	if email := strings.TrimSpace(meta.UserEmail); email != "" {
		if b, err := json.Marshal(map[string]string{"userEmail": email}); err == nil {
			c.Metadata = datatypes.JSON(b)
		}
	}
	if meta.IPAddress != "" {
		if loc := s.geo.Lookup(ctx, meta.IPAddress); loc.Known() {
			c.CountryCode = optional(loc.CountryCode)
			c.City = optional(loc.City)
		}
	}

	created, err := s.store.CreateConversation(ctx, c)
	if err != nil {
		return nil, err
	}
	if created.ID == c.ID {
		log.Printf("[ResolveConversation] created id=%s thread=%s country=%s", c.ID, threadID, deref(c.CountryCode))
	}
	return created, nil
}

// logMessage is best effort: the reply has already been produced by the assistant.
func (s *Service) logMessage(ctx context.Context, m *Message) {
	if err := s.store.InsertMessage(context.WithoutCancel(ctx), m); err != nil {
		log.Printf("[HandleExchange] store %s message failed conversation=%s err=%v", m.Role, m.ConversationID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
