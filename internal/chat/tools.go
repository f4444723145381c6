package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/suPer8Hu/leadchat/internal/ai"
	"gorm.io/datatypes"
)

type ToolName string

const (
	ToolCaptureLead      ToolName = "capture_lead"
	ToolScheduleCallback ToolName = "schedule_callback"
)

// ToolContext carries what a tool needs to know about the exchange that triggered it.
type ToolContext struct {
	ConversationID string
	UserID         *uint64
}

type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r ToolResult) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"failed to encode tool result"}`
	}
	return string(b)
}

func toolFailure(msg string) ToolResult { return ToolResult{Success: false, Error: msg} }

type ToolHandler func(ctx context.Context, args map[string]any, raw json.RawMessage, tc ToolContext) ToolResult

type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[ToolName]ToolHandler
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[ToolName]ToolHandler)}
}

// DefaultTools registers the lead capture and callback scheduling handlers.
func DefaultTools(store Store) *ToolRegistry {
	r := NewToolRegistry()
	r.Register(ToolCaptureLead, CaptureLead(store))
	r.Register(ToolScheduleCallback, ScheduleCallback(store))
	return r
}

func (r *ToolRegistry) Register(name ToolName, h ToolHandler) {
	name = ToolName(strings.TrimSpace(string(name)))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch never fails: every problem becomes a failure result for the model to read.
func (r *ToolRegistry) Dispatch(ctx context.Context, call ai.ToolCall, tc ToolContext) (res ToolResult) {
	r.mu.RLock()
	h, ok := r.handlers[ToolName(call.FunctionName)]
	r.mu.RUnlock()
	if !ok {
		log.Printf("[Tools] unhandled function name=%s conversation=%s", call.FunctionName, tc.ConversationID)
		return toolFailure(fmt.Sprintf("Function '%s' is not handled by the backend.", call.FunctionName))
	}

	raw := json.RawMessage(strings.TrimSpace(call.Arguments))
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		log.Printf("[Tools] bad arguments name=%s err=%v", call.FunctionName, err)
		return toolFailure(fmt.Sprintf("Invalid arguments for function '%s'.", call.FunctionName))
	}

	defer func() {
		if p := recover(); p != nil {
			log.Printf("[Tools] panic name=%s panic=%v", call.FunctionName, p)
			res = toolFailure(fmt.Sprintf("Function '%s' failed.", call.FunctionName))
		}
	}()
	return h(ctx, args, raw, tc)
}

// argString reads a string-ish argument; models sometimes send numbers for phone fields.
func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func CaptureLead(store Store) ToolHandler {
	return func(ctx context.Context, args map[string]any, raw json.RawMessage, tc ToolContext) ToolResult {
		email := argString(args, "email")
		interest := argString(args, "interest")
		if email == "" || interest == "" {
			return toolFailure("Missing required fields: email and interest.")
		}

		lead := &Lead{
			ConversationID: tc.ConversationID,
			Kind:           LeadKindLead,
			Name:           argString(args, "name"),
			Email:          email,
			Phone:          argString(args, "phone"),
			Interest:       interest,
			RawData:        datatypes.JSON(raw),
			UserID:         tc.UserID,
		}
		if err := store.InsertLead(ctx, lead); err != nil {
			log.Printf("[Tools] capture_lead insert failed conversation=%s err=%v", tc.ConversationID, err)
			return toolFailure("Failed to save lead details.")
		}
		log.Printf("[Tools] lead captured id=%d conversation=%s", lead.ID, tc.ConversationID)
		return ToolResult{Success: true, Message: "Lead details saved successfully."}
	}
}

func ScheduleCallback(store Store) ToolHandler {
	return func(ctx context.Context, args map[string]any, raw json.RawMessage, tc ToolContext) ToolResult {
		name := argString(args, "name")
		phone := argString(args, "phone_number")
		enquiry := argString(args, "enquiry_matter")
		date := argString(args, "callback_date")
		slot := argString(args, "callback_time_slot")
		if name == "" || phone == "" || enquiry == "" || date == "" || slot == "" {
			return toolFailure("Missing required fields for scheduling callback.")
		}

		lead := &Lead{
			ConversationID:   tc.ConversationID,
			Name:             name,
			Phone:            phone,
			EnquiryMatter:    enquiry,
			CallbackDate:     date,
			CallbackTimeSlot: slot,
			RawData:          datatypes.JSON(raw),
			UserID:           tc.UserID,
		}
		if err := store.UpsertCallbackLead(ctx, lead); err != nil {
			log.Printf("[Tools] schedule_callback upsert failed conversation=%s err=%v", tc.ConversationID, err)
			return toolFailure("Failed to schedule callback.")
		}
		return ToolResult{
			Success: true,
			Message: fmt.Sprintf("Callback scheduled successfully for %s on %s (%s). We will call %s.", name, date, slot, phone),
		}
	}
}
