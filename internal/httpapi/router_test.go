package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/leadchat/internal/auth"
	"github.com/suPer8Hu/leadchat/internal/chat"
	"github.com/suPer8Hu/leadchat/internal/config"
	"github.com/suPer8Hu/leadchat/internal/db"
	"github.com/suPer8Hu/leadchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/leadchat/internal/models"
	"github.com/suPer8Hu/leadchat/internal/widget"
	"gorm.io/gorm"
)

type fakeExchanger struct {
	mu          sync.Mutex
	got         chat.ExchangeRequest
	hadDeadline bool
	err         error
}

func (f *fakeExchanger) HandleExchange(ctx context.Context, req chat.ExchangeRequest) (*chat.ExchangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = req
	_, f.hadDeadline = ctx.Deadline()
	if strings.TrimSpace(req.Message) == "" {
		return nil, chat.ErrEmptyMessage
	}
	if f.err != nil {
		return nil, f.err
	}
	return &chat.ExchangeResult{
		Messages:       []chat.Reply{{Role: "assistant", Text: "Hello!"}},
		ThreadID:       "thread_1",
		ConversationID: "conv_1",
	}, nil
}

type fakePublisher struct {
	events []*widget.Event
}

func (p *fakePublisher) PublishEvent(ctx context.Context, e *widget.Event) error {
	p.events = append(p.events, e)
	return nil
}

type testServer struct {
	r   *gin.Engine
	db  *gorm.DB
	ex  *fakeExchanger
	cfg config.Config
}

func newTestServer(t *testing.T, events handlers.EventPublisher) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open("sqlite:file::memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := chat.Migrate(gdb); err != nil {
		t.Fatalf("migrate chat: %v", err)
	}
	if err := widget.Migrate(gdb); err != nil {
		t.Fatalf("migrate widget: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}

	cfg := config.Config{JWTSecret: "test-secret", ExchangeTimeout: time.Minute}
	ex := &fakeExchanger{}
	h := handlers.NewHandler(gdb, cfg, ex, events)
	return &testServer{r: NewRouter(h), db: gdb, ex: ex, cfg: cfg}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestExchange(t *testing.T) {
	s := newTestServer(t, nil)
	tok, _ := auth.SignJWT(5, s.cfg.JWTSecret, time.Hour)

	w := s.do(t, http.MethodPost, "/chat/exchange", map[string]string{
		"message": "hello", "userEmail": "ann@example.com", "startUrl": "https://example.test/", "channel": "website_widget",
	}, map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.1",
		"User-Agent":      "widget-test/1.0",
		"Authorization":   "Bearer " + tok,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d body=%s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"messages":[{"role":"assistant","text":"Hello!"}],"threadId":"thread_1","conversationId":"conv_1"}` {
		t.Fatalf("unexpected body %s", got)
	}

	meta := s.ex.got.Metadata
	if s.ex.got.ThreadID != "" || s.ex.got.Message != "hello" {
		t.Fatalf("unexpected request %+v", s.ex.got)
	}
	if meta.IPAddress != "203.0.113.9" || meta.UserAgent != "widget-test/1.0" || meta.UserEmail != "ann@example.com" || meta.Channel != "website_widget" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.UserID == nil || *meta.UserID != 5 {
		t.Fatalf("expected user id from token, got %v", meta.UserID)
	}
	if !s.ex.hadDeadline {
		t.Fatalf("expected exchange context to carry a deadline")
	}
}

func TestExchange_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/chat/exchange", map[string]string{"message": "  "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", w.Code)
	}
	if s.ex.got.Metadata.UserID != nil {
		t.Fatalf("anonymous request must not carry a user id")
	}

	s.ex.err = fmt.Errorf("%w: expired", chat.ErrRunFailed)
	w = s.do(t, http.MethodPost, "/chat/exchange", map[string]string{"message": "hi", "threadId": "thread_1"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	if !strings.HasSuffix(body.Error, ": expired") {
		t.Fatalf("unexpected error body %q", body.Error)
	}
}

func TestWidgetSettings(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(t, http.MethodGet, "/widget-settings", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without identifier, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/widget-settings?identifier=daws", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown identifier, got %d", w.Code)
	}

	if err := widget.NewRepo(s.db).SaveConfig(context.Background(), &widget.Configuration{
		Identifier: "daws", ThemeColor: "#0f766e", InitialMessage: "Hi there", RequireEmailFirst: true,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	w := s.do(t, http.MethodGet, "/widget-settings?identifier=daws", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if got := w.Body.String(); got != `{"theme_color":"#0f766e","initial_message":"Hi there","require_email_first":true}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestWidgetEvents_Direct(t *testing.T) {
	s := newTestServer(t, nil)

	if w := s.do(t, http.MethodPost, "/widget-events", map[string]any{"threadId": "t"}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without eventType, got %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/widget-events", map[string]any{
		"conversationId": "conv_1", "eventType": "flow_start", "eventDetails": map[string]string{"flow": "callback"},
	}, nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"success":true}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}

	events, err := widget.NewRepo(s.db).ListEvents(context.Background(), widget.EventFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "flow_start" || *events[0].ConversationID != "conv_1" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestWidgetEvents_Queued(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestServer(t, pub)

	w := s.do(t, http.MethodPost, "/widget-events", map[string]any{"eventType": "button_click"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
	if len(pub.events) != 1 || string(pub.events[0].EventDetails) != "{}" {
		t.Fatalf("unexpected published events %+v", pub.events)
	}
	events, _ := widget.NewRepo(s.db).ListEvents(context.Background(), widget.EventFilter{})
	if len(events) != 0 {
		t.Fatalf("queued events must not be written by the api, got %d", len(events))
	}
}

func login(t *testing.T, s *testServer) string {
	t.Helper()
	if err := handlers.EnsureUser(context.Background(), s.db, "Ops@Example.com", "pa55word"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	// second call is a no-op
	if err := handlers.EnsureUser(context.Background(), s.db, "ops@example.com", "other"); err != nil {
		t.Fatalf("ensure user again: %v", err)
	}

	w := s.do(t, http.MethodPost, "/login", map[string]string{"email": "ops@example.com", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", w.Code)
	}

	w = s.do(t, http.MethodPost, "/login", map[string]string{"email": "ops@example.com", "password": "pa55word"}, nil)
	var env struct {
		Code int `json:"code"`
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	decode(t, w, &env)
	if w.Code != http.StatusOK || env.Code != 0 || env.Data.Token == "" {
		t.Fatalf("login failed %d %s", w.Code, w.Body.String())
	}
	return env.Data.Token
}

func TestDashboard_Leads(t *testing.T) {
	s := newTestServer(t, nil)
	repo := chat.NewRepo(s.db)
	ctx := context.Background()
	for _, l := range []*chat.Lead{
		{ConversationID: "c1", Email: "a@b.co", Interest: "doors"},
		{ConversationID: "c2", Email: "c@d.co", Interest: "windows"},
	} {
		if err := repo.InsertLead(ctx, l); err != nil {
			t.Fatalf("insert lead: %v", err)
		}
	}

	if w := s.do(t, http.MethodGet, "/leads", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	bearer := map[string]string{"Authorization": "Bearer " + login(t, s)}

	w := s.do(t, http.MethodGet, "/leads?limit=1", nil, bearer)
	var page struct {
		Data struct {
			Leads        []chat.Lead `json:"leads"`
			NextBeforeID uint64      `json:"next_before_id"`
		} `json:"data"`
	}
	decode(t, w, &page)
	if len(page.Data.Leads) != 1 || page.Data.Leads[0].ConversationID != "c2" || page.Data.NextBeforeID != page.Data.Leads[0].ID {
		t.Fatalf("unexpected page %+v", page.Data)
	}

	path := fmt.Sprintf("/leads/%d/status", page.Data.Leads[0].ID)
	if w := s.do(t, http.MethodPatch, path, map[string]string{"status": "won"}, bearer); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", w.Code)
	}
	if w := s.do(t, http.MethodPatch, path, map[string]string{"status": "contacted"}, bearer); w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPatch, "/leads/999/status", map[string]string{"status": "lost"}, bearer); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing lead, got %d", w.Code)
	}

	w = s.do(t, http.MethodGet, "/leads?status=contacted", nil, bearer)
	decode(t, w, &page)
	if len(page.Data.Leads) != 1 || page.Data.Leads[0].Status != chat.LeadContacted {
		t.Fatalf("unexpected filtered leads %+v", page.Data.Leads)
	}
}

func TestDashboard_Conversations(t *testing.T) {
	s := newTestServer(t, nil)
	repo := chat.NewRepo(s.db)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, &chat.Conversation{ID: "conv_1", ThreadID: "thread_1"})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for _, m := range []*chat.Message{
		{ConversationID: conv.ID, Role: chat.RoleUser, Content: "hello"},
		{ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "Hi!"},
	} {
		if err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert message: %v", err)
		}
	}

	bearer := map[string]string{"Authorization": "Bearer " + login(t, s)}

	w := s.do(t, http.MethodGet, "/conversations/conv_1/messages", nil, bearer)
	var body struct {
		Data struct {
			Messages []chat.Message `json:"messages"`
		} `json:"data"`
	}
	decode(t, w, &body)
	if len(body.Data.Messages) != 2 || body.Data.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages %+v", body.Data.Messages)
	}

	if w := s.do(t, http.MethodGet, "/conversations/nope/messages", nil, bearer); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/conversations", nil, bearer); w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", w.Code)
	}
}

func TestSaveWidgetSettings(t *testing.T) {
	s := newTestServer(t, nil)
	bearer := map[string]string{"Authorization": "Bearer " + login(t, s)}

	if w := s.do(t, http.MethodPut, "/widget-settings/daws", map[string]any{"theme_color": "#fff"}, bearer); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without initial message, got %d", w.Code)
	}
	w := s.do(t, http.MethodPut, "/widget-settings/daws", map[string]any{
		"theme_color": "#0f766e", "initial_message": "Welcome", "require_email_first": false,
	}, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}
	cfg, err := widget.NewRepo(s.db).GetConfig(context.Background(), "daws")
	if err != nil || cfg.InitialMessage != "Welcome" {
		t.Fatalf("unexpected config %+v err=%v", cfg, err)
	}
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(t, http.MethodGet, "/nope", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var env struct {
		Code int `json:"code"`
	}
	decode(t, w, &env)
	if env.Code != 40400 {
		t.Fatalf("unexpected code %d", env.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}
