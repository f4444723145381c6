package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/leadchat/internal/catalog"
)

type fakeExchanger struct {
	mu      sync.Mutex
	reqs    []ExchangeRequest
	err     error
	reply   string
	started chan struct{}
	release chan struct{}
}

func (f *fakeExchanger) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	err, reply, started, release := f.err, f.reply, f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{
		Messages:       []Reply{{Role: "assistant", Text: reply}},
		ThreadID:       "thread_1",
		ConversationID: "conv_1",
	}, nil
}

func (f *fakeExchanger) requests() []ExchangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExchangeRequest(nil), f.reqs...)
}

type fakeConfig struct {
	cfg WidgetConfig
	err error
}

func (f fakeConfig) GetConfig(ctx context.Context, identifier string) (WidgetConfig, error) {
	return f.cfg, f.err
}

type fakeOpener struct{ opened []string }

func (o *fakeOpener) Open(url string) error {
	o.opened = append(o.opened, url)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var today = time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC)

type harness struct {
	c        *Controller
	ex       *fakeExchanger
	opener   *fakeOpener
	sessions *MemorySessions
}

func newHarness(t *testing.T, cfg ConfigSource) *harness {
	t.Helper()
	h := &harness{
		ex:       &fakeExchanger{reply: "Sure."},
		opener:   &fakeOpener{},
		sessions: NewMemorySessions(),
	}
	h.c = NewController(Deps{
		Exchanger: h.ex,
		Config:    cfg,
		Sessions:  h.sessions,
		Opener:    h.opener,
		Clock:     fixedClock{today},
	}, Options{ConfigIdentifier: "default", StartURL: "https://example.test/doors"})
	return h
}

func started(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, fakeConfig{cfg: WidgetConfig{ThemeColor: "#111111", InitialMessage: "Hello! How can we help?"}})
	require.NoError(t, h.c.Start(context.Background()))
	return h
}

func lastMessage(c *Controller) Message {
	msgs := c.View().Messages
	if len(msgs) == 0 {
		return Message{}
	}
	return msgs[len(msgs)-1]
}

func TestStart_GreetsOnce(t *testing.T) {
	h := started(t)
	require.NoError(t, h.c.Start(context.Background()))

	v := h.c.View()
	require.Len(t, v.Messages, 1)
	assert.Equal(t, Message{Role: RoleAssistant, Text: "Hello! How can we help?"}, v.Messages[0])
	assert.Equal(t, "#111111", v.ThemeColor)
	assert.Equal(t, ModeInitial, v.Mode)
	assert.False(t, v.ContactGate)
}

func TestStart_FallbackConfig(t *testing.T) {
	tests := []struct {
		name string
		src  ConfigSource
	}{
		{"fetch error", fakeConfig{err: errors.New("not found")}},
		{"invalid config", fakeConfig{cfg: WidgetConfig{ThemeColor: "#fff"}}},
		{"no source", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.src)
			require.NoError(t, h.c.Start(context.Background()))
			v := h.c.View()
			assert.Equal(t, "#dc2626", v.ThemeColor)
			require.Len(t, v.Messages, 1)
			assert.Equal(t, "Sorry, could not load settings. How can I help?", v.Messages[0].Text)
		})
	}
}

func TestStart_LoadsStoredThread(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sessions.Set(context.Background(), ThreadStorageKey, "thread_old"))
	require.NoError(t, h.c.Start(context.Background()))
	require.NoError(t, h.c.StartFreeChat())
	require.NoError(t, h.c.SubmitFreeText(context.Background(), "hi"))

	reqs := h.ex.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "thread_old", reqs[0].ThreadID)
	assert.Equal(t, "website_widget", reqs[0].Channel)
	assert.Equal(t, "https://example.test/doors", reqs[0].StartURL)

	stored, _ := h.sessions.Get(context.Background(), ThreadStorageKey)
	assert.Equal(t, "thread_1", stored)
}

func TestContactGate(t *testing.T) {
	h := newHarness(t, fakeConfig{cfg: WidgetConfig{ThemeColor: "#111", InitialMessage: "Hi", RequireEmailFirst: true}})
	require.NoError(t, h.c.Start(context.Background()))

	v := h.c.View()
	assert.True(t, v.ContactGate)
	assert.Empty(t, v.Messages)
	assert.ErrorIs(t, h.c.StartFreeChat(), ErrInvalidMode)

	err := h.c.SubmitEmail("not-an-email")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Please enter a valid email address.", h.c.View().Errors[FieldEmail])

	require.NoError(t, h.c.SubmitEmail(" ann@example.com "))
	v = h.c.View()
	assert.False(t, v.ContactGate)
	require.Len(t, v.Messages, 1)
	assert.Equal(t, "Hi", v.Messages[0].Text)
	assert.Empty(t, v.Errors)

	require.NoError(t, h.c.StartFreeChat())
	require.NoError(t, h.c.SubmitFreeText(context.Background(), "hello"))
	assert.Equal(t, "ann@example.com", h.ex.requests()[0].UserEmail)
}

func TestSubmitFreeText(t *testing.T) {
	h := started(t)
	h.ex.reply = "The U-value is 1.3【4:2†source】."

	assert.ErrorIs(t, h.c.SubmitFreeText(context.Background(), "hello"), ErrInvalidMode)
	require.NoError(t, h.c.StartFreeChat())

	require.NoError(t, h.c.SubmitFreeText(context.Background(), "   "))
	assert.Empty(t, h.ex.requests())

	require.NoError(t, h.c.SubmitFreeText(context.Background(), " hello "))
	v := h.c.View()
	require.Len(t, v.Messages, 3)
	assert.Equal(t, Message{Role: RoleUser, Text: "hello"}, v.Messages[1])
	assert.Equal(t, Message{Role: RoleAssistant, Text: "The U-value is 1.3."}, v.Messages[2])
	assert.Equal(t, "thread_1", v.ThreadID)
	assert.Equal(t, "conv_1", v.ConversationID)
	assert.Equal(t, "hello", h.ex.requests()[0].Message)
}

func TestSubmitFreeText_FailureAppendsOneError(t *testing.T) {
	h := started(t)
	h.ex.err = errors.New("Run failed: rate limited")
	require.NoError(t, h.c.StartFreeChat())

	err := h.c.SubmitFreeText(context.Background(), "hello")
	require.Error(t, err)

	v := h.c.View()
	require.Len(t, v.Messages, 3)
	assert.Equal(t, RoleUser, v.Messages[1].Role)
	assert.Equal(t, Message{Role: RoleError, Text: "Run failed: rate limited"}, v.Messages[2])
	assert.Equal(t, ModeFreeChat, v.Mode)
	assert.False(t, v.Busy)
}

func TestBusyRejectsSecondExchange(t *testing.T) {
	h := started(t)
	h.ex.started = make(chan struct{}, 1)
	h.ex.release = make(chan struct{})
	require.NoError(t, h.c.StartFreeChat())

	done := make(chan error, 1)
	go func() { done <- h.c.SubmitFreeText(context.Background(), "first") }()
	<-h.ex.started

	assert.True(t, h.c.View().Busy)
	assert.ErrorIs(t, h.c.SubmitFreeText(context.Background(), "second"), ErrBusy)

	close(h.ex.release)
	require.NoError(t, <-done)
	assert.Len(t, h.ex.requests(), 1)
	assert.False(t, h.c.View().Busy)
}

// blockingSink never returns until the test ends; failingSink always errors.
type blockingSink struct{ unblock chan struct{} }

func (s blockingSink) Record(ctx context.Context, ev Event) error {
	<-s.unblock
	return nil
}

type failingSink struct{}

func (failingSink) Record(context.Context, Event) error { return errors.New("sink down") }

func TestEventSinkNeverBlocksTransitions(t *testing.T) {
	for name, sink := range map[string]EventSink{
		"blocking": blockingSink{unblock: make(chan struct{})},
		"failing":  failingSink{},
	} {
		t.Run(name, func(t *testing.T) {
			if b, ok := sink.(blockingSink); ok {
				t.Cleanup(func() { close(b.unblock) })
			}
			c := NewController(Deps{
				Exchanger: &fakeExchanger{reply: "ok"},
				Events:    sink,
				Clock:     fixedClock{today},
			}, Options{})
			require.NoError(t, c.Start(context.Background()))

			require.NoError(t, c.BeginCallbackFlow(context.Background()))
			forceMode(c, ModeInitial)
			require.NoError(t, c.BeginEnquiryFlow())
			assert.Equal(t, ModeEnquiryCategory, c.Mode())
			require.NoError(t, c.SelectCategory("doors"))
			assert.Equal(t, ModeEnquirySubcategory, c.Mode())
		})
	}
}

func forceMode(c *Controller, m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

func TestRecordedEventsCarryIdentity(t *testing.T) {
	events := make(chan Event, 4)
	c := NewController(Deps{
		Exchanger: &fakeExchanger{reply: "ok"},
		Events:    sinkFunc(func(ev Event) { events <- ev }),
	}, Options{})
	require.NoError(t, c.BeginCallbackFlow(context.Background()))

	select {
	case ev := <-events:
		assert.Equal(t, EventFlowStart, ev.Type)
		assert.Equal(t, "callback", ev.Details["flow"])
		assert.Equal(t, "conv_1", ev.ConversationID)
		assert.Equal(t, "thread_1", ev.ThreadID)
	case <-time.After(time.Second):
		t.Fatal("no event recorded")
	}
}

type sinkFunc func(Event)

func (f sinkFunc) Record(_ context.Context, ev Event) error {
	f(ev)
	return nil
}

func TestAffordances(t *testing.T) {
	cat := catalog.Default()
	doors, _ := cat.Category("doors")
	slide, _ := doors.Subcategory("smoothslide")

	tests := []struct {
		mode Mode
		sel  Selection
		keys []string
		in   []Field
		free bool
		date bool
	}{
		{mode: ModeInitial, sel: Selection{CallbackAvailable: true}, keys: []string{ActionCallback, ActionEnquiry, ActionFreeChat}},
		{mode: ModeInitial, keys: []string{ActionEnquiry, ActionFreeChat}},
		{mode: ModeCallbackName, in: []Field{FieldName}},
		{mode: ModeCallbackPhone, in: []Field{FieldPhone}},
		{mode: ModeCallbackEnquiry, in: []Field{FieldEnquiry}},
		{mode: ModeCallbackDateTime, date: true},
		{mode: ModeCallbackTime, keys: []string{"morning", "afternoon"}},
		{mode: ModeEnquiryCategory, sel: Selection{Catalog: cat}, keys: []string{"doors", "windows", "steel_look", "lanterns"}},
		{mode: ModeEnquirySubcategory, sel: Selection{Category: &doors}, keys: []string{"smoothfold", "smoothslide", "designer"}},
		{mode: ModeEnquiryResource, sel: Selection{Subcategory: &slide}, keys: []string{ActionProductPage, "gallery", "techSheet", "priceGuide", ActionTellMeMore}},
		{mode: ModeLeadContactForm, in: []Field{FieldLeadName, FieldLeadEmail, FieldLeadPhone}},
		{mode: ModeLeadSampleForm, in: []Field{FieldLeadName, FieldLeadEmail, FieldLeadPhone, FieldLeadAddress}},
		{mode: ModeFreeChat, free: true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			p := Affordances(tt.mode, tt.sel)
			var keys []string
			for _, a := range p.Actions {
				keys = append(keys, a.Key)
			}
			assert.Equal(t, tt.keys, keys)
			assert.Equal(t, tt.in, p.Inputs)
			assert.Equal(t, tt.free, p.FreeText)
			assert.Equal(t, tt.date, p.DatePicker)
		})
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "LEAD_CAPTURE_SAMPLE_FORM", ModeLeadSampleForm.String())
	assert.Equal(t, "FREE_CHAT", ModeFreeChat.String())
	assert.Equal(t, "Mode(42)", Mode(42).String())
}
