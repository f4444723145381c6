// Package flow drives the guided chat: one Controller per widget session owns
// the mode, the message log and the partially collected callback and lead
// fields, and turns UI actions into mode transitions and assistant exchanges.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/leadchat/internal/ai"
	"github.com/suPer8Hu/leadchat/internal/catalog"
)

var (
	// ErrBusy is returned while another exchange is in flight.
	ErrBusy        = errors.New("flow: exchange in progress")
	ErrInvalidMode = errors.New("flow: action not available in current mode")
	ErrValidation  = errors.New("flow: invalid input")
	// ErrStateReset reports an inconsistent controller state that was reset to a safe mode.
	ErrStateReset = errors.New("flow: state reset")
)

const eventTimeout = 5 * time.Second

type Deps struct {
	Exchanger Exchanger
	Config    ConfigSource
	Sessions  SessionStore
	Events    EventSink
	Opener    URLOpener
	Catalog   *catalog.Catalog
	Clock     Clock
}

type Options struct {
	ConfigIdentifier string
	Channel          string
	StartURL         string
}

type callbackFields struct {
	name    string
	phone   string
	enquiry string
	date    time.Time // zero until chosen
}

type Controller struct {
	deps Deps
	opts Options

	mu   sync.Mutex
	busy bool

	mode     Mode
	messages []Message
	notice   string
	errs     map[Field]string

	config  WidgetConfig
	gate    bool
	greeted bool
	email   string

	threadID       string
	conversationID string

	callback     callbackFields
	callbackDone bool

	category    string
	subcategory string
	leadContext string
}

func NewController(deps Deps, opts Options) *Controller {
	if deps.Sessions == nil {
		deps.Sessions = NewMemorySessions()
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	return &Controller{
		deps:   deps,
		opts:   opts,
		mode:   ModeInitial,
		errs:   map[Field]string{},
		config: FallbackConfig(),
	}
}

// View is a snapshot of everything the UI renders.
type View struct {
	Mode           Mode
	Messages       []Message
	Panel          Panel
	Busy           bool
	ContactGate    bool
	ThemeColor     string
	Notice         string
	Errors         map[Field]string
	ThreadID       string
	ConversationID string
	LeadContext    string
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	return View{
		Mode:           c.mode,
		Messages:       append([]Message(nil), c.messages...),
		Panel:          Affordances(c.mode, c.selectionLocked()),
		Busy:           c.busy,
		ContactGate:    c.gate,
		ThemeColor:     c.config.ThemeColor,
		Notice:         c.notice,
		Errors:         maps.Clone(c.errs),
		ThreadID:       c.threadID,
		ConversationID: c.conversationID,
		LeadContext:    c.leadContext,
	}
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) selectionLocked() Selection {
	sel := Selection{CallbackAvailable: !c.callbackDone, Catalog: c.deps.Catalog}
	if cat, ok := c.deps.Catalog.Category(c.category); ok {
		sel.Category = &cat
		if sub, ok := cat.Subcategory(c.subcategory); ok {
			sel.Subcategory = &sub
		}
	}
	return sel
}

// Start loads the stored thread handle and the widget configuration, then
// either shows the contact gate or greets once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()

	threadID, err := c.deps.Sessions.Get(ctx, ThreadStorageKey)
	if err != nil {
		log.Printf("[Controller] load thread id failed err=%v", err)
	}
	cfg := c.loadConfig(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if c.threadID == "" {
		c.threadID = threadID
	}
	c.config = cfg
	c.gate = cfg.RequireEmailFirst && c.email == ""
	if !c.gate {
		c.greetLocked()
	}
	log.Printf("[Controller] started thread=%q gate=%t", c.threadID, c.gate)
	return nil
}

func (c *Controller) loadConfig(ctx context.Context) WidgetConfig {
	if c.deps.Config == nil || strings.TrimSpace(c.opts.ConfigIdentifier) == "" {
		log.Printf("[Controller] no widget configuration source, using fallback")
		return FallbackConfig()
	}
	cfg, err := c.deps.Config.GetConfig(ctx, c.opts.ConfigIdentifier)
	if err != nil {
		log.Printf("[Controller] load widget config failed identifier=%s err=%v", c.opts.ConfigIdentifier, err)
		return FallbackConfig()
	}
	if !cfg.Valid() {
		log.Printf("[Controller] invalid widget config identifier=%s", c.opts.ConfigIdentifier)
		return FallbackConfig()
	}
	return cfg
}

func (c *Controller) greetLocked() {
	if c.greeted {
		return
	}
	c.greeted = true
	c.appendLocked(RoleAssistant, c.config.InitialMessage)
}

// SubmitEmail answers the contact gate.
func (c *Controller) SubmitEmail(email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if !c.gate {
		return ErrInvalidMode
	}
	delete(c.errs, FieldEmail)

	email = strings.TrimSpace(email)
	if email == "" {
		return c.invalidLocked(FieldEmail, "Email address cannot be empty.")
	}
	if !validEmail(email) {
		return c.invalidLocked(FieldEmail, "Please enter a valid email address.")
	}
	c.email = email
	c.gate = false
	c.greetLocked()
	return nil
}

func (c *Controller) StartFreeChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeInitial); err != nil {
		return err
	}
	c.mode = ModeFreeChat
	return nil
}

// SubmitFreeText sends a typed message. Blank text is ignored.
func (c *Controller) SubmitFreeText(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeFreeChat); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.appendLocked(RoleUser, text)
	return c.exchangeLocked(ctx, text, false)
}

func (c *Controller) requireLocked(modes ...Mode) error {
	if c.busy {
		return ErrBusy
	}
	if c.gate {
		return ErrInvalidMode
	}
	for _, m := range modes {
		if c.mode == m {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidMode, c.mode)
}

func (c *Controller) appendLocked(role Role, text string) {
	c.messages = append(c.messages, Message{Role: role, Text: text})
}

func (c *Controller) invalidLocked(f Field, msg string) error {
	c.errs[f] = msg
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// resetLocked handles a state the UI should never be able to reach.
func (c *Controller) resetLocked(to Mode, notice, reason string) error {
	log.Printf("[Controller] reset mode=%s to=%s reason=%s", c.mode, to, reason)
	c.mode = to
	c.notice = notice
	return fmt.Errorf("%w: %s", ErrStateReset, reason)
}

// exchangeLocked performs one round trip with c.mu released for the network
// call. The busy flag keeps other entry points out meanwhile. With hidden set
// the replies are not rendered.
func (c *Controller) exchangeLocked(ctx context.Context, text string, hidden bool) error {
	if c.deps.Exchanger == nil {
		c.appendLocked(RoleError, "Chat is not available right now.")
		return errors.New("flow: no exchanger configured")
	}

	req := ExchangeRequest{
		Message:   text,
		ThreadID:  c.threadID,
		UserEmail: c.email,
		StartURL:  c.opts.StartURL,
		Channel:   c.opts.Channel,
	}
	c.busy = true
	c.notice = ""
	c.mu.Unlock()

	res, err := c.deps.Exchanger.Exchange(ctx, req)
	if err == nil && (res == nil || res.ThreadID == "" || res.ConversationID == "") {
		err = errors.New("invalid response structure")
	}
	if err == nil && res.ThreadID != req.ThreadID {
		if serr := c.deps.Sessions.Set(ctx, ThreadStorageKey, res.ThreadID); serr != nil {
			log.Printf("[Controller] persist thread id failed err=%v", serr)
		}
	}

	c.mu.Lock()
	c.busy = false
	if err != nil {
		log.Printf("[Controller] exchange failed mode=%s err=%v", c.mode, err)
		msg := err.Error()
		if msg == "" {
			msg = "An unknown error occurred."
		}
		c.appendLocked(RoleError, msg)
		return fmt.Errorf("flow: exchange: %w", err)
	}

	c.threadID = res.ThreadID
	c.conversationID = res.ConversationID
	if hidden {
		return nil
	}
	for _, r := range res.Messages {
		if r.Role != string(RoleAssistant) {
			continue
		}
		if t := ai.StripCitations(r.Text); t != "" {
			c.appendLocked(RoleAssistant, t)
		}
	}
	return nil
}

// emitLocked hands an event to the sink on its own goroutine.
func (c *Controller) emitLocked(t EventType, details map[string]any) {
	if c.deps.Events == nil {
		return
	}
	ev := Event{Type: t, Details: details, ConversationID: c.conversationID, ThreadID: c.threadID}
	sink := c.deps.Events
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Printf("[Controller] event sink panic type=%s panic=%v", t, p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := sink.Record(ctx, ev); err != nil {
			log.Printf("[Controller] record event failed type=%s err=%v", t, err)
		}
	}()
}
