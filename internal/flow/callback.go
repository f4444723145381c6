package flow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const callbackInitiation = "User initiated callback flow"

type TimeSlot struct {
	Value string
	Label string
}

var TimeSlots = []TimeSlot{
	{Value: "morning", Label: "Morning (9am - 12pm)"},
	{Value: "afternoon", Label: "Afternoon (1pm - 5pm)"},
}

func slotByValue(v string) (TimeSlot, bool) {
	for _, s := range TimeSlots {
		if s.Value == v {
			return s, true
		}
	}
	return TimeSlot{}, false
}

// BeginCallbackFlow sends the hidden initiation message so the thread and
// conversation exist before any callback details are collected.
func (c *Controller) BeginCallbackFlow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeInitial); err != nil {
		return err
	}
	if c.callbackDone {
		return fmt.Errorf("%w: callback already arranged", ErrInvalidMode)
	}

	if err := c.exchangeLocked(ctx, callbackInitiation, true); err != nil {
		c.notice = "Could not start callback flow. Please try again."
		return err
	}
	c.mode = ModeCallbackName
	c.appendLocked(RoleAssistant, "Okay, let's arrange a callback. Could I get your name, please?")
	c.emitLocked(EventFlowStart, map[string]any{"flow": "callback", "label": "Arrange a Callback"})
	return nil
}

func (c *Controller) SubmitName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeCallbackName); err != nil {
		return err
	}
	delete(c.errs, FieldName)

	name = strings.TrimSpace(name)
	if name == "" {
		return c.invalidLocked(FieldName, "Name cannot be empty.")
	}
	c.callback.name = name
	c.appendLocked(RoleUser, "My name is "+name)
	c.mode = ModeCallbackPhone
	c.appendLocked(RoleAssistant, fmt.Sprintf("Thanks %s! What's the best phone number to reach you at?", name))
	return nil
}

func (c *Controller) SubmitPhone(phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeCallbackPhone); err != nil {
		return err
	}
	delete(c.errs, FieldPhone)

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return c.invalidLocked(FieldPhone, "Phone number cannot be empty.")
	}
	if !validPhone(phone) {
		return c.invalidLocked(FieldPhone, "Please enter a valid phone number.")
	}
	c.callback.phone = phone
	c.appendLocked(RoleUser, "My number is "+phone)
	c.mode = ModeCallbackEnquiry
	c.appendLocked(RoleAssistant, "Got it. And briefly, what is the call regarding?")
	return nil
}

func (c *Controller) SubmitEnquiry(enquiry string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeCallbackEnquiry); err != nil {
		return err
	}
	delete(c.errs, FieldEnquiry)

	enquiry = strings.TrimSpace(enquiry)
	if enquiry == "" {
		return c.invalidLocked(FieldEnquiry, "Please provide a reason for the call.")
	}
	c.callback.enquiry = enquiry
	c.appendLocked(RoleUser, "It's regarding: "+enquiry)
	c.mode = ModeCallbackDateTime
	c.appendLocked(RoleAssistant, "Great, please pick a date for our call.")
	return nil
}

// SubmitDate accepts today or any later day. Only the calendar date of date
// is used, read in the clock's location.
func (c *Controller) SubmitDate(date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeCallbackDateTime); err != nil {
		return err
	}
	delete(c.errs, FieldDate)

	if date.IsZero() {
		return c.invalidLocked(FieldDate, "Please select a date first.")
	}
	now := c.deps.Clock.Now()
	date = calendarDay(date, now.Location())
	if !sameOrAfterDay(date, now) {
		return c.invalidLocked(FieldDate, "Please choose today or a later date.")
	}
	if c.callback.phone == "" {
		return c.resetLocked(ModeInitial,
			"Error: Phone number was not saved. Please restart the callback process.",
			"phone missing at date step")
	}

	c.callback.date = date
	c.appendLocked(RoleUser, "I'd like the call on "+FormatDate(date))
	c.mode = ModeCallbackTime
	c.appendLocked(RoleAssistant, "Got it. And is morning or afternoon better for the call?")
	return nil
}

// SelectTimeSlot finalizes the callback. The collected fields are cleared and
// the mode moves to FREE_CHAT whether or not the exchange succeeds.
func (c *Controller) SelectTimeSlot(ctx context.Context, slotValue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireLocked(ModeCallbackTime); err != nil {
		return err
	}
	slot, ok := slotByValue(slotValue)
	if !ok {
		return fmt.Errorf("%w: unknown time slot %q", ErrValidation, slotValue)
	}

	cb := c.callback
	if cb.name == "" || cb.phone == "" || cb.enquiry == "" || cb.date.IsZero() {
		c.callback = callbackFields{}
		return c.resetLocked(ModeInitial,
			"Internal error: Missing some callback details before sending final confirmation.",
			"callback fields incomplete at time step")
	}

	final := fmt.Sprintf("%s works for me. Please schedule the callback with these details: "+
		"Name: %s, Phone: %s, Enquiry: %s, Date: %s, Time Slot: %s",
		slot.Label, cb.name, cb.phone, cb.enquiry, FormatDate(cb.date), slot.Value)
	c.appendLocked(RoleUser, slot.Label+" works for me.")

	err := c.exchangeLocked(ctx, final, false)

	c.callback = callbackFields{}
	c.callbackDone = true
	c.mode = ModeFreeChat
	return err
}
