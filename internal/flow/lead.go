package flow

import (
	"context"
	"fmt"
	"strings"
)

type LeadKind string

const (
	LeadContact LeadKind = "contact"
	LeadSample  LeadKind = "sample"
)

func (k LeadKind) mode() Mode {
	if k == LeadSample {
		return ModeLeadSampleForm
	}
	return ModeLeadContactForm
}

func (k LeadKind) defaultContext() string {
	if k == LeadSample {
		return "General Sample Request"
	}
	return "General Contact Request"
}

type LeadFields struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// LeadCaptureRequest is a validated form submission.
type LeadCaptureRequest struct {
	Kind    LeadKind
	Name    string
	Email   string
	Phone   string
	Address string
	Context string
}

// NewLeadCaptureRequest trims and validates a form. The returned message is
// the user-facing reason when validation fails.
func NewLeadCaptureRequest(kind LeadKind, f LeadFields, leadContext string) (LeadCaptureRequest, string) {
	req := LeadCaptureRequest{
		Kind:    kind,
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Phone:   strings.TrimSpace(f.Phone),
		Address: strings.TrimSpace(f.Address),
		Context: strings.TrimSpace(leadContext),
	}
	if req.Context == "" {
		req.Context = kind.defaultContext()
	}
	if req.Name == "" || req.Email == "" {
		return req, "Name and Email are required."
	}
	if !validEmail(req.Email) {
		return req, "Please enter a valid email address."
	}
	if kind == LeadSample && req.Address == "" {
		return req, "Delivery address is required for samples."
	}
	if kind != LeadSample {
		req.Address = ""
	}
	return req, ""
}

// Instruction asks the assistant to record the lead with its capture tool.
func (r LeadCaptureRequest) Instruction() string {
	s := fmt.Sprintf("Type: %s, Context: %s, Name: %s, Email: %s", r.Kind, r.Context, r.Name, r.Email)
	if r.Phone != "" {
		s += ", Phone: " + r.Phone
	}
	if r.Address != "" {
		s += ", Address: " + r.Address
	}
	return "Please capture the following lead details: " + s
}

// Summary is the echo shown in the log.
func (r LeadCaptureRequest) Summary() string {
	s := fmt.Sprintf("Okay, here are my details for the %s request: %s, %s", r.Kind, r.Name, r.Email)
	if r.Phone != "" {
		s += ", " + r.Phone
	}
	if r.Address != "" {
		s += ", Address: " + r.Address
	}
	return s + ". Context: " + r.Context
}

func (c *Controller) SubmitLeadCapture(ctx context.Context, kind LeadKind, f LeadFields) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind != LeadContact && kind != LeadSample {
		return fmt.Errorf("%w: unknown lead kind %q", ErrValidation, kind)
	}
	if err := c.requireLocked(kind.mode()); err != nil {
		return err
	}
	delete(c.errs, FieldLeadForm)

	req, problem := NewLeadCaptureRequest(kind, f, c.leadContext)
	if problem != "" {
		return c.invalidLocked(FieldLeadForm, problem)
	}

	c.emitLocked(EventFormSubmit, map[string]any{"form_type": "lead_capture_" + string(kind), "context": req.Context})
	c.appendLocked(RoleUser, req.Summary())
	c.leadContext = ""

	err := c.exchangeLocked(ctx, req.Instruction(), false)
	c.mode = ModeFreeChat
	return err
}
