package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/suPer8Hu/leadchat/internal/flow"
)

const dateLayout = "2006-01-02"

type printOpener struct{ w io.Writer }

func (o printOpener) Open(url string) error {
	_, err := fmt.Fprintf(o.w, "  -> open %s\n", url)
	return err
}

// ui renders controller views as plain text and maps input lines to actions.
type ui struct {
	c    *flow.Controller
	in   *bufio.Scanner
	out  io.Writer
	seen int
	// last notice printed
	notice string
}

func newUI(c *flow.Controller, in io.Reader, out io.Writer) *ui {
	return &ui{c: c, in: bufio.NewScanner(in), out: out}
}

func (u *ui) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(u.out, format, args...)
}

func (u *ui) render(v flow.View) {
	for _, m := range v.Messages[u.seen:] {
		switch m.Role {
		case flow.RoleUser:
			u.printf("you> %s\n", m.Text)
		case flow.RoleError:
			u.printf("!! %s\n", m.Text)
		default:
			u.printf("bot> %s\n", m.Text)
		}
	}
	u.seen = len(v.Messages)
	if v.Notice != "" && v.Notice != u.notice {
		u.printf("(%s)\n", v.Notice)
	}
	u.notice = v.Notice
	for i, a := range v.Panel.Actions {
		u.printf("  [%d] %s\n", i+1, a.Label)
	}
}

func (u *ui) prompt(label string) (string, bool) {
	u.printf("%s: ", label)
	if !u.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(u.in.Text()), true
}

// run drives the controller until input ends or the user types /quit.
func (u *ui) run(ctx context.Context) error {
	if err := u.c.Start(ctx); err != nil {
		return err
	}
	for {
		v := u.c.View()
		u.render(v)

		var err error
		var ok bool
		switch {
		case v.ContactGate:
			var email string
			if email, ok = u.prompt("email"); ok {
				err = u.c.SubmitEmail(email)
			}
		case v.Mode == flow.ModeLeadContactForm || v.Mode == flow.ModeLeadSampleForm:
			ok, err = u.leadForm(ctx, v)
		case len(v.Panel.Actions) > 0:
			ok, err = u.choose(ctx, v)
		case v.Panel.DatePicker:
			var s string
			if s, ok = u.prompt("date (YYYY-MM-DD)"); ok {
				d, perr := time.ParseInLocation(dateLayout, s, time.Local)
				if perr != nil {
					u.printf("(please use %s)\n", dateLayout)
					continue
				}
				err = u.c.SubmitDate(d)
			}
		case len(v.Panel.Inputs) == 1:
			var s string
			if s, ok = u.prompt(string(v.Panel.Inputs[0])); ok {
				err = u.submitField(v.Panel.Inputs[0], s)
			}
		default:
			var s string
			if s, ok = u.prompt("message"); ok {
				if s == "/quit" {
					return nil
				}
				err = u.c.SubmitFreeText(ctx, s)
			}
		}
		if !ok {
			return u.in.Err()
		}
		u.report(err)
	}
}

func (u *ui) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, flow.ErrValidation) {
		for _, msg := range u.c.View().Errors {
			u.printf("(%s)\n", msg)
		}
	}
}

func (u *ui) submitField(f flow.Field, s string) error {
	switch f {
	case flow.FieldName:
		return u.c.SubmitName(s)
	case flow.FieldPhone:
		return u.c.SubmitPhone(s)
	case flow.FieldEnquiry:
		return u.c.SubmitEnquiry(s)
	}
	return fmt.Errorf("unsupported field %s", f)
}

func (u *ui) choose(ctx context.Context, v flow.View) (bool, error) {
	s, ok := u.prompt("choose")
	if !ok {
		return false, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > len(v.Panel.Actions) {
		u.printf("(enter a number between 1 and %d)\n", len(v.Panel.Actions))
		return true, nil
	}
	key := v.Panel.Actions[n-1].Key

	switch v.Mode {
	case flow.ModeInitial:
		switch key {
		case flow.ActionCallback:
			return true, u.c.BeginCallbackFlow(ctx)
		case flow.ActionEnquiry:
			return true, u.c.BeginEnquiryFlow()
		default:
			return true, u.c.StartFreeChat()
		}
	case flow.ModeCallbackTime:
		return true, u.c.SelectTimeSlot(ctx, key)
	case flow.ModeEnquiryCategory:
		return true, u.c.SelectCategory(key)
	case flow.ModeEnquirySubcategory:
		return true, u.c.SelectSubcategory(key)
	case flow.ModeEnquiryResource:
		switch key {
		case flow.ActionProductPage:
			return true, u.c.OpenProductPage()
		case flow.ActionTellMeMore:
			return true, u.c.TellMeMore(ctx)
		default:
			return true, u.c.SelectResourceKey(key)
		}
	}
	return true, fmt.Errorf("no action for mode %s", v.Mode)
}

func (u *ui) leadForm(ctx context.Context, v flow.View) (bool, error) {
	kind := flow.LeadContact
	if v.Mode == flow.ModeLeadSampleForm {
		kind = flow.LeadSample
	}
	var f flow.LeadFields
	for _, field := range v.Panel.Inputs {
		s, ok := u.prompt(string(field))
		if !ok {
			return false, nil
		}
		switch field {
		case flow.FieldLeadName:
			f.Name = s
		case flow.FieldLeadEmail:
			f.Email = s
		case flow.FieldLeadPhone:
			f.Phone = s
		case flow.FieldLeadAddress:
			f.Address = s
		}
	}
	return true, u.c.SubmitLeadCapture(ctx, kind, f)
}
