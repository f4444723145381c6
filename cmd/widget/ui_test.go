package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/leadchat/internal/flow"
)

type scriptedExchanger struct {
	sent []string
}

func (e *scriptedExchanger) Exchange(ctx context.Context, req flow.ExchangeRequest) (*flow.ExchangeResult, error) {
	e.sent = append(e.sent, req.Message)
	return &flow.ExchangeResult{
		Messages:       []flow.Reply{{Role: "assistant", Text: "Thanks, noted【4:0†source】."}},
		ThreadID:       "thread_1",
		ConversationID: "conv_1",
	}, nil
}

func TestUI_SampleRequestThenChat(t *testing.T) {
	ex := &scriptedExchanger{}
	var out bytes.Buffer
	c := flow.NewController(flow.Deps{Exchanger: ex, Opener: printOpener{w: &out}}, flow.Options{})

	input := strings.Join([]string{
		"2",            // enquire
		"1",            // doors
		"3",            // designer entrance doors
		"9",            // out of range
		"2",            // request a sample
		"Ann",          // name
		"ann@example",  // invalid email
		"",             // phone
		"1 Leeds Rd",   // address
		"Ann",          // name again
		"ann@example.com",
		"",
		"1 Leeds Rd",
		"hello",
		"/quit",
	}, "\n") + "\n"

	require.NoError(t, newUI(c, strings.NewReader(input), &out).run(context.Background()))

	require.Len(t, ex.sent, 2)
	assert.Equal(t, "Please capture the following lead details: Type: sample, Context: Request Sample: Designer Entrance Door, "+
		"Name: Ann, Email: ann@example.com, Address: 1 Leeds Rd", ex.sent[0])
	assert.Equal(t, "hello", ex.sent[1])

	text := out.String()
	assert.Contains(t, text, "bot> Sorry, could not load settings. How can I help?")
	assert.Contains(t, text, "(enter a number between 1 and 4)")
	assert.Contains(t, text, "(Please enter a valid email address.)")
	assert.Contains(t, text, "bot> Thanks, noted.")
	assert.Equal(t, flow.ModeFreeChat, c.Mode())
}

func TestUI_CallbackDateParsing(t *testing.T) {
	ex := &scriptedExchanger{}
	var out bytes.Buffer
	c := flow.NewController(flow.Deps{Exchanger: ex}, flow.Options{})

	input := strings.Join([]string{
		"1", // arrange a callback
		"Ann",
		"0113 496 0000",
		"Windows",
		"next tuesday",
	}, "\n") + "\n"

	require.NoError(t, newUI(c, strings.NewReader(input), &out).run(context.Background()))
	assert.Contains(t, out.String(), "(please use 2006-01-02)")
	assert.Equal(t, flow.ModeCallbackDateTime, c.Mode())
	assert.Equal(t, []string{"User initiated callback flow"}, ex.sent)
}
