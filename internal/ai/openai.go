package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAssistant runs the thread/run protocol on the OpenAI Assistants v2 API.
type OpenAIAssistant struct {
	client openai.Client
	apiKey string
}

func NewOpenAIAssistant(baseURL, apiKey string, opts ...option.RequestOption) *OpenAIAssistant {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAIAssistant{
		client: openai.NewClient(append(reqOpts, opts...)...),
		apiKey: apiKey,
	}
}

func toRun(r *openai.Run) *Run {
	out := &Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   RunStatus(r.Status),
	}
	if r.JSON.RequiredAction.Valid() {
		out.RequiredActionType = string(r.RequiredAction.Type)
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.RequiredToolCalls = append(out.RequiredToolCalls, ToolCall{
				ID:           tc.ID,
				FunctionName: tc.Function.Name,
				Arguments:    tc.Function.Arguments,
			})
		}
	}
	if r.JSON.LastError.Valid() {
		out.LastError = r.LastError.Message
	}
	return out
}

func (p *OpenAIAssistant) CreateThread(ctx context.Context) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}
	th, err := p.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", apiError("create thread", err)
	}
	if th.ID == "" {
		return "", errors.New("openai: empty thread id")
	}
	return th.ID, nil
}

func (p *OpenAIAssistant) AddMessage(ctx context.Context, threadID, role, content string) error {
	if err := p.ready(); err != nil {
		return err
	}
	_, err := p.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role:    openai.BetaThreadMessageNewParamsRole(role),
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(content)},
	})
	return apiError("add message", err)
}

func (p *OpenAIAssistant) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(assistantID) == "" {
		return nil, errors.New("openai: assistant id is required")
	}
	run, err := p.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, apiError("create run", err)
	}
	return toRun(run), nil
}

func (p *OpenAIAssistant) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	run, err := p.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, apiError("get run", err)
	}
	return toRun(run), nil
}

func (p *OpenAIAssistant) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) (*Run, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	params := openai.BetaThreadRunSubmitToolOutputsParams{
		ToolOutputs: make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs)),
	}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.ToolCallID),
			Output:     openai.String(o.Output),
		})
	}
	run, err := p.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return nil, apiError("submit tool outputs", err)
	}
	return toRun(run), nil
}

func (p *OpenAIAssistant) ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]ThreadMessage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	params := openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrder(opts.Order),
	}
	if opts.Limit > 0 {
		params.Limit = openai.Int(int64(opts.Limit))
	}
	page, err := p.client.Beta.Threads.Messages.List(ctx, threadID, params)
	if err != nil {
		return nil, apiError("list messages", err)
	}

	msgs := make([]ThreadMessage, 0, len(page.Data))
	for _, m := range page.Data {
		tm := ThreadMessage{ID: m.ID, Role: string(m.Role), RunID: m.RunID}
		for _, c := range m.Content {
			if c.Type != "text" {
				continue
			}
			var ann []byte
			if raw := c.Text.JSON.Annotations.Raw(); raw != "" {
				ann = []byte(raw)
			}
			tm.Text = append(tm.Text, TextBlock{Value: c.Text.Value, Annotations: ann})
		}
		msgs = append(msgs, tm)
	}
	return msgs, nil
}

func (p *OpenAIAssistant) ready() error {
	if strings.TrimSpace(p.apiKey) == "" {
		return errors.New("openai: api key is required")
	}
	return nil
}

// apiError prefers the message the API put in its error body.
func apiError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("openai: %s: %s (status %d)", op, apiErr.Message, apiErr.StatusCode)
	}
	return fmt.Errorf("openai: %s: %w", op, err)
}
