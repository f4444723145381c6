// Package widgetclient is the widget's side of the HTTP API. Client satisfies
// the flow package's Exchanger, ConfigSource and EventSink.
package widgetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suPer8Hu/leadchat/internal/flow"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Token is an optional dashboard JWT that attributes exchanges to a user.
	Token string
}

// New sets a client timeout above the server's default exchange timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 150 * time.Second},
	}
}

func (c *Client) Exchange(ctx context.Context, req flow.ExchangeRequest) (*flow.ExchangeResult, error) {
	var out flow.ExchangeResult
	if err := c.do(ctx, http.MethodPost, "/chat/exchange", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetConfig(ctx context.Context, identifier string) (flow.WidgetConfig, error) {
	var cfg flow.WidgetConfig
	err := c.do(ctx, http.MethodGet, "/widget-settings?identifier="+url.QueryEscape(identifier), nil, &cfg)
	return cfg, err
}

func (c *Client) Record(ctx context.Context, ev flow.Event) error {
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "/widget-events", ev, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var apiErr struct {
			Error string `json:"error"`
		}
		// the server's message is shown to the user verbatim
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ interface {
	flow.Exchanger
	flow.ConfigSource
	flow.EventSink
} = (*Client)(nil)
