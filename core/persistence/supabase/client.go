// Package supabase persists completed turns to a Supabase Postgres table
// through the REST interface. Writes are fire-and-forget from the engine's
// point of view: a failed write never rolls back the transcript.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTable = "chat_messages"

type record struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Content  string `json:"content"`
	HasAudio bool   `json:"has_audio,omitempty"`
}

type ClientOption func(*Client)

func WithTable(table string) ClientOption {
	return func(c *Client) { c.table = table }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

type Client struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		table:   defaultTable,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SaveTurn writes the two records of one completed turn in a single batched
// insert, keyed by the authenticated user.
func (c *Client) SaveTurn(ctx context.Context, userID, userText, assistantText string) error {
	if c.baseURL == "" || c.apiKey == "" {
		return fmt.Errorf("missing Supabase configuration: base URL and API key required")
	}

	records := []record{
		{UserID: userID, Role: "user", Content: userText},
		{UserID: userID, Role: "assistant", Content: assistantText, HasAudio: true},
	}
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal turn records: %w", err)
	}

	insertURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, insertURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create insert request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("insert failed with status %d", resp.StatusCode)
	}
	return nil
}
