// Package chat issues the streamed turn-completion request and incrementally
// decodes the chunked response into assistant text deltas.
package chat

import (
	"fmt"
	"net/http"

	"github.com/jinzhu/copier"
	"github.com/mirelabs/voxloop/core/transcript"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TransportError reports that the streamed request failed before or during
// delivery: the request could not be sent, the response status was not
// success, or the body ended unexpectedly.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat: non-OK HTTP status: %d", e.StatusCode)
	}
	return fmt.Sprintf("chat: transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// message is the wire shape of one transcript entry.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Messages []message `json:"messages"`
}

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamCompletion prepares a streamed completion carrying the full ordered
// transcript, oldest first, as conversational context. No network activity
// happens until the stream's Deltas iterator is consumed.
func (c *Client) StreamCompletion(messages []transcript.Message) *Stream {
	var wireMessages []message
	copier.Copy(&wireMessages, &messages)

	return &Stream{
		endpoint:   c.endpoint,
		apiKey:     c.apiKey,
		httpClient: c.httpClient,
		messages:   wireMessages,
	}
}
