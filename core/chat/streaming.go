package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// chunkPrefix marks a record of interest inside the chunked body.
	chunkPrefix = "data:"
	// endMessage is the terminal sentinel, distinct from the transport-level
	// close of the body.
	endMessage = "[DONE]"
)

// streamingResponseBody is the payload of one well-formed record.
type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream is a single prepared turn-completion request. It is finite and not
// restartable: consume Deltas at most once.
type Stream struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	messages   []message
}

// Deltas issues the request and yields incremental text deltas in arrival
// order until the terminal sentinel is observed or the body closes. Records
// that fail to parse are logged and skipped; the transport may deliver
// partial trailing bytes at buffer edges, so one malformed record must not
// abort the stream. A failed request or non-success status yields a single
// *TransportError before any delta. Cancelling ctx aborts the in-flight
// request.
func (s *Stream) Deltas(ctx context.Context) func(func(string, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "stream turn completion")
		defer span.End()
		span.SetAttributes(attribute.Int("request.messages", len(s.messages)))

		requestBodyBytes, err := json.Marshal(requestBody{Messages: s.messages})
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := s.httpClient.Do(req)
		if err != nil {
			transportErr := &TransportError{Err: err}
			span.RecordError(transportErr)
			yield("", transportErr)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			transportErr := &TransportError{StatusCode: resp.StatusCode}
			span.RecordError(transportErr)
			yield("", transportErr)
			return
		}
		if resp.Body == http.NoBody {
			transportErr := &TransportError{Err: fmt.Errorf("response body absent")}
			span.RecordError(transportErr)
			yield("", transportErr)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			record := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

			if len(record) == 0 {
				continue
			}

			if record == endMessage {
				break
			}

			var responseBody streamingResponseBody
			if err := json.Unmarshal([]byte(record), &responseBody); err != nil {
				// Treated as a zero-delta record. The stream stays open.
				logger.WarnContext(ctx, "discarding malformed stream record", "error", err)
				span.AddEvent("malformed record discarded")
				continue
			}

			if len(responseBody.Choices) == 0 {
				continue
			}
			delta := responseBody.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			if !yield(delta, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			transportErr := &TransportError{Err: fmt.Errorf("error reading streamed response: %w", err)}
			span.RecordError(transportErr)
			yield("", transportErr)
			return
		}
	}
}
