// Package deepgram implements the narration synthesis capability on top of
// the Deepgram speak REST endpoint.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/mirelabs/voxloop/core/audio"
	"github.com/mirelabs/voxloop/core/speech/playback"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const speakURL = "https://api.deepgram.com/v1/speak"

type SynthesizerOption func(*Synthesizer)

func WithModel(model string) SynthesizerOption {
	return func(s *Synthesizer) { s.model = model }
}

func WithEncodingInfo(encoding audio.EncodingInfo) SynthesizerOption {
	return func(s *Synthesizer) { s.encoding = encoding }
}

// Synthesizer turns one utterance into linear16 PCM via a single REST call.
type Synthesizer struct {
	apiKey     string
	model      string
	encoding   audio.EncodingInfo
	httpClient *http.Client
}

// NewSynthesizer probes the capability once: a missing credential is a
// permanent playback.ErrUnsupported.
func NewSynthesizer(opts ...SynthesizerOption) (*Synthesizer, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok || apiKey == "" {
		return nil, playback.ErrUnsupported
	}

	s := &Synthesizer{
		apiKey:   apiKey,
		model:    "aura-2-thalia-en",
		encoding: audio.DefaultEncodingInfo(),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	speakUrl, _ := url.Parse(speakURL)
	queryParams := speakUrl.Query()
	queryParams.Set("model", s.model)
	queryParams.Set("encoding", s.encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(s.encoding.SampleRate))
	queryParams.Set("container", "none")
	speakUrl.RawQuery = queryParams.Encode()

	requestBodyBytes, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakUrl.String(), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading synthesized audio: %w", err)
	}
	return pcm, nil
}
