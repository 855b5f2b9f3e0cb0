// Package deepgram implements the one-shot recognition capability on top of
// the Deepgram live-transcription websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/mirelabs/voxloop/core/audio"
	"github.com/mirelabs/voxloop/core/speech/capture"
)

const listenURL = "wss://api.deepgram.com/v1/listen"

// Microphone is the audio source feeding a recognition session.
type Microphone interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	EncodingInfo() audio.EncodingInfo
}

type RecognizerOption func(*Recognizer)

// WithLocale sets the single recognition locale (the session is not
// multi-lingual).
func WithLocale(locale string) RecognizerOption {
	return func(r *Recognizer) { r.locale = locale }
}

// WithNoSpeechTimeout overrides how long a session waits for any speech
// before giving up.
func WithNoSpeechTimeout(timeout time.Duration) RecognizerOption {
	return func(r *Recognizer) { r.noSpeechTimeout = timeout }
}

// Recognizer runs one-shot, non-continuous recognition sessions: each
// Recognize call opens a fresh websocket, streams microphone audio into it,
// and resolves with the first complete utterance.
type Recognizer struct {
	apiKey     string
	microphone Microphone

	locale          string
	noSpeechTimeout time.Duration
	listenURL       string
}

// NewRecognizer probes the capability once: a missing credential or missing
// microphone is a permanent capture.ErrUnsupported.
func NewRecognizer(microphone Microphone, opts ...RecognizerOption) (*Recognizer, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok || apiKey == "" || microphone == nil {
		return nil, capture.ErrUnsupported
	}

	r := &Recognizer{
		apiKey:          apiKey,
		microphone:      microphone,
		locale:          "en-US",
		noSpeechTimeout: 8 * time.Second,
		listenURL:       listenURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Recognizer) Recognize(ctx context.Context) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := r.connectWebsocket()
	if err != nil {
		return "", fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	defer conn.Close()

	var connMu sync.Mutex
	writeAudio := func(chunk []byte) {
		connMu.Lock()
		defer connMu.Unlock()
		_ = conn.WriteMessage(websocket.BinaryMessage, chunk)
	}

	go func() {
		if err := r.microphone.Stream(ctx, writeAudio); err != nil {
			logger.ErrorContext(ctx, "microphone stream failed", "error", err)
			cancel()
		}
	}()

	// speechHeard disarms the no-speech timer: the deadline bounds silence
	// before the first speech event, never the length of the utterance.
	speechHeard := make(chan struct{})
	var heardOnce sync.Once
	heard := func() { heardOnce.Do(func() { close(speechHeard) }) }

	resolved := make(chan outcome, 1)
	go func() { resolved <- r.readUtterance(conn, heard) }()

	noSpeech := time.NewTimer(r.noSpeechTimeout)
	defer noSpeech.Stop()

	select {
	case out := <-resolved:
		return out.transcript, out.err
	case <-noSpeech.C:
		return "", capture.ErrNoSpeech
	case <-ctx.Done():
		return "", ctx.Err()
	case <-speechHeard:
		noSpeech.Stop()
	}

	select {
	case out := <-resolved:
		return out.transcript, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type outcome struct {
	transcript string
	err        error
}

// readUtterance consumes websocket messages until the first complete
// utterance is heard. heard is invoked on the first sign of speech, a VAD
// event or a non-empty interim transcript, whichever arrives first.
func (r *Recognizer) readUtterance(conn *websocket.Conn, heard func()) (out outcome) {
	var accumulated []string

	finalize := func() (string, error) {
		transcript := strings.TrimSpace(strings.Join(accumulated, " "))
		if transcript == "" {
			return "", capture.ErrNoSpeech
		}
		return transcript, nil
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			out.transcript, out.err = finalize()
			return out
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			continue
		}

		switch api.TypeResponse(parsedMsg.Type) {
		case api.TypeSpeechStartedResponse:
			heard()

		case api.TypeMessageResponse:
			var msgResp api.MessageResponse
			if err := json.Unmarshal(msg, &msgResp); err != nil {
				logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}
			if len(msgResp.Channel.Alternatives) > 0 &&
				strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript) != "" {
				heard()
			}
			if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
				continue
			}
			if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
				accumulated = append(accumulated, transcript)
			}
			if msgResp.SpeechFinal && len(accumulated) > 0 {
				out.transcript, out.err = finalize()
				return out
			}

		case api.TypeUtteranceEndResponse:
			if len(accumulated) > 0 {
				out.transcript, out.err = finalize()
				return out
			}
		}
	}
}

func (r *Recognizer) connectWebsocket() (*websocket.Conn, error) {
	encoding := r.microphone.EncodingInfo()
	if encoding.IsZero() {
		encoding = audio.DefaultEncodingInfo()
	}

	listenUrl, _ := url.Parse(r.listenURL)
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", r.locale)
	queryParams.Set("smart_format", "true")
	queryParams.Set("endpointing", "300")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("vad_events", "true")
	listenUrl.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	return conn, err
}
