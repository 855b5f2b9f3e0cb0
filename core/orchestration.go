// Package orchestration ties speech capture, the streamed chat reply, and
// speech playback into one coherent, interruptible conversation loop. Three
// independently-completing channels (microphone, network stream, speaker)
// are serialized into a single consistent transcript; ordering is enforced
// by explicit state, never by timing assumption.
package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/mirelabs/voxloop/core/speech/capture"
	"github.com/mirelabs/voxloop/core/speech/playback"
	"github.com/mirelabs/voxloop/core/transcript"
)

var (
	// ErrEmptyPrompt rejects a submission with no text.
	ErrEmptyPrompt = errors.New("orchestration: empty prompt")
	// ErrTurnActive rejects a submission while a turn is open. Conflicting
	// submissions are rejected, never queued.
	ErrTurnActive = errors.New("orchestration: a turn is already open")
	// ErrCaptureActive rejects a submission while a capture session is
	// listening; capture and processing are mutually exclusive.
	ErrCaptureActive = errors.New("orchestration: a capture session is active")
	// ErrNotAuthenticated aborts a turn before any network call when no
	// authenticated user is available for persistence.
	ErrNotAuthenticated = errors.New("orchestration: no authenticated user")
)

// State is the orchestrator's explicit turn state. Sending and Streaming
// together constitute "processing": text input and new capture sessions are
// disabled for their duration.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
)

const (
	noticeTurnFailed       = "Failed to process message"
	noticeCaptureFailed    = "Voice recognition error. Please try again."
	noticeNoSpeech         = "Didn't hear anything. Please try again."
	noticeNotAuthenticated = "Sign in to chat"
)

type Orchestrator struct {
	store       *transcript.Store
	completions CompletionStreamer
	capture     *capture.Adapter
	playback    *playback.Adapter
	history     HistoryWriter

	resolveIdentity IdentityResolver

	orchestrateOptions OrchestrateOptions
	baseContext        context.Context

	mu    sync.Mutex
	state State
	turn  *activeTurn

	closeOnce sync.Once
	closed    chan struct{}
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:       transcript.NewStore(),
		state:       StateIdle,
		baseContext: context.Background(),
		closed:      make(chan struct{}),
	}
	o.orchestrateOptions.defaults()

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Orchestrate configures the orchestrator's lifetime context and callbacks.
//
// Contract: call Orchestrate at most once per orchestrator instance, before
// the first Submit or StartListening.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	o.orchestrateOptions.defaults()
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}
	o.baseContext = ctx
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.closed)
		if o.capture != nil {
			o.capture.Stop()
		}
		if o.playback != nil {
			o.playback.Cancel()
		}

		o.mu.Lock()
		if o.turn != nil {
			o.turn.cancel()
		}
		o.mu.Unlock()
	})
}

// State returns the current turn state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsProcessing reports whether a turn is open (Sending or Streaming).
func (o *Orchestrator) IsProcessing() bool {
	return o.State() != StateIdle
}

func (o *Orchestrator) IsListening() bool {
	return o.capture != nil && o.capture.IsListening()
}

func (o *Orchestrator) IsSpeaking() bool {
	return o.playback != nil && o.playback.IsSpeaking()
}

// StopSpeaking cancels in-progress narration. It is a no-op when nothing is
// playing or narration is unsupported.
func (o *Orchestrator) StopSpeaking() {
	if o.playback != nil {
		o.playback.Cancel()
	}
}

// ReplayLast narrates the most recent assistant reply again, barging in on
// any narration already playing. Open turns are not replayable.
func (o *Orchestrator) ReplayLast() {
	if o.playback == nil {
		return
	}
	messages := o.store.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		message := messages[i]
		if message.Role == transcript.RoleAssistant && !message.IsStreaming && message.Content != "" {
			o.playback.Speak(o.baseContext, message.Content)
			return
		}
	}
}

// Transcript returns a point-in-time snapshot of the message log.
func (o *Orchestrator) Transcript() []transcript.Message {
	return o.store.Messages()
}

// Restore preloads persisted history into the transcript. Restored turns
// are closed messages; they are never narrated.
func (o *Orchestrator) Restore(messages []transcript.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return ErrTurnActive
	}
	for _, message := range messages {
		message.IsStreaming = false
		if err := o.store.Append(message); err != nil {
			return err
		}
	}
	return nil
}

// Submit opens a turn for text, typed or spoken. It rejects empty text, a
// submission while a turn is open, and a submission while a capture session
// is listening. On acceptance the user message is appended immediately and
// the streamed reply is processed asynchronously.
func (o *Orchestrator) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyPrompt
	}
	if o.IsListening() {
		return ErrCaptureActive
	}

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrTurnActive
	}

	if err := o.store.Append(transcript.Message{Role: transcript.RoleUser, Content: text}); err != nil {
		o.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(o.baseContext)
	turn := newActiveTurn(text, cancel)
	o.turn = turn
	o.state = StateSending
	o.mu.Unlock()

	o.orchestrateOptions.onStateChanged(StateSending)
	go o.processTurn(ctx, turn)
	return nil
}

// StartListening opens a capture session. It is gated on the processing
// flag: no session may start while a turn is open.
func (o *Orchestrator) StartListening() error {
	if o.capture == nil {
		return capture.ErrUnsupported
	}
	if o.IsProcessing() {
		return ErrTurnActive
	}

	results, err := o.capture.Start(o.baseContext)
	if err != nil {
		return err
	}
	o.orchestrateOptions.onListeningChanged(true)

	go o.awaitCapture(results)
	return nil
}

// StopListening ends the capture session early; a pending result is
// discarded, not submitted. The listening flag drops exactly once, when the
// session's channel closes.
func (o *Orchestrator) StopListening() {
	if o.capture == nil {
		return
	}
	o.capture.Stop()
}

func (o *Orchestrator) awaitCapture(results <-chan capture.Result) {
	result, ok := <-results
	o.orchestrateOptions.onListeningChanged(false)
	if !ok {
		// Stopped early.
		return
	}

	switch {
	case errors.Is(result.Err, capture.ErrNoSpeech):
		o.orchestrateOptions.onNotice(noticeNoSpeech)
	case result.Err != nil:
		o.orchestrateOptions.onNotice(noticeCaptureFailed)
	default:
		if err := o.Submit(result.Transcript); err != nil && !errors.Is(err, ErrEmptyPrompt) {
			logger.Error("failed to submit capture result", "error", err)
			o.orchestrateOptions.onNotice(noticeTurnFailed)
		}
	}
}
