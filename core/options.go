package orchestration

import (
	"context"

	"github.com/mirelabs/voxloop/core/speech/capture"
	"github.com/mirelabs/voxloop/core/speech/playback"
	"github.com/mirelabs/voxloop/core/transcript"
)

type OrchestratorOption func(*Orchestrator)

// CompletionStream is one prepared streamed turn-completion request. Deltas
// yields assistant text fragments in arrival order; finite, not restartable.
// Cancelling the context aborts the in-flight request.
type CompletionStream interface {
	Deltas(ctx context.Context) func(func(string, error) bool)
}

// CompletionStreamer issues streamed replies for the full ordered
// transcript.
type CompletionStreamer interface {
	StreamCompletion(messages []transcript.Message) CompletionStream
}

// CompletionStreamerFunc adapts a plain function, mainly to wrap concrete
// chat clients whose StreamCompletion returns their own stream type.
type CompletionStreamerFunc func(messages []transcript.Message) CompletionStream

func (f CompletionStreamerFunc) StreamCompletion(messages []transcript.Message) CompletionStream {
	return f(messages)
}

func WithCompletionStreamer(streamer CompletionStreamer) OrchestratorOption {
	return func(o *Orchestrator) { o.completions = streamer }
}

func WithCaptureAdapter(adapter *capture.Adapter) OrchestratorOption {
	return func(o *Orchestrator) { o.capture = adapter }
}

func WithPlaybackAdapter(adapter *playback.Adapter) OrchestratorOption {
	return func(o *Orchestrator) { o.playback = adapter }
}

// HistoryWriter persists the two records of a completed turn. Writes are
// fire-and-forget: a failed write never rolls back the transcript.
type HistoryWriter interface {
	SaveTurn(ctx context.Context, userID, userText, assistantText string) error
}

func WithHistoryWriter(writer HistoryWriter) OrchestratorOption {
	return func(o *Orchestrator) { o.history = writer }
}

// IdentityResolver yields the authenticated user for persistence. A turn
// aborts with ErrNotAuthenticated before any network call when no identity
// is available.
type IdentityResolver func(ctx context.Context) (string, error)

func WithIdentityResolver(resolver IdentityResolver) OrchestratorOption {
	return func(o *Orchestrator) { o.resolveIdentity = resolver }
}

type OrchestrateOptions struct {
	onResponse         func(response string)
	onResponseEnd      func(response string)
	onNotice           func(notice string)
	onStateChanged     func(state State)
	onListeningChanged func(listening bool)
}

func (o *OrchestrateOptions) defaults() {
	o.onResponse = func(string) {}
	o.onResponseEnd = func(string) {}
	o.onNotice = func(string) {}
	o.onStateChanged = func(State) {}
	o.onListeningChanged = func(bool) {}
}

type OrchestrateOption func(*OrchestrateOptions)

// WithResponseCallback registers a callback for response progress. It
// receives the cumulative assistant text so far, never a lone fragment.
func WithResponseCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponse = callback }
}

// WithResponseEndCallback registers a callback fired once per completed
// turn with the final assistant text.
func WithResponseEndCallback(callback func(response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponseEnd = callback }
}

// WithNoticeCallback registers a callback for transient user-visible
// notices (failed turns, capture errors, and the like).
func WithNoticeCallback(callback func(notice string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onNotice = callback }
}

func WithStateChangedCallback(callback func(state State)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onStateChanged = callback }
}

func WithListeningChangedCallback(callback func(listening bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onListeningChanged = callback }
}
