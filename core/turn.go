package orchestration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mirelabs/voxloop/core/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// activeTurn is the transient unit of work binding one user message to one
// assistant message. The orchestrator holds at most one non-closed turn.
type activeTurn struct {
	id       string
	userText string
	cancel   context.CancelFunc

	// placeholderCreated is set once the assistant placeholder exists in
	// the store, so a failure path knows whether to unwind it.
	placeholderCreated bool
	userID             string
	response           strings.Builder
}

func newActiveTurn(userText string, cancel context.CancelFunc) *activeTurn {
	return &activeTurn{
		id:       uuid.NewString(),
		userText: userText,
		cancel:   cancel,
	}
}

// processTurn drives one turn end to end: identity check, streamed request,
// delta application, finalisation, then narration and persistence. It runs
// on its own goroutine; all transcript writes go through the store, in
// order, because this is the store's sole writer while the turn is open.
func (o *Orchestrator) processTurn(ctx context.Context, turn *activeTurn) {
	defer turn.cancel()

	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", turn.id))

	if err := o.resolveTurnIdentity(ctx, turn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.failTurn(turn, noticeNotAuthenticated)
		return
	}

	if o.completions == nil {
		o.failTurn(turn, noticeTurnFailed)
		return
	}

	// The request carries the full ordered transcript, the new user
	// message included.
	stream := o.completions.StreamCompletion(o.store.Messages())

	var streamErr error
	stream.Deltas(ctx)(func(delta string, err error) bool {
		if err != nil {
			streamErr = err
			return false
		}
		return o.applyDelta(turn, delta)
	})

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, streamErr.Error())
		o.failTurn(turn, noticeTurnFailed)
		return
	}

	o.completeTurn(turn)
}

func (o *Orchestrator) resolveTurnIdentity(ctx context.Context, turn *activeTurn) error {
	if o.resolveIdentity == nil {
		return ErrNotAuthenticated
	}
	userID, err := o.resolveIdentity(ctx)
	if err != nil || userID == "" {
		return ErrNotAuthenticated
	}
	turn.userID = userID
	return nil
}

// applyDelta folds one delta into the open assistant message. The store
// always holds the full-so-far text, never only the latest fragment.
func (o *Orchestrator) applyDelta(turn *activeTurn, delta string) bool {
	if !turn.placeholderCreated {
		if err := o.store.Append(transcript.Message{Role: transcript.RoleAssistant, IsStreaming: true}); err != nil {
			logger.Error("failed to open assistant message", "error", err)
			return false
		}
		turn.placeholderCreated = true

		o.mu.Lock()
		o.state = StateStreaming
		o.mu.Unlock()
		o.orchestrateOptions.onStateChanged(StateStreaming)
	}

	turn.response.WriteString(delta)
	if err := o.store.UpdateLast(turn.response.String()); err != nil {
		logger.Error("failed to apply delta", "error", err)
		return false
	}
	o.orchestrateOptions.onResponse(turn.response.String())
	return true
}

// completeTurn closes the turn: finalize the transcript, then hand the text
// to narration and persistence. Neither of those can fail the turn.
func (o *Orchestrator) completeTurn(turn *activeTurn) {
	o.store.Finalize()
	response := turn.response.String()

	o.mu.Lock()
	o.state = StateIdle
	o.turn = nil
	o.mu.Unlock()
	o.orchestrateOptions.onStateChanged(StateIdle)
	o.orchestrateOptions.onResponseEnd(response)

	if response == "" {
		return
	}

	// Narration triggers once per newly completed turn, never for
	// restored or historical messages.
	if o.playback != nil {
		o.playback.Speak(o.baseContext, response)
	}

	if o.history != nil {
		go o.persistTurn(turn, response)
	}
}

// persistTurn is fire-and-forget: its failure is logged, never rolled into
// the transcript.
func (o *Orchestrator) persistTurn(turn *activeTurn, response string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.baseContext), 30*time.Second)
	defer cancel()

	if err := o.history.SaveTurn(ctx, turn.userID, turn.userText, response); err != nil {
		logger.ErrorContext(ctx, "failed to persist turn", "error", err, "turn", turn.id)
	}
}

// failTurn unwinds an aborted turn: the assistant placeholder, if any, is
// removed; the user message stays as a sent-but-unanswered turn.
func (o *Orchestrator) failTurn(turn *activeTurn, notice string) {
	if turn.placeholderCreated {
		o.store.RemoveLast()
	}

	o.mu.Lock()
	o.state = StateIdle
	o.turn = nil
	o.mu.Unlock()
	o.orchestrateOptions.onStateChanged(StateIdle)
	o.orchestrateOptions.onNotice(notice)
}
