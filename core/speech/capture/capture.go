// Package capture wraps one-shot voice-to-text recognition into a
// request/result/error session contract. One session listens for a single
// utterance and resolves with exactly one terminal outcome.
package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnsupported reports that no recognition capability is available on
	// this host. Permanent, probed once at construction.
	ErrUnsupported = errors.New("capture: recognition capability unavailable")
	// ErrAlreadyActive rejects a second session while one is listening.
	// Conflicting sessions are never queued.
	ErrAlreadyActive = errors.New("capture: a session is already active")
	// ErrNoSpeech reports that the session heard nothing before the
	// platform's no-speech deadline.
	ErrNoSpeech = errors.New("capture: no speech detected")
)

// Recognizer is the one-shot, non-continuous recognition capability. A call
// blocks until a single final transcript is available, recognition fails, or
// ctx is cancelled. A no-speech outcome is reported as ErrNoSpeech.
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// Result is the single terminal event of a capture session. Err is nil for
// a heard utterance, ErrNoSpeech for the no-speech deadline, and anything
// else for a terminal recognition failure.
type Result struct {
	Transcript string
	Err        error
}

type session struct {
	cancel context.CancelFunc
	result chan Result

	// stopped is set by Stop; a stopped session closes its channel without
	// delivering the pending result.
	stopped atomic.Bool
}

// Adapter owns the current capture session and nothing else. Exactly one
// session may be active; mid-session errors are terminal and reset state to
// idle, never retried automatically.
type Adapter struct {
	recognizer Recognizer

	mu        sync.Mutex
	current   *session
	listening atomic.Bool
}

func NewAdapter(recognizer Recognizer) (*Adapter, error) {
	if recognizer == nil {
		return nil, ErrUnsupported
	}
	return &Adapter{recognizer: recognizer}, nil
}

// Start opens a listening session. The returned channel delivers exactly
// one Result and is then closed; a session stopped early closes the channel
// without a value. Start fails immediately with ErrAlreadyActive while
// another session is active; no partial session is created on failure.
func (a *Adapter) Start(ctx context.Context) (<-chan Result, error) {
	a.mu.Lock()
	if a.current != nil {
		a.mu.Unlock()
		return nil, ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel, result: make(chan Result, 1)}
	a.current = sess
	a.listening.Store(true)
	a.mu.Unlock()

	go a.listen(ctx, sess)
	return sess.result, nil
}

// Stop forces early termination and suppresses the pending result. A
// transcript that arrives after Stop is discarded, not delivered.
func (a *Adapter) Stop() {
	a.mu.Lock()
	sess := a.current
	if sess != nil {
		sess.stopped.Store(true)
		sess.cancel()
		a.current = nil
		a.listening.Store(false)
	}
	a.mu.Unlock()
}

func (a *Adapter) IsListening() bool {
	return a.listening.Load()
}

func (a *Adapter) listen(ctx context.Context, sess *session) {
	defer sess.cancel()
	defer close(sess.result)

	ctx, span := tracer.Start(ctx, "capture utterance")
	defer span.End()

	transcript, err := a.recognizer.Recognize(ctx)

	a.mu.Lock()
	if a.current == sess {
		a.current = nil
		a.listening.Store(false)
	}
	a.mu.Unlock()

	if sess.stopped.Load() {
		// The session was stopped early; whatever the recognizer returned
		// is stale and must not be delivered.
		span.AddEvent("session stopped, result discarded")
		return
	}

	if err != nil && !errors.Is(err, ErrNoSpeech) {
		span.RecordError(err)
		logger.ErrorContext(ctx, "capture session failed", "error", err)
	}
	sess.result <- Result{Transcript: transcript, Err: err}
}
