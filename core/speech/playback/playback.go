// Package playback narrates assistant text as a single-active-utterance
// queue. A new Speak call preempts whatever is playing (barge-in): at most
// one utterance plays at a time and the newest request always wins.
package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrUnsupported reports that no narration capability is available on this
// host. It is a permanent condition, probed once at construction.
var ErrUnsupported = errors.New("playback: narration capability unavailable")

// Synthesizer turns a complete utterance into playable PCM audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player renders PCM to the output device. Play blocks until the audio has
// drained or ctx is cancelled; on cancellation it must stop producing audio
// before returning.
type Player interface {
	Play(ctx context.Context, pcm []byte) error
}

type AdapterOption func(*Adapter)

// WithStartCallback registers a callback fired once per utterance that
// actually begins playback.
func WithStartCallback(callback func()) AdapterOption {
	return func(a *Adapter) { a.onStart = callback }
}

// WithEndCallback registers a callback fired once when an utterance plays to
// completion. Preempted utterances do not fire it.
func WithEndCallback(callback func()) AdapterOption {
	return func(a *Adapter) { a.onEnd = callback }
}

func WithErrorCallback(callback func(error)) AdapterOption {
	return func(a *Adapter) { a.onError = callback }
}

type utterance struct {
	cancel context.CancelFunc
	done   chan struct{}

	// terminal is claimed exactly once, either by the utterance itself when
	// it reaches its own end state or by a preempting call. Whoever claims
	// it owns the terminal outcome; the loser emits nothing further.
	terminal atomic.Bool
}

func (u *utterance) claimTerminal() bool {
	return u.terminal.CompareAndSwap(false, true)
}

// Adapter owns the current narration session and nothing else. It is safe
// for concurrent use, though callers normally serialize through the
// orchestrator.
type Adapter struct {
	synthesizer Synthesizer
	player      Player

	onStart func()
	onEnd   func()
	onError func(error)

	mu       sync.Mutex
	current  *utterance
	speaking atomic.Bool
}

func NewAdapter(synthesizer Synthesizer, player Player, opts ...AdapterOption) (*Adapter, error) {
	if synthesizer == nil || player == nil {
		return nil, ErrUnsupported
	}

	a := &Adapter{
		synthesizer: synthesizer,
		player:      player,
		onStart:     func() {},
		onEnd:       func() {},
		onError:     func(error) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Speak cancels any in-progress utterance, then begins narrating text. It
// always succeeds from the caller's point of view; empty text is a no-op.
// When Speak returns, the prior utterance is guaranteed to produce no
// further audio.
func (a *Adapter) Speak(ctx context.Context, text string) {
	if text == "" {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	utt := &utterance{cancel: cancel, done: make(chan struct{})}

	a.mu.Lock()
	prev := a.swapLocked(utt)
	a.mu.Unlock()

	// Wait outside the lock so the outgoing goroutine can clean up.
	if prev != nil {
		<-prev.done
	}

	go a.run(ctx, utt, text)
}

// Cancel stops playback immediately. Cancelling an idle adapter is a no-op,
// and Cancel is idempotent.
func (a *Adapter) Cancel() {
	a.mu.Lock()
	prev := a.swapLocked(nil)
	a.mu.Unlock()

	if prev != nil {
		<-prev.done
	}
}

func (a *Adapter) IsSpeaking() bool {
	return a.speaking.Load()
}

// swapLocked installs next as the active utterance and preempts the previous
// one. The caller must wait on the returned utterance's done channel before
// assuming the session is over.
func (a *Adapter) swapLocked(next *utterance) *utterance {
	prev := a.current
	a.current = next
	a.speaking.Store(next != nil)

	if prev != nil {
		prev.claimTerminal()
		prev.cancel()
	}
	return prev
}

func (a *Adapter) run(ctx context.Context, utt *utterance, text string) {
	defer close(utt.done)
	defer utt.cancel()

	ctx, span := tracer.Start(ctx, "narrate utterance")
	defer span.End()

	pcm, err := a.synthesizer.Synthesize(ctx, text)
	if err != nil {
		span.RecordError(err)
		if utt.claimTerminal() {
			a.clear(utt)
			a.onError(err)
		}
		return
	}
	if utt.terminal.Load() {
		// Preempted while synthesizing.
		return
	}

	a.onStart()
	err = a.player.Play(ctx, pcm)

	if !utt.claimTerminal() {
		// A newer request owns the session now.
		return
	}
	a.clear(utt)
	if err != nil {
		span.RecordError(err)
		a.onError(err)
		return
	}
	a.onEnd()
}

// clear resets the session state once an utterance claimed its own end.
func (a *Adapter) clear(utt *utterance) {
	a.mu.Lock()
	if a.current == utt {
		a.current = nil
		a.speaking.Store(false)
	}
	a.mu.Unlock()
}
