package playback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type stubSynthesizer struct {
	err error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(text), nil
}

// blockingPlayer plays until release is closed or the context is cancelled.
type blockingPlayer struct {
	playing chan []byte
	release chan struct{}
}

func newBlockingPlayer() *blockingPlayer {
	return &blockingPlayer{
		playing: make(chan []byte, 8),
		release: make(chan struct{}),
	}
}

func (p *blockingPlayer) Play(ctx context.Context, pcm []byte) error {
	p.playing <- pcm
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestNewAdapterWithoutCapabilityIsUnsupported(t *testing.T) {
	if _, err := NewAdapter(nil, newBlockingPlayer()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported without a synthesizer, got %v", err)
	}
	if _, err := NewAdapter(&stubSynthesizer{}, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported without a player, got %v", err)
	}
}

func TestSpeakEmptyTextIsNoop(t *testing.T) {
	player := newBlockingPlayer()
	starts := atomic.Int32{}
	adapter, err := NewAdapter(&stubSynthesizer{}, player, WithStartCallback(func() {
		starts.Add(1)
	}))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	adapter.Speak(context.Background(), "")

	time.Sleep(50 * time.Millisecond)
	if got := starts.Load(); got != 0 {
		t.Fatalf("expected no playback for empty text, got %d starts", got)
	}
}

func TestUtteranceEventsFireOnce(t *testing.T) {
	player := newBlockingPlayer()
	starts := atomic.Int32{}
	ends := atomic.Int32{}
	ended := make(chan struct{}, 1)

	adapter, err := NewAdapter(&stubSynthesizer{}, player,
		WithStartCallback(func() { starts.Add(1) }),
		WithEndCallback(func() {
			ends.Add(1)
			select {
			case ended <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	adapter.Speak(context.Background(), "hello")
	<-player.playing
	close(player.release)

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for utterance end")
	}

	time.Sleep(50 * time.Millisecond)
	if starts.Load() != 1 || ends.Load() != 1 {
		t.Fatalf("expected exactly one start and one end, got %d/%d", starts.Load(), ends.Load())
	}
	if adapter.IsSpeaking() {
		t.Fatalf("expected adapter to return to idle")
	}
}

func TestBargeInSuppressesPriorUtterance(t *testing.T) {
	player := newBlockingPlayer()
	ends := atomic.Int32{}
	ended := make(chan struct{}, 1)

	adapter, err := NewAdapter(&stubSynthesizer{}, player, WithEndCallback(func() {
		ends.Add(1)
		select {
		case ended <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	adapter.Speak(context.Background(), "utterance A")
	first := <-player.playing
	if string(first) != "utterance A" {
		t.Fatalf("expected A to play first, got %q", first)
	}

	adapter.Speak(context.Background(), "utterance B")
	second := <-player.playing
	if string(second) != "utterance B" {
		t.Fatalf("expected B after barge-in, got %q", second)
	}

	close(player.release)
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for B to end")
	}

	time.Sleep(50 * time.Millisecond)
	if got := ends.Load(); got != 1 {
		t.Fatalf("expected exactly one end event (for B), got %d", got)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	player := newBlockingPlayer()
	ends := atomic.Int32{}

	adapter, err := NewAdapter(&stubSynthesizer{}, player, WithEndCallback(func() { ends.Add(1) }))
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	adapter.Cancel() // idle cancel is a no-op

	adapter.Speak(context.Background(), "hello")
	<-player.playing
	adapter.Cancel()
	adapter.Cancel()

	if adapter.IsSpeaking() {
		t.Fatalf("expected adapter to be idle after cancel")
	}

	time.Sleep(50 * time.Millisecond)
	if got := ends.Load(); got != 0 {
		t.Fatalf("expected no end event for a cancelled utterance, got %d", got)
	}
}

func TestSynthesisFailureReportsError(t *testing.T) {
	player := newBlockingPlayer()
	failed := make(chan error, 1)

	adapter, err := NewAdapter(&stubSynthesizer{err: errors.New("synthesis refused")}, player,
		WithErrorCallback(func(err error) { failed <- err }),
	)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	adapter.Speak(context.Background(), "hello")

	select {
	case err := <-failed:
		if err == nil {
			t.Fatalf("expected an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error callback")
	}
	if adapter.IsSpeaking() {
		t.Fatalf("expected adapter to be idle after a failed utterance")
	}
}
