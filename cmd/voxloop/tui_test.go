package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/mirelabs/voxloop/core"
	"github.com/mirelabs/voxloop/core/transcript"
)

// heldStream keeps a turn open until released, without yielding a delta.
type heldStream struct {
	release chan struct{}
}

func (s *heldStream) Deltas(ctx context.Context) func(func(string, error) bool) {
	return func(func(string, error) bool) {
		select {
		case <-s.release:
		case <-ctx.Done():
		}
	}
}

type failingStream struct{}

func (failingStream) Deltas(context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		yield("", errors.New("upstream unavailable"))
	}
}

func testOrchestrator(t *testing.T, stream orchestration.CompletionStream) *orchestration.Orchestrator {
	t.Helper()

	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithCompletionStreamer(orchestration.CompletionStreamerFunc(
			func([]transcript.Message) orchestration.CompletionStream { return stream },
		)),
		orchestration.WithIdentityResolver(
			func(context.Context) (string, error) { return "user-1", nil },
		),
	)
	t.Cleanup(orchestrator.Close)
	return orchestrator
}

func sizedModel(t *testing.T, orchestrator *orchestration.Orchestrator) model {
	t.Helper()

	m := newModel(orchestrator, true)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(model)
}

func TestSpokenMessageRendersWhenTurnOpens(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	orchestrator := testOrchestrator(t, &heldStream{release: release})
	m := sizedModel(t, orchestrator)

	// The voice path submits directly, bypassing the input box, and the
	// model only hears about it through the state change.
	if err := orchestrator.Submit("what is the weather"); err != nil {
		t.Fatalf("expected submission to be accepted, got %v", err)
	}

	updated, _ := m.Update(stateChangedMsg(orchestration.StateSending))
	m = updated.(model)

	if !strings.Contains(m.history.View(), "what is the weather") {
		t.Fatal("expected the spoken message to render as soon as the turn opens")
	}
}

func TestSpokenMessageStaysVisibleAfterFailedTurn(t *testing.T) {
	orchestrator := testOrchestrator(t, failingStream{})
	m := sizedModel(t, orchestrator)

	if err := orchestrator.Submit("what is the weather"); err != nil {
		t.Fatalf("expected submission to be accepted, got %v", err)
	}

	deadline := time.After(time.Second)
	for orchestrator.IsProcessing() {
		select {
		case <-deadline:
			t.Fatal("expected the turn to fail and settle")
		case <-time.After(time.Millisecond):
		}
	}

	updated, _ := m.Update(stateChangedMsg(orchestration.StateIdle))
	m = updated.(model)

	if !strings.Contains(m.history.View(), "what is the weather") {
		t.Fatal("expected the kept user message to stay visible after the failed turn")
	}
}
