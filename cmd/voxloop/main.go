// Command voxloop is a terminal voice-chat client. It wires the conversation
// engine to a streamed chat backend and, when the environment provides them,
// Deepgram speech backends and Supabase turn persistence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/mirelabs/voxloop/core"
	"github.com/mirelabs/voxloop/core/audio/miniaudio"
	"github.com/mirelabs/voxloop/core/audio/portaudio"
	"github.com/mirelabs/voxloop/core/chat"
	"github.com/mirelabs/voxloop/core/persistence/supabase"
	"github.com/mirelabs/voxloop/core/speech/capture"
	capturedeepgram "github.com/mirelabs/voxloop/core/speech/capture/deepgram"
	"github.com/mirelabs/voxloop/core/speech/playback"
	playbackdeepgram "github.com/mirelabs/voxloop/core/speech/playback/deepgram"
	"github.com/mirelabs/voxloop/core/transcript"
	"github.com/mirelabs/voxloop/internal/config"
)

const micBufferSize = 3200

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voxloop:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	options := []orchestration.OrchestratorOption{
		orchestration.WithCompletionStreamer(completionStreamer(cfg)),
	}

	captureAdapter, closeMic, err := buildCapture(cfg)
	if err != nil {
		return err
	}
	if closeMic != nil {
		defer closeMic()
	}
	if captureAdapter != nil {
		options = append(options, orchestration.WithCaptureAdapter(captureAdapter))
	}

	playbackAdapter, closeSpeaker, err := buildPlayback()
	if err != nil {
		return err
	}
	if closeSpeaker != nil {
		defer closeSpeaker()
	}
	if playbackAdapter != nil {
		options = append(options, orchestration.WithPlaybackAdapter(playbackAdapter))
	}

	if cfg.PersistenceEnabled() {
		history := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey,
			supabase.WithTable(cfg.HistoryTable),
		)
		options = append(options, orchestration.WithHistoryWriter(history))
	}
	if cfg.UserID != "" {
		userID := cfg.UserID
		options = append(options, orchestration.WithIdentityResolver(
			func(context.Context) (string, error) { return userID, nil },
		))
	}

	orchestrator := orchestration.NewOrchestrator(options...)
	defer orchestrator.Close()

	program := tea.NewProgram(
		newModel(orchestrator, captureAdapter != nil),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	orchestrator.Orchestrate(ctx,
		orchestration.WithResponseCallback(func(string) {
			program.Send(transcriptChangedMsg{})
		}),
		orchestration.WithResponseEndCallback(func(string) {
			program.Send(transcriptChangedMsg{})
		}),
		orchestration.WithNoticeCallback(func(notice string) {
			program.Send(noticeMsg(notice))
		}),
		orchestration.WithStateChangedCallback(func(state orchestration.State) {
			program.Send(stateChangedMsg(state))
		}),
		orchestration.WithListeningChangedCallback(func(listening bool) {
			program.Send(listeningChangedMsg(listening))
		}),
	)

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func completionStreamer(cfg config.Config) orchestration.CompletionStreamer {
	client := chat.NewClient(cfg.ChatEndpoint, cfg.ChatAPIKey)
	return orchestration.CompletionStreamerFunc(
		func(messages []transcript.Message) orchestration.CompletionStream {
			return client.StreamCompletion(messages)
		},
	)
}

// buildCapture constructs the one-shot recognizer stack. A missing Deepgram
// key or microphone is the unsupported condition, not a startup failure.
func buildCapture(cfg config.Config) (*capture.Adapter, func() error, error) {
	if !cfg.SpeechEnabled() {
		return nil, nil, nil
	}

	microphone, err := portaudio.NewMicrophone(micBufferSize)
	if err != nil {
		return nil, nil, nil
	}

	recognizer, err := capturedeepgram.NewRecognizer(microphone,
		capturedeepgram.WithLocale(cfg.Locale),
	)
	if err != nil {
		if errors.Is(err, capture.ErrUnsupported) {
			return nil, microphone.Close, nil
		}
		return nil, nil, err
	}

	adapter, err := capture.NewAdapter(recognizer)
	if err != nil {
		return nil, nil, err
	}
	return adapter, microphone.Close, nil
}

func buildPlayback() (*playback.Adapter, func() error, error) {
	synthesizer, err := playbackdeepgram.NewSynthesizer()
	if err != nil {
		if errors.Is(err, playback.ErrUnsupported) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	speaker, err := miniaudio.NewSpeaker()
	if err != nil {
		return nil, nil, nil
	}

	adapter, err := playback.NewAdapter(synthesizer, speaker)
	if err != nil {
		return nil, speaker.Close, err
	}
	return adapter, speaker.Close, nil
}
