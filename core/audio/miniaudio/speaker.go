// Package miniaudio provides the speaker sink behind the playback adapter.
package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mirelabs/voxloop/core/audio"
)

// Speaker renders 16-bit mono PCM through the default output device. It
// implements the playback adapter's Player contract: Play blocks until the
// buffer drains or the context is cancelled, and a cancelled Play stops
// producing audio before returning.
type Speaker struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	mu            sync.Mutex
	audioMu       sync.Mutex
	leftoverAudio []byte
	drained       chan struct{}
}

func NewSpeaker() (*Speaker, error) {
	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	s := &Speaker{audioContext: audioContext}

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	s.config = malgo.DefaultDeviceConfig(malgo.Playback)
	s.config.SampleRate = sampleRate
	s.config.Playback.Format = format
	s.config.Playback.Channels = uint32(channels)
	s.config.Alsa.NoMMap = 1
	s.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	s.config.Periods = 4

	if s.device, err = malgo.InitDevice(
		s.audioContext.Context,
		s.config,
		malgo.DeviceCallbacks{Data: s.processAudio(bytesPerFrame)},
	); err != nil {
		_ = audioContext.Uninit()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := s.device.Start(); err != nil {
		s.device.Uninit()
		_ = audioContext.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return s, nil
}

// Play queues pcm and blocks until it has drained through the device or ctx
// is cancelled. Cancellation clears whatever has not played yet.
func (s *Speaker) Play(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained := make(chan struct{})
	s.audioMu.Lock()
	s.leftoverAudio = append([]byte(nil), pcm...)
	s.drained = drained
	s.audioMu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s.clearBuffer()
		return ctx.Err()
	}
}

func (s *Speaker) clearBuffer() {
	s.audioMu.Lock()
	s.leftoverAudio = nil
	s.drained = nil
	s.audioMu.Unlock()
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearBuffer()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.audioContext != nil {
		err := s.audioContext.Uninit()
		s.audioContext.Free()
		s.audioContext = nil
		if err != nil {
			return fmt.Errorf("failed to uninit audio context: %w", err)
		}
	}
	return nil
}

func (s *Speaker) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (s *Speaker) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		s.audioMu.Lock()
		defer s.audioMu.Unlock()

		if len(s.leftoverAudio) == 0 {
			if s.drained != nil {
				close(s.drained)
				s.drained = nil
			}
			return
		}

		if len(s.leftoverAudio) < need {
			_ = copy(pOutput, s.leftoverAudio)
			s.leftoverAudio = nil
			return
		}

		_ = copy(pOutput, s.leftoverAudio[:need])
		s.leftoverAudio = s.leftoverAudio[need:]
	}
}
