// Package portaudio provides the microphone source used to feed a capture
// session.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/mirelabs/voxloop/core/audio"
)

// Microphone reads 16-bit mono PCM frames from the default input device and
// hands them to a per-session callback.
type Microphone struct {
	bufferSize int
	stream     *portaudio.Stream
	in         []int16

	mu sync.Mutex
}

func NewMicrophone(bufferSize int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio input stream: %w", err)
	}

	return &Microphone{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

// Stream captures audio until ctx is cancelled, invoking onAudio with each
// little-endian PCM chunk. Only one Stream call may run at a time.
func (m *Microphone) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	defer m.stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := m.stream.Read(); err != nil {
				return fmt.Errorf("failed to read from PortAudio stream: %w", err)
			}

			audioBuffer := bytes.Buffer{}
			binary.Write(&audioBuffer, binary.LittleEndian, m.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

func (m *Microphone) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stream.Close(); err != nil {
		return fmt.Errorf("failed to close PortAudio stream: %w", err)
	}
	return portaudio.Terminate()
}
