// Package audio carries the PCM encoding contract shared by the microphone
// source, the speech backends, and the speaker sink.
package audio

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

type EncodingFormat string

const (
	EncodingMulaw    EncodingFormat = "mulaw"
	EncodingALaw     EncodingFormat = "alaw"
	EncodingLinear16 EncodingFormat = "linear16"
)

func (e EncodingFormat) Name() string { return string(e) }

func (e EncodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

type EncodingInfo struct {
	SampleRate int
	Format     EncodingFormat
}

func DefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}
