package transcode

import (
	"errors"
	"time"
)

// Fatal error taxonomy for the conversion pipeline. Every failure returned
// by this package wraps exactly one of these sentinels.
var (
	// ErrUnsupportedFormat means the container or codec could not be recognized
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrDecodeFailure means the audio data is corrupt or unreadable
	ErrDecodeFailure = errors.New("audio decode failure")

	// ErrEncodeFailure means the target format could not be written
	ErrEncodeFailure = errors.New("audio encode failure")
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64     `json:"-"` // Raw interleaved PCM data
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Codec      string        `json:"codec,omitempty"` // Source codec as reported by ffprobe
}

// SamplesPerChannel returns the number of PCM frames per channel
func (a *AudioData) SamplesPerChannel() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.PCM) / a.Channels
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}
