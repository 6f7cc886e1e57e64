package transcode

import (
	"fmt"
	"os"

	"github.com/faiface/beep/wav"

	"github.com/audioscribe/audioscribe/logging"
)

// ExtractSamples reads a WAV file and returns mono float64 samples plus the
// sample rate. Stereo sources are downmixed by averaging the two channels.
// This is the native extraction path used by the analysis phases; it does not
// shell out to ffmpeg.
func ExtractSamples(path string) ([]float64, int, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "sample_extractor",
		"function":  "ExtractSamples",
		"path":      path,
	})

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open wav: %v", ErrDecodeFailure, err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode wav: %v", ErrDecodeFailure, err)
	}
	defer streamer.Close()

	samples := make([]float64, 0, streamer.Len())
	buf := make([][2]float64, 2048)

	for {
		n, ok := streamer.Stream(buf)
		for i := range n {
			// beep duplicates mono into both channels, so the average is
			// correct for mono and stereo alike
			samples = append(samples, (buf[i][0]+buf[i][1])/2)
		}
		if !ok {
			break
		}
	}

	if err := streamer.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: stream wav: %v", ErrDecodeFailure, err)
	}

	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("%w: wav contains no samples", ErrDecodeFailure)
	}

	logger.Debug("Samples extracted", logging.Fields{
		"samples":     len(samples),
		"sample_rate": int(format.SampleRate),
		"channels":    format.NumChannels,
	})

	return samples, int(format.SampleRate), nil
}
