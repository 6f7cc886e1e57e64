package transcode

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/audioscribe/audioscribe/logging"
)

// EncoderConfig holds encoder configuration
type EncoderConfig struct {
	FFmpegPath string        `json:"ffmpeg_path"` // Path to ffmpeg binary
	Timeout    time.Duration `json:"timeout"`     // Timeout for ffmpeg operations
	MP3Bitrate int           `json:"mp3_bitrate"` // Constant bitrate for MP3 output, in kbps
}

// DefaultEncoderConfig returns default encoder configuration
func DefaultEncoderConfig() *EncoderConfig {
	return &EncoderConfig{
		FFmpegPath: "ffmpeg", // Assume in PATH
		Timeout:    120 * time.Second,
		MP3Bitrate: 192, // CBR, so repeated conversions of the same content produce the same size
	}
}

// Encoder writes decoded audio back out through FFmpeg. Input is piped as
// raw f64le PCM so the encode never re-decodes the source container.
type Encoder struct {
	config *EncoderConfig
}

// NewEncoder creates a new audio encoder
func NewEncoder(config *EncoderConfig) *Encoder {
	if config == nil {
		config = DefaultEncoderConfig()
	}
	return &Encoder{config: config}
}

// EncodeMP3 writes audio to path as a constant-bitrate MP3.
// VBR is deliberately not negotiated: the playback artifact must be
// byte-reproducible across repeated conversions of the same content.
func (e *Encoder) EncodeMP3(audio *AudioData, path string) error {
	args := []string{
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(e.config.MP3Bitrate) + "k",
		"-f", "mp3",
	}
	return e.encode(audio, path, "mp3", args)
}

// EncodeWAV writes audio to path as 16-bit PCM WAV at the source's own
// sample rate. No lossy resampling beyond what the source already had.
func (e *Encoder) EncodeWAV(audio *AudioData, path string) error {
	args := []string{
		"-codec:a", "pcm_s16le",
		"-f", "wav",
	}
	return e.encode(audio, path, "wav", args)
}

func (e *Encoder) encode(audio *AudioData, path, format string, codecArgs []string) error {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_encoder",
		"function":  "encode",
		"format":    format,
		"path":      path,
	})

	if audio == nil || len(audio.PCM) == 0 {
		return fmt.Errorf("%w: no audio data to encode", ErrEncodeFailure)
	}

	args := []string{
		"-f", "f64le", // Input is raw float64 little-endian on stdin
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
	}
	args = append(args, codecArgs...)
	args = append(args, "-v", "error", "-y", path)

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.config.FFmpegPath, args...)
	cmd.Stdin = pcmReader(audio.PCM)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args":    strings.Join(args, " "),
		"samples": len(audio.PCM),
	})

	if output, err := cmd.CombinedOutput(); err != nil {
		logger.Error(err, "Ffmpeg encode failed", logging.Fields{
			"stderr": string(output),
		})
		return fmt.Errorf("%w: ffmpeg %s encode failed: %v, stderr: %s",
			ErrEncodeFailure, format, err, string(output))
	}

	logger.Debug("Encode completed successfully")
	return nil
}

// pcmReader exposes a float64 slice as a stream of little-endian bytes
// without materializing the whole byte buffer up front.
func pcmReader(pcm []float64) io.Reader {
	return &float64Reader{pcm: pcm}
}

type float64Reader struct {
	pcm []float64
	off int // Next sample index to serialize
	buf [8]byte
	rem []byte // Unread tail of buf for short reads
}

func (r *float64Reader) Read(p []byte) (int, error) {
	total := 0

	for len(p) > 0 {
		if len(r.rem) > 0 {
			n := copy(p, r.rem)
			r.rem = r.rem[n:]
			p = p[n:]
			total += n
			continue
		}

		if r.off >= len(r.pcm) {
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}

		binary.LittleEndian.PutUint64(r.buf[:], math.Float64bits(r.pcm[r.off]))
		r.off++
		r.rem = r.buf[:]
	}

	return total, nil
}
