// Package pipeline implements the asynchronous conversion state machine that
// turns an uploaded audio file into a playback MP3 and a tiled spectrogram
// image, advancing a poller-visible phase counter as it goes.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audioscribe/audioscribe/algorithms/spectral"
	"github.com/audioscribe/audioscribe/algorithms/temporal"
	"github.com/audioscribe/audioscribe/logging"
	"github.com/audioscribe/audioscribe/project"
	"github.com/audioscribe/audioscribe/render"
	"github.com/audioscribe/audioscribe/transcode"
)

// Transcoder abstracts the audio transcoding operations the pipeline needs
type Transcoder interface {
	Decode(path string) (*transcode.AudioData, error)
	EncodeWAV(audio *transcode.AudioData, path string) error
	EncodeMP3(audio *transcode.AudioData, path string) error
	ExtractSamples(wavPath string) ([]float64, int, error)
}

// Config holds pipeline configuration
type Config struct {
	Layout project.Layout            `json:"-"`
	STFT   *spectral.STFTConfig      `json:"stft"`
	Synth  *render.SynthesizerConfig `json:"synth"`
}

// DefaultConfig returns the default pipeline configuration rooted at mediaRoot
func DefaultConfig(mediaRoot string) *Config {
	return &Config{
		Layout: project.Layout{Root: mediaRoot},
		STFT:   spectral.DefaultSTFTConfig(),
		Synth:  render.DefaultSynthesizerConfig(),
	}
}

// Pipeline executes the ordered conversion phases for one project at a time
// per Run call. It is safe to share one Pipeline across concurrently running
// jobs: all per-job state lives in the Job.
type Pipeline struct {
	layout     project.Layout
	transcoder Transcoder
	stft       *spectral.STFT
	synth      *render.Synthesizer
	tempo      *temporal.TempoEstimation
	logger     logging.Logger
}

// New creates a conversion pipeline
func New(config *Config, transcoder Transcoder) *Pipeline {
	if config == nil {
		config = DefaultConfig("MediaFiles")
	}
	return &Pipeline{
		layout:     config.Layout,
		transcoder: transcoder,
		stft:       spectral.NewSTFT(config.STFT),
		synth:      render.NewSynthesizer(config.Synth),
		tempo:      temporal.NewTempoEstimation(),
		logger: logging.WithFields(logging.Fields{
			"component": "conversion_pipeline",
		}),
	}
}

// Run executes all phases for job, reading the original upload from
// originalPath. It is called on a dedicated goroutine and runs to the
// terminal phase or to the first fatal error; there is no cancellation.
//
// No phase is rolled back on failure: whatever was persisted before the
// failure stays persisted, and a later re-trigger skips work whose artifacts
// already exist.
func (p *Pipeline) Run(job *Job, originalPath string) {
	logger := p.logger.WithFields(logging.Fields{
		"project_id": job.ProjectID(),
	})

	id := job.ProjectID()
	statusPath := p.layout.StatusPath(id)

	status, err := project.LoadStatus(statusPath)
	if err != nil {
		p.fail(job, logger, fmt.Errorf("load status record: %w", err))
		return
	}

	fileName := filepath.Base(originalPath)
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)

	// Phase 1: decode source audio into memory
	job.setPhase(PhaseDecoding)
	audio, err := p.transcoder.Decode(originalPath)
	if err != nil {
		p.fail(job, logger, err)
		return
	}

	// Phase 2: lossless WAV intermediate, a no-op when the source already is one
	job.setPhase(PhaseIntermediate)
	wavPath := originalPath
	if !strings.EqualFold(ext, ".wav") {
		wavPath = p.layout.Path(id, base+".wav")
		if !fileExists(wavPath) {
			if err := p.transcoder.EncodeWAV(audio, wavPath); err != nil {
				p.fail(job, logger, err)
				return
			}
		}
	}

	// Phase 3: CBR MP3 playback file; its name is persisted immediately so
	// external callers can offer playback before the spectrogram is ready
	job.setPhase(PhasePlaybackEncode)
	mp3Name := base + "_cbr.mp3"
	mp3Path := p.layout.Path(id, mp3Name)
	if status.AudioFileName == nil || !fileExists(mp3Path) {
		if err := p.transcoder.EncodeMP3(audio, mp3Path); err != nil {
			p.fail(job, logger, err)
			return
		}
	}
	if err := project.UpdateStatus(statusPath, func(s *project.Status) {
		s.AudioFileName = &mp3Name
	}); err != nil {
		p.fail(job, logger, err)
		return
	}
	logger.Info("Playback artifact persisted", logging.Fields{
		"audio_file": mp3Name,
	})

	// Decoded PCM is no longer needed; the analysis phases work from the
	// lossless intermediate
	audio = nil

	// Phase 4: extract raw samples from the lossless intermediate
	job.setPhase(PhaseSampleExtraction)
	samples, sampleRate, err := p.transcoder.ExtractSamples(wavPath)
	if err != nil {
		p.fail(job, logger, err)
		return
	}

	// Phase 5: compute the spectrogram matrix
	job.setPhase(PhaseSpectralData)
	spec, err := p.stft.Compute(samples, sampleRate)
	if err != nil {
		p.fail(job, logger, fmt.Errorf("spectral transform: %w", err))
		return
	}

	// Phases 6 and 7: synthesize and persist the spectrogram image. A re-run
	// whose image artifact already exists skips the render entirely.
	imageName := base + ".png"
	imagePath := p.layout.Path(id, imageName)

	job.setPhase(PhaseImageSynthesis)
	if status.Spectrogram == nil || !fileExists(imagePath) {
		img, err := p.synth.Render(spec, job)
		if err != nil {
			p.fail(job, logger, fmt.Errorf("image synthesis: %w", err))
			return
		}

		job.setPhase(PhaseImagePersist)
		if err := render.SavePNG(img, imagePath); err != nil {
			p.fail(job, logger, fmt.Errorf("%w: %v", transcode.ErrEncodeFailure, err))
			return
		}
	} else {
		job.setPhase(PhaseImagePersist)
	}

	// Phase 8: tempo and duration
	job.setPhase(PhaseFinalAnalysis)
	bpm := int(p.tempo.EstimateTempo(samples, sampleRate)) // Fractional BPM is dropped, not rounded
	duration := float64(len(samples)) / float64(sampleRate)

	// Phase 9: final status update, then cleanup of intermediates
	if err := project.UpdateStatus(statusPath, func(s *project.Status) {
		s.Spectrogram = &imageName
		s.BPM = &bpm
		s.Duration = &duration
		s.SpectrogramGenerated = true
	}); err != nil {
		p.fail(job, logger, err)
		return
	}

	p.cleanupIntermediates(logger, originalPath, wavPath)

	job.setPhase(PhaseDone)
	logger.Info("Conversion completed", logging.Fields{
		"image":    imageName,
		"bpm":      bpm,
		"duration": duration,
	})
}

// cleanupIntermediates removes the original upload and the lossless
// intermediate. The two may be the same file, so a missing-file error here is
// transient and deliberately ignored.
func (p *Pipeline) cleanupIntermediates(logger logging.Logger, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Intermediate cleanup failed", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
}

func (p *Pipeline) fail(job *Job, logger logging.Logger, err error) {
	job.fail(err)
	logger.Error(err, "Conversion halted", logging.Fields{
		"phase": Phase(job.phase.Load()).String(),
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
