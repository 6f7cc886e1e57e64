package spectral

import (
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/audioscribe/audioscribe/algorithms/common"
	"github.com/audioscribe/audioscribe/algorithms/windowing"
	"github.com/audioscribe/audioscribe/logging"
)

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// STFTConfig holds spectral transform parameters.
// A larger window size buys frequency resolution at the cost of time
// resolution; a smaller hop size buys time resolution at the cost of compute.
type STFTConfig struct {
	WindowSize int     `json:"window_size"` // FFT window length in samples
	HopSize    int     `json:"hop_size"`    // Samples between adjacent frames
	WindowType string  `json:"window_type"` // "hann" or "hamming"
	FloorDB    float64 `json:"floor_db"`    // Magnitude floor relative to the matrix maximum
}

// DefaultSTFTConfig returns the default spectral transform configuration
func DefaultSTFTConfig() *STFTConfig {
	return &STFTConfig{
		WindowSize: 16384,
		HopSize:    1024,
		WindowType: "hann",
		FloorDB:    -80.0,
	}
}

// Spectrogram holds the result of a spectral transform: a dB magnitude
// matrix indexed (frequency bin, time frame) plus its axis arrays.
// Magnitudes are referenced to the matrix's own maximum, so two invocations
// are not comparable in absolute magnitude.
type Spectrogram struct {
	Magnitude   [][]float64 `json:"magnitude"`   // Frequency x Time dB matrix
	Frequencies []float64   `json:"frequencies"` // Monotonic, len = WindowSize/2 + 1
	Times       []float64   `json:"times"`       // Monotonic, len = TimeFrames
	TimeFrames  int         `json:"time_frames"` // Number of analysis frames
	FreqBins    int         `json:"freq_bins"`   // Number of frequency bins
	SampleRate  int         `json:"sample_rate"` // Sample rate
	WindowSize  int         `json:"window_size"` // FFT window size
	HopSize     int         `json:"hop_size"`    // Hop size between frames
}

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	config *STFTConfig
	fft    *FFT
	logger logging.Logger
}

// NewSTFT creates a new STFT calculator
func NewSTFT(config *STFTConfig) *STFT {
	if config == nil {
		config = DefaultSTFTConfig()
	}
	return &STFT{
		config: config,
		fft:    NewFFT(),
		logger: logging.WithFields(logging.Fields{
			"component":   "stft",
			"window_size": config.WindowSize,
			"hop_size":    config.HopSize,
		}),
	}
}

// Compute computes the spectral transform of a sample array.
// Identical samples and identical config always yield bit-identical output:
// frames are distributed across workers but every worker writes disjoint
// matrix columns, so scheduling cannot change the result.
func (s *STFT) Compute(signal []float64, sampleRate int) (*Spectrogram, error) {
	windowSize := s.config.WindowSize
	hopSize := s.config.HopSize

	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	// Calculate number of frames
	numFrames := (len(signal)-windowSize)/hopSize + 1
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	// Positive frequencies only
	freqBins := windowSize/2 + 1

	window, err := s.makeWindow(windowSize)
	if err != nil {
		return nil, err
	}

	// Initialize the frequency-major matrix
	magnitude := make([][]float64, freqBins)
	for i := range freqBins {
		magnitude[i] = make([]float64, numFrames)
	}

	numWorkers := s.getOptimalWorkerCount(numFrames)

	type frameJob struct {
		frameIdx int
		startIdx int
	}

	jobs := make(chan frameJob, numFrames)

	var wg sync.WaitGroup

	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Reuse frame buffer for this worker
			frameBuffer := make([]float64, windowSize)

			for job := range jobs {
				copy(frameBuffer, signal[job.startIdx:job.startIdx+windowSize])

				if err := window.ApplyInPlace(frameBuffer); err != nil {
					continue
				}

				fftResult := s.fft.Compute(frameBuffer)

				// Each worker writes only its own frame's column
				for i := range freqBins {
					magnitude[i][job.frameIdx] = cmplx.Abs(fftResult[i])
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for frameIdx := range numFrames {
			startIdx := frameIdx * hopSize
			if startIdx+windowSize <= len(signal) {
				jobs <- frameJob{frameIdx: frameIdx, startIdx: startIdx}
			}
		}
	}()

	wg.Wait()

	s.amplitudeToDB(magnitude)

	// Axis arrays
	frequencies := make([]float64, freqBins)
	for i := range freqBins {
		frequencies[i] = float64(i) * float64(sampleRate) / float64(windowSize)
	}

	times := make([]float64, numFrames)
	for i := range numFrames {
		times[i] = float64(i) * float64(hopSize) / float64(sampleRate)
	}

	result := &Spectrogram{
		Magnitude:   magnitude,
		Frequencies: frequencies,
		Times:       times,
		TimeFrames:  numFrames,
		FreqBins:    freqBins,
		SampleRate:  sampleRate,
		WindowSize:  windowSize,
		HopSize:     hopSize,
	}

	s.logger.Debug("STFT computation completed", logging.Fields{
		"time_frames": numFrames,
		"freq_bins":   freqBins,
		"sample_rate": sampleRate,
	})

	return result, nil
}

// amplitudeToDB converts linear magnitudes to decibels referenced to the
// matrix's own maximum, clamped at the configured floor. The matrix maximum
// maps to 0 dB, so the output is self-normalized per call.
func (s *STFT) amplitudeToDB(magnitude [][]float64) {
	maxMag := 0.0
	for _, row := range magnitude {
		if m := common.Max(row); m > maxMag {
			maxMag = m
		}
	}

	if maxMag <= 0 {
		// Silent input: everything sits on the floor
		for _, row := range magnitude {
			for i := range row {
				row[i] = s.config.FloorDB
			}
		}
		return
	}

	for _, row := range magnitude {
		for i, mag := range row {
			if mag <= 0 {
				row[i] = s.config.FloorDB
				continue
			}
			db := 20 * math.Log10(mag/maxMag)
			if db < s.config.FloorDB {
				db = s.config.FloorDB
			}
			row[i] = db
		}
	}
}

// makeWindow builds the configured window function
func (s *STFT) makeWindow(size int) (Window, error) {
	switch s.config.WindowType {
	case "", "hann":
		return windowing.NewHann(size, true), nil
	case "hamming":
		return windowing.NewHamming(size, true), nil
	default:
		return nil, fmt.Errorf("unknown window type: %s", s.config.WindowType)
	}
}

// getOptimalWorkerCount determines worker count based on system and workload
func (s *STFT) getOptimalWorkerCount(numFrames int) int {
	numWorkers := runtime.NumCPU()
	if numWorkers > numFrames {
		numWorkers = numFrames
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	return numWorkers
}
