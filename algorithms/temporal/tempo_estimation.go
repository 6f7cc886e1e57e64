package temporal

import (
	"github.com/audioscribe/audioscribe/algorithms/common"
)

// TempoEstimation estimates a single dominant tempo from raw samples.
// A single global tempo is assumed; dynamic tempo tracking is a future
// extension.
type TempoEstimation struct {
	envelopeExtractor *Envelope
}

// NewTempoEstimation creates a new tempo estimator
func NewTempoEstimation() *TempoEstimation {
	return &TempoEstimation{
		envelopeExtractor: NewEnvelope(),
	}
}

// EstimateTempo estimates tempo in BPM using autocorrelation of the
// RMS energy envelope. Returns 0 when the signal is too short to carry
// any periodicity.
func (te *TempoEstimation) EstimateTempo(signal []float64, sampleRate int) float64 {
	if len(signal) == 0 || sampleRate <= 0 {
		return 0.0
	}

	// Energy envelope for beat tracking: 100ms frames, 25% hop
	frameSize := int(0.1 * float64(sampleRate))
	hopSize := frameSize / 4
	if frameSize <= 0 || hopSize <= 0 {
		return 0.0
	}

	envelope := te.envelopeExtractor.ComputeRMS(signal, frameSize, hopSize)
	if len(envelope) < 10 {
		return 0.0
	}

	// Remove the DC component so sustained loudness doesn't mask the beat
	mean := common.Mean(envelope)
	std := common.StandardDeviation(envelope)
	if std < 1e-12 {
		return 0.0 // Constant envelope carries no tempo
	}
	for i := range envelope {
		envelope[i] = (envelope[i] - mean) / std
	}

	maxLag := len(envelope) / 2
	autocorr := te.calculateAutocorrelation(envelope, maxLag)

	return te.findTempoFromAutocorrelation(autocorr, hopSize, sampleRate)
}

// calculateAutocorrelation calculates autocorrelation function
func (te *TempoEstimation) calculateAutocorrelation(signal []float64, maxLag int) []float64 {
	if maxLag > len(signal) {
		maxLag = len(signal)
	}

	autocorr := make([]float64, maxLag)

	for lag := 0; lag < maxLag; lag++ {
		sum := 0.0
		count := 0

		for i := 0; i < len(signal)-lag; i++ {
			sum += signal[i] * signal[i+lag]
			count++
		}

		if count > 0 {
			autocorr[lag] = sum / float64(count)
		}
	}

	// Normalize
	if len(autocorr) > 0 && autocorr[0] > 0 {
		for i := range autocorr {
			autocorr[i] /= autocorr[0]
		}
	}

	return autocorr
}

// findTempoFromAutocorrelation finds tempo from autocorrelation peaks
func (te *TempoEstimation) findTempoFromAutocorrelation(autocorr []float64, hopSize int, sampleRate int) float64 {
	if len(autocorr) < 10 {
		return 0.0
	}

	timePerFrame := float64(hopSize) / float64(sampleRate)

	// Search in reasonable tempo range (60-180 BPM)
	minPeriodSec := 60.0 / 180.0 // 180 BPM
	maxPeriodSec := 1.0          // 60 BPM

	minLag := int(minPeriodSec / timePerFrame)
	maxLag := int(maxPeriodSec / timePerFrame)

	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(autocorr) {
		maxLag = len(autocorr) - 1
	}

	// Find highest local maximum in the tempo range
	maxVal := 0.0
	bestLag := 0

	for lag := minLag; lag <= maxLag; lag++ {
		if lag > 0 && lag < len(autocorr)-1 {
			if autocorr[lag] > autocorr[lag-1] &&
				autocorr[lag] > autocorr[lag+1] &&
				autocorr[lag] > maxVal {
				maxVal = autocorr[lag]
				bestLag = lag
			}
		}
	}

	if bestLag == 0 {
		return 120.0 // Default tempo
	}

	// Convert lag back to tempo
	period := float64(bestLag) * timePerFrame
	return 60.0 / period
}
