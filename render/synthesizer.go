package render

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/audioscribe/audioscribe/algorithms/common"
	"github.com/audioscribe/audioscribe/algorithms/spectral"
	"github.com/audioscribe/audioscribe/logging"
)

// ProgressSink receives batch completion updates during synthesis.
// Implementations must not block: the synthesizer calls Publish from its own
// goroutine after every batch.
type ProgressSink interface {
	Publish(completed, total int)
}

// SynthesizerConfig holds spectrogram image parameters
type SynthesizerConfig struct {
	BatchSize   int `json:"batch_size"`    // Time frames per rendered batch
	PxPerSecond int `json:"px_per_second"` // Horizontal pixel density
	ImageHeight int `json:"image_height"`  // Fixed image height in pixels
}

// DefaultSynthesizerConfig returns the default image synthesis configuration
func DefaultSynthesizerConfig() *SynthesizerConfig {
	return &SynthesizerConfig{
		BatchSize:   32,
		PxPerSecond: 120,
		ImageHeight: 720,
	}
}

// Synthesizer renders a spectrogram matrix as one wide image, batching the
// work to bound peak memory and to support incremental progress reporting.
type Synthesizer struct {
	config *SynthesizerConfig
	logger logging.Logger
}

// NewSynthesizer creates a new spectrogram image synthesizer
func NewSynthesizer(config *SynthesizerConfig) *Synthesizer {
	if config == nil {
		config = DefaultSynthesizerConfig()
	}
	return &Synthesizer{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component":  "image_synthesizer",
			"batch_size": config.BatchSize,
		}),
	}
}

// NumBatches returns the batch count for a matrix with timeFrames frames
func (s *Synthesizer) NumBatches(timeFrames int) int {
	if timeFrames <= 0 {
		return 0
	}
	return (timeFrames + s.config.BatchSize - 1) / s.config.BatchSize
}

// Render partitions the spectrogram's time axis into consecutive batches,
// renders each batch to a tile whose width is proportional to its real-world
// duration, and stitches the tiles left-to-right into one image.
//
// progress may be nil, in which case the call is purely synchronous with no
// intermediate observability.
func (s *Synthesizer) Render(spec *spectral.Spectrogram, progress ProgressSink) (*image.RGBA, error) {
	if spec == nil || spec.TimeFrames == 0 || spec.FreqBins == 0 {
		return nil, fmt.Errorf("empty spectrogram")
	}
	if len(spec.Times) != spec.TimeFrames {
		return nil, fmt.Errorf("time axis length (%d) doesn't match matrix time dimension (%d)",
			len(spec.Times), spec.TimeFrames)
	}

	batchSize := s.config.BatchSize
	numBatches := s.NumBatches(spec.TimeFrames)

	// Normalization range for the color mapping comes from the matrix itself
	minDB, maxDB := matrixRange(spec.Magnitude)

	tiles := make([]*image.RGBA, 0, numBatches)

	for batchNo := range numBatches {
		first := batchNo * batchSize
		end := first + batchSize
		if end > spec.TimeFrames {
			end = spec.TimeFrames
		}

		// Real-world duration of this batch. The final batch spans to the
		// global last time value, so rounding error accumulates only in the
		// last tile instead of compounding per tile.
		var duration float64
		if batchNo != numBatches-1 {
			duration = spec.Times[end-1] - spec.Times[first]
		} else {
			duration = spec.Times[spec.TimeFrames-1] - spec.Times[first]
		}

		tile := s.renderTile(spec, first, end, duration, minDB, maxDB)
		tiles = append(tiles, tile)

		if progress != nil {
			progress.Publish(batchNo+1, numBatches)
		}
	}

	// Stitch tiles left-to-right with no gaps, in ascending time order
	totalWidth := 0
	for _, tile := range tiles {
		totalWidth += tile.Bounds().Dx()
	}

	final := image.NewRGBA(image.Rect(0, 0, totalWidth, s.config.ImageHeight))
	offset := 0
	for _, tile := range tiles {
		w := tile.Bounds().Dx()
		draw.Draw(final, image.Rect(offset, 0, offset+w, s.config.ImageHeight), tile, image.Point{}, draw.Src)
		offset += w
	}

	s.logger.Debug("Spectrogram image synthesized", logging.Fields{
		"batches": numBatches,
		"width":   totalWidth,
		"height":  s.config.ImageHeight,
	})

	return final, nil
}

// renderTile renders frames [first, end) to a pixel tile.
// Width is duration * px/second, with a one-pixel minimum so a degenerate
// single-frame batch still produces a visible tile.
func (s *Synthesizer) renderTile(spec *spectral.Spectrogram, first, end int, duration, minDB, maxDB float64) *image.RGBA {
	width := int(math.Round(duration * float64(s.config.PxPerSecond)))
	if width < 1 {
		width = 1
	}
	height := s.config.ImageHeight
	frames := end - first

	tile := image.NewRGBA(image.Rect(0, 0, width, height))

	dbRange := maxDB - minDB

	for x := range width {
		// Map pixel column to a frame within the batch
		frameIdx := first
		if width > 1 && frames > 1 {
			frameIdx = first + int((float64(x)+0.5)/float64(width)*float64(frames))
			if frameIdx >= end {
				frameIdx = end - 1
			}
		}

		for y := range height {
			// Row 0 is the highest frequency; low frequencies sit at the bottom
			binIdx := 0
			if height > 1 {
				binIdx = int((1.0 - (float64(y)+0.5)/float64(height)) * float64(spec.FreqBins))
				if binIdx >= spec.FreqBins {
					binIdx = spec.FreqBins - 1
				}
				if binIdx < 0 {
					binIdx = 0
				}
			}

			v := 0.0
			if dbRange > 0 {
				v = common.Clamp((spec.Magnitude[binIdx][frameIdx]-minDB)/dbRange, 0, 1)
			}
			tile.SetRGBA(x, y, mapColor(v))
		}
	}

	return tile
}

// matrixRange returns the minimum and maximum values of the magnitude matrix
func matrixRange(magnitude [][]float64) (float64, float64) {
	minDB := math.Inf(1)
	maxDB := math.Inf(-1)
	for _, row := range magnitude {
		if len(row) == 0 {
			continue
		}
		if m := common.Min(row); m < minDB {
			minDB = m
		}
		if m := common.Max(row); m > maxDB {
			maxDB = m
		}
	}
	if math.IsInf(minDB, 1) {
		return 0, 0
	}
	return minDB, maxDB
}

// SavePNG writes an image to path in PNG format
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}

	return nil
}
