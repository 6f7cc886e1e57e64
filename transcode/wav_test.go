package transcode

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeWAV writes a minimal 16-bit PCM RIFF file with the given interleaved
// samples in [-1, 1]
func writeWAV(t *testing.T, path string, sampleRate, channels int, samples []float64) {
	t.Helper()

	dataSize := len(samples) * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(int16(math.Round(v*32767))))
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func TestExtractSamplesMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	want := make([]float64, 800)
	for i := range want {
		want[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/8000)
	}
	writeWAV(t, path, 8000, 1, want)

	samples, sampleRate, err := ExtractSamples(path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if sampleRate != 8000 {
		t.Errorf("sample rate = %d, want 8000", sampleRate)
	}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-3 {
			t.Fatalf("sample %d = %v, want %v within 1e-3", i, samples[i], want[i])
		}
	}
}

func TestExtractSamplesStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")

	// Constant left/right values whose average is 0.4
	interleaved := make([]float64, 200)
	for i := 0; i < len(interleaved); i += 2 {
		interleaved[i] = 0.6
		interleaved[i+1] = 0.2
	}
	writeWAV(t, path, 44100, 2, interleaved)

	samples, sampleRate, err := ExtractSamples(path)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if sampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", sampleRate)
	}
	if len(samples) != 100 {
		t.Fatalf("got %d samples, want 100 downmixed frames", len(samples))
	}
	for i, s := range samples {
		if math.Abs(s-0.4) > 1e-3 {
			t.Fatalf("sample %d = %v, want 0.4 within 1e-3", i, s)
		}
	}
}

func TestExtractSamplesErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := ExtractSamples(filepath.Join(dir, "absent.wav"))
	if !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("missing file error %v does not wrap ErrDecodeFailure", err)
	}

	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("not a riff container"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err = ExtractSamples(garbage)
	if !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("garbage file error %v does not wrap ErrDecodeFailure", err)
	}
}
