package pipeline

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/audioscribe/audioscribe/algorithms/spectral"
	"github.com/audioscribe/audioscribe/project"
	"github.com/audioscribe/audioscribe/render"
	"github.com/audioscribe/audioscribe/transcode"
)

// fakeTranscoder replaces the ffmpeg-backed transcoder so pipeline tests run
// without external binaries. Encoded artifacts are written as placeholder
// bytes; analysis phases only care that the files exist.
type fakeTranscoder struct {
	samples    []float64
	sampleRate int

	decodeErr  error
	encodeErr  error
	decodeGate chan struct{} // when non-nil, Decode blocks until the channel is closed

	mu          sync.Mutex
	decodeCalls int
}

func (f *fakeTranscoder) Decode(path string) (*transcode.AudioData, error) {
	if f.decodeGate != nil {
		<-f.decodeGate
	}
	f.mu.Lock()
	f.decodeCalls++
	f.mu.Unlock()

	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return &transcode.AudioData{
		PCM:        f.samples,
		SampleRate: f.sampleRate,
		Channels:   1,
		Duration:   time.Duration(len(f.samples)) * time.Second / time.Duration(f.sampleRate),
	}, nil
}

func (f *fakeTranscoder) EncodeWAV(audio *transcode.AudioData, path string) error {
	if f.encodeErr != nil {
		return f.encodeErr
	}
	return os.WriteFile(path, []byte("RIFF-placeholder"), 0o644)
}

func (f *fakeTranscoder) EncodeMP3(audio *transcode.AudioData, path string) error {
	if f.encodeErr != nil {
		return f.encodeErr
	}
	return os.WriteFile(path, []byte("mp3-placeholder"), 0o644)
}

func (f *fakeTranscoder) ExtractSamples(wavPath string) ([]float64, int, error) {
	return f.samples, f.sampleRate, nil
}

func (f *fakeTranscoder) decoded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decodeCalls
}

func testPipelineConfig(root string) *Config {
	return &Config{
		Layout: project.Layout{Root: root},
		STFT: &spectral.STFTConfig{
			WindowSize: 256,
			HopSize:    64,
			WindowType: "hann",
			FloorDB:    -80,
		},
		Synth: &render.SynthesizerConfig{
			BatchSize:   8,
			PxPerSecond: 50,
			ImageHeight: 32,
		},
	}
}

func testSignal(sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	signal := make([]float64, n)
	for i := range signal {
		// Amplitude-modulated tone so the envelope is not degenerate
		t := float64(i) / float64(sampleRate)
		signal[i] = (0.6 + 0.4*math.Sin(2*math.Pi*2*t)) * math.Sin(2*math.Pi*440*t)
	}
	return signal
}

// ingestUpload stages a dummy upload named fileName and ingests it, returning
// the content-addressed project identifier and the moved file's path.
func ingestUpload(t *testing.T, layout project.Layout, fileName string) (string, string) {
	t.Helper()

	staging := t.TempDir()
	uploadPath := filepath.Join(staging, fileName)
	if err := os.WriteFile(uploadPath, []byte("upload-bytes-"+fileName), 0o644); err != nil {
		t.Fatalf("stage upload: %v", err)
	}

	id, created, err := layout.Ingest(uploadPath)
	if err != nil {
		t.Fatalf("ingest upload: %v", err)
	}
	if !created {
		t.Fatal("ingest reported an existing project for fresh content")
	}

	return id, layout.Path(id, fileName)
}

// waitForOutcome polls the job until it is terminal or carries an error,
// verifying along the way that the phase counter never moves backwards.
func waitForOutcome(t *testing.T, job *Job) Snapshot {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	last := PhaseIdle

	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Phase < last {
			t.Fatalf("phase moved backwards: %v after %v", snap.Phase, last)
		}
		last = snap.Phase

		if snap.Phase == PhaseDone || snap.Err != nil {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}

	t.Fatalf("job did not finish; last phase %v", last)
	return Snapshot{}
}

func TestRunCompletes(t *testing.T) {
	root := t.TempDir()
	config := testPipelineConfig(root)
	fake := &fakeTranscoder{samples: testSignal(8000, 1.0), sampleRate: 8000}

	id, originalPath := ingestUpload(t, config.Layout, "track.flac")

	job := NewJob(id)
	New(config, fake).Run(job, originalPath)

	snap := job.Snapshot()
	if snap.Err != nil {
		t.Fatalf("conversion failed: %v", snap.Err)
	}
	if snap.Phase != PhaseDone {
		t.Fatalf("phase = %v, want %v", snap.Phase, PhaseDone)
	}

	// Final artifacts exist; intermediates are gone
	if !fileExists(config.Layout.Path(id, "track_cbr.mp3")) {
		t.Error("playback mp3 missing")
	}
	if !fileExists(config.Layout.Path(id, "track.png")) {
		t.Error("spectrogram image missing")
	}
	if fileExists(originalPath) {
		t.Error("original upload should have been cleaned up")
	}
	if fileExists(config.Layout.Path(id, "track.wav")) {
		t.Error("lossless intermediate should have been cleaned up")
	}

	// Status record reflects the completed conversion
	status, err := project.LoadStatus(config.Layout.StatusPath(id))
	if err != nil {
		t.Fatalf("load status: %v", err)
	}
	if !status.SpectrogramGenerated {
		t.Error("spectrogram_generated not set")
	}
	if status.AudioFileName == nil || *status.AudioFileName != "track_cbr.mp3" {
		t.Errorf("audio_file_name = %v, want track_cbr.mp3", status.AudioFileName)
	}
	if status.Spectrogram == nil || *status.Spectrogram != "track.png" {
		t.Errorf("spectrogram = %v, want track.png", status.Spectrogram)
	}
	if status.BPM == nil {
		t.Error("bpm not set")
	}
	if status.Duration == nil || math.Abs(*status.Duration-1.0) > 1e-9 {
		t.Errorf("duration = %v, want 1.0", status.Duration)
	}

	// Progress reached the final batch
	if snap.Batch == nil || snap.Batch.Completed != snap.Batch.Total {
		t.Errorf("final progress = %+v, want completed == total", snap.Batch)
	}
}

func TestRunDecodeFailure(t *testing.T) {
	root := t.TempDir()
	config := testPipelineConfig(root)
	cause := errors.New("unreadable stream")
	fake := &fakeTranscoder{decodeErr: cause}

	id, originalPath := ingestUpload(t, config.Layout, "broken.ogg")

	job := NewJob(id)
	New(config, fake).Run(job, originalPath)

	snap := job.Snapshot()
	if !errors.Is(snap.Err, cause) {
		t.Fatalf("err = %v, want %v", snap.Err, cause)
	}
	if snap.Phase != PhaseDecoding {
		t.Errorf("phase = %v, want %v", snap.Phase, PhaseDecoding)
	}

	// A failed conversion must not claim completion
	status, err := project.LoadStatus(config.Layout.StatusPath(id))
	if err != nil {
		t.Fatalf("load status: %v", err)
	}
	if status.SpectrogramGenerated {
		t.Error("spectrogram_generated set on a failed conversion")
	}
	if status.AudioFileName != nil {
		t.Errorf("audio_file_name = %v, want nil", *status.AudioFileName)
	}
}

func TestRunWavSourceSkipsIntermediate(t *testing.T) {
	root := t.TempDir()
	config := testPipelineConfig(root)
	fake := &fakeTranscoder{samples: testSignal(8000, 0.5), sampleRate: 8000}

	id, originalPath := ingestUpload(t, config.Layout, "session.wav")

	job := NewJob(id)
	New(config, fake).Run(job, originalPath)

	if snap := job.Snapshot(); snap.Err != nil || snap.Phase != PhaseDone {
		t.Fatalf("conversion failed: phase=%v err=%v", snap.Phase, snap.Err)
	}

	// The upload itself served as the lossless intermediate and no second
	// WAV was produced; cleanup removed the shared file once.
	if fileExists(originalPath) {
		t.Error("wav source should have been cleaned up")
	}
	entries, err := os.ReadDir(config.Layout.Dir(id))
	if err != nil {
		t.Fatalf("read project dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".wav" {
			t.Errorf("unexpected wav artifact %q", e.Name())
		}
	}
}

func TestRegistryDedupe(t *testing.T) {
	root := t.TempDir()
	config := testPipelineConfig(root)
	gate := make(chan struct{})
	fake := &fakeTranscoder{
		samples:    testSignal(8000, 0.5),
		sampleRate: 8000,
		decodeGate: gate,
	}

	id, originalPath := ingestUpload(t, config.Layout, "loop.aiff")
	registry := NewRegistry(New(config, fake))

	job, started := registry.Start(id, originalPath)
	if !started {
		t.Fatal("first trigger should start a run")
	}

	// Re-trigger while the first run is blocked inside Decode
	second, started := registry.Start(id, originalPath)
	if started {
		t.Error("second trigger must not start another run")
	}
	if second != job {
		t.Error("second trigger returned a different job")
	}
	if registry.Len() != 1 {
		t.Errorf("registry holds %d jobs, want 1", registry.Len())
	}

	close(gate)
	snap := waitForOutcome(t, job)
	if snap.Err != nil {
		t.Fatalf("conversion failed: %v", snap.Err)
	}
	if fake.decoded() != 1 {
		t.Errorf("decode ran %d times, want 1", fake.decoded())
	}
}

func TestRegistryQueryAndRemove(t *testing.T) {
	root := t.TempDir()
	config := testPipelineConfig(root)
	fake := &fakeTranscoder{samples: testSignal(8000, 0.5), sampleRate: 8000}

	registry := NewRegistry(New(config, fake))

	if _, ok := registry.Query("missing"); ok {
		t.Error("query of unknown project reported a job")
	}

	id, originalPath := ingestUpload(t, config.Layout, "take.mp3")
	job, _ := registry.Start(id, originalPath)

	snap, ok := registry.Query(id)
	if !ok {
		t.Fatal("query of registered project found nothing")
	}
	if snap.Phase > PhaseDone {
		t.Errorf("unexpected phase %v", snap.Phase)
	}

	waitForOutcome(t, job)

	// The job stays queryable until the caller removes it
	if _, ok := registry.Query(id); !ok {
		t.Error("terminal job disappeared before Remove")
	}
	registry.Remove(id)
	if _, ok := registry.Query(id); ok {
		t.Error("job still queryable after Remove")
	}
	if registry.Len() != 0 {
		t.Errorf("registry holds %d jobs after Remove, want 0", registry.Len())
	}
}
