package pipeline

import (
	"sync/atomic"
)

// Phase is one discrete, strictly-ordered stage of the conversion state
// machine. Phases only ever advance; a failed job's phase stops where the
// failure happened.
type Phase int32

const (
	PhaseIdle             Phase = iota // Registered, pipeline goroutine not yet running
	PhaseDecoding                      // Decoding source audio into memory
	PhaseIntermediate                  // Producing the lossless WAV intermediate
	PhasePlaybackEncode                // Producing the CBR MP3 playback file
	PhaseSampleExtraction              // Extracting raw samples from the intermediate
	PhaseSpectralData                  // Computing the spectrogram matrix
	PhaseImageSynthesis                // Rendering the spectrogram image in batches
	PhaseImagePersist                  // Saving the spectrogram image
	PhaseFinalAnalysis                 // Tempo estimation and duration
	PhaseDone                          // Terminal: status record fully updated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDecoding:
		return "decoding"
	case PhaseIntermediate:
		return "lossless intermediate"
	case PhasePlaybackEncode:
		return "playback encode"
	case PhaseSampleExtraction:
		return "sample extraction"
	case PhaseSpectralData:
		return "spectral transform"
	case PhaseImageSynthesis:
		return "image synthesis"
	case PhaseImagePersist:
		return "image persist"
	case PhaseFinalAnalysis:
		return "final analysis"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// BatchProgress reports image synthesis progress as the number of completed
// batches out of the total
type BatchProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Snapshot is a point-in-time, by-value view of a job's state
type Snapshot struct {
	Phase Phase          `json:"phase"`
	Batch *BatchProgress `json:"batch,omitempty"` // nil until the first batch completes
	Err   error          `json:"-"`               // non-nil once the job has failed
}

// Job is one in-flight conversion. The pipeline goroutine is the only
// writer; any number of pollers read through Snapshot. Both shared cells are
// single-word atomics, so readers may see a slightly stale value but never a
// torn one.
type Job struct {
	projectID string

	phase atomic.Int32
	batch atomic.Pointer[BatchProgress]
	err   atomic.Pointer[jobError]
}

type jobError struct{ err error }

// NewJob creates a job at PhaseIdle for the given project identifier
func NewJob(projectID string) *Job {
	return &Job{projectID: projectID}
}

// ProjectID returns the identifier of the project this job converts
func (j *Job) ProjectID() string {
	return j.projectID
}

// Snapshot returns a non-blocking, by-value view of the job's state.
// The progress cell itself is never exposed to readers.
func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{Phase: Phase(j.phase.Load())}

	if bp := j.batch.Load(); bp != nil {
		cp := *bp
		snap.Batch = &cp
	}
	if je := j.err.Load(); je != nil {
		snap.Err = je.err
	}

	return snap
}

// Terminal reports whether the job reached PhaseDone
func (j *Job) Terminal() bool {
	return Phase(j.phase.Load()) == PhaseDone
}

// setPhase advances the phase counter. Only the pipeline goroutine calls it.
func (j *Job) setPhase(p Phase) {
	j.phase.Store(int32(p))
}

// fail records the fatal error. The phase counter stops where it is.
func (j *Job) fail(err error) {
	j.err.Store(&jobError{err: err})
}

// Publish implements render.ProgressSink: it replaces the progress cell with
// a freshly allocated pair, never mutating shared state in place.
func (j *Job) Publish(completed, total int) {
	j.batch.Store(&BatchProgress{Completed: completed, Total: total})
}
