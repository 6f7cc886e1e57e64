package pipeline

import (
	"sync"

	"github.com/audioscribe/audioscribe/logging"
)

// Registry is the process-wide set of in-flight conversion jobs, keyed by
// project identifier. It enforces the one-active-job-per-project rule:
// triggering a project that already has a registered job is a no-op that
// returns the existing job.
//
// Entries are never removed by the pipeline goroutine itself. The external
// layer calls Remove after it has observed the terminal phase, so an in-flight
// final poll can never race a deletion.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	runner *Pipeline
	logger logging.Logger
}

// NewRegistry creates a job registry that runs conversions on the given
// pipeline
func NewRegistry(runner *Pipeline) *Registry {
	return &Registry{
		jobs:   make(map[string]*Job),
		runner: runner,
		logger: logging.WithFields(logging.Fields{
			"component": "job_registry",
		}),
	}
}

// Start triggers a conversion for projectID reading from originalPath.
// Idempotent in effect: if a job for projectID is already registered, no
// second pipeline run is started and the existing job is returned with
// started=false.
func (r *Registry) Start(projectID, originalPath string) (job *Job, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.jobs[projectID]; ok {
		r.logger.Debug("Trigger ignored, job already registered", logging.Fields{
			"project_id": projectID,
			"phase":      Phase(existing.phase.Load()).String(),
		})
		return existing, false
	}

	job = NewJob(projectID)
	r.jobs[projectID] = job

	// One goroutine per conversion, running to completion or failure
	go r.runner.Run(job, originalPath)

	r.logger.Info("Conversion started", logging.Fields{
		"project_id": projectID,
		"original":   originalPath,
	})

	return job, true
}

// Query returns a snapshot of the job for projectID. ok is false when no job
// is registered, which the external layer should treat as terminal/absent.
// The read never blocks and never observes a torn write.
func (r *Registry) Query(projectID string) (Snapshot, bool) {
	r.mu.RLock()
	job, ok := r.jobs[projectID]
	r.mu.RUnlock()

	if !ok {
		return Snapshot{}, false
	}
	return job.Snapshot(), true
}

// Remove deletes the registry entry for projectID. Called by the external
// layer once it has observed the terminal phase.
func (r *Registry) Remove(projectID string) {
	r.mu.Lock()
	delete(r.jobs, projectID)
	r.mu.Unlock()
}

// Len returns the number of registered jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
