// Package services contains domain business logic.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/canon-core/internal/domain/entities"
	"github.com/ersonp/canon-core/internal/domain/ports"
)

// JobFunc is the body of an asynchronous job. It reports progress through the
// callback and returns the result payload to record on the job.
type JobFunc func(ctx context.Context, progress func(processed, total int)) (any, error)

// JobService executes long operations asynchronously and exposes a pollable
// status record per job. Jobs of the same kind against the same type are
// serialized: a second submission is rejected while the first runs. Jobs
// against different types run in parallel.
type JobService struct {
	db ports.RelationalDB

	mu     sync.Mutex
	active map[string]string // kind|type -> running job id
	wg     sync.WaitGroup

	now func() time.Time
}

// NewJobService creates a new JobService.
func NewJobService(db ports.RelationalDB) *JobService {
	return &JobService{
		db:     db,
		active: make(map[string]string),
		now:    time.Now,
	}
}

func jobKey(kind entities.JobKind, typeName string) string {
	return string(kind) + "|" + entities.NormalizeName(typeName)
}

// Submit queues fn as a job of the given kind against the given type and
// starts it immediately. Returns ConsistencyError when a job of the same kind
// is already running against the same type; the caller must re-trigger, not
// wait in line, because the conflicting run may change the inputs.
func (s *JobService) Submit(ctx context.Context, kind entities.JobKind, typeName string, fn JobFunc) (*entities.Job, error) {
	key := jobKey(kind, typeName)

	s.mu.Lock()
	if runningID, ok := s.active[key]; ok {
		s.mu.Unlock()
		return nil, entities.NewConsistencyError(
			fmt.Sprintf("%s already running for type %q (job %s)", kind, typeName, runningID))
	}

	job := &entities.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		TypeName:  typeName,
		Status:    entities.JobStatusQueued,
		CreatedAt: s.now(),
	}
	s.active[key] = job.ID
	s.mu.Unlock()

	if err := s.db.SaveJob(ctx, job); err != nil {
		s.release(key)
		return nil, fmt.Errorf("saving job: %w", err)
	}

	// Jobs are not cancellable mid-run: a job that has begun mutating state
	// must run to completion or fail outright.
	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(key)
		s.run(runCtx, job.ID, fn)
	}()

	queued := *job
	return &queued, nil
}

func (s *JobService) release(key string) {
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
}

// run drives one job through running -> finished|failed. Status transitions
// are monotonic; a terminal job row is never rewritten to running.
func (s *JobService) run(ctx context.Context, jobID string, fn JobFunc) {
	job, err := s.db.FindJob(ctx, jobID)
	if err != nil || job == nil || job.Status.Terminal() {
		return
	}

	started := s.now()
	job.Status = entities.JobStatusRunning
	job.StartedAt = &started
	if err := s.db.SaveJob(ctx, job); err != nil {
		return
	}

	progress := func(processed, total int) {
		job.Processed = processed
		job.Total = total
		_ = s.db.SaveJob(ctx, job)
	}

	payload, runErr := fn(ctx, progress)

	ended := s.now()
	job.EndedAt = &ended
	if runErr != nil {
		job.Status = entities.JobStatusFailed
		job.Error = runErr.Error()
	} else {
		job.Status = entities.JobStatusFinished
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				job.Status = entities.JobStatusFailed
				job.Error = fmt.Sprintf("encoding result: %v", err)
			} else {
				job.Result = data
			}
		}
	}
	_ = s.db.SaveJob(ctx, job)
}

// Get returns the job record for polling.
func (s *JobService) Get(ctx context.Context, id string) (*entities.Job, error) {
	job, err := s.db.FindJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding job: %w", err)
	}
	if job == nil {
		return nil, entities.NewNotFoundError("job", id)
	}
	return job, nil
}

// List returns recent jobs, newest first.
func (s *JobService) List(ctx context.Context, limit int) ([]entities.Job, error) {
	return s.db.ListJobs(ctx, limit)
}

// Drain blocks until every submitted job has finished. Used by the CLI so
// the process does not exit with jobs mid-flight.
func (s *JobService) Drain() {
	s.wg.Wait()
}
