// Package job runs chapter acquisitions in the background and keeps their
// progress queryable by ID.
package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mangadl/internal/model"
)

// Pipeline runs one acquisition, streams its notifications to out and closes
// out when done.
type Pipeline interface {
	Run(ctx context.Context, ref model.ChapterRef, out chan<- model.Notification)
}

// Manager provides an in-memory registry of jobs and background processing
type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	semaphore chan struct{}
	pipeline  Pipeline
	workersWG sync.WaitGroup
	baseCtx   context.Context
	store     JobStore
}

func NewManager(pipeline Pipeline, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	return &Manager{
		jobs:      make(map[string]*Job),
		semaphore: make(chan struct{}, opts.MaxConcurrent),
		pipeline:  pipeline,
		baseCtx:   context.Background(),
		store:     NewFileStore(opts.DataDir),
	}
}

// IsBusy reports whether the system is currently at max concurrent processing
func (m *Manager) IsBusy() bool {
	return len(m.semaphore) >= cap(m.semaphore)
}

// Start registers a job for ref and begins processing it in the background.
// It fails with ErrBusy instead of queueing when no slot is free.
func (m *Manager) Start(ref model.ChapterRef) (*Job, error) {
	if err := ref.Validate(); err != nil {
		return nil, err //nolint:wrapcheck
	}
	select {
	case m.semaphore <- struct{}{}:
	default:
		return nil, ErrBusy
	}

	newJob := &Job{
		ID:        uuid.NewString(),
		Ref:       ref,
		Status:    StatusInProgress,
		State:     model.StateResolving,
		Events:    make([]Event, 0),
		Pages:     make([]model.PageTask, 0),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[newJob.ID] = newJob
	pipeline := m.pipeline
	ctx := m.baseCtx
	snapshot := newJob.clone()
	m.mu.Unlock()

	if err := m.persistJob(snapshot); err != nil { // best-effort
		log.Warn().Str("job_id", newJob.ID).Err(err).Msg("persist job failed")
	}

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.process(ctx, pipeline, newJob.ID, ref)
	}()
	return snapshot, nil
}

// GetJob returns a copy of the job with the given ID
func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found, ok := m.jobs[jobID]
	if !ok {
		return nil, false
	}
	return found.clone(), true
}

// ListJobs returns copies of all jobs, oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	list := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		list = append(list, j.clone())
	}
	m.mu.RUnlock()
	sort.Slice(list, func(a, b int) bool { return list[a].CreatedAt.Before(list[b].CreatedAt) })
	return list
}

// DocumentPath returns the assembled PDF of a finished job.
func (m *Manager) DocumentPath(jobID string) (string, error) {
	j, ok := m.GetJob(jobID)
	if !ok {
		return "", ErrJobNotFound
	}
	if j.Document == "" {
		return "", ErrNoDocument
	}
	return j.Document, nil
}

// SetBaseContext sets the context acquisitions run under.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

// WaitAll blocks until all in-flight workers finish or the context is done.
// Returns true if all workers finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// UsePipeline allows tests to inject a fake pipeline.
// Not safe for concurrent mutation with running jobs; intended for test setup only.
func (m *Manager) UsePipeline(pipeline Pipeline) {
	m.mu.Lock()
	m.pipeline = pipeline
	m.mu.Unlock()
}

func (m *Manager) persistJob(snapshot *Job) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveJob(context.Background(), snapshot) //nolint:wrapcheck
}
