// Package jobs implements the Job Manager (spec.md §4.C): submit/status/
// list/cancel/cancel_all/cleanup over cooperatively-cancellable
// background workers. Grounded on itsneelabh-gomind's
// core/async_task.go Task/TaskStatus/ProgressReporter shapes, narrowed
// from a Redis-queue-backed distributed task system down to a
// single-process, in-memory manager.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/google/uuid"
)

// Status mirrors async_task.go's TaskStatus but adds "cancelled" as a
// distinct terminal state rather than folding it into "failed"
// (spec.md §3 Job.status).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusCompleted Status = "completed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusFailed || s == StatusCompleted
}

// Kind enumerates the job kinds this gateway runs (spec.md §3).
type Kind string

const (
	KindDownloadModel Kind = "download_model"
	KindDownloadVoice Kind = "download_voice"
	KindTrainVoice    Kind = "train_voice"
)

// Job is the Job record (spec.md §3), mutated only through Manager
// methods so the monotonic-progress and terminal-state invariants hold.
type Job struct {
	ID              string
	Kind            Kind
	Name            string
	Status          Status
	ProgressPercent int
	StartedAt       time.Time
	CompletedAt     *time.Time
	Error           string
	CancelRequested bool
	LastUpdate      time.Time
}

func (j Job) clone() *Job {
	c := j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Handle is what a worker function receives to poll cancellation and
// report progress; it is the cooperative-cancellation checkpoint
// surface spec.md §4.C and §5 describe.
type Handle interface {
	// CancelRequested reports whether the owning job has been asked to
	// cancel. Workers must check this at start, before each network
	// chunk, before each subprocess stage, and before filesystem
	// finalization.
	CancelRequested() bool
	// Progress updates progress_percent; callers must pass
	// monotonically non-decreasing values while status=running.
	Progress(percent int)
	Context() context.Context
}

type handle struct {
	m   *Manager
	id  string
	ctx context.Context
}

func (h *handle) CancelRequested() bool {
	h.m.mu.RLock()
	defer h.m.mu.RUnlock()
	j, ok := h.m.jobs[h.id]
	return ok && j.CancelRequested
}

func (h *handle) Progress(percent int) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	j, ok := h.m.jobs[h.id]
	if !ok || j.Status.IsTerminal() {
		return
	}
	if percent > j.ProgressPercent {
		j.ProgressPercent = percent
	}
	j.LastUpdate = time.Now()
}

func (h *handle) Context() context.Context { return h.ctx }

// Worker is the function a caller submits; it must poll h.CancelRequested()
// at natural checkpoints and report progress via h.Progress (spec.md §4.C
// "Worker responsibilities").
type Worker func(h Handle) (result string, err error)

// Manager runs jobs in-process, tracking state per spec.md §4.C.
type Manager struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	names        map[string]string // "kind:name" -> job_id, for duplicate detection
	logger       core.ComponentAwareLogger
	retentionCap int

	wg sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(l core.ComponentAwareLogger) Option { return func(m *Manager) { m.logger = l } }
func WithRetentionCap(n int) Option                 { return func(m *Manager) { m.retentionCap = n } }

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		jobs:         make(map[string]*Job),
		names:        make(map[string]string),
		logger:       &core.NoOpLogger{},
		retentionCap: 200,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit enqueues a new job and spawns its worker. Duplicate (kind, name)
// against a non-terminal job fails with KindJobAlreadyExists.
func (m *Manager) Submit(ctx context.Context, kind Kind, name string, worker Worker) (string, error) {
	key := string(kind) + ":" + name

	m.mu.Lock()
	if existingID, ok := m.names[key]; ok {
		if existing, ok := m.jobs[existingID]; ok && !existing.Status.IsTerminal() {
			m.mu.Unlock()
			return "", core.Wrap("jobs.Submit", core.KindJobAlreadyExists, key, core.ErrJobAlreadyExists)
		}
	}

	id := uuid.NewString()
	job := &Job{
		ID:         id,
		Kind:       kind,
		Name:       name,
		Status:     StatusQueued,
		StartedAt:  time.Now(),
		LastUpdate: time.Now(),
	}
	m.jobs[id] = job
	m.names[key] = id
	m.mu.Unlock()

	workerCtx, cancel := context.WithCancel(ctx)
	h := &handle{m: m, id: id, ctx: workerCtx}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runWorker(id, worker, h)
	}()

	return id, nil
}

func (m *Manager) runWorker(id string, worker Worker, h *handle) {
	m.transitionRunning(id)

	defer func() {
		if r := recover(); r != nil {
			m.finish(id, StatusFailed, "", "worker panic")
		}
	}()

	_, err := worker(h)

	m.mu.RLock()
	j := m.jobs[id]
	cancelled := j != nil && j.CancelRequested
	m.mu.RUnlock()

	switch {
	case cancelled:
		m.finish(id, StatusCancelled, "", "")
	case err != nil:
		m.finish(id, StatusFailed, "", err.Error())
	default:
		m.finish(id, StatusCompleted, "", "")
	}
}

func (m *Manager) transitionRunning(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.Status = StatusRunning
		j.LastUpdate = time.Now()
	}
}

func (m *Manager) finish(id string, status Status, errMsg, fallbackErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return
	}
	if errMsg == "" {
		errMsg = fallbackErr
	}
	now := time.Now()
	j.Status = status
	j.Error = errMsg
	j.CompletedAt = &now
	j.LastUpdate = now
	if status == StatusCompleted {
		j.ProgressPercent = 100
	}
	m.evictOldestTerminalLocked()
}

// evictOldestTerminalLocked drops the oldest terminal jobs (by
// CompletedAt) once the terminal-job count exceeds retentionCap, so
// List stays bounded without an external store (spec.md §4.C: "beyond
// the cap, the oldest terminal jobs are dropped"). Callers must hold
// m.mu.
func (m *Manager) evictOldestTerminalLocked() {
	if m.retentionCap <= 0 {
		return
	}

	var terminal []*Job
	for _, j := range m.jobs {
		if j.Status.IsTerminal() {
			terminal = append(terminal, j)
		}
	}
	if len(terminal) <= m.retentionCap {
		return
	}

	sort.Slice(terminal, func(i, k int) bool {
		return terminal[i].CompletedAt.Before(*terminal[k].CompletedAt)
	})

	evict := len(terminal) - m.retentionCap
	for _, j := range terminal[:evict] {
		delete(m.jobs, j.ID)
	}
	for key, id := range m.names {
		if _, ok := m.jobs[id]; !ok {
			delete(m.names, key)
		}
	}
}

// Status returns a snapshot of the job, or KindJobNotFound.
func (m *Manager) Status(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, core.Wrap("jobs.Status", core.KindJobNotFound, jobID, core.ErrJobNotFound)
	}
	return j.clone(), nil
}

// Filter narrows List results; zero values mean "no filter" on that field.
type Filter struct {
	Kind   Kind
	Status Status
}

// List returns jobs matching filter, newest first.
func (m *Manager) List(filter Filter) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if filter.Kind != "" && j.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}

// Cancel requests cancellation of a job; without confirm=true it is
// refused (spec.md §4.C: "refused without confirmation flag").
func (m *Manager) Cancel(jobID string, confirm bool) error {
	if !confirm {
		return core.Wrap("jobs.Cancel", core.KindJobCancelRefused, jobID, core.ErrJobCancelRefused)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return core.Wrap("jobs.Cancel", core.KindJobNotFound, jobID, core.ErrJobNotFound)
	}
	if j.Status.IsTerminal() {
		return nil
	}
	j.CancelRequested = true
	j.LastUpdate = time.Now()
	return nil
}

// CancelAll requests cancellation of every job matching filter, returning
// the ids it touched.
func (m *Manager) CancelAll(filter Filter, confirm bool) ([]string, error) {
	if !confirm {
		return nil, core.Wrap("jobs.CancelAll", core.KindJobCancelRefused, "", core.ErrJobCancelRefused)
	}

	var touched []string
	for _, j := range m.List(filter) {
		if j.Status.IsTerminal() {
			continue
		}
		if err := m.Cancel(j.ID, true); err == nil {
			touched = append(touched, j.ID)
		}
	}
	return touched, nil
}

// Cleanup removes every job in a terminal state, returning the count
// removed (spec.md §4.C cleanup()).
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, j := range m.jobs {
		if j.Status.IsTerminal() {
			delete(m.jobs, id)
			removed++
		}
	}
	for key, id := range m.names {
		if _, ok := m.jobs[id]; !ok {
			delete(m.names, key)
		}
	}
	return removed
}

// Wait blocks until every currently-running worker goroutine returns;
// used by graceful shutdown in cmd/gateway.
func (m *Manager) Wait() { m.wg.Wait() }
