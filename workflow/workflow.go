// Package workflow implements the generic Workflow Engine (spec.md §4.E):
// an ordered sequence of opaque steps with retry/timeout/skip semantics
// and an interactive pause/resume/modify/skip control surface. Grounded
// on itsneelabh-gomind's orchestration/workflow_engine.go
// (WorkflowDefinition/StepDefinition/RetryConfig shapes) and
// hitl_controller.go's command-processing pattern (ProcessCommand over
// a running execution), narrowed from a multi-agent routing engine down
// to a plain ordered-step engine with a pluggable StepFeedback sink. Its
// step retry loop runs through resilience.Retry (cenkalti/backoff/v5).
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/codemusic/roverseer-gateway/resilience"
	"github.com/google/uuid"
)

// StepFunc is a step's implementation: opaque input in, opaque output out.
// The engine treats both as interface{} and only stringifies them for the
// bounded step-record summaries.
type StepFunc func(ctx context.Context, input any, wfCtx *Context) (any, error)

// SkipCondition is evaluated against the workflow Context at step entry;
// if any is true the step is recorded as skipped rather than run.
type SkipCondition func(wfCtx *Context) (bool, string)

// Step is a Workflow Step (spec.md §3).
type Step struct {
	Label          string
	Func           StepFunc
	Auto           bool
	RetryAttempts  int
	Timeout        time.Duration
	Description    string
	SkipConditions []SkipCondition
}

// Definition is a Workflow (spec.md §3): an ordered, once-validated list
// of steps plus metadata.
type Definition struct {
	Name     string
	Steps    []Step
	Metadata map[string]any
}

// Validate checks spec.md §4.E step 1: steps non-empty, labels unique.
func (d Definition) Validate() error {
	if len(d.Steps) == 0 {
		return core.New("workflow.Validate", core.KindInputInvalid, "workflow has no steps")
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.Label == "" {
			return core.New("workflow.Validate", core.KindInputInvalid, "step has empty label")
		}
		if seen[s.Label] {
			return core.New("workflow.Validate", core.KindInputInvalid, "duplicate step label "+s.Label)
		}
		seen[s.Label] = true
	}
	return nil
}

// Context is the shared, mutable bag carried between steps: metadata any
// step can read or write, plus pending control-surface state applied at
// step entry.
type Context struct {
	mu       sync.Mutex
	Metadata map[string]any
}

func newContext() *Context {
	return &Context{Metadata: make(map[string]any)}
}

// NewContext builds an empty Context; exported so step functions can be
// unit tested in isolation without running a full Execution.
func NewContext() *Context {
	return newContext()
}

func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Metadata[key] = value
}

func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Metadata[key]
	return v, ok
}

// RecordStatus is a Step Execution Record's status (spec.md §3).
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
	RecordSkipped RecordStatus = "skipped"
)

// StepRecord is a Step Execution Record (spec.md §3).
type StepRecord struct {
	StepIndex     int
	Label         string
	StartedAt     time.Time
	EndedAt       time.Time
	Status        RecordStatus
	Attempt       int
	InputSummary  string
	OutputSummary string
	Error         string
	Duration      time.Duration
}

// ExecutionStatus is an Execution's overall status.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Modification is one entry applied to a step via modify() (spec.md §4.E).
type Modification struct {
	Kind   string // "parameters" | "direction" | "skip" | "retry"
	Value  any
	Reason string
}

// Interaction is one entry in an Execution's user_interactions history
// (spec.md §3), grounded on original_source's
// interactive_workflow_controller.py, which appends a dict with
// type/timestamp/step_index to self.user_interactions on every
// pause/resume/skip/modify call.
type Interaction struct {
	Kind      string    `json:"kind"` // "pause" | "resume" | "skip" | "modify" | "modify_applied"
	Label     string    `json:"label,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	StepIndex int       `json:"step_index"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution is the run of a Definition (spec.md §3). IsPaused,
// CurrentStepIndex, and PendingModifications mirror the get_status()
// shape of original_source's interactive workflow controller
// (SPEC_FULL.md "SUPPLEMENTED FEATURES"), surfaced directly in
// GET /workflow/{id}/status rather than only the bare terminal fields.
type Execution struct {
	mu sync.Mutex

	ID           string
	WorkflowName string
	StartedAt    time.Time
	EndedAt      *time.Time
	StepRecords  []StepRecord
	Status       ExecutionStatus
	Output       any

	IsPaused             bool                      `json:"is_paused"`
	CurrentStepIndex     int                       `json:"current_step_index"`
	PendingModifications map[string][]Modification `json:"pending_modifications"`
	Interactions         []Interaction             `json:"user_interactions"`

	skips map[string]string

	wfCtx *Context
}

func (e *Execution) snapshot() Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	records := make([]StepRecord, len(e.StepRecords))
	copy(records, e.StepRecords)
	mods := make(map[string][]Modification, len(e.PendingModifications))
	for k, v := range e.PendingModifications {
		vv := make([]Modification, len(v))
		copy(vv, v)
		mods[k] = vv
	}
	interactions := make([]Interaction, len(e.Interactions))
	copy(interactions, e.Interactions)
	return Execution{
		ID: e.ID, WorkflowName: e.WorkflowName, StartedAt: e.StartedAt, EndedAt: e.EndedAt,
		StepRecords: records, Status: e.Status, Output: e.Output,
		IsPaused: e.IsPaused, CurrentStepIndex: e.CurrentStepIndex,
		PendingModifications: mods, Interactions: interactions,
	}
}

// Feedback is a StepFeedback event (spec.md §4.E), published at every
// state change to a pluggable Sink. The engine does not fix a transport
// (e.g. gorilla/websocket) — that lives in httpapi.
type Feedback struct {
	StepID          string
	Label           string
	Status          string
	ProgressPercent int
	CurrentAction   string
	Metrics         map[string]any
	Timestamp       time.Time
}

// Sink receives Feedback events; a nil-safe no-op if unset.
type Sink interface {
	Publish(Feedback)
}

type noopSink struct{}

func (noopSink) Publish(Feedback) {}

const maxSummaryLen = 200

func summarize(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > maxSummaryLen {
		return s[:maxSummaryLen]
	}
	return s
}

// Engine runs Definitions and exposes the interactive control surface.
type Engine struct {
	logger core.ComponentAwareLogger
	sink   Sink
	store  Store

	mu         sync.RWMutex
	executions map[string]*Execution
}

type Option func(*Engine)

func WithLogger(l core.ComponentAwareLogger) Option { return func(e *Engine) { e.logger = l } }
func WithSink(s Sink) Option                        { return func(e *Engine) { e.sink = s } }
func WithStore(s Store) Option                      { return func(e *Engine) { e.store = s } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:     &core.NoOpLogger{},
		sink:       noopSink{},
		store:      noopStore{},
		executions: make(map[string]*Execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// checkpoint persists exec's current snapshot, logging but not failing
// the run if the store is unavailable (persistence is best-effort; the
// in-memory executions map remains authoritative for a live process).
func (e *Engine) checkpoint(ctx context.Context, exec *Execution) {
	if err := e.store.Save(ctx, exec.snapshot()); err != nil {
		if _, ok := e.store.(noopStore); !ok {
			e.logger.Warn("checkpoint save failed", map[string]any{"execution_id": exec.ID, "error": err.Error()})
		}
	}
}

// Run executes def end-to-end (spec.md §4.E steps 1-4), blocking until
// completion, failure, or ctx cancellation.
func (e *Engine) Run(ctx context.Context, def Definition, input any) (*Execution, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	exec := &Execution{
		ID:                   uuid.NewString(),
		WorkflowName:         def.Name,
		StartedAt:            time.Now(),
		Status:               ExecutionRunning,
		skips:                make(map[string]string),
		PendingModifications: make(map[string][]Modification),
		wfCtx:                newContext(),
	}
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()

	exec.wfCtx.Set("execution_id", exec.ID)
	e.sink.Publish(Feedback{StepID: exec.ID, Status: "workflow_started", Timestamp: time.Now()})

	current := input
	for i, step := range def.Steps {
		exec.mu.Lock()
		exec.CurrentStepIndex = i
		exec.mu.Unlock()

		e.waitWhilePaused(ctx, exec)
		if ctx.Err() != nil {
			e.finish(exec, ExecutionFailed)
			e.checkpoint(ctx, exec)
			return exec, core.Wrap("workflow.Run", core.KindCancelled, "context cancelled", ctx.Err())
		}

		e.applyModifications(exec, step.Label, &step, exec.wfCtx)

		if reason, skip := e.shouldSkip(exec, step); skip {
			e.appendRecord(exec, StepRecord{
				StepIndex: i, Label: step.Label, StartedAt: time.Now(), EndedAt: time.Now(),
				Status: RecordSkipped, Error: reason,
			})
			e.sink.Publish(Feedback{StepID: exec.ID, Label: step.Label, Status: "skipped", Timestamp: time.Now()})
			continue
		}

		e.sink.Publish(Feedback{StepID: exec.ID, Label: step.Label, Status: "step_started",
			CurrentAction: summarize(current), Timestamp: time.Now()})

		started := time.Now()
		out, attempt, err := e.runStepWithRetry(ctx, exec, step, current)
		if err != nil {
			e.appendRecord(exec, StepRecord{
				StepIndex: i, Label: step.Label, StartedAt: started, EndedAt: time.Now(),
				Status: RecordFailed, Attempt: attempt, InputSummary: summarize(current), Error: err.Error(),
			})
			e.sink.Publish(Feedback{StepID: exec.ID, Label: step.Label, Status: "step_failed", Timestamp: time.Now()})
			e.finish(exec, ExecutionFailed)
			e.checkpoint(ctx, exec)
			return exec, core.Wrap("workflow.Run", core.KindStepFailed, step.Label, err)
		}

		e.appendRecord(exec, StepRecord{
			StepIndex: i, Label: step.Label, StartedAt: started, EndedAt: time.Now(),
			Status: RecordSuccess, Attempt: attempt, InputSummary: summarize(current), OutputSummary: summarize(out),
		})
		e.sink.Publish(Feedback{StepID: exec.ID, Label: step.Label, Status: "step_succeeded", Timestamp: time.Now()})

		current = out
	}

	exec.mu.Lock()
	exec.Output = current
	exec.mu.Unlock()

	e.finish(exec, ExecutionCompleted)
	e.sink.Publish(Feedback{StepID: exec.ID, Status: "workflow_completed", Timestamp: time.Now()})
	e.checkpoint(ctx, exec)
	return exec, nil
}

func (e *Engine) finish(exec *Execution, status ExecutionStatus) {
	exec.mu.Lock()
	defer exec.mu.Unlock()
	now := time.Now()
	exec.EndedAt = &now
	exec.Status = status
}

func (e *Engine) appendRecord(exec *Execution, rec StepRecord) {
	rec.Duration = rec.EndedAt.Sub(rec.StartedAt)
	exec.mu.Lock()
	defer exec.mu.Unlock()
	exec.StepRecords = append(exec.StepRecords, rec)
}

func (e *Engine) shouldSkip(exec *Execution, step Step) (string, bool) {
	exec.mu.Lock()
	reason, explicit := exec.skips[step.Label]
	exec.mu.Unlock()
	if explicit {
		return reason, true
	}
	for _, cond := range step.SkipConditions {
		if ok, reason := cond(exec.wfCtx); ok {
			return reason, true
		}
	}
	return "", false
}

func (e *Engine) applyModifications(exec *Execution, label string, step *Step, wfCtx *Context) {
	exec.mu.Lock()
	mods := exec.PendingModifications[label]
	delete(exec.PendingModifications, label)
	stepIndex := exec.CurrentStepIndex
	exec.mu.Unlock()

	for _, m := range mods {
		switch m.Kind {
		case "parameters":
			if params, ok := m.Value.(map[string]any); ok {
				for k, v := range params {
					wfCtx.Set(k, v)
				}
			}
		case "direction":
			wfCtx.Set("direction:"+label, m.Value)
		case "skip":
			exec.mu.Lock()
			exec.skips[label] = m.Reason
			exec.mu.Unlock()
		case "retry":
			step.RetryAttempts++
		}

		exec.mu.Lock()
		exec.Interactions = append(exec.Interactions, Interaction{
			Kind: "modify_applied", Label: label, Detail: m.Kind, StepIndex: stepIndex, Timestamp: time.Now(),
		})
		exec.mu.Unlock()
	}
}

// runStepWithRetry runs step.Func up to step.RetryAttempts times via
// resilience.Retry (spec.md §4.E step 3.c), a backoff/v5-backed loop,
// rather than a step-private sleep loop. Every attempt gets its own step.Timeout
// deadline when one is set. Workflow step errors are not necessarily
// *core.GatewayError, so every failure is retried up to the attempt
// budget (resilience.AlwaysRetryable) rather than being filtered by the
// router's Kind-based policy.
func (e *Engine) runStepWithRetry(ctx context.Context, exec *Execution, step Step, input any) (any, int, error) {
	maxAttempts := step.RetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	cfg := resilience.RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Retryable:    resilience.AlwaysRetryable,
	}

	var out any
	attempt := 0
	err := resilience.Retry(ctx, cfg, func() error {
		attempt++
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		result, stepErr := step.Func(stepCtx, input, exec.wfCtx)
		if cancel != nil {
			cancel()
		}
		if stepErr != nil {
			if stepCtx.Err() == context.DeadlineExceeded {
				return core.Wrap("workflow.runStepWithRetry", core.KindTimeout, step.Label, stepCtx.Err())
			}
			return stepErr
		}
		out = result
		return nil
	})
	return out, attempt, err
}

func (e *Engine) waitWhilePaused(ctx context.Context, exec *Execution) {
	for {
		exec.mu.Lock()
		paused := exec.IsPaused
		exec.mu.Unlock()
		if !paused || ctx.Err() != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Status returns a snapshot of an execution by id, or a KindInputInvalid
// error wrapping core.ErrWorkflowNotFound for an unknown id.
func (e *Engine) Status(id string) (*Execution, error) {
	e.mu.RLock()
	exec, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, core.Wrap("workflow.Status", core.KindInputInvalid, id, core.ErrWorkflowNotFound)
	}
	s := exec.snapshot()
	return &s, nil
}

func (e *Engine) find(id string) (*Execution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[id]
	if !ok {
		return nil, core.Wrap("workflow.find", core.KindInputInvalid, id, core.ErrWorkflowNotFound)
	}
	return exec, nil
}

// Pause sets the execution's pause flag; the engine polls it between
// steps (spec.md §4.E "Interactive control"). The pause is recorded in
// Interactions so GET /workflow/{id}/status can show when and at which
// step index the pause landed.
func (e *Engine) Pause(id string) error {
	exec, err := e.find(id)
	if err != nil {
		return err
	}
	exec.mu.Lock()
	exec.IsPaused = true
	exec.Status = ExecutionPaused
	exec.Interactions = append(exec.Interactions, Interaction{
		Kind: "pause", StepIndex: exec.CurrentStepIndex, Timestamp: time.Now(),
	})
	exec.mu.Unlock()
	e.checkpoint(context.Background(), exec)
	return nil
}

// Resume clears the execution's pause flag.
func (e *Engine) Resume(id string) error {
	exec, err := e.find(id)
	if err != nil {
		return err
	}
	exec.mu.Lock()
	exec.IsPaused = false
	exec.Status = ExecutionRunning
	exec.Interactions = append(exec.Interactions, Interaction{
		Kind: "resume", StepIndex: exec.CurrentStepIndex, Timestamp: time.Now(),
	})
	exec.mu.Unlock()
	e.checkpoint(context.Background(), exec)
	return nil
}

// Skip causes the named step to be marked skipped when reached.
func (e *Engine) Skip(id, label, reason string) error {
	exec, err := e.find(id)
	if err != nil {
		return err
	}
	exec.mu.Lock()
	exec.skips[label] = reason
	exec.Interactions = append(exec.Interactions, Interaction{
		Kind: "skip", Label: label, Detail: reason, StepIndex: exec.CurrentStepIndex, Timestamp: time.Now(),
	})
	exec.mu.Unlock()
	return nil
}

// Modify attaches a Modification to a step's label, merged into its
// configuration and context at step entry. It is recorded in both
// PendingModifications (until applyModifications consumes it) and
// Interactions (permanently), so a status snapshot taken before the
// step runs shows the modification pending, and one taken after shows
// it in the history instead of silently vanishing.
func (e *Engine) Modify(id, label string, mod Modification) error {
	exec, err := e.find(id)
	if err != nil {
		return err
	}
	exec.mu.Lock()
	exec.PendingModifications[label] = append(exec.PendingModifications[label], mod)
	exec.Interactions = append(exec.Interactions, Interaction{
		Kind: "modify", Label: label, Detail: mod.Kind, StepIndex: exec.CurrentStepIndex, Timestamp: time.Now(),
	})
	exec.mu.Unlock()
	return nil
}
