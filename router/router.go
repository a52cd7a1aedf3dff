// Package router implements the Backend Router: given a capability and a
// request, it resolves the Selection Policy, tries the primary backend,
// falls back per spec.md §4.B, and records a Backend Call Record for
// every attempt. Its fallback-chain shape is grounded on
// itsneelabh-gomind's ai/chain_client.go ChainClient.GenerateResponse,
// generalized from "LLM providers only" to any backend.Adapter.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/core"
	"github.com/codemusic/roverseer-gateway/resilience"
)

// Policy is a Selection Policy: an ordered list of backend ids to try for
// a capability, plus whether falling back past the primary is allowed.
type Policy struct {
	BackendIDs      []string
	FallbackEnabled bool
}

// CallRecord is a Backend Call Record (spec.md §3): append-only,
// emitted once per backend call regardless of outcome.
type CallRecord struct {
	Capability backend.Capability
	BackendID  string
	StartedAt  time.Time
	Duration   time.Duration
	OK         bool
	BytesIn    int
	BytesOut   int
	ErrorClass core.Kind
}

// ModelStats are per-model generate_text statistics, keyed by the
// requested model id rather than the adapter id. They live in a counter
// that RecordModelRun updates; they are not derived from the Backend Call
// Records, which carry no model id.
type ModelStats struct {
	RunCount     int
	TotalDuration time.Duration
	LastDuration  time.Duration
	LastRunAt     time.Time
}

func (s ModelStats) AvgDuration() time.Duration {
	if s.RunCount == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.RunCount)
}

type backendHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	unavailableUntil    time.Time
}

func (h *backendHealth) recordFailure(cooldown time.Duration, threshold int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	if h.consecutiveFailures >= threshold {
		h.unavailableUntil = time.Now().Add(cooldown)
	}
}

func (h *backendHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.unavailableUntil = time.Time{}
}

func (h *backendHealth) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Now().After(h.unavailableUntil)
}

// Router dispatches capability calls across registered backend.Adapters
// per a Selection Policy, with per-backend health tracking and circuit
// breakers, and records telemetry for every call.
type Router struct {
	logger    core.ComponentAwareLogger
	telemetry core.Telemetry

	mu        sync.RWMutex
	adapters  map[string]backend.Adapter
	policies  map[backend.Capability]Policy
	health    map[string]*backendHealth
	breakers  map[string]*resilience.CircuitBreaker

	failureThreshold int
	cooldown         time.Duration

	records    []CallRecord
	recordsMu  sync.Mutex
	maxRecords int

	statsMu sync.Mutex
	stats   map[string]*ModelStats
}

type Option func(*Router)

func WithLogger(l core.ComponentAwareLogger) Option { return func(r *Router) { r.logger = l } }
func WithTelemetry(t core.Telemetry) Option         { return func(r *Router) { r.telemetry = t } }
func WithHealthParams(failureThreshold int, cooldown time.Duration) Option {
	return func(r *Router) {
		r.failureThreshold = failureThreshold
		r.cooldown = cooldown
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		adapters:         make(map[string]backend.Adapter),
		policies:         make(map[backend.Capability]Policy),
		health:           make(map[string]*backendHealth),
		breakers:         make(map[string]*resilience.CircuitBreaker),
		failureThreshold: 3,
		cooldown:         30 * time.Second,
		maxRecords:       10000,
		stats:            make(map[string]*ModelStats),
		logger:           &core.NoOpLogger{},
		telemetry:        &core.NoOpTelemetry{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a backend adapter under an id and wires a private
// circuit breaker + health tracker for it.
func (r *Router) Register(id string, adapter backend.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[id] = adapter
	r.health[id] = &backendHealth{}
	r.breakers[id] = resilience.New(id, core.DefaultCircuitBreakerConfig())
}

// SetPolicy installs the Selection Policy for a capability.
func (r *Router) SetPolicy(cap backend.Capability, policy Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[cap] = policy
}

func (r *Router) policyFor(cap backend.Capability) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[cap]
	return p, ok
}

func (r *Router) adapterFor(id string) (backend.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

func (r *Router) healthFor(id string) *backendHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health[id]
}

func (r *Router) breakerFor(id string) *resilience.CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[id]
}

// Dispatch resolves the Selection Policy for cap and runs call against
// backends in order, implementing spec.md §4.B steps 1-6. call receives
// the chosen adapter and returns (bytesOut, error); attemptBytesIn is
// recorded as-is for every attempt.
func (r *Router) Dispatch(ctx context.Context, cap backend.Capability, attemptBytesIn int, call func(context.Context, backend.Adapter) (int, error)) (string, error) {
	policy, ok := r.policyFor(cap)
	if !ok || len(policy.BackendIDs) == 0 {
		return "", core.New("router.Dispatch", core.KindBackendUnavailable, "no selection policy for capability "+string(cap))
	}

	ctx, span := r.telemetry.StartSpan(ctx, "router.dispatch")
	defer span.End()
	span.SetAttribute("capability", string(cap))

	var lastErr error
	for i, backendID := range policy.BackendIDs {
		if i > 0 && !policy.FallbackEnabled {
			break
		}

		adapter, ok := r.adapterFor(backendID)
		if !ok {
			lastErr = core.New("router.Dispatch", core.KindBackendUnavailable, "unregistered backend "+backendID)
			continue
		}

		health := r.healthFor(backendID)
		if health != nil && !health.available() {
			lastErr = core.New("router.Dispatch", core.KindBackendUnavailable, backendID+": in cooldown")
			continue
		}

		breaker := r.breakerFor(backendID)
		started := time.Now()
		var bytesOut int
		var callErr error
		execErr := breaker.Execute(ctx, func() error {
			bytesOut, callErr = call(ctx, adapter)
			return callErr
		})
		if execErr != nil && callErr == nil {
			callErr = execErr
		}
		duration := time.Since(started)

		r.emitRecord(CallRecord{
			Capability: cap,
			BackendID:  backendID,
			StartedAt:  started,
			Duration:   duration,
			OK:         callErr == nil,
			BytesIn:    attemptBytesIn,
			BytesOut:   bytesOut,
			ErrorClass: core.KindOf(callErr),
		})

		if callErr == nil {
			if health != nil {
				health.recordSuccess()
			}
			r.logger.Info("backend call succeeded", map[string]any{
				"capability": string(cap), "backend_id": backendID, "duration_ms": duration.Milliseconds(),
			})
			return backendID, nil
		}

		lastErr = callErr
		kind := core.KindOf(callErr)

		switch kind {
		case core.KindBackendRejected:
			// Do NOT fall back: a client-side error must surface, not be
			// hidden behind a different backend's acceptance (§4.B step 4).
			return backendID, callErr
		case core.KindBackendUnavailable, core.KindBackendTimeout:
			if health != nil {
				health.recordFailure(r.cooldown, r.failureThreshold)
			}
		case core.KindBackendProtocol:
			if health != nil {
				health.recordFailure(r.cooldown, r.failureThreshold)
			}
			r.logger.Error("backend protocol incident", map[string]any{
				"capability": string(cap), "backend_id": backendID, "error": callErr.Error(),
			})
		}

		r.logger.Warn("backend call failed, considering fallback", map[string]any{
			"capability": string(cap), "backend_id": backendID, "kind": string(kind),
		})
	}

	if lastErr == nil {
		lastErr = core.New("router.Dispatch", core.KindBackendUnavailable, "no backend available for capability "+string(cap))
	}
	return "", lastErr
}

func (r *Router) emitRecord(rec CallRecord) {
	r.recordsMu.Lock()
	r.records = append(r.records, rec)
	if len(r.records) > r.maxRecords {
		r.records = r.records[len(r.records)-r.maxRecords:]
	}
	r.recordsMu.Unlock()
}

// RecordModelRun updates Model Stats for a generate_text call, keyed by
// the requested model id rather than the adapter id (§4.B step 6).
func (r *Router) RecordModelRun(modelID string, duration time.Duration) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s, ok := r.stats[modelID]
	if !ok {
		s = &ModelStats{}
		r.stats[modelID] = s
	}
	s.RunCount++
	s.TotalDuration += duration
	s.LastDuration = duration
	s.LastRunAt = time.Now()
}

// ModelStatsFor returns a snapshot of Model Stats for a model id.
func (r *Router) ModelStatsFor(modelID string) (ModelStats, bool) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s, ok := r.stats[modelID]
	if !ok {
		return ModelStats{}, false
	}
	return *s, true
}

// AllModelStats returns a snapshot of Model Stats for every model id seen
// by RecordModelRun, keyed by model id.
func (r *Router) AllModelStats() map[string]ModelStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	out := make(map[string]ModelStats, len(r.stats))
	for id, s := range r.stats {
		out[id] = *s
	}
	return out
}

// BackendIDsFor returns the Selection Policy's backend ids for cap, in
// priority order, or nil if no policy is installed.
func (r *Router) BackendIDsFor(cap backend.Capability) []string {
	policy, ok := r.policyFor(cap)
	if !ok {
		return nil
	}
	out := make([]string, len(policy.BackendIDs))
	copy(out, policy.BackendIDs)
	return out
}

// Records returns a snapshot copy of recent Backend Call Records.
func (r *Router) Records() []CallRecord {
	r.recordsMu.Lock()
	defer r.recordsMu.Unlock()
	out := make([]CallRecord, len(r.records))
	copy(out, r.records)
	return out
}
