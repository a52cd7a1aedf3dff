// Package httpapi exposes the gateway's components over plain net/http
// (spec.md §4.G, §6). Grounded on itsneelabh-gomind's
// orchestration/hitl_api.go handler shape (method check, JSON
// decode/encode helpers, RegisterRoutes convenience method) generalized
// from one HITL resource family to the full endpoint table: pipeline
// turns, single-stage backend calls, the research workflow's control
// surface, and the job manager.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/core"
	"github.com/codemusic/roverseer-gateway/jobs"
	"github.com/codemusic/roverseer-gateway/pipeline"
	"github.com/codemusic/roverseer-gateway/research"
	"github.com/codemusic/roverseer-gateway/router"
	"github.com/codemusic/roverseer-gateway/workflow"
)

// Handler wires the gateway's subsystems onto HTTP endpoints. It holds no
// state of its own beyond these references.
type Handler struct {
	router           *router.Router
	pipeline         *pipeline.Orchestrator
	jobs             *jobs.Manager
	engine           *workflow.Engine
	research         *research.Workflow
	logger           core.ComponentAwareLogger
	voiceDir         string
	modelDir         string
	modelRegistryURL string
	downloadHTTP     *http.Client
}

type Option func(*Handler)

func WithLogger(l core.ComponentAwareLogger) Option { return func(h *Handler) { h.logger = l } }

// WithVoiceDir sets the directory GET /voices lists voice sidecars from
// (spec.md §6 "File formats": a voice model file plus JSON sidecar), and
// that download_voice jobs write fetched voice artifacts into.
func WithVoiceDir(dir string) Option { return func(h *Handler) { h.voiceDir = dir } }

// WithModelDir sets the directory download_model jobs write fetched model
// artifacts into (spec.md §4.C).
func WithModelDir(dir string) Option { return func(h *Handler) { h.modelDir = dir } }

// WithModelRegistryURL sets the base URL download_model resolves a
// submitted model_id against, since POST /jobs/download_model only
// carries model_id and name (spec.md §6), not a fetch URL.
func WithModelRegistryURL(url string) Option { return func(h *Handler) { h.modelRegistryURL = url } }

func New(r *router.Router, p *pipeline.Orchestrator, j *jobs.Manager, e *workflow.Engine, rw *research.Workflow, opts ...Option) *Handler {
	h := &Handler{
		router:       r,
		pipeline:     p,
		jobs:         j,
		engine:       e,
		research:     rw,
		logger:       &core.NoOpLogger{},
		downloadHTTP: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires every endpoint in spec.md §6 onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.handleChat)
	mux.HandleFunc("/stt", h.handleSTT)
	mux.HandleFunc("/tts", h.handleTTS)
	mux.HandleFunc("/llm", h.handleLLM)
	mux.HandleFunc("/workflow/research", h.handleResearch)
	mux.HandleFunc("/workflow/", h.handleWorkflowControl)
	mux.HandleFunc("/jobs/status", h.handleJobsStatus)
	mux.HandleFunc("/jobs/cleanup", h.handleJobsCleanup)
	mux.HandleFunc("/jobs/", h.handleJobsDispatch)
	mux.HandleFunc("/jobs", h.handleJobsCancelAll)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/models", h.handleModels)
	mux.HandleFunc("/voices", h.handleVoices)
}

// -----------------------------------------------------------------------
// Response helpers
// -----------------------------------------------------------------------

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every non-2xx JSON response (spec.md §7).
type ErrorResponse struct {
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	status := statusForKind(kind)
	h.writeJSON(w, status, ErrorResponse{Status: "error", ErrorKind: string(kind), Message: err.Error()})
}

func statusForKind(kind core.Kind) int {
	switch kind {
	case core.KindInputInvalid, core.KindInputEmpty:
		return http.StatusBadRequest
	case core.KindVoiceNotFound, core.KindModelNotFound, core.KindJobNotFound:
		return http.StatusNotFound
	case core.KindJobAlreadyExists:
		return http.StatusConflict
	case core.KindJobCancelRefused:
		return http.StatusBadRequest
	case core.KindBackendUnavailable, core.KindBackendTimeout, core.KindBackendBusy:
		return http.StatusServiceUnavailable
	case core.KindBackendRejected, core.KindBackendProtocol:
		return http.StatusBadGateway
	case core.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Status: "error", ErrorKind: "MethodNotAllowed", Message: "use " + method})
		return false
	}
	return true
}

// pathSegments splits r.URL.Path into its non-empty "/"-delimited parts.
func pathSegments(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// -----------------------------------------------------------------------
// POST /chat
// -----------------------------------------------------------------------

type chatRequest struct {
	SessionID  string `json:"session_id"`
	Audio      []byte `json:"audio,omitempty"`
	FormatHint string `json:"format_hint,omitempty"`
	Text       string `json:"text,omitempty"`
	Model      string `json:"model,omitempty"`
	Voice      string `json:"voice,omitempty"`
	Format     string `json:"format,omitempty"` // "text" | "audio" | "both"
}

type chatResponse struct {
	SessionID           string            `json:"session_id"`
	Text                string            `json:"text"`
	BackendUsedPerStage map[string]string `json:"backend_used_per_stage"`
	DurationMS          int64             `json:"duration_ms"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, core.Wrap("httpapi.handleChat", core.KindInputInvalid, "invalid JSON", err))
		return
	}

	started := time.Now()
	result, err := h.pipeline.Run(r.Context(), pipeline.TurnRequest{
		SessionID:  req.SessionID,
		Audio:      req.Audio,
		FormatHint: req.FormatHint,
		Text:       req.Text,
		ModelID:    req.Model,
		VoiceID:    req.Voice,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	if req.Format == "audio" && len(result.Audio) > 0 {
		h.writeAudio(w, result.Audio, result.Session.ID, result.Session.BackendUsedByStage[pipeline.StageTTS], time.Since(started))
		return
	}

	byStage := make(map[string]string, len(result.Session.BackendUsedByStage))
	for stage, id := range result.Session.BackendUsedByStage {
		byStage[string(stage)] = id
	}
	h.writeJSON(w, http.StatusOK, chatResponse{
		SessionID:           result.Session.ID,
		Text:                result.Session.Reply,
		BackendUsedPerStage: byStage,
		DurationMS:          time.Since(started).Milliseconds(),
	})
}

func (h *Handler) writeAudio(w http.ResponseWriter, audio []byte, sessionID, backendUsed string, duration time.Duration) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Session-Id", sessionID)
	w.Header().Set("X-Backend-Used", backendUsed)
	w.Header().Set("X-Duration", duration.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}

// -----------------------------------------------------------------------
// POST /stt, /tts, /llm — single-stage variants
// -----------------------------------------------------------------------

type sttResponse struct {
	Transcript  string `json:"transcript"`
	BackendUsed string `json:"backend_used"`
	DurationMS  int64  `json:"duration_ms"`
}

func (h *Handler) handleSTT(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Audio      []byte `json:"audio"`
		FormatHint string `json:"format_hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, core.Wrap("httpapi.handleSTT", core.KindInputInvalid, "invalid JSON", err))
		return
	}
	if len(req.Audio) == 0 {
		h.writeError(w, core.New("httpapi.handleSTT", core.KindInputEmpty, "audio is required"))
		return
	}

	started := time.Now()
	var transcript string
	backendID, err := h.router.Dispatch(r.Context(), backend.CapTranscribeAudio, len(req.Audio), func(ctx context.Context, a backend.Adapter) (int, error) {
		transcriber, ok := a.(backend.Transcriber)
		if !ok {
			return 0, core.New("httpapi.handleSTT", core.KindBackendProtocol, "adapter is not a Transcriber")
		}
		text, err := transcriber.TranscribeAudio(ctx, req.Audio, req.FormatHint)
		transcript = text
		return len(text), err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sttResponse{
		Transcript:  transcript,
		BackendUsed: backendID,
		DurationMS:  time.Since(started).Milliseconds(),
	})
}

func (h *Handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, core.Wrap("httpapi.handleTTS", core.KindInputInvalid, "invalid JSON", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.writeError(w, core.New("httpapi.handleTTS", core.KindInputEmpty, "text is required"))
		return
	}

	started := time.Now()
	var audio []byte
	backendID, err := h.router.Dispatch(r.Context(), backend.CapSynthesizeSpeech, len(req.Text), func(ctx context.Context, a backend.Adapter) (int, error) {
		synth, ok := a.(backend.Synthesizer)
		if !ok {
			return 0, core.New("httpapi.handleTTS", core.KindBackendProtocol, "adapter is not a Synthesizer")
		}
		data, err := synth.SynthesizeSpeech(ctx, req.Text, backend.SynthesisParams{VoiceID: req.Voice})
		audio = data
		return len(data), err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeAudio(w, audio, "", backendID, time.Since(started))
}

type llmResponse struct {
	Response    string `json:"response"`
	BackendUsed string `json:"backend_used"`
	DurationMS  int64  `json:"duration_ms"`
}

func (h *Handler) handleLLM(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Prompt      string  `json:"prompt"`
		Model       string  `json:"model"`
		System      string  `json:"system"`
		Temperature float32 `json:"temperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, core.Wrap("httpapi.handleLLM", core.KindInputInvalid, "invalid JSON", err))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.writeError(w, core.New("httpapi.handleLLM", core.KindInputEmpty, "prompt is required"))
		return
	}

	started := time.Now()
	var response string
	backendID, err := h.router.Dispatch(r.Context(), backend.CapGenerateText, len(req.Prompt), func(ctx context.Context, a backend.Adapter) (int, error) {
		gen, ok := a.(backend.TextGenerator)
		if !ok {
			return 0, core.New("httpapi.handleLLM", core.KindBackendProtocol, "adapter is not a TextGenerator")
		}
		text, err := gen.GenerateText(ctx, req.Prompt, backend.GenerateParams{
			Model: req.Model, System: req.System, Temperature: req.Temperature,
		})
		response = text
		return len(text), err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Model != "" {
		h.router.RecordModelRun(req.Model, time.Since(started))
	}

	h.writeJSON(w, http.StatusOK, llmResponse{
		Response:    response,
		BackendUsed: backendID,
		DurationMS:  time.Since(started).Milliseconds(),
	})
}

// -----------------------------------------------------------------------
// POST /workflow/research, control surface
// -----------------------------------------------------------------------

type researchRequest struct {
	Query   string         `json:"query"`
	Options map[string]any `json:"options"`
}

type researchResponse struct {
	Document         string                `json:"document"`
	ExecutionSummary executionSummary      `json:"execution_summary"`
	References       []backend.SearchResult `json:"references,omitempty"`
}

type executionSummary struct {
	ID          string                  `json:"id"`
	Status      string                  `json:"status"`
	StepRecords []workflow.StepRecord   `json:"step_records"`
}

func (h *Handler) handleResearch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, core.Wrap("httpapi.handleResearch", core.KindInputInvalid, "invalid JSON", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, core.New("httpapi.handleResearch", core.KindInputEmpty, "query is required"))
		return
	}

	exec, err := h.engine.Run(r.Context(), h.research.Definition(), req.Query)
	if err != nil {
		h.writeError(w, err)
		return
	}

	doc, _ := exec.Output.(research.Document)

	h.writeJSON(w, http.StatusOK, researchResponse{
		Document: doc.Text,
		ExecutionSummary: executionSummary{
			ID: exec.ID, Status: string(exec.Status), StepRecords: exec.StepRecords,
		},
		References: doc.References,
	})
}

func (h *Handler) handleWorkflowControl(w http.ResponseWriter, r *http.Request) {
	parts := pathSegments(r.URL.Path) // ["workflow", "{id}", "{action}"]
	if len(parts) < 3 {
		h.writeError(w, core.New("httpapi.handleWorkflowControl", core.KindInputInvalid, "expected /workflow/{id}/{action}"))
		return
	}
	id, action := parts[1], parts[2]

	switch action {
	case "status":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		exec, err := h.engine.Status(id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, exec)

	case "pause":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := h.engine.Pause(id); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})

	case "resume":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := h.engine.Resume(id); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})

	case "modify":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var body struct {
			Label  string `json:"label"`
			Kind   string `json:"kind"`
			Params any    `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, core.Wrap("httpapi.handleWorkflowControl", core.KindInputInvalid, "invalid JSON", err))
			return
		}
		if err := h.engine.Modify(id, body.Label, workflow.Modification{Kind: body.Kind, Value: body.Params}); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})

	case "skip":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var body struct {
			Label  string `json:"label"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, core.Wrap("httpapi.handleWorkflowControl", core.KindInputInvalid, "invalid JSON", err))
			return
		}
		if err := h.engine.Skip(id, body.Label, body.Reason); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})

	default:
		h.writeError(w, core.New("httpapi.handleWorkflowControl", core.KindInputInvalid, "unknown action "+action))
	}
}

// -----------------------------------------------------------------------
// Jobs
// -----------------------------------------------------------------------

func (h *Handler) handleJobsDispatch(w http.ResponseWriter, r *http.Request) {
	parts := pathSegments(r.URL.Path) // ["jobs", "{kind or id}"]
	if len(parts) < 2 {
		h.writeError(w, core.New("httpapi.handleJobsDispatch", core.KindInputInvalid, "expected /jobs/{kind} or /jobs/{id}"))
		return
	}

	if r.Method == http.MethodPost {
		h.handleJobSubmit(w, r, parts[1])
		return
	}
	if r.Method == http.MethodDelete {
		h.handleJobCancel(w, r, parts[1])
		return
	}
	requireMethod(w, r, http.MethodPost)
}

func (h *Handler) handleJobSubmit(w http.ResponseWriter, r *http.Request, kind string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, core.Wrap("httpapi.handleJobSubmit", core.KindInputInvalid, "invalid JSON", err))
		return
	}

	name, _ := firstString(body, "name", "model_id", "voice_name")
	if name == "" {
		h.writeError(w, core.New("httpapi.handleJobSubmit", core.KindInputInvalid, "a name/model_id/voice_name field is required"))
		return
	}

	worker, err := h.jobWorkerFor(jobs.Kind(kind), name, body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	id, err := h.jobs.Submit(r.Context(), jobs.Kind(kind), name, worker)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// jobWorkerFor builds the Worker a submitted job actually runs.
// download_model and download_voice perform a real chunked HTTP fetch
// via jobs.DownloadWorker, landing the artifact under modelDir/voiceDir
// (spec.md §4.C); train_voice has no adapter to drive in this gateway
// (training a voice model is out of scope — spec.md Non-goals), so it
// stays a lifecycle-only stub that still honors cancellation.
func (h *Handler) jobWorkerFor(kind jobs.Kind, name string, body map[string]any) (jobs.Worker, error) {
	switch kind {
	case jobs.KindDownloadModel:
		modelID, _ := firstString(body, "model_id")
		if modelID == "" {
			modelID = name
		}
		if h.modelRegistryURL == "" {
			return nil, core.New("httpapi.jobWorkerFor", core.KindInternal, "no model registry configured")
		}
		if h.modelDir == "" {
			return nil, core.New("httpapi.jobWorkerFor", core.KindInternal, "no model output directory configured")
		}
		sourceURL := strings.TrimRight(h.modelRegistryURL, "/") + "/" + modelID
		return jobs.DownloadWorker(h.downloadHTTP, sourceURL, h.modelDir, name), nil

	case jobs.KindDownloadVoice:
		sourceURL, _ := firstString(body, "model_url")
		if sourceURL == "" {
			return nil, core.New("httpapi.jobWorkerFor", core.KindInputInvalid, "a model_url field is required for download_voice")
		}
		if h.voiceDir == "" {
			return nil, core.New("httpapi.jobWorkerFor", core.KindInternal, "no voice output directory configured")
		}
		return jobs.DownloadWorker(h.downloadHTTP, sourceURL, h.voiceDir, name), nil

	default:
		return func(handle jobs.Handle) (string, error) {
			if handle.CancelRequested() {
				return "", core.New("httpapi.jobWorkerFor", core.KindCancelled, "cancelled before start")
			}
			handle.Progress(100)
			return "ok", nil
		}, nil
	}
}

func firstString(body map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := body[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func (h *Handler) handleJobCancel(w http.ResponseWriter, r *http.Request, jobID string) {
	confirm := r.URL.Query().Get("confirm") == "true"
	if err := h.jobs.Cancel(jobID, confirm); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})
}

func (h *Handler) handleJobsStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	filter := jobs.Filter{
		Kind:   jobs.Kind(r.URL.Query().Get("kind")),
		Status: jobs.Status(r.URL.Query().Get("status")),
	}
	list := h.jobs.List(filter)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset > 0 && offset < len(list) {
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}

	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleJobsCancelAll(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	confirm := r.URL.Query().Get("confirm") == "true"
	filter := jobs.Filter{Kind: jobs.Kind(r.URL.Query().Get("kind"))}

	cancelled, err := h.jobs.CancelAll(filter, confirm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

func (h *Handler) handleJobsCleanup(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	removed := h.jobs.Cleanup()
	h.writeJSON(w, http.StatusOK, map[string]int{"removed_count": removed})
}

// -----------------------------------------------------------------------
// GET /status
// -----------------------------------------------------------------------

type statusResponse struct {
	Records []router.CallRecord `json:"recent_calls"`
	Jobs    []*jobs.Job         `json:"jobs"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{
		Records: h.router.Records(),
		Jobs:    h.jobs.List(jobs.Filter{}),
	})
}

// -----------------------------------------------------------------------
// GET /models, GET /voices — inventory
// -----------------------------------------------------------------------

type modelEntry struct {
	BackendID string             `json:"backend_id"`
	Stats     *router.ModelStats `json:"stats,omitempty"`
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	stats := h.router.AllModelStats()
	entries := make([]modelEntry, 0, len(h.router.BackendIDsFor(backend.CapGenerateText)))
	for _, id := range h.router.BackendIDsFor(backend.CapGenerateText) {
		entry := modelEntry{BackendID: id}
		if s, ok := stats[id]; ok {
			entry.Stats = &s
		}
		entries = append(entries, entry)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"models": entries})
}

type voiceEntry struct {
	Name     string `json:"name"`
	SidecarOK bool  `json:"sidecar_ok"`
}

// handleVoices lists the voice model files under h.voiceDir, each of
// which must be accompanied by a "<name>.json" sidecar (spec.md §6 "File
// formats"); SidecarOK reports whether that pairing holds.
func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.voiceDir == "" {
		h.writeJSON(w, http.StatusOK, map[string]any{"voices": []voiceEntry{}})
		return
	}

	entries, err := os.ReadDir(h.voiceDir)
	if err != nil {
		h.writeError(w, core.Wrap("httpapi.handleVoices", core.KindInternal, "reading voice directory", err))
		return
	}

	seen := make(map[string]bool)
	var voices []voiceEntry
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if seen[name] {
			continue
		}
		seen[name] = true
		_, err := os.Stat(filepath.Join(h.voiceDir, name+".json"))
		voices = append(voices, voiceEntry{Name: name, SidecarOK: err == nil})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}
