// Package pipeline implements the Pipeline Orchestrator (spec.md §4.D): a
// conversational STT→LLM→TTS state machine over one session at a time,
// with cancellable playback and bounded session history. Grounded on
// itsneelabh-gomind's core/async_task.go progress/cancellation shape
// (narrowed to a single in-process session rather than a queued task)
// and on original_source/backup files/roverseer_api.py's interactive
// voice-turn loop (clarify → generate → speak → play).
package pipeline

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/core"
	"github.com/codemusic/roverseer-gateway/router"
)

// Stage is a Pipeline Session stage (spec.md §3); it only ever moves
// forward through this sequence, or to cancelled/failed.
type Stage string

const (
	StageReceiving Stage = "receiving"
	StageSTT       Stage = "stt"
	StageLLM       Stage = "llm"
	StageTTS       Stage = "tts"
	StagePlaying   Stage = "playing"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
	StageCancelled Stage = "cancelled"
)

var stageOrder = map[Stage]int{
	StageReceiving: 0,
	StageSTT:       1,
	StageLLM:       2,
	StageTTS:       3,
	StagePlaying:   4,
	StageDone:      5,
}

// Session is a Pipeline Session (spec.md §3).
type Session struct {
	ID               string
	StartedAt        time.Time
	Stage            Stage
	StageStartedAt    time.Time
	Transcript       string
	Reply            string
	AudioRef         string
	BackendUsedByStage map[Stage]string
	Cancelled        bool

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// setStage advances a session's stage, refusing to move backward through
// the normal sequence (spec.md §4.D invariant); cancelled/failed are
// terminal and always accepted since any stage can transition into them.
func (s *Session) setStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isTerminalStage(s.Stage) {
		return
	}
	if next, ok := stageOrder[stage]; ok {
		if cur, ok := stageOrder[s.Stage]; ok && next < cur {
			return
		}
	}
	s.Stage = stage
	s.StageStartedAt = time.Now()
}

// HistoryTurn is one exchange kept in a session's bounded history.
type HistoryTurn struct {
	User    string
	Reply   string
	ModelID string
}

// History is a bounded ring of HistoryTurn, oldest evicted at capacity
// (spec.md §4.D "History").
type History struct {
	mu      sync.Mutex
	turns   []HistoryTurn
	maxSize int
}

func NewHistory(maxSize int) *History {
	return &History{maxSize: maxSize}
}

func (h *History) Append(turn HistoryTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
	if len(h.turns) > h.maxSize {
		h.turns = h.turns[len(h.turns)-h.maxSize:]
	}
}

func (h *History) Snapshot() []HistoryTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Orchestrator runs conversational turns over sessions, dispatching
// transcribe_audio/generate_text/synthesize_speech through a Router.
type Orchestrator struct {
	router        *router.Router
	logger        core.ComponentAwareLogger
	systemPrompt  string
	historyLimit  int

	mu       sync.Mutex
	sessions map[string]*Session
	history  map[string]*History
}

type Option func(*Orchestrator)

func WithLogger(l core.ComponentAwareLogger) Option { return func(o *Orchestrator) { o.logger = l } }
func WithSystemPrompt(p string) Option              { return func(o *Orchestrator) { o.systemPrompt = p } }
func WithHistoryLimit(n int) Option                 { return func(o *Orchestrator) { o.historyLimit = n } }

func NewOrchestrator(r *router.Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:       r,
		logger:       &core.NoOpLogger{},
		historyLimit: 20,
		sessions:     make(map[string]*Session),
		history:      make(map[string]*History),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

const minTranscriptLen = 2

// TurnRequest carries the inputs for one conversational turn; exactly
// one of Audio or Text should be set.
type TurnRequest struct {
	SessionID string
	Audio     []byte
	FormatHint string
	Text      string
	ModelID   string
	VoiceID   string
}

// TurnResult is what a completed (or failed) turn yields back to the
// HTTP surface.
type TurnResult struct {
	Session *Session
	Audio   []byte
}

// Run executes one full conversational turn for req.SessionID,
// implementing the state diagram in spec.md §4.D.
func (o *Orchestrator) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	session, err := o.startSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	if err := o.runSTTOrText(ctx, session, req); err != nil {
		session.setStage(StageFailed)
		return &TurnResult{Session: session}, err
	}

	history := o.historyFor(req.SessionID)
	reply, err := o.runLLM(ctx, session, history, req.ModelID)
	if err != nil {
		session.setStage(StageFailed)
		return &TurnResult{Session: session}, err
	}

	audio, err := o.runTTS(ctx, session, reply, req.VoiceID)
	if err != nil {
		session.setStage(StageFailed)
		return &TurnResult{Session: session}, err
	}

	history.Append(HistoryTurn{User: session.Transcript, Reply: reply, ModelID: req.ModelID})

	session.setStage(StageDone)
	o.endSession(req.SessionID)

	return &TurnResult{Session: session, Audio: audio}, nil
}

func (o *Orchestrator) startSession(ctx context.Context, sessionID string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.sessions[sessionID]; ok {
		if !isTerminalStage(existing.Stage) {
			return nil, core.Wrap("pipeline.startSession", core.KindInputInvalid, sessionID, core.ErrSessionInUse)
		}
	}

	session := &Session{
		ID:                 sessionID,
		StartedAt:          time.Now(),
		Stage:              StageReceiving,
		StageStartedAt:     time.Now(),
		BackendUsedByStage: make(map[Stage]string),
	}
	o.sessions[sessionID] = session
	return session, nil
}

func (o *Orchestrator) endSession(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, sessionID)
}

func isTerminalStage(s Stage) bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

func (o *Orchestrator) historyFor(sessionID string) *History {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.history[sessionID]
	if !ok {
		h = NewHistory(o.historyLimit)
		o.history[sessionID] = h
	}
	return h
}

func (o *Orchestrator) runSTTOrText(ctx context.Context, session *Session, req TurnRequest) error {
	if len(req.Audio) == 0 {
		session.Transcript = req.Text
		if len(strings.TrimSpace(session.Transcript)) < minTranscriptLen {
			return core.New("pipeline.runSTTOrText", core.KindInputEmpty, "transcript too short")
		}
		return nil
	}

	session.setStage(StageSTT)
	var transcript string
	backendID, err := o.router.Dispatch(ctx, backend.CapTranscribeAudio, len(req.Audio), func(ctx context.Context, a backend.Adapter) (int, error) {
		transcriber, ok := a.(backend.Transcriber)
		if !ok {
			return 0, core.New("pipeline.runSTTOrText", core.KindBackendProtocol, "adapter is not a Transcriber")
		}
		text, err := transcriber.TranscribeAudio(ctx, req.Audio, req.FormatHint)
		transcript = text
		return len(text), err
	})
	if err != nil {
		return err
	}
	session.BackendUsedByStage[StageSTT] = backendID

	if len(strings.TrimSpace(transcript)) < minTranscriptLen {
		return core.New("pipeline.runSTTOrText", core.KindInputEmpty, "empty transcript")
	}
	session.Transcript = transcript
	return nil
}

func (o *Orchestrator) runLLM(ctx context.Context, session *Session, history *History, modelID string) (string, error) {
	session.setStage(StageLLM)

	prompt := buildPrompt(history.Snapshot(), session.Transcript)
	var reply string
	backendID, err := o.router.Dispatch(ctx, backend.CapGenerateText, len(prompt), func(ctx context.Context, a backend.Adapter) (int, error) {
		generator, ok := a.(backend.TextGenerator)
		if !ok {
			return 0, core.New("pipeline.runLLM", core.KindBackendProtocol, "adapter is not a TextGenerator")
		}
		started := time.Now()
		text, err := generator.GenerateText(ctx, prompt, backend.GenerateParams{Model: modelID, System: o.systemPrompt})
		if err == nil {
			o.router.RecordModelRun(modelID, time.Since(started))
		}
		reply = text
		return len(text), err
	})
	if err != nil {
		return "", err
	}
	session.BackendUsedByStage[StageLLM] = backendID
	session.Reply = reply
	return reply, nil
}

func buildPrompt(history []HistoryTurn, transcript string) string {
	var sb strings.Builder
	for _, turn := range history {
		sb.WriteString("User: ")
		sb.WriteString(turn.User)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(turn.Reply)
		sb.WriteString("\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(transcript)
	return sb.String()
}

func (o *Orchestrator) runTTS(ctx context.Context, session *Session, reply, voiceID string) ([]byte, error) {
	session.setStage(StageTTS)

	sanitized := Sanitize(reply)
	var audio []byte
	backendID, err := o.router.Dispatch(ctx, backend.CapSynthesizeSpeech, len(sanitized), func(ctx context.Context, a backend.Adapter) (int, error) {
		synth, ok := a.(backend.Synthesizer)
		if !ok {
			return 0, core.New("pipeline.runTTS", core.KindBackendProtocol, "adapter is not a Synthesizer")
		}
		data, err := synth.SynthesizeSpeech(ctx, sanitized, backend.SynthesisParams{VoiceID: voiceID})
		audio = data
		return len(data), err
	})
	if err != nil {
		return nil, err
	}
	session.BackendUsedByStage[StageTTS] = backendID
	return audio, nil
}

// Interrupt marks an active session cancelled: it sets Cancelled, moves
// the stage to cancelled, and calls the session's cancelFunc when one is
// set. Run does not set cancelFunc or check Cancelled between stages, so
// a turn already in progress still finishes its remaining backend calls.
// It returns false when no session with that id is registered.
func (o *Orchestrator) Interrupt(sessionID string) bool {
	o.mu.Lock()
	session, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return false
	}

	session.mu.Lock()
	session.Cancelled = true
	if session.cancelFunc != nil {
		session.cancelFunc()
	}
	session.mu.Unlock()
	session.setStage(StageCancelled)
	return true
}

var (
	markdownHeader = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	codeFence      = regexp.MustCompile("```[a-zA-Z0-9]*")
	backtick       = regexp.MustCompile("`")
	repeatedPunct  = regexp.MustCompile(`([.!?,;:])\1{1,}`)
	repeatedSpace  = regexp.MustCompile(`\s{2,}`)
)

var symbolReplacements = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`->|→`), " rightarrow "},
	{regexp.MustCompile(`<-|←`), " leftarrow "},
	{regexp.MustCompile(`§`), " section "},
	{regexp.MustCompile(`&`), " and "},
	{regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{2600}-\x{27BF}]`), ""},
}

// Sanitize prepares reply text for speech synthesis (spec.md §4.D
// "Sanitization policy"). It is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	out := markdownHeader.ReplaceAllString(text, "")
	out = codeFence.ReplaceAllString(out, "")
	out = backtick.ReplaceAllString(out, "")
	for _, sym := range symbolReplacements {
		out = sym.pattern.ReplaceAllString(out, sym.replace)
	}
	out = repeatedPunct.ReplaceAllString(out, "$1")
	out = repeatedSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
