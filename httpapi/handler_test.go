package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/jobs"
	"github.com/codemusic/roverseer-gateway/pipeline"
	"github.com/codemusic/roverseer-gateway/research"
	"github.com/codemusic/roverseer-gateway/router"
	"github.com/codemusic/roverseer-gateway/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct{ response string }

func (f *fakeGenerator) ID() string                     { return "gen" }
func (f *fakeGenerator) Capability() backend.Capability { return backend.CapGenerateText }
func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string, params backend.GenerateParams) (string, error) {
	return f.response, nil
}

type fakeSynth struct{}

func (f *fakeSynth) ID() string                     { return "tts" }
func (f *fakeSynth) Capability() backend.Capability { return backend.CapSynthesizeSpeech }
func (f *fakeSynth) SynthesizeSpeech(ctx context.Context, text string, params backend.SynthesisParams) ([]byte, error) {
	return []byte("RIFF-fake-wav"), nil
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) ID() string                     { return "stt" }
func (f *fakeTranscriber) Capability() backend.Capability { return backend.CapTranscribeAudio }
func (f *fakeTranscriber) TranscribeAudio(ctx context.Context, audio []byte, formatHint string) (string, error) {
	return f.text, nil
}

type fakeWebSearcher struct{}

func (f *fakeWebSearcher) ID() string                     { return "search" }
func (f *fakeWebSearcher) Capability() backend.Capability { return backend.CapSearchWeb }
func (f *fakeWebSearcher) SearchWeb(ctx context.Context, query string, maxResults int, region, safesearch string) ([]backend.SearchResult, error) {
	return []backend.SearchResult{{Title: "T", URI: "https://x", Snippet: "s"}}, nil
}

func newTestHandler(t *testing.T, extraOpts ...Option) *Handler {
	t.Helper()
	r := router.New()
	r.Register("gen", &fakeGenerator{response: "ok response"})
	r.SetPolicy(backend.CapGenerateText, router.Policy{BackendIDs: []string{"gen"}})
	r.Register("tts", &fakeSynth{})
	r.SetPolicy(backend.CapSynthesizeSpeech, router.Policy{BackendIDs: []string{"tts"}})
	r.Register("stt", &fakeTranscriber{text: "hello world"})
	r.SetPolicy(backend.CapTranscribeAudio, router.Policy{BackendIDs: []string{"stt"}})
	r.Register("search", &fakeWebSearcher{})
	r.SetPolicy(backend.CapSearchWeb, router.Policy{BackendIDs: []string{"search"}})

	p := pipeline.NewOrchestrator(r)
	j := jobs.NewManager()
	e := workflow.NewEngine()
	rw := research.New(r)

	opts := append([]Option{
		WithModelDir(t.TempDir()),
		WithVoiceDir(t.TempDir()),
	}, extraOpts...)
	h := New(r, p, j, e, rw, opts...)
	return h
}

func TestHandleLLMReturnsBackendResponse(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]string{"prompt": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/llm", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.handleLLM(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp llmResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok response", resp.Response)
	assert.Equal(t, "gen", resp.BackendUsed)
}

func TestHandleLLMRejectsEmptyPrompt(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]string{"prompt": " "})
	req := httptest.NewRequest(http.MethodPost, "/llm", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.handleLLM(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "InputEmpty", resp.ErrorKind)
}

func TestHandleLLMRejectsWrongMethod(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/llm", nil)
	rec := httptest.NewRecorder()

	h.handleLLM(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleTTSReturnsAudioWithHeaders(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]string{"text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/tts", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.handleTTS(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tts", rec.Header().Get("X-Backend-Used"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestHandleSTTReturnsTranscript(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(map[string]any{"audio": []byte("fake-wav-bytes")})
	req := httptest.NewRequest(http.MethodPost, "/stt", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.handleSTT(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sttResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello world", resp.Transcript)
}

func TestHandleChatTextOnlyTurnReturnsBackendUsed(t *testing.T) {
	h := newTestHandler(t)
	body, _ := json.Marshal(chatRequest{SessionID: "s1", Text: "tell me something"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.handleChat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gen", resp.BackendUsedPerStage["llm"])
	assert.Equal(t, "tts", resp.BackendUsedPerStage["tts"])
}

func TestHandleJobsSubmitAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake model bytes"))
	}))
	defer srv.Close()
	h := newTestHandler(t, WithModelRegistryURL(srv.URL))

	body, _ := json.Marshal(map[string]string{"name": "llama-7b", "model_id": "llama-7b"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/download_model", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleJobsDispatch(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	assert.NotEmpty(t, submitResp["job_id"])

	statusReq := httptest.NewRequest(http.MethodGet, "/jobs/status", nil)
	statusRec := httptest.NewRecorder()
	h.handleJobsStatus(statusRec, statusReq)
	assert.Equal(t, http.StatusOK, statusRec.Code)
}

func TestHandleJobSubmitRejectsMissingModelURLForVoiceDownload(t *testing.T) {
	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]string{"name": "voice-a"})
	req := httptest.NewRequest(http.MethodPost, "/jobs/download_voice", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleJobsDispatch(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleJobsCancelRequiresConfirm(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("first-chunk"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
	}))
	defer srv.Close()
	h := newTestHandler(t)

	body, _ := json.Marshal(map[string]string{"name": "voice-a", "model_url": srv.URL})
	submitReq := httptest.NewRequest(http.MethodPost, "/jobs/download_voice", bytes.NewReader(body))
	submitRec := httptest.NewRecorder()
	h.handleJobsDispatch(submitRec, submitReq)
	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))

	cancelReq := httptest.NewRequest(http.MethodDelete, "/jobs/"+submitResp["job_id"], nil)
	cancelRec := httptest.NewRecorder()
	h.handleJobsDispatch(cancelRec, cancelReq)

	assert.Equal(t, http.StatusBadRequest, cancelRec.Code)
	close(block)
}

// TestHandleJobCancelWhileDownloadingLeavesNoArtifact exercises spec.md
// §8 scenario S5: once a download job has started writing its temp file,
// DELETE .../{id}?confirm=true must cancel it and leave no files under
// the model's output path. The test server streams without a
// Content-Length, so the job reports no intermediate progress_percent.
func TestHandleJobCancelWhileDownloadingLeavesNoArtifact(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1<<20))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-block
		w.Write(make([]byte, 1<<20))
	}))
	defer srv.Close()

	modelDir := t.TempDir()
	h := newTestHandler(t, WithModelDir(modelDir), WithModelRegistryURL(srv.URL))

	body, _ := json.Marshal(map[string]string{"name": "X", "model_id": "X"})
	submitReq := httptest.NewRequest(http.MethodPost, "/jobs/download_model", bytes.NewReader(body))
	submitRec := httptest.NewRecorder()
	h.handleJobsDispatch(submitRec, submitReq)
	require.Equal(t, http.StatusAccepted, submitRec.Code)

	var submitResp map[string]string
	require.NoError(t, json.Unmarshal(submitRec.Body.Bytes(), &submitResp))
	jobID := submitResp["job_id"]

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(modelDir)
		require.NoError(t, err)
		if len(entries) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancelReq := httptest.NewRequest(http.MethodDelete, "/jobs/"+jobID+"?confirm=true", nil)
	cancelRec := httptest.NewRecorder()
	h.handleJobsDispatch(cancelRec, cancelReq)
	require.Equal(t, http.StatusOK, cancelRec.Code)
	close(block)

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statusReq := httptest.NewRequest(http.MethodGet, "/jobs/status?status=cancelled", nil)
		statusRec := httptest.NewRecorder()
		h.handleJobsStatus(statusRec, statusReq)
		var statuses []map[string]any
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statuses))
		if len(statuses) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	entries, err := os.ReadDir(modelDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no files must remain under the model output path after cancel")
}

func TestHandleResearchReturnsDocumentAndSummary(t *testing.T) {
	h := newTestHandler(t)

	body, _ := json.Marshal(researchRequest{Query: "quick fact"})
	req := httptest.NewRequest(http.MethodPost, "/workflow/research", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.handleResearch(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp researchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.ExecutionSummary.Status)
	assert.NotEmpty(t, resp.ExecutionSummary.StepRecords)
}

func TestHandleWorkflowControlStatusUnknownID(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/workflow/nonexistent/status", nil)
	rec := httptest.NewRecorder()
	h.handleWorkflowControl(rec, req)

	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestStatusForKindMapsToHTTPCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusForKind("VoiceNotFound"))
	assert.Equal(t, http.StatusBadRequest, statusForKind("InputInvalid"))
	assert.Equal(t, http.StatusServiceUnavailable, statusForKind("BackendUnavailable"))
	assert.Equal(t, http.StatusInternalServerError, statusForKind("Internal"))
}

func TestPathSegmentsSplitsNonEmptyParts(t *testing.T) {
	assert.Equal(t, []string{"workflow", "abc", "pause"}, pathSegments("/workflow/abc/pause"))
	assert.Nil(t, pathSegments("/"))
}
