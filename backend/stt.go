package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// HTTPSTTAdapter transcribes audio through a remote STT service speaking
// a simple multipart/form-data contract (model_id + file in, {text} out).
// It sniffs the container before sending so an unrecognized upload fails
// fast with BackendRejected instead of round-tripping to the backend
// (spec.md §4.A transcribe_audio).
type HTTPSTTAdapter struct {
	id      string
	baseURL string
	client  *http.Client
}

func NewHTTPSTTAdapter(id, baseURL string, timeout time.Duration) *HTTPSTTAdapter {
	return &HTTPSTTAdapter{id: id, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (a *HTTPSTTAdapter) ID() string             { return a.id }
func (a *HTTPSTTAdapter) Capability() Capability { return CapTranscribeAudio }

func (a *HTTPSTTAdapter) TranscribeAudio(ctx context.Context, audio []byte, formatHint string) (string, error) {
	container, err := sniffAudioContainer(audio, formatHint)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio."+container)
	if err != nil {
		return "", core.Wrap("backend.stt.TranscribeAudio", core.KindInternal, "building multipart body", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", core.Wrap("backend.stt.TranscribeAudio", core.KindInternal, "writing audio part", err)
	}
	if err := mw.Close(); err != nil {
		return "", core.Wrap("backend.stt.TranscribeAudio", core.KindInternal, "closing multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transcribe", &body)
	if err != nil {
		return "", core.Wrap("backend.stt.TranscribeAudio", core.KindInternal, "building request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return "", classifyHTTPTransportError("backend.stt", a.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", core.New("backend.stt.TranscribeAudio", core.KindBackendUnavailable, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", core.New("backend.stt.TranscribeAudio", core.KindBackendRejected, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.Wrap("backend.stt.TranscribeAudio", core.KindBackendProtocol, a.id+": undecodable response", err)
	}
	return out.Text, nil
}

// sniffAudioContainer validates that audio is one of the handful of
// containers this gateway accepts, independent of the client-declared
// formatHint (spec.md §4.A: "if unknown, fails with BackendRejected").
func sniffAudioContainer(audio []byte, formatHint string) (string, error) {
	if len(audio) == 0 {
		return "", core.New("backend.sniffAudioContainer", core.KindInputEmpty, "empty audio payload")
	}

	if _, err := wav.NewDecoder(bytes.NewReader(audio)).Duration(); err == nil {
		return "wav", nil
	}
	if _, err := mp3.NewDecoder(bytes.NewReader(audio)); err == nil {
		return "mp3", nil
	}
	if s, err := flac.New(bytes.NewReader(audio)); err == nil {
		_ = s.Close()
		return "flac", nil
	}

	switch formatHint {
	case "wav", "mp3", "flac":
		// Client declared a known container but the bytes did not
		// validate as one; still reject rather than guess.
		return "", core.New("backend.sniffAudioContainer", core.KindBackendRejected,
			"declared format "+formatHint+" did not validate against payload")
	default:
		return "", core.New("backend.sniffAudioContainer", core.KindBackendRejected,
			"unrecognized audio container")
	}
}

func classifyHTTPTransportError(op, id string, err error) error {
	return core.Wrap(op, core.KindBackendUnavailable, id+": transport error", err)
}
