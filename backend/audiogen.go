package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
)

// HTTPAudioGenAdapter implements AudioGenerator against a remote
// text-to-audio synthesis service (ambient sound / music generation, as
// distinct from speech synthesis), returning whatever container bytes
// the backend hands back unmodified — callers treat generate_audio
// output as opaque, unlike synthesize_speech's guaranteed WAV contract.
type HTTPAudioGenAdapter struct {
	id      string
	baseURL string
	client  *http.Client
}

func NewHTTPAudioGenAdapter(id, baseURL string, timeout time.Duration) *HTTPAudioGenAdapter {
	return &HTTPAudioGenAdapter{id: id, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

func (a *HTTPAudioGenAdapter) ID() string             { return a.id }
func (a *HTTPAudioGenAdapter) Capability() Capability { return CapGenerateAudio }

type audioGenRequest struct {
	Prompt      string  `json:"prompt"`
	DurationSec float64 `json:"duration_seconds"`
	Style       string  `json:"style,omitempty"`
}

func (a *HTTPAudioGenAdapter) GenerateAudio(ctx context.Context, prompt string, duration time.Duration, style string) ([]byte, error) {
	if prompt == "" {
		return nil, core.New("backend.audiogen.GenerateAudio", core.KindInputEmpty, "empty prompt")
	}

	reqBody, err := json.Marshal(audioGenRequest{
		Prompt:      prompt,
		DurationSec: duration.Seconds(),
		Style:       style,
	})
	if err != nil {
		return nil, core.Wrap("backend.audiogen.GenerateAudio", core.KindInternal, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, core.Wrap("backend.audiogen.GenerateAudio", core.KindInternal, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyHTTPTransportError("backend.audiogen", a.id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, core.New("backend.audiogen.GenerateAudio", core.KindBackendUnavailable, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, core.New("backend.audiogen.GenerateAudio", core.KindBackendRejected, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	}

	data := make([]byte, 0, 1<<16)
	buf := bytes.NewBuffer(data)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, core.Wrap("backend.audiogen.GenerateAudio", core.KindBackendProtocol, a.id+": reading response body", err)
	}
	if buf.Len() == 0 {
		return nil, core.New("backend.audiogen.GenerateAudio", core.KindBackendProtocol, a.id+": empty audio payload")
	}
	return buf.Bytes(), nil
}
