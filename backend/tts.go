package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// HTTPTTSAdapter synthesizes speech through a remote TTS service that
// returns raw PCM samples, then encodes them into a WAV PCM 16-bit mono
// artifact itself so every backend yields the same container regardless
// of what the backend natively emits (spec.md §6 "the gateway does not
// transcode" refers to *accepted* audio; TTS *output* is always WAV).
type HTTPTTSAdapter struct {
	id         string
	baseURL    string
	sampleRate int
	client     *http.Client
}

func NewHTTPTTSAdapter(id, baseURL string, sampleRate int, timeout time.Duration) *HTTPTTSAdapter {
	return &HTTPTTSAdapter{id: id, baseURL: baseURL, sampleRate: sampleRate, client: &http.Client{Timeout: timeout}}
}

func (a *HTTPTTSAdapter) ID() string             { return a.id }
func (a *HTTPTTSAdapter) Capability() Capability { return CapSynthesizeSpeech }

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type ttsResponse struct {
	Samples []int `json:"samples"` // signed 16-bit PCM, mono, interleaved
}

func (a *HTTPTTSAdapter) SynthesizeSpeech(ctx context.Context, text string, params SynthesisParams) ([]byte, error) {
	if text == "" {
		return nil, core.New("backend.tts.SynthesizeSpeech", core.KindInputEmpty, "empty text")
	}

	reqBody, err := json.Marshal(ttsRequest{Text: text, VoiceID: params.VoiceID})
	if err != nil {
		return nil, core.Wrap("backend.tts.SynthesizeSpeech", core.KindInternal, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/synthesize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, core.Wrap("backend.tts.SynthesizeSpeech", core.KindInternal, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyHTTPTransportError("backend.tts", a.id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.New("backend.tts.SynthesizeSpeech", core.KindVoiceNotFound, a.id+": voice not found: "+params.VoiceID)
	case resp.StatusCode >= 500:
		return nil, core.New("backend.tts.SynthesizeSpeech", core.KindBackendUnavailable, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, core.New("backend.tts.SynthesizeSpeech", core.KindBackendRejected, fmt.Sprintf("%s: status %d", a.id, resp.StatusCode))
	}

	var out ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.Wrap("backend.tts.SynthesizeSpeech", core.KindBackendProtocol, a.id+": undecodable response", err)
	}
	if len(out.Samples) == 0 {
		return nil, core.New("backend.tts.SynthesizeSpeech", core.KindBackendProtocol, a.id+": empty sample buffer")
	}

	return encodeWAV(out.Samples, a.sampleRate)
}

// encodeWAV writes mono 16-bit PCM samples into a WAV container using
// go-audio/wav, matching spec.md §6's "PCM 16-bit, mono, device sample
// rate" artifact contract.
func encodeWAV(samples []int, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	enc := wav.NewEncoder(&buf, sampleRate, 16, 1, 1)

	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buffer); err != nil {
		return nil, core.Wrap("backend.encodeWAV", core.KindInternal, "writing PCM frames", err)
	}
	if err := enc.Close(); err != nil {
		return nil, core.Wrap("backend.encodeWAV", core.KindInternal, "closing WAV encoder", err)
	}
	return buf.Bytes(), nil
}
