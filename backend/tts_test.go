package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVProducesRIFFContainer(t *testing.T) {
	out, err := encodeWAV([]int{0, 1000, -1000, 500}, 22050)
	require.NoError(t, err)
	assert.True(t, len(out) > 44, "WAV output should be larger than a bare header")
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
}

func TestSynthesizeSpeechRejectsEmptyText(t *testing.T) {
	adapter := NewHTTPTTSAdapter("tts-1", "http://unused.invalid", 22050, time.Second)
	_, err := adapter.SynthesizeSpeech(context.Background(), "", SynthesisParams{})
	require.Error(t, err)
	assert.Equal(t, core.KindInputEmpty, core.KindOf(err))
}

func TestSynthesizeSpeechEncodesBackendSamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ttsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req.Text)
		json.NewEncoder(w).Encode(ttsResponse{Samples: []int{0, 10, -10}})
	}))
	defer srv.Close()

	adapter := NewHTTPTTSAdapter("tts-1", srv.URL, 16000, time.Second)
	out, err := adapter.SynthesizeSpeech(context.Background(), "hello", SynthesisParams{VoiceID: "v1"})

	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(out[0:4]))
}

func TestSynthesizeSpeechVoiceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewHTTPTTSAdapter("tts-1", srv.URL, 16000, time.Second)
	_, err := adapter.SynthesizeSpeech(context.Background(), "hello", SynthesisParams{VoiceID: "missing"})

	require.Error(t, err)
	assert.Equal(t, core.KindVoiceNotFound, core.KindOf(err))
}
