package backend

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWAV(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := wav.NewEncoder(&buf, 8000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           []int{0, 100, -100, 200},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func TestSniffAudioContainerEmptyPayload(t *testing.T) {
	_, err := sniffAudioContainer(nil, "wav")
	require.Error(t, err)
	assert.Equal(t, core.KindInputEmpty, core.KindOf(err))
}

func TestSniffAudioContainerRecognizesWAV(t *testing.T) {
	container, err := sniffAudioContainer(sampleWAV(t), "wav")
	require.NoError(t, err)
	assert.Equal(t, "wav", container)
}

func TestSniffAudioContainerRejectsUnrecognizedBytes(t *testing.T) {
	_, err := sniffAudioContainer([]byte("not audio at all"), "")
	require.Error(t, err)
	assert.Equal(t, core.KindBackendRejected, core.KindOf(err))
}

func TestHTTPSTTAdapterTranscribesAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	adapter := NewHTTPSTTAdapter("stt-1", srv.URL, time.Second)
	text, err := adapter.TranscribeAudio(context.Background(), sampleWAV(t), "wav")

	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "stt-1", adapter.ID())
	assert.Equal(t, CapTranscribeAudio, adapter.Capability())
}

func TestHTTPSTTAdapterRejectsUnrecognizedAudio(t *testing.T) {
	adapter := NewHTTPSTTAdapter("stt-1", "http://unused.invalid", time.Second)
	_, err := adapter.TranscribeAudio(context.Background(), []byte("garbage"), "")
	require.Error(t, err)
	assert.Equal(t, core.KindBackendRejected, core.KindOf(err))
}

func TestHTTPSTTAdapterPropagatesServerErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewHTTPSTTAdapter("stt-1", srv.URL, time.Second)
	_, err := adapter.TranscribeAudio(context.Background(), sampleWAV(t), "wav")

	require.Error(t, err)
	assert.Equal(t, core.KindBackendUnavailable, core.KindOf(err))
}
