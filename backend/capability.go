// Package backend defines the narrow per-capability adapter interfaces
// (spec.md §4.A) and ships one concrete adapter per external inference
// service. The Backend Router (package router) is the only caller.
package backend

import (
	"context"
	"time"
)

// Capability tags what an adapter can do.
type Capability string

const (
	CapGenerateText      Capability = "generate_text"
	CapTranscribeAudio   Capability = "transcribe_audio"
	CapSynthesizeSpeech  Capability = "synthesize_speech"
	CapSearchWeb         Capability = "search_web"
	CapSearchScholarly   Capability = "search_scholarly"
	CapGenerateAudio     Capability = "generate_audio"
)

// GenerateParams bounds a generate_text call.
type GenerateParams struct {
	Model       string
	System      string
	MaxTokens   int
	Temperature float32
}

// TextGenerator is the generate_text adapter contract.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, params GenerateParams) (string, error)
}

// Transcriber is the transcribe_audio adapter contract. formatHint is the
// client-declared container (e.g. "wav", "mp3"); a payload whose
// container the adapter cannot recognize fails with BackendRejected,
// whatever the hint says.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, formatHint string) (string, error)
}

// SynthesisParams bounds a synthesize_speech call.
type SynthesisParams struct {
	VoiceID string
}

// Synthesizer is the synthesize_speech adapter contract; it returns WAV
// PCM 16-bit mono bytes (spec.md §6 "File formats").
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string, params SynthesisParams) ([]byte, error)
}

// SearchResult is one hit from search_web/search_scholarly.
type SearchResult struct {
	Title   string  `json:"title"`
	URI     string  `json:"uri"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// WebSearcher is the search_web adapter contract.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string, maxResults int, region, safesearch string) ([]SearchResult, error)
}

// ScholarlySearcher is the search_scholarly adapter contract, modeled
// independently from WebSearcher per SPEC_FULL.md's Open Question
// decision (search_scholarly is its own capability, not a flavor of
// search_web).
type ScholarlySearcher interface {
	SearchScholarly(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// AudioGenerator is the generate_audio adapter contract (non-speech audio,
// e.g. ambient tones or sound effects synthesis).
type AudioGenerator interface {
	GenerateAudio(ctx context.Context, prompt string, duration time.Duration, style string) ([]byte, error)
}

// Adapter is the union every concrete backend registers under. Callers of
// router.Dispatch reach the single-capability method they need through a
// type assertion on the adapter handed to their call function.
type Adapter interface {
	ID() string
	Capability() Capability
}
