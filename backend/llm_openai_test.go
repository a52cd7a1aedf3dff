package backend

import (
	"errors"
	"testing"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/stretchr/testify/assert"
)

func TestContainsAnyIsCaseInsensitive(t *testing.T) {
	assert.True(t, containsAny("Rate Limit Exceeded", "rate_limit"))
	assert.False(t, containsAny("all good", "rate_limit"))
}

func TestClassifyOpenAIErrorMapsKnownShapes(t *testing.T) {
	cases := []struct {
		msg  string
		kind core.Kind
	}{
		{"401 invalid_api_key", core.KindBackendUnavailable},
		{"429 too many requests, rate_limit", core.KindBackendUnavailable},
		{"400 invalid_request: context_length exceeded", core.KindBackendRejected},
		{"context deadline exceeded", core.KindBackendTimeout},
		{"dial tcp: connection refused", core.KindBackendUnavailable},
		{"some unexpected SDK panic string", core.KindBackendProtocol},
	}

	for _, tc := range cases {
		err := classifyOpenAIError("llm-0", errors.New(tc.msg))
		assert.Equal(t, tc.kind, core.KindOf(err), tc.msg)
	}
}

func TestNewOpenAIAdapterSetsIdentity(t *testing.T) {
	adapter := NewOpenAIAdapter("llm-0", "", "key", "gpt-4o-mini")
	assert.Equal(t, "llm-0", adapter.ID())
	assert.Equal(t, CapGenerateText, adapter.Capability())
}
