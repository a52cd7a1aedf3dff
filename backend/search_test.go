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

func TestCleanSnippetStripsHTML(t *testing.T) {
	got := cleanSnippet("<p>Hello <b>world</b></p>")
	assert.Contains(t, got, "Hello")
	assert.NotContains(t, got, "<b>")
}

func TestCleanSnippetEmptyInputStaysEmpty(t *testing.T) {
	assert.Equal(t, "", cleanSnippet(""))
}

func TestHTTPSearchAdapterCapabilitySwitchesOnScholarly(t *testing.T) {
	web := NewHTTPSearchAdapter("search-web", "http://unused.invalid", false, time.Second)
	scholarly := NewHTTPSearchAdapter("search-scholarly", "http://unused.invalid", true, time.Second)

	assert.Equal(t, CapSearchWeb, web.Capability())
	assert.Equal(t, CapSearchScholarly, scholarly.Capability())
}

func TestHTTPSearchAdapterSearchWebRejectsEmptyQuery(t *testing.T) {
	adapter := NewHTTPSearchAdapter("search-web", "http://unused.invalid", false, time.Second)
	_, err := adapter.SearchWeb(context.Background(), "", 5, "", "")
	require.Error(t, err)
	assert.Equal(t, core.KindInputEmpty, core.KindOf(err))
}

func TestHTTPSearchAdapterSearchWebParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "go testing", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode([]searchResultWire{
			{Title: "Go Testing", URI: "https://go.dev/pkg/testing", Snippet: "<p>standard library</p>", Score: 0.9},
		})
	}))
	defer srv.Close()

	adapter := NewHTTPSearchAdapter("search-web", srv.URL, false, time.Second)
	results, err := adapter.SearchWeb(context.Background(), "go testing", 5, "", "")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Go Testing", results[0].Title)
	assert.Contains(t, results[0].Snippet, "standard library")
}
