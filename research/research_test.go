package research

import (
	"context"
	"testing"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/router"
	"github.com/codemusic/roverseer-gateway/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	id       string
	response string
}

func (f *fakeGenerator) ID() string                     { return f.id }
func (f *fakeGenerator) Capability() backend.Capability { return backend.CapGenerateText }
func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string, params backend.GenerateParams) (string, error) {
	return f.response, nil
}

type fakeWebSearcher struct{ id string }

func (f *fakeWebSearcher) ID() string                     { return f.id }
func (f *fakeWebSearcher) Capability() backend.Capability { return backend.CapSearchWeb }
func (f *fakeWebSearcher) SearchWeb(ctx context.Context, query string, maxResults int, region, safesearch string) ([]backend.SearchResult, error) {
	return []backend.SearchResult{
		{Title: "Result One", URI: "https://example.com/1", Snippet: "first snippet"},
		{Title: "Result Two", URI: "https://example.com/2", Snippet: "second snippet"},
	}, nil
}

func newTestRouter(genResponse string) *router.Router {
	r := router.New()
	r.Register("gen-primary", &fakeGenerator{id: "gen-primary", response: genResponse})
	r.SetPolicy(backend.CapGenerateText, router.Policy{BackendIDs: []string{"gen-primary"}, FallbackEnabled: false})
	r.Register("search-primary", &fakeWebSearcher{id: "search-primary"})
	r.SetPolicy(backend.CapSearchWeb, router.Policy{BackendIDs: []string{"search-primary"}, FallbackEnabled: false})
	return r
}

func TestDefinitionHasSixStepsInOrder(t *testing.T) {
	w := New(newTestRouter("ignored"))
	def := w.Definition()
	require.NoError(t, def.Validate())
	require.Len(t, def.Steps, 6)

	want := []string{"clarify", "search", "synthesize", "structure", "write", "finalize"}
	for i, label := range want {
		assert.Equal(t, label, def.Steps[i].Label)
	}
}

func TestClarifySkipConditionSkipsShortUnambiguousQuery(t *testing.T) {
	w := New(newTestRouter("ignored"))
	wfCtx := workflow.NewContext()
	wfCtx.Set("research:query", "weather in paris")

	skip, reason := w.clarifySkipCondition(wfCtx)
	assert.True(t, skip)
	assert.NotEmpty(t, reason)
}

func TestClarifySkipConditionDoesNotSkipLoadedTerms(t *testing.T) {
	w := New(newTestRouter("ignored"))
	wfCtx := workflow.NewContext()
	wfCtx.Set("research:query", "trauma support")

	skip, _ := w.clarifySkipCondition(wfCtx)
	assert.False(t, skip)
}

func TestClarifySkipConditionDoesNotSkipLongQuery(t *testing.T) {
	w := New(newTestRouter("ignored"))
	wfCtx := workflow.NewContext()
	wfCtx.Set("research:query", "what are the long term economic effects of renewable energy subsidies on rural communities")

	skip, _ := w.clarifySkipCondition(wfCtx)
	assert.False(t, skip)
}

func TestParseOutlineSplitsHeadingsAndPrompts(t *testing.T) {
	outline := "Background: history | context\nAnalysis: data | methodology\n"
	sections := parseOutline(outline)
	require.Len(t, sections, 2)
	assert.Equal(t, "Background", sections[0].Heading)
	assert.Equal(t, []string{"history", "context"}, sections[0].Prompts)
	assert.Equal(t, "Analysis", sections[1].Heading)
}

func TestParseOutlineFallsBackToSingleSectionWhenUnparseable(t *testing.T) {
	sections := parseOutline("   \n")
	require.Len(t, sections, 1)
	assert.Equal(t, "Overview", sections[0].Heading)
}

func TestRunFullWorkflowProducesDocumentWithReferences(t *testing.T) {
	w := New(newTestRouter("Section: point one | point two"))
	e := workflow.NewEngine()

	exec, err := e.Run(context.Background(), w.Definition(), "quick fact check")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionCompleted, exec.Status)

	last := exec.StepRecords[len(exec.StepRecords)-1]
	assert.Equal(t, "finalize", last.Label)
	assert.Equal(t, workflow.RecordSuccess, last.Status)

	doc, ok := exec.Output.(Document)
	require.True(t, ok)
	assert.Len(t, doc.References, 2)
	assert.Contains(t, doc.Text, "## References")
	assert.Contains(t, doc.Text, "https://example.com/1")
}

func TestSearchStoresResultsInWorkflowContext(t *testing.T) {
	w := New(newTestRouter("ignored"))
	wfCtx := workflow.NewContext()

	out, err := w.search(context.Background(), "test query", wfCtx)
	require.NoError(t, err)

	results, ok := out.([]backend.SearchResult)
	require.True(t, ok)
	assert.Len(t, results, 2)

	stored, ok := wfCtx.Get(ctxKeySearchResults)
	require.True(t, ok)
	assert.Equal(t, results, stored)
}

func TestBuildSearchDocumentFormatsEachResult(t *testing.T) {
	doc := buildSearchDocument([]backend.SearchResult{
		{Title: "T", URI: "https://x", Snippet: "s"},
	})
	assert.Contains(t, doc, "T")
	assert.Contains(t, doc, "https://x")
	assert.Contains(t, doc, "s")
}
