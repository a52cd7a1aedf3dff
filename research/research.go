// Package research wires the generic Workflow Engine into the concrete
// Research Workflow instance (spec.md §4.F): clarify, search, synthesize,
// structure, write, finalize. Grounded on
// original_source/api_silicon_server/workflows/research_workflow.py's
// build_research_workflow step sequence and tools/{clarify,search,
// sections}.py, reworked from the original's ProtoConsciousness/CBT
// clarification into the spec's plain word-count + loaded-terms
// heuristic, and assembled with yuin/goldmark rather than the hand-rolled
// text formatting tools/sections.py used.
package research

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/codemusic/roverseer-gateway/backend"
	"github.com/codemusic/roverseer-gateway/router"
	"github.com/codemusic/roverseer-gateway/workflow"
	"github.com/yuin/goldmark"
)

// loadedTerms mirrors the original's high_sensitivity indicator list
// (tools/clarify.py detect_research_complexity); a match disqualifies
// the clarify step from being skipped regardless of word count.
var loadedTerms = []string{
	"trauma", "abuse", "violence", "suicide", "mental health", "therapy",
	"controversial", "political", "religious", "ethical dilemma",
}

const clarifySkipWordThreshold = 10

func hasLoadedTerm(query string) bool {
	lower := strings.ToLower(query)
	for _, term := range loadedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Section is one entry of the Structure step's output.
type Section struct {
	Heading string
	Prompts []string
	Body    string
}

// Document is the finalize step's output: the assembled markdown text
// plus the search results its References section lists.
type Document struct {
	Text       string
	References []backend.SearchResult
}

// Workflow builds the 6-step research Definition against a Router, with
// optional scholarly search and a target length hint for the Write step
// (original_source's "summary_target_length" context parameter).
type Workflow struct {
	router              *router.Router
	clarifyModel        string
	synthesisModel      string
	useScholarlySearch  bool
	maxSearchResults    int
	summaryTargetLength string
}

type Option func(*Workflow)

func WithClarifyModel(m string) Option       { return func(w *Workflow) { w.clarifyModel = m } }
func WithSynthesisModel(m string) Option     { return func(w *Workflow) { w.synthesisModel = m } }
func WithScholarlySearch(enabled bool) Option { return func(w *Workflow) { w.useScholarlySearch = enabled } }
func WithMaxSearchResults(n int) Option      { return func(w *Workflow) { w.maxSearchResults = n } }
func WithSummaryTargetLength(s string) Option {
	return func(w *Workflow) { w.summaryTargetLength = s }
}

func New(r *router.Router, opts ...Option) *Workflow {
	w := &Workflow{
		router:              r,
		maxSearchResults:    8,
		summaryTargetLength: "comprehensive",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// searchResults is threaded through workflow.Context rather than the
// step input/output chain because Finalize needs step 2's results
// alongside step 5's output (spec.md §4.E: "a shared metadata bag
// mutated by any step").
const ctxKeySearchResults = "research:search_results"

// Definition builds the workflow.Definition for one research run.
func (w *Workflow) Definition() workflow.Definition {
	return workflow.Definition{
		Name: "research",
		Steps: []workflow.Step{
			{
				Label:         "clarify",
				RetryAttempts: 2,
				SkipConditions: []workflow.SkipCondition{w.clarifySkipCondition},
				Func:          w.clarify,
			},
			{Label: "search", RetryAttempts: 3, Func: w.search},
			{Label: "synthesize", RetryAttempts: 2, Func: w.synthesize},
			{Label: "structure", RetryAttempts: 2, Func: w.structure},
			{Label: "write", RetryAttempts: 2, Func: w.write},
			{Label: "finalize", RetryAttempts: 1, Func: w.finalize},
		},
	}
}

func (w *Workflow) clarifySkipCondition(wfCtx *workflow.Context) (bool, string) {
	raw, _ := wfCtx.Get("research:query")
	query, _ := raw.(string)
	if query == "" {
		return false, ""
	}
	wordCount := len(strings.Fields(query))
	if wordCount < clarifySkipWordThreshold && !hasLoadedTerm(query) {
		return true, "short, unambiguous query"
	}
	return false, ""
}

func (w *Workflow) clarify(ctx context.Context, input any, wfCtx *workflow.Context) (any, error) {
	query, _ := input.(string)
	wfCtx.Set("research:query", query)

	const systemPrompt = "You reformulate research queries. Detect loaded or biased framing in the " +
		"user's request and rewrite it as a neutral, well-scoped research question. Reply with only " +
		"the rewritten question."

	var clarified string
	_, err := w.router.Dispatch(ctx, backend.CapGenerateText, len(query), func(ctx context.Context, a backend.Adapter) (int, error) {
		gen, ok := a.(backend.TextGenerator)
		if !ok {
			return 0, fmt.Errorf("adapter does not implement TextGenerator")
		}
		text, err := gen.GenerateText(ctx, query, backend.GenerateParams{Model: w.clarifyModel, System: systemPrompt})
		clarified = text
		return len(text), err
	})
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(clarified), nil
}

func (w *Workflow) search(ctx context.Context, input any, wfCtx *workflow.Context) (any, error) {
	query, _ := input.(string)

	var results []backend.SearchResult
	cap := backend.CapSearchWeb
	if w.useScholarlySearch {
		cap = backend.CapSearchScholarly
	}

	_, err := w.router.Dispatch(ctx, cap, len(query), func(ctx context.Context, a backend.Adapter) (int, error) {
		var err error
		if w.useScholarlySearch {
			searcher, ok := a.(backend.ScholarlySearcher)
			if !ok {
				return 0, fmt.Errorf("adapter does not implement ScholarlySearcher")
			}
			results, err = searcher.SearchScholarly(ctx, query, w.maxSearchResults)
		} else {
			searcher, ok := a.(backend.WebSearcher)
			if !ok {
				return 0, fmt.Errorf("adapter does not implement WebSearcher")
			}
			results, err = searcher.SearchWeb(ctx, query, w.maxSearchResults, "", "moderate")
		}
		return len(results), err
	})
	if err != nil {
		return nil, err
	}

	wfCtx.Set(ctxKeySearchResults, results)
	return results, nil
}

func buildSearchDocument(results []backend.SearchResult) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.URI, r.Snippet)
	}
	return sb.String()
}

func (w *Workflow) synthesize(ctx context.Context, input any, wfCtx *workflow.Context) (any, error) {
	results, _ := input.([]backend.SearchResult)
	query, _ := wfCtx.Get("research:query")

	prompt := fmt.Sprintf("Research question: %v\n\nSources:\n%s\n\nWrite a prose synthesis of these sources addressing the question.",
		query, buildSearchDocument(results))

	var synthesis string
	_, err := w.router.Dispatch(ctx, backend.CapGenerateText, len(prompt), func(ctx context.Context, a backend.Adapter) (int, error) {
		gen, ok := a.(backend.TextGenerator)
		if !ok {
			return 0, fmt.Errorf("adapter does not implement TextGenerator")
		}
		text, err := gen.GenerateText(ctx, prompt, backend.GenerateParams{Model: w.synthesisModel})
		synthesis = text
		return len(text), err
	})
	if err != nil {
		return nil, err
	}
	return synthesis, nil
}

func (w *Workflow) structure(ctx context.Context, input any, wfCtx *workflow.Context) (any, error) {
	synthesis, _ := input.(string)

	prompt := "Break the following synthesis into a sectioned outline. Reply with one line per section " +
		"in the form \"Heading: prompt1 | prompt2\".\n\n" + synthesis

	var outline string
	_, err := w.router.Dispatch(ctx, backend.CapGenerateText, len(prompt), func(ctx context.Context, a backend.Adapter) (int, error) {
		gen, ok := a.(backend.TextGenerator)
		if !ok {
			return 0, fmt.Errorf("adapter does not implement TextGenerator")
		}
		text, err := gen.GenerateText(ctx, prompt, backend.GenerateParams{Model: w.synthesisModel})
		outline = text
		return len(text), err
	})
	if err != nil {
		return nil, err
	}

	return parseOutline(outline), nil
}

func parseOutline(outline string) []Section {
	var sections []Section
	for _, line := range strings.Split(outline, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		heading, rest, ok := strings.Cut(line, ":")
		if !ok {
			sections = append(sections, Section{Heading: line})
			continue
		}
		var prompts []string
		for _, p := range strings.Split(rest, "|") {
			if p = strings.TrimSpace(p); p != "" {
				prompts = append(prompts, p)
			}
		}
		sections = append(sections, Section{Heading: strings.TrimSpace(heading), Prompts: prompts})
	}
	if len(sections) == 0 {
		sections = []Section{{Heading: "Overview", Prompts: []string{outline}}}
	}
	return sections
}

func (w *Workflow) write(ctx context.Context, input any, wfCtx *workflow.Context) (any, error) {
	sections, _ := input.([]Section)

	target := w.summaryTargetLength
	if v, ok := wfCtx.Get("summary_target_length"); ok {
		if s, ok := v.(string); ok && s != "" {
			target = s
		}
	}

	for i := range sections {
		prompt := fmt.Sprintf("Expand this section for a %s research document.\nHeading: %s\nPoints: %s",
			target, sections[i].Heading, strings.Join(sections[i].Prompts, "; "))

		var body string
		_, err := w.router.Dispatch(ctx, backend.CapGenerateText, len(prompt), func(ctx context.Context, a backend.Adapter) (int, error) {
			gen, ok := a.(backend.TextGenerator)
			if !ok {
				return 0, fmt.Errorf("adapter does not implement TextGenerator")
			}
			text, err := gen.GenerateText(ctx, prompt, backend.GenerateParams{Model: w.synthesisModel})
			body = text
			return len(text), err
		})
		if err != nil {
			return nil, err
		}
		sections[i].Body = body
	}

	return sections, nil
}

func (w *Workflow) finalize(ctx context.Context, input any, wfCtx *workflow.Context) (any, error) {
	sections, _ := input.([]Section)
	rawResults, _ := wfCtx.Get(ctxKeySearchResults)
	results, _ := rawResults.([]backend.SearchResult)

	var md strings.Builder
	md.WriteString("# Research Report\n\n")

	abstractPrompt := buildAbstractSource(sections)
	var abstract string
	_, err := w.router.Dispatch(ctx, backend.CapGenerateText, len(abstractPrompt), func(ctx context.Context, a backend.Adapter) (int, error) {
		gen, ok := a.(backend.TextGenerator)
		if !ok {
			return 0, fmt.Errorf("adapter does not implement TextGenerator")
		}
		text, err := gen.GenerateText(ctx, "Write a one-paragraph abstract for this report:\n"+abstractPrompt,
			backend.GenerateParams{Model: w.synthesisModel})
		abstract = text
		return len(text), err
	})
	if err == nil && abstract != "" {
		md.WriteString("## Abstract\n\n")
		md.WriteString(strings.TrimSpace(abstract))
		md.WriteString("\n\n")
	}

	for _, s := range sections {
		fmt.Fprintf(&md, "## %s\n\n%s\n\n", s.Heading, s.Body)
	}

	if len(results) > 0 {
		md.WriteString("## References\n\n")
		for i, r := range results {
			fmt.Fprintf(&md, "%d. %s — %s\n", i+1, r.Title, r.URI)
		}
	}

	rendered, renderErr := renderMarkdown(md.String())
	if renderErr != nil {
		return nil, renderErr
	}

	return Document{Text: rendered, References: results}, nil
}

func buildAbstractSource(sections []Section) string {
	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString(s.Heading)
		sb.WriteString(". ")
	}
	return sb.String()
}

// renderMarkdown validates the assembled document is well-formed markdown
// by round-tripping it through goldmark; the HTML render is discarded —
// the engine's consumers (HTTP surface, §4.F output) want the markdown
// source itself, not HTML.
func renderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return source, nil
}
