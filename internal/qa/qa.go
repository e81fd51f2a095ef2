// Package qa answers questions over the ingested corpus: retrieve the
// nearest chunks, build a grounded prompt, and ask the completion model.
// The model is instructed to use only what the retrieved documents say.
package qa

import (
	"context"
	"fmt"
	"time"

	"github.com/confrag/confrag/internal/llm"
	"github.com/confrag/confrag/internal/logger"
	"github.com/confrag/confrag/internal/observability"
	"github.com/confrag/confrag/internal/retrieval"
)

// Mode selects the answer style.
type Mode string

const (
	// ModeDetailed allows background, bullet points, and emphasis.
	ModeDetailed Mode = "detailed"
	// ModeSimple asks for a direct answer with at most one supporting
	// sentence.
	ModeSimple Mode = "simple"
)

// DefaultK is how many chunks are retrieved as answer context.
const DefaultK = 3

// Completion temperature for both refinement and answering.
const temperature = 0.3

// Answer is a grounded response with the chunks it was built from.
type Answer struct {
	Text    string
	Sources []retrieval.Result
}

// Searcher is the retrieval capability Ask consumes. *retrieval.Retriever
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

// Engine ties retrieval to the completion model.
type Engine struct {
	retriever Searcher
	provider  llm.Provider
	k         int
}

// Option configures an Engine.
type Option func(*Engine)

// WithK overrides how many chunks are retrieved per question.
func WithK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.k = k
		}
	}
}

func New(retriever Searcher, provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{retriever: retriever, provider: provider, k: DefaultK}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Refine rewrites a raw user question into a technically clear and precise
// form before retrieval. Vague questions get reasonable clarifications.
func (e *Engine) Refine(ctx context.Context, raw string) (string, error) {
	prompt := llm.UserPrompt(fmt.Sprintf(
		"Here is a question input by a user.\n"+
			"Please refine it into a technically clear and precise format that is easy for an AI to understand.\n"+
			"If the question is vague, add reasonable clarifications.\n"+
			"The output should be concise and structured (e.g., bullet points or a well-organized sentence).\n\n"+
			"[User input]\n%s\n\n"+
			"[Refined question]", raw))

	resp, err := e.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("refine question: %w", err)
	}
	return resp.Content, nil
}

// Ask retrieves context for the question and generates a grounded answer.
// An empty retrieval result is not an error; the model is asked anyway and
// instructed to say when the documents do not cover the question.
func (e *Engine) Ask(ctx context.Context, question string, mode Mode) (*Answer, error) {
	if mode != ModeSimple {
		mode = ModeDetailed
	}

	results, err := e.retriever.Search(ctx, question, e.k)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	logger.Debug("ask: retrieved %d chunks for context", len(results))

	combined := retrieval.BuildContext(results)
	prompt := llm.UserPrompt(buildAnswerPrompt(question, combined, mode, e.k))

	resp, err := e.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	return &Answer{Text: resp.Content, Sources: results}, nil
}

func (e *Engine) complete(ctx context.Context, prompt *llm.Prompt) (*llm.Response, error) {
	temp := temperature
	opts := &llm.RequestOptions{Temperature: &temp}

	started := time.Now()
	ctx, span := observability.StartLLMSpan(ctx, e.provider.Name(), "")
	defer span.End()

	resp, err := e.provider.Complete(ctx, prompt, opts)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(started))
	return resp, nil
}

const groundingFootnote = "*This answer is based on the Confluence documentation.*"

func buildAnswerPrompt(question, combined string, mode Mode, k int) string {
	header := fmt.Sprintf(
		"The following is a set of past Confluence docs (topK=%d).\n"+
			"Please answer the following question based only on the information explicitly written in the documents.\n\n"+
			"Question:\n%s\n\n"+
			"Instructions:\n", k, question)

	var instructions string
	if mode == ModeDetailed {
		instructions = "- Output must be in **Markdown format**.\n" +
			"- Do **not** use headings like 'Conclusion' or 'Details'.\n" +
			"- Start with a natural sentence that clearly answers the question.\n" +
			"- Then add background or explanation **without repeating the same wording or phrases used in the initial sentence.**\n" +
			"- Bullet points are allowed if they improve clarity.\n" +
			"- Use `**bold**` to emphasize important elements such as logic changes, validations, or team actions.\n" +
			"- Do not bold common phrases.\n" +
			"- At the end, include this line as a footnote **only if the answer is clearly supported by the docs**:\n" +
			"\n  " + groundingFootnote + "\n" +
			"- Do not use general knowledge or assumptions.\n\n"
	} else {
		instructions = "- Output must be in **Markdown format**.\n" +
			"- Start with a natural sentence that clearly answers the question.\n" +
			"- If necessary, add one short supporting sentence without repeating the same wording.\n" +
			"- Do not include background or assumptions.\n" +
			"- Do not use bullet points.\n" +
			"- Use `**bold**` only for key values, specific terms, or decisions.\n" +
			"- At the end, include this line as a footnote **only if the answer is clearly supported by the docs**:\n" +
			"\n  " + groundingFootnote + "\n" +
			"- Do not use general knowledge or assumptions.\n\n"
	}

	return header + instructions + "Reference data:\n" + combined
}
