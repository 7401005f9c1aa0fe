// Package generate implements spec §4.3.2: direct and map-reduce artifact
// generation, the citation/normalization/domain validation pass, and the
// retry-with-corrective-preamble-then-salvage loop. Grounded on
// llmclient.Complete for the underlying schema-constrained LLM call and on
// the citation package for the whitelist/adaptive-minimum rules.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/lookatitude/docintel/citation"
	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
	enginectx "github.com/lookatitude/docintel/engine/context"
	"github.com/lookatitude/docintel/engine/template"
	"github.com/lookatitude/docintel/internal/syncutil"
	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/schema"
)

// maxValidationRetries is the number of extra LLM calls issued after a
// validation failure, beyond the first attempt (spec §4.3.2 "Retry and
// salvage": "re-issue the LLM call up to 2 more times").
const maxValidationRetries = 2

// listFields are the flagship output schema's top-level array-of-string
// fields eligible for comma-joined-string coercion (spec §6).
var listFields = []string{"risks", "opportunities", "next_steps", "inconsistencies", "references"}

// Request bundles one workflow run's generation inputs.
type Request struct {
	Template         domain.WorkflowTemplate
	Variables        map[string]any
	CustomUserPrompt string
	Assembled        enginectx.Assembled
	DocumentCount    int
}

// Result is the artifact persisted for a workflow run (spec §4.3.2
// "Artifact").
type Result struct {
	RawText            string
	Object             map[string]any
	CitationMap        citation.Map
	References         []citation.Entry
	ValidationWarnings []string
	Attempts           int
	Partial            bool
	Usage              schema.Usage
	CostUSD            float64
	Mode               domain.GenerationMode
	ModelID            string
}

// Generate runs direct or map-reduce generation per req.Assembled.Mode,
// then the validation/retry/salvage pass. model performs the final
// synthesis call; cheapModel performs map-reduce section summarization
// (spec §4.3.2 "a short LLM summarization pass using a cheap model").
func Generate(ctx context.Context, model, cheapModel llmclient.ChatModel, req Request) (Result, error) {
	gen, err := template.Get(req.Template.PromptGenerator)
	if err != nil {
		return Result{}, err
	}
	prompts, err := gen(req.Variables, req.CustomUserPrompt)
	if err != nil {
		return Result{}, core.NewError("engine/generate.Generate", core.ErrPromptGeneration, "prompt generator failed", err)
	}

	var contextText string
	if req.Assembled.Mode == domain.GenerationMapReduce {
		contextText, err = mapReduce(ctx, cheapModel, req.Template.Retrieval, req.Assembled.SectionGroups)
		if err != nil {
			return Result{}, fmt.Errorf("engine/generate: map-reduce summarization: %w", err)
		}
	} else {
		contextText = req.Assembled.ContextText
	}
	userMessage := template.RenderUserMessage(prompts.UserMessageTemplate, contextText)

	return runValidationLoop(ctx, model, req, prompts.SystemPrompt, userMessage, contextText)
}

// runValidationLoop issues up to 1+maxValidationRetries LLM calls,
// validating citations after each and appending a corrective preamble on
// retry, salvaging the last parsable object on final failure (spec
// §4.3.2 "Validation pass" and "Retry and salvage").
func runValidationLoop(ctx context.Context, model llmclient.ChatModel, req Request, systemPrompt, userMessage, contextText string) (Result, error) {
	var (
		lastErr        error
		lastUnknown    []citation.Token
		salvageObj     map[string]any
		salvageRaw     string
		salvageUsage   schema.Usage
		salvageCostUSD float64
		attempts       int
	)

	for attempt := 0; attempt <= maxValidationRetries; attempt++ {
		attempts = attempt + 1
		sys := systemPrompt
		if attempt > 0 {
			sys = systemPrompt + "\n\n" + citation.CorrectivePreamble(lastUnknown, req.Assembled.CitationMap)
		}

		completion, err := llmclient.Complete(ctx, model, sys, userMessage,
			llmclient.WithResponseFormat(llmclient.ResponseFormat{Type: "json_schema", Schema: req.Template.OutputSchema}))
		if err != nil {
			// The LLM call itself already exhausted its own retry budget
			// inside Complete; a further validation retry won't help.
			return Result{}, core.NewError("engine/generate.Generate", core.ErrLLM, "generation call failed", err)
		}

		obj, ok := completion.Parsed.(map[string]any)
		if !ok {
			lastErr = fmt.Errorf("response was not a JSON object")
			salvageRaw, salvageUsage, salvageCostUSD = completion.RawText, completion.Usage, completion.CostUSD
			continue
		}

		validation := citation.Validate(completion.RawText, req.Assembled.CitationMap, req.DocumentCount, len(contextText))
		if !validation.OK() {
			lastErr = fmt.Errorf("response cited %d unknown token(s)", len(validation.Unknown))
			lastUnknown = validation.Unknown
			salvageObj, salvageRaw, salvageUsage, salvageCostUSD = obj, completion.RawText, completion.Usage, completion.CostUSD
			continue
		}

		normalized := finalizeObject(obj, req.Template.OutputSchema)
		warnings := domainChecks(req.Template.PromptGenerator, normalized)
		if validation.BelowMinimum {
			warnings = append(warnings, fmt.Sprintf("citation density %d is below the adaptive minimum %d", validation.Density, validation.AdaptiveMinimum))
		}

		return Result{
			RawText:            completion.RawText,
			Object:             normalized,
			CitationMap:        req.Assembled.CitationMap,
			References:         buildReferences(normalized, req.Assembled.CitationMap),
			ValidationWarnings: warnings,
			Attempts:           attempts,
			Usage:              completion.Usage,
			CostUSD:            completion.CostUSD,
			Mode:               req.Assembled.Mode,
			ModelID:            model.ModelID(),
		}, nil
	}

	if salvageObj != nil {
		normalized := finalizeObject(salvageObj, req.Template.OutputSchema)
		return Result{
			RawText:            salvageRaw,
			Object:             normalized,
			CitationMap:        req.Assembled.CitationMap,
			References:         buildReferences(normalized, req.Assembled.CitationMap),
			ValidationWarnings: []string{lastErr.Error()},
			Attempts:           attempts,
			Partial:            true,
			Usage:              salvageUsage,
			CostUSD:            salvageCostUSD,
			Mode:               req.Assembled.Mode,
			ModelID:            model.ModelID(),
		}, nil
	}

	return Result{}, core.NewError("engine/generate.Generate", core.ErrValidation,
		"generation failed validation after retries with no salvageable object", lastErr)
}

// finalizeObject applies normalization, comma-list coercion, and confidence
// clamping (spec §4.3.2 step 3). outputSchema is the template's declared
// OutputSchema, threaded through normalize so percent strings coerce to the
// units each field's schema demands; a nil/empty schema (the flagship
// financial_analysis generator declares none) falls back to the
// decimal-fraction default.
func finalizeObject(obj map[string]any, outputSchema map[string]any) map[string]any {
	normalized, _ := normalize(obj, outputSchema).(map[string]any)
	if normalized == nil {
		normalized = obj
	}
	coerceCommaLists(normalized, listFields)
	clampConfidence(normalized)
	return normalized
}

// buildReferences joins the parsed object's "references" array with the
// citation map's metadata, producing the rich citations list persisted on
// the artifact (spec §4.3.2 "Artifact").
func buildReferences(obj map[string]any, whitelist citation.Map) []citation.Entry {
	raw, _ := obj["references"].([]any)
	out := make([]citation.Entry, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		if entry, ok := whitelist[citation.Token(s)]; ok {
			out = append(out, entry)
		}
	}
	return out
}

// mapSectionConcurrency bounds how many section summaries mapReduce issues
// to cheapModel at once; sections are independent so there's no correctness
// reason to serialize them, only a provider-rate-limit reason to cap them.
const mapSectionConcurrency = 4

// mapReduce summarizes each section's chunk group into a bounded brief with
// cheapModel, then concatenates the briefs into a single context string for
// the final synthesis call (spec §4.3.2 "Map-reduce mode"). Sections are
// summarized concurrently since each is an independent LLM call; a
// syncutil.WorkerPool caps how many run at once.
func mapReduce(ctx context.Context, cheapModel llmclient.ChatModel, specs []domain.RetrievalSpec, groups map[string][]schema.Document) (string, error) {
	briefs := make([]string, len(specs))
	errs := make([]error, len(specs))

	pool := syncutil.NewWorkerPool(mapSectionConcurrency)
	for i, spec := range specs {
		i, spec := i, spec
		_ = pool.Submit(func() {
			docs := groups[spec.Key]
			if len(docs) == 0 {
				return
			}
			var raw strings.Builder
			for _, d := range docs {
				raw.WriteString(d.Content)
				raw.WriteString("\n\n")
			}

			summary, err := llmclient.Complete(ctx, cheapModel,
				"Summarize the following excerpts into a concise brief, preserving every citation token exactly as written.",
				raw.String())
			if err != nil {
				errs[i] = fmt.Errorf("summarize section %q: %w", spec.Key, err)
				return
			}
			briefs[i] = fmt.Sprintf("## %s\n\n%s\n\n", spec.Key, summary.RawText)
		})
	}
	pool.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}

	var sb strings.Builder
	for _, brief := range briefs {
		sb.WriteString(brief)
	}
	return sb.String(), nil
}
