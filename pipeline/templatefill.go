package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/llmclient"
)

// TemplateFillStore persists a template-fill run's resolved field mapping
// and final output (spec §2 Non-goals: the Excel template-fill subsystem
// itself is an external collaborator — this catalog only exercises the
// pipeline runtime's shared stage machinery against it).
type TemplateFillStore interface {
	Save(ctx context.Context, p Payload) error
}

// NewTemplateFillCatalog builds the template-fill pipeline's stage tasks
// (spec §4.1 "Template fill: analyze_template -> detect_fields -> auto_map
// -> (await_user_review) -> fill"). detectModel proposes a field mapping
// from the template's declared cells and the run's extracted Fields; the
// run then pauses at await_user_review until the caller sets
// Payload.ReviewApproved and calls Runtime.Resume.
func NewTemplateFillCatalog(detectModel llmclient.ChatModel, store TemplateFillStore) Catalog {
	return Catalog{
		domain.StageAnalyzeTemplate: analyzeTemplateTask(),
		domain.StageDetectFields:    detectFieldsTask(detectModel),
		domain.StageAutoMap:         autoMapTask(detectModel),
		domain.StageAwaitUserReview: awaitUserReviewTask(),
		domain.StageFill:            fillTask(store),
	}
}

// analyzeTemplateTask validates that the template declares at least one
// variable to fill; a template with no declared cells is a configuration
// error rather than something worth retrying.
func analyzeTemplateTask() Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		if len(p.Template.VariablesSchema) == 0 {
			return p, core.NewError("pipeline.AnalyzeTemplateTask", core.ErrConfiguration, "template declares no fillable variables", nil)
		}
		return p, nil
	}
}

func detectFieldsTask(model llmclient.ChatModel) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		var sb strings.Builder
		for k := range p.Template.VariablesSchema {
			sb.WriteString(k)
			sb.WriteString("\n")
		}
		sb.WriteString("\nDocument fields:\n")
		for k, v := range p.Fields {
			sb.WriteString(k + ": " + toDisplayString(v) + "\n")
		}

		result, err := llmclient.Complete(ctx, model,
			"List, one per line, which of the following template fields can be confidently filled from the supplied document fields. Respond with a JSON object mapping field name to a short description of where its value comes from.",
			sb.String())
		if err != nil {
			return p, core.NewError("pipeline.DetectFieldsTask", core.ErrLLM, "field detection failed", err)
		}
		detected, _ := result.Parsed.(map[string]any)
		p.DetectedFields = make(map[string]string, len(detected))
		for k, v := range detected {
			if s, ok := v.(string); ok {
				p.DetectedFields[k] = s
			}
		}
		return p, nil
	}
}

// autoMapTask resolves each detected field to a concrete value drawn from
// the run's extracted Fields, leaving anything unresolved for human review.
func autoMapTask(model llmclient.ChatModel) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		p.FieldMapping = make(map[string]string, len(p.DetectedFields))
		for field := range p.DetectedFields {
			if v, ok := p.Fields[field]; ok {
				p.FieldMapping[field] = toDisplayString(v)
			}
		}
		return p, nil
	}
}

// toDisplayString renders an extracted field value (string, number, or
// nested structure) as plain text for a spreadsheet cell.
func toDisplayString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// awaitUserReviewTask pauses the run until the caller sets
// Payload.ReviewApproved and re-enters via Runtime.Resume (spec §4.1 stage
// catalog's parenthesized "(await_user_review)" gate).
func awaitUserReviewTask() Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		if !p.ReviewApproved {
			return p, ErrAwaitingReview()
		}
		return p, nil
	}
}

func fillTask(store TemplateFillStore) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		if err := store.Save(ctx, p); err != nil {
			return p, core.NewError("pipeline.FillTask", core.ErrStorage, "failed to persist template-fill result", err)
		}
		return p, nil
	}
}
