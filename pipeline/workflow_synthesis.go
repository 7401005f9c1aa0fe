package pipeline

import (
	"context"

	"github.com/lookatitude/docintel/core"
	"github.com/lookatitude/docintel/domain"
	enginectx "github.com/lookatitude/docintel/engine/context"
	"github.com/lookatitude/docintel/engine/generate"
	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/retrieval"
)

// DocumentFilenameResolver returns display filenames for a workflow run's
// document ids, used by context preparation's citation metadata.
type DocumentFilenameResolver interface {
	Filenames(ctx context.Context, documentIDs []string) (map[string]string, error)
}

// NewWorkflowSynthesisCatalog builds the workflow-synthesis pipeline's stage
// tasks (spec §4.1 "Workflow: prepare_context -> generate_artifact"),
// delegating to engine/context.Prepare and engine/generate.Generate — the
// two packages that already implement §4.3.1/§4.3.2 in full.
func NewWorkflowSynthesisCatalog(retriever retrieval.Retriever, filenames DocumentFilenameResolver, model, cheapModel llmclient.ChatModel) Catalog {
	return Catalog{
		domain.StagePrepareContext:   prepareContextTask(retriever, filenames),
		domain.StageGenerateArtifact: generateArtifactTask(model, cheapModel),
	}
}

func prepareContextTask(retriever retrieval.Retriever, filenames DocumentFilenameResolver) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		names, err := filenames.Filenames(ctx, p.DocumentIDs)
		if err != nil {
			return p, core.NewError("pipeline.PrepareContextTask", core.ErrStorage, "failed to resolve document filenames", err)
		}

		assembled, err := enginectx.Prepare(ctx, retriever, enginectx.Request{
			Template:          p.Template,
			DocumentIDs:       p.DocumentIDs,
			DocumentFilenames: names,
		})
		if err != nil {
			return p, err // enginectx.Prepare already returns a classified *core.Error (e.g. ErrRetrieval/no_chunks_retrieved)
		}
		p.Assembled = assembled
		return p, nil
	}
}

func generateArtifactTask(model, cheapModel llmclient.ChatModel) Task {
	return func(ctx context.Context, p Payload) (Payload, error) {
		result, err := generate.Generate(ctx, model, cheapModel, generate.Request{
			Template:      p.Template,
			Variables:     p.Variables,
			Assembled:     p.Assembled,
			DocumentCount: len(p.DocumentIDs),
		})
		if err != nil {
			return p, err // generate.Generate already returns a classified *core.Error (ErrLLM/ErrValidation/ErrConfiguration)
		}
		p.Generated = result
		if result.Partial {
			// Partial salvage still advances the stage so the UI can
			// surface what was produced (spec §4.3.2 "Retry and salvage");
			// the caller inspects Payload.Generated.Partial to decide the
			// run's final status rather than treating this as an error.
			return p, nil
		}
		return p, nil
	}
}
