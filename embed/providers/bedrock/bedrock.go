// Package bedrock provides an embed.Embedder backed by the AWS Bedrock
// Titan Embeddings model, grounded on the AWS SDK v2 wiring the pack's
// Bedrock ChatModel provider uses (awsconfig.LoadDefaultConfig +
// bedrockruntime.NewFromConfig), adapted from Converse to InvokeModel since
// embeddings use Bedrock's single-shot invocation API rather than Converse.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/embed"
)

func init() {
	embed.Register("bedrock", func(cfg config.ProviderConfig) (embed.Embedder, error) {
		return New(cfg)
	})
}

// InvokeAPI is the subset of bedrockruntime.Client this provider needs,
// allowing a mock client in tests.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Embedder implements embed.Embedder using Titan Embeddings via Bedrock.
type Embedder struct {
	client     InvokeAPI
	modelID    string
	dimensions int
}

var _ embed.Embedder = (*Embedder)(nil)

// New creates an Embedder from cfg. cfg.Model defaults to
// "amazon.titan-embed-text-v2:0" when empty.
func New(cfg config.ProviderConfig) (*Embedder, error) {
	modelID := cfg.Model
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v2:0"
	}

	region, _ := config.GetOption[string](cfg, "region")
	if region == "" {
		region = "us-east-1"
	}
	dims, _ := config.GetOption[int](cfg, "dimensions")
	if dims == 0 {
		dims = 1024
	}

	var awsOpts []func(*awsconfig.LoadOptions) error
	awsOpts = append(awsOpts, awsconfig.WithRegion(region))
	if cfg.APIKey != "" {
		secretKey, _ := config.GetOption[string](cfg, "secret_key")
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, secretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock embed: failed to load AWS config: %w", err)
	}

	return &Embedder{
		client:     bedrockruntime.NewFromConfig(awsCfg),
		modelID:    modelID,
		dimensions: dims,
	}, nil
}

// NewWithClient builds an Embedder around a pre-constructed client, for tests.
func NewWithClient(client InvokeAPI, modelID string, dimensions int) *Embedder {
	return &Embedder{client: client, modelID: modelID, dimensions: dimensions}
}

type titanRequest struct {
	InputText   string `json:"inputText"`
	Dimensions  int    `json:"dimensions,omitempty"`
	Normalize   bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Embed embeds each text with a separate InvokeModel call; Titan does not
// support batched embedding requests.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedSingle(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("bedrock embed: text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// EmbedSingle embeds one text via a single InvokeModel call.
func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: e.dimensions, Normalize: true})
	if err != nil {
		return nil, err
	}
	resp, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &e.modelID,
		ContentType: strPtr("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock embed: invoke model: %w", err)
	}
	var parsed titanResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("bedrock embed: decode response: %w", err)
	}
	return parsed.Embedding, nil
}

// Dimensions reports the configured embedding vector length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func strPtr(s string) *string { return &s }
