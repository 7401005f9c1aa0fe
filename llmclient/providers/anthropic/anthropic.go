// Package anthropic implements llmclient.ChatModel using the Anthropic
// Messages API, docintel's primary LLM route (spec §5). Adapted from the
// teacher's llm/providers/anthropic package, generalized to llmclient's
// Content-string message shapes and extended with prompt caching on the
// (large, stable) system prompt via Anthropic's cache_control blocks
// (spec §4.6 "Prompt caching").
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	anthropicSDK "github.com/anthropics/anthropic-sdk-go"
	anthropicOption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/llmclient"
	"github.com/lookatitude/docintel/schema"
)

const defaultMaxTokens = 4096

func init() {
	llmclient.Register("anthropic", func(cfg config.ProviderConfig) (llmclient.ChatModel, error) {
		return New(cfg)
	})
}

// Model implements llmclient.ChatModel using the Anthropic Messages API.
type Model struct {
	client anthropicSDK.Client
	model  string
	tools  []schema.ToolDefinition
}

// New creates a new Anthropic ChatModel.
func New(cfg config.ProviderConfig) (*Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model is required")
	}
	opts := []anthropicOption.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, anthropicOption.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropicOption.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, anthropicOption.WithRequestTimeout(cfg.Timeout))
	}
	// Retries are handled by llmclient.Complete's own backoff schedule, not
	// the SDK's internal retry logic.
	opts = append(opts, anthropicOption.WithMaxRetries(0))
	client := anthropicSDK.NewClient(opts...)
	return &Model{client: client, model: cfg.Model}, nil
}

// Generate sends messages and returns a complete AI response.
func (m *Model) Generate(ctx context.Context, msgs []schema.Message, opts ...llmclient.GenerateOption) (*schema.AIMessage, error) {
	params, err := m.buildParams(msgs, opts)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: generate failed: %w", err)
	}
	return convertResponse(resp), nil
}

// Stream sends messages and returns an iterator of response chunks.
func (m *Model) Stream(ctx context.Context, msgs []schema.Message, opts ...llmclient.GenerateOption) iter.Seq2[schema.StreamChunk, error] {
	params, err := m.buildParams(msgs, opts)
	if err != nil {
		return func(yield func(schema.StreamChunk, error) bool) {
			yield(schema.StreamChunk{}, err)
		}
	}
	stream := m.client.Messages.NewStreaming(ctx, params)
	return func(yield func(schema.StreamChunk, error) bool) {
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			chunk := convertStreamEvent(event)
			if chunk == nil {
				continue
			}
			if !yield(*chunk, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(schema.StreamChunk{}, err)
		}
	}
}

// BindTools returns a new Model that includes the given tools in every request.
func (m *Model) BindTools(tools []schema.ToolDefinition) llmclient.ChatModel {
	cp := *m
	cp.tools = make([]schema.ToolDefinition, len(tools))
	copy(cp.tools, tools)
	return &cp
}

// ModelID returns the model identifier.
func (m *Model) ModelID() string { return m.model }

func (m *Model) buildParams(msgs []schema.Message, opts []llmclient.GenerateOption) (anthropicSDK.MessageNewParams, error) {
	genOpts := llmclient.ApplyOptions(opts...)
	maxTokens := int64(defaultMaxTokens)
	if genOpts.MaxTokens > 0 {
		maxTokens = int64(genOpts.MaxTokens)
	}

	converted, system, err := convertMessages(msgs)
	if err != nil {
		return anthropicSDK.MessageNewParams{}, err
	}

	params := anthropicSDK.MessageNewParams{
		Model:     anthropicSDK.Model(m.model),
		MaxTokens: maxTokens,
		Messages:  converted,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(m.tools) > 0 {
		params.Tools = convertTools(m.tools)
	}
	if genOpts.Temperature != nil {
		params.Temperature = anthropicSDK.Float(*genOpts.Temperature)
	}
	if genOpts.TopP != nil {
		params.TopP = anthropicSDK.Float(*genOpts.TopP)
	}
	if len(genOpts.StopSequences) > 0 {
		params.StopSequences = genOpts.StopSequences
	}

	switch genOpts.ToolChoice {
	case llmclient.ToolChoiceAuto:
		params.ToolChoice = anthropicSDK.ToolChoiceUnionParam{OfAuto: &anthropicSDK.ToolChoiceAutoParam{}}
	case llmclient.ToolChoiceNone:
		params.ToolChoice = anthropicSDK.ToolChoiceUnionParam{OfNone: &anthropicSDK.ToolChoiceNoneParam{}}
	case llmclient.ToolChoiceRequired:
		params.ToolChoice = anthropicSDK.ToolChoiceUnionParam{OfAny: &anthropicSDK.ToolChoiceAnyParam{}}
	}
	if genOpts.SpecificTool != "" {
		params.ToolChoice = anthropicSDK.ToolChoiceUnionParam{OfTool: &anthropicSDK.ToolChoiceToolParam{Name: genOpts.SpecificTool}}
	}

	return params, nil
}

// convertMessages maps docintel's schema messages onto Anthropic's wire
// shapes. A SystemMessage with Cacheable set gets a cache_control block so
// the (large, stable) workflow/chat system prompt is read from Anthropic's
// prompt cache on subsequent calls within the provider's TTL.
func convertMessages(msgs []schema.Message) ([]anthropicSDK.MessageParam, []anthropicSDK.TextBlockParam, error) {
	var system []anthropicSDK.TextBlockParam
	out := make([]anthropicSDK.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case schema.SystemMessage:
			block := anthropicSDK.TextBlockParam{Text: m.Content}
			if m.Cacheable {
				block.CacheControl = anthropicSDK.NewCacheControlEphemeralParam()
			}
			system = append(system, block)
		case schema.HumanMessage:
			out = append(out, anthropicSDK.NewUserMessage(anthropicSDK.NewTextBlock(m.Content)))
		case *schema.AIMessage:
			blocks := convertAIContentParts(m)
			out = append(out, anthropicSDK.NewAssistantMessage(blocks...))
		case schema.ToolMessage:
			out = append(out, anthropicSDK.NewUserMessage(
				anthropicSDK.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message type %T", msg)
		}
	}
	return out, system, nil
}

func convertAIContentParts(m *schema.AIMessage) []anthropicSDK.ContentBlockParamUnion {
	var blocks []anthropicSDK.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, anthropicSDK.NewTextBlock(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var input any
		json.Unmarshal([]byte(tc.Arguments), &input)
		blocks = append(blocks, anthropicSDK.NewToolUseBlock(tc.ID, input, tc.Name))
	}
	return blocks
}

func convertTools(tools []schema.ToolDefinition) []anthropicSDK.ToolUnionParam {
	out := make([]anthropicSDK.ToolUnionParam, len(tools))
	for i, t := range tools {
		tp := anthropicSDK.ToolParam{
			Name: t.Name,
			InputSchema: anthropicSDK.ToolInputSchemaParam{
				Properties: t.Parameters["properties"],
			},
		}
		if t.Description != "" {
			tp.Description = anthropicSDK.String(t.Description)
		}
		if req, ok := t.Parameters["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					tp.InputSchema.Required = append(tp.InputSchema.Required, s)
				}
			}
		}
		out[i] = anthropicSDK.ToolUnionParam{OfTool: &tp}
	}
	return out
}

func convertResponse(resp *anthropicSDK.Message) *schema.AIMessage {
	if resp == nil {
		return &schema.AIMessage{}
	}
	ai := &schema.AIMessage{
		Usage: schema.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			CacheReadTokens:  int(resp.Usage.CacheReadInputTokens),
			CacheWriteTokens: int(resp.Usage.CacheCreationInputTokens),
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			ai.Content += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			ai.ToolCalls = append(ai.ToolCalls, schema.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		}
	}
	return ai
}

func convertStreamEvent(event anthropicSDK.MessageStreamEventUnion) *schema.StreamChunk {
	switch event.Type {
	case "content_block_delta":
		chunk := &schema.StreamChunk{}
		switch event.Delta.Type {
		case "text_delta":
			chunk.Delta = event.Delta.Text
		case "input_json_delta":
			chunk.ToolCalls = []schema.ToolCall{{Arguments: event.Delta.PartialJSON}}
		}
		return chunk
	case "content_block_start":
		if event.ContentBlock.Type == "tool_use" {
			return &schema.StreamChunk{
				ToolCalls: []schema.ToolCall{{ID: event.ContentBlock.ID, Name: event.ContentBlock.Name}},
			}
		}
		return nil
	case "message_delta":
		return &schema.StreamChunk{
			FinishReason: mapStopReason(string(event.Delta.StopReason)),
			Usage:        &schema.Usage{CompletionTokens: int(event.Usage.OutputTokens)},
		}
	default:
		return nil
	}
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn":
		return "stop"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}
