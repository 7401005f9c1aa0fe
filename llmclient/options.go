package llmclient

// GenerateOption is a functional option applied to GenerateOptions before a
// Generate or Stream call.
type GenerateOption func(*GenerateOptions)

// ToolChoice controls how the model selects tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ResponseFormat controls the structure of the model's output.
type ResponseFormat struct {
	// Type is "text", "json_object", or "json_schema".
	Type string
	// Schema is the JSON Schema to enforce when Type is "json_schema".
	Schema map[string]any
}

// GenerateOptions collects all parameters passed to Generate or Stream via
// functional options. Providers read from this struct to build their
// request payloads.
type GenerateOptions struct {
	Temperature   *float64
	MaxTokens     int
	TopP          *float64
	StopSequences []string
	Format        *ResponseFormat
	ToolChoice    ToolChoice
	SpecificTool  string
	Metadata      map[string]any
}

// ApplyOptions builds a GenerateOptions from a list of functional options.
func ApplyOptions(opts ...GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &t }
}

func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = n }
}

func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = &p }
}

func WithStopSequences(seqs ...string) GenerateOption {
	return func(o *GenerateOptions) { o.StopSequences = seqs }
}

func WithResponseFormat(format ResponseFormat) GenerateOption {
	return func(o *GenerateOptions) { o.Format = &format }
}

func WithToolChoice(choice ToolChoice) GenerateOption {
	return func(o *GenerateOptions) { o.ToolChoice = choice }
}

func WithSpecificTool(name string) GenerateOption {
	return func(o *GenerateOptions) { o.SpecificTool = name }
}

func WithMetadata(kv map[string]any) GenerateOption {
	return func(o *GenerateOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]any, len(kv))
		}
		for k, v := range kv {
			o.Metadata[k] = v
		}
	}
}
