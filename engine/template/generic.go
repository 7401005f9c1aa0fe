package template

import "strings"

func init() {
	Register("generic_extraction", genericExtractionGenerator)
	Register("generic_synthesis", genericSynthesisGenerator)
}

// genericExtractionGenerator backs single-document structured-extraction
// templates whose output schema is caller-supplied rather than fixed, e.g.
// form-field or table extraction templates with no narrative prose.
func genericExtractionGenerator(variables map[string]any, customUserPrompt string) (Output, error) {
	system := "You extract structured data from the supplied document excerpts. " +
		"Return only fields you can support with a citation token of the form [D<n>:p<m>] drawn from the supplied context; never invent a value or a token. " +
		"Omit fields you cannot find rather than guessing."

	userTemplate := customUserPrompt
	if userTemplate == "" {
		userTemplate = "Extract the requested fields from the following source material.\n\n" + ContextPlaceholder
	} else if !strings.Contains(userTemplate, ContextPlaceholder) {
		userTemplate += "\n\n" + ContextPlaceholder
	}
	return Output{SystemPrompt: system, UserMessageTemplate: userTemplate}, nil
}

// genericSynthesisGenerator backs multi-document synthesis templates with a
// caller-supplied output schema but no fixed section list, e.g. a
// comparison-summary or a single free-form memo template.
func genericSynthesisGenerator(variables map[string]any, customUserPrompt string) (Output, error) {
	system := "You synthesize an answer from multiple source documents. " +
		"Ground every claim in a citation token of the form [D<n>:p<m>] drawn from the supplied context. " +
		"Never cite a token you were not given, and never state a fact you cannot support with one."

	userTemplate := customUserPrompt
	if userTemplate == "" {
		userTemplate = "Using the following source material, answer the request.\n\n" + ContextPlaceholder
	} else if !strings.Contains(userTemplate, ContextPlaceholder) {
		userTemplate += "\n\n" + ContextPlaceholder
	}
	return Output{SystemPrompt: system, UserMessageTemplate: userTemplate}, nil
}
