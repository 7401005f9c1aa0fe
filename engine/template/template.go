// Package template implements the prompt generator registry (spec §4.3.3):
// each WorkflowTemplate ships a pure function from caller variables to a
// system prompt and a user message template, keyed by the template's
// PromptGenerator string. Grounded on the same Register/Get registry
// pattern used by llmclient, embed, and vectorstore, generalized here to a
// map since generators are pure functions rather than provider factories.
package template

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lookatitude/docintel/core"
)

// ContextPlaceholder is the token the engine substitutes with the
// assembled retrieval context inside a generator's UserMessageTemplate.
const ContextPlaceholder = "{{CONTEXT}}"

// Output is a generator's result: the system prompt (embedding the output
// contract — section list, citation rules, enum vocabularies) and the user
// message template containing ContextPlaceholder.
type Output struct {
	SystemPrompt        string
	UserMessageTemplate string
}

// Generator builds a template's prompts from caller-supplied variables and
// an optional custom user prompt override.
type Generator func(variables map[string]any, customUserPrompt string) (Output, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Generator)
)

// Register adds a named generator to the registry. Intended to be called
// from init() by each built-in generator file.
func Register(name string, g Generator) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = g
}

// Get resolves a generator by name. A missing generator is a non-retryable
// configuration error (spec §4.3.3): the caller should fail the run rather
// than retry.
func Get(name string) (Generator, error) {
	mu.RLock()
	g, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, core.NewError("engine/template.Get", core.ErrConfiguration,
			fmt.Sprintf("no prompt generator registered for %q (registered: %v)", name, List()), nil)
	}
	return g, nil
}

// List returns the sorted names of all registered generators.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenderUserMessage substitutes the assembled context into a generator's
// user message template.
func RenderUserMessage(tmpl, context string) string {
	return strings.ReplaceAll(tmpl, ContextPlaceholder, context)
}
