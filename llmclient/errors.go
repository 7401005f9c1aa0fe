package llmclient

import "github.com/lookatitude/docintel/core"

func errUnknownProvider(name string) error {
	return core.NewError("llmclient.new", core.ErrConfiguration, "unknown llm provider: "+name, nil)
}
