package plugins

import (
	"context"
	"fmt"
	"sort"

	"github.com/apigee/apigee-templater/internal/generate"
)

// ResourceFiles writes the step's "files" map below /resources. The files
// are not placed in any flow.
type ResourceFiles struct{}

func (ResourceFiles) ID() string { return "resource-files" }

func (p ResourceFiles) Apply(_ context.Context, _ *generate.EndpointConfig, step *generate.ExtensionStep) (*generate.Result, error) {
	var config struct {
		Files map[string]string `json:"files"`
	}
	if err := step.Decode(&config); err != nil {
		return nil, fmt.Errorf("invalid resourceFiles step %s: %w", step.Name, err)
	}

	keys := make([]string, 0, len(config.Files))
	for k := range config.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := generate.NewResult(p.ID())
	for _, k := range keys {
		res.Add("/resources/"+k, config.Files[k], step.Name, generate.At(generate.RunPointNone))
	}
	return res, nil
}
