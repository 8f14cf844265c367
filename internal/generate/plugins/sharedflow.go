package plugins

import (
	"context"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
)

var sharedFlowOrder = []generate.RunPoint{
	generate.RunPointPreRequest,
	generate.RunPointPostRequest,
	generate.RunPointPreResponse,
	generate.RunPointPostResponse,
}

// SharedFlow writes /sharedflows/default.xml holding the request and
// response placements as one step sequence.
type SharedFlow struct{}

func (SharedFlow) ID() string { return "sharedflow" }

func (p SharedFlow) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	placed := generate.Placements(ep)

	flow := document.Flow{Name: document.FlowPreFlow, Mode: document.ModeRequest, Steps: []document.Step{}}
	for _, point := range sharedFlowOrder {
		for _, s := range placed {
			if s.RunPoint == point {
				flow.Steps = append(flow.Steps, document.Step{Name: s.Policy, Condition: s.StepCondition})
			}
		}
	}
	sf := &document.ProxyEndpoint{
		Endpoint: document.Endpoint{Name: document.DefaultName},
		Flows:    []document.Flow{flow},
	}
	contents, err := encode(bundle.EncodeSharedFlow(sf))
	if err != nil {
		return nil, err
	}
	res.Add("/sharedflows/"+document.DefaultName+".xml", contents, "")
	return res, nil
}
