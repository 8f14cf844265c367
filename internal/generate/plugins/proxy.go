package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
)

// Proxy writes /proxies/<endpoint>.xml, placing every policy the earlier
// phases produced into the endpoint's flows.
type Proxy struct{}

func (Proxy) ID() string { return "proxy" }

func (p Proxy) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	contents, err := encode(bundle.EncodeEndpoint(proxyEndpoint(ep)))
	if err != nil {
		return nil, err
	}
	res.Add("/proxies/"+ep.Name+".xml", contents, "")
	return res, nil
}

type flowSlot struct {
	name string
	mode string
}

var unconditionalSlots = map[generate.RunPoint]flowSlot{
	generate.RunPointPreRequest:         {document.FlowPreFlow, document.ModeRequest},
	generate.RunPointPostRequest:        {document.FlowPreFlow, document.ModeResponse},
	generate.RunPointPreResponse:        {document.FlowPostFlow, document.ModeRequest},
	generate.RunPointPostResponse:       {document.FlowPostFlow, document.ModeResponse},
	generate.RunPointPostClientResponse: {document.FlowPostClientFlow, document.ModeResponse},
}

func proxyEndpoint(ep *generate.EndpointConfig) *document.ProxyEndpoint {
	flows := []document.Flow{
		{Name: document.FlowPreFlow, Mode: document.ModeRequest, Steps: []document.Step{}},
		{Name: document.FlowPreFlow, Mode: document.ModeResponse, Steps: []document.Step{}},
		{Name: document.FlowPostFlow, Mode: document.ModeRequest, Steps: []document.Step{}},
		{Name: document.FlowPostFlow, Mode: document.ModeResponse, Steps: []document.Step{}},
	}
	conditional := map[string]int{}
	var faults []document.Flow

	for _, s := range generate.Placements(ep) {
		step := document.Step{Name: s.Policy, Condition: s.StepCondition}
		if s.RunPoint == generate.RunPointEndpointFault {
			faults = append(faults, document.Flow{
				Name:      s.Policy,
				Condition: s.StepCondition,
				Steps:     []document.Step{{Name: s.Policy}},
			})
			continue
		}
		slot, ok := unconditionalSlots[s.RunPoint]
		if !ok {
			continue
		}
		if s.FlowCondition != "" && slot.name != document.FlowPostClientFlow {
			flows = appendConditional(flows, conditional, s, step, slot.mode)
			continue
		}
		flows = appendStep(flows, slot, step)
	}

	target := ep.Target.Name
	if target == "" {
		target = document.DefaultName
	}
	return &document.ProxyEndpoint{
		Endpoint: document.Endpoint{
			Name:     ep.Name,
			BasePath: ep.BasePath,
			Routes:   []document.Route{{Name: target, Target: target}},
		},
		Flows:      flows,
		FaultRules: faults,
	}
}

func appendStep(flows []document.Flow, slot flowSlot, step document.Step) []document.Flow {
	for i := range flows {
		if flows[i].Name == slot.name && flows[i].Mode == slot.mode && flows[i].Condition == "" {
			flows[i].Steps = append(flows[i].Steps, step)
			return flows
		}
	}
	return append(flows, document.Flow{Name: slot.name, Mode: slot.mode, Steps: []document.Step{step}})
}

// appendConditional adds step to the conditional flow for s.FlowCondition.
// Flows are named by the first placement that names them, or CFlow_<n>.
func appendConditional(flows []document.Flow, names map[string]int, s generate.PlacedStep, step document.Step, mode string) []document.Flow {
	n, ok := names[s.FlowCondition]
	if !ok {
		n = len(names) + 1
		names[s.FlowCondition] = n
	}
	name := s.FlowName
	for _, f := range flows {
		if f.Condition == s.FlowCondition {
			name = f.Name
			break
		}
	}
	if name == "" {
		name = fmt.Sprintf("CFlow_%d", n)
	}
	for i := range flows {
		if flows[i].Condition == s.FlowCondition && flows[i].Mode == mode {
			flows[i].Steps = append(flows[i].Steps, step)
			return flows
		}
	}
	return append(flows, document.Flow{Name: name, Mode: mode, Condition: s.FlowCondition, Steps: []document.Step{step}})
}
