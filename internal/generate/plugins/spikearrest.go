package plugins

import (
	"context"

	"github.com/apigee/apigee-templater/internal/generate"
)

const spikeArrestPolicy = "SA-SpikeArrest"

var spikeArrestSnippet = snippets.MustRegister("spike-arrest", `
<SpikeArrest continueOnError="false" enabled="true" name="SA-SpikeArrest">
  <DisplayName>SA-SpikeArrest</DisplayName>
  <Properties/>
  <Identifier ref="request.header.some-header-name"/>
  <MessageWeight ref="request.header.weight"/>
  <Rate>{{xml .Rate}}</Rate>
</SpikeArrest>`)

// SpikeArrest adds SA-SpikeArrest to the request PreFlow when the endpoint
// sets a spike arrest rate.
type SpikeArrest struct{}

func (SpikeArrest) ID() string { return "spike-arrest" }

func (p SpikeArrest) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	if ep.SpikeArrest == nil {
		return res, nil
	}
	contents, err := spikeArrestSnippet.RenderXML(ep.SpikeArrest)
	if err != nil {
		return nil, err
	}
	res.Add(policyPath(spikeArrestPolicy), contents, spikeArrestPolicy, generate.At(generate.RunPointPreRequest))
	return res, nil
}
