package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/generate"
)

const (
	defaultQuotaCount    = 5
	defaultQuotaTimeUnit = "minute"
)

var quotaSnippet = snippets.MustRegister("quota", `
<Quota continueOnError="false" enabled="true" name="{{.Name}}">
  <DisplayName>{{.Name}}</DisplayName>
  <Properties/>
  <Allow count="{{.Count}}"{{if .APIKey}} countRef="verifyapikey.VA-VerifyKey.apiproduct.developer.quota.limit"{{end}}/>
  <Interval>1</Interval>
  <Distributed>false</Distributed>
  <Synchronous>false</Synchronous>
  <TimeUnit>{{xml .TimeUnit}}</TimeUnit>
</Quota>`)

// Quota adds one Quota-<n> policy per configured quota, numbered from 1.
type Quota struct{}

func (Quota) ID() string { return "quota" }

func (p Quota) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	apiKey := ep.AuthOf(generate.AuthAPIKey) != nil
	for i, q := range ep.Quotas {
		name := fmt.Sprintf("Quota-%d", i+1)
		count := q.Count
		if count <= 0 {
			count = defaultQuotaCount
		}
		unit := q.TimeUnit
		if unit == "" {
			unit = defaultQuotaTimeUnit
		}
		contents, err := quotaSnippet.RenderXML(map[string]any{
			"Name":     name,
			"Count":    count,
			"TimeUnit": unit,
			"APIKey":   apiKey,
		})
		if err != nil {
			return nil, err
		}
		point := generate.At(generate.RunPointPreRequest)
		point.StepCondition = q.Condition
		res.Add(policyPath(name), contents, name, point)
	}
	return res, nil
}
