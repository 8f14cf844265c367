package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
)

const (
	bigQueryPolicy = "AM-BigQueryRequest"
	bigQueryScope  = "https://www.googleapis.com/auth/bigquery"
	bigQueryAPI    = "https://bigquery.googleapis.com/bigquery/v2/projects/%s/queries"
)

var bigQuerySnippet = snippets.MustRegister("bigquery-request", `
<AssignMessage continueOnError="false" enabled="true" name="AM-BigQueryRequest">
  <DisplayName>AM-BigQueryRequest</DisplayName>
  <Set>
    <Verb>POST</Verb>
    <Path/>
    <Payload contentType="application/json" variablePrefix="@" variableSuffix="#">{{xml .Payload}}</Payload>
  </Set>
  <IgnoreUnresolvedVariables>true</IgnoreUnresolvedVariables>
  <AssignTo createNew="false" transport="http" type="request"/>
</AssignMessage>`)

// TargetsBigQuery writes a target that runs the endpoint's query against
// the BigQuery REST API of the PROJECT parameter's project. Without a
// query, all rows of the target table are selected.
type TargetsBigQuery struct{}

func (TargetsBigQuery) ID() string { return "targets-bigquery" }

func (p TargetsBigQuery) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	query := ep.Target.Query
	if query == "" && ep.Target.Table != "" {
		query = fmt.Sprintf("SELECT * FROM `%s`", ep.Target.Table)
	}
	if query == "" {
		return res, nil
	}

	project := ep.Parameters[generate.ProjectParameter]
	if project == "" {
		return nil, fmt.Errorf("endpoint %s: BigQuery targets need the %s parameter", ep.Name, generate.ProjectParameter)
	}
	payload, err := json.Marshal(map[string]any{"query": query, "useLegacySql": false})
	if err != nil {
		return nil, err
	}
	contents, err := bigQuerySnippet.RenderXML(map[string]any{"Payload": string(payload)})
	if err != nil {
		return nil, err
	}
	res.Add(policyPath(bigQueryPolicy), contents, "")

	pt := targetEndpoint(ep)
	pt.Flows[0].Steps = append([]document.Step{{Name: bigQueryPolicy}}, pt.Flows[0].Steps...)
	pt.URL = fmt.Sprintf(bigQueryAPI, project)
	pt.Auth = "GoogleAccessToken"
	pt.Scopes = []string{bigQueryScope}
	contents, err = encode(bundle.EncodeTarget(pt))
	if err != nil {
		return nil, err
	}
	res.Add("/targets/"+pt.Name+".xml", contents, "")
	return res, nil
}
