package generate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

const jsonInput = `{
  "name": "petstore",
  "profile": "default",
  "endpoints": [{
    "name": "default",
    "basePath": "/pets",
    "target": {"name": "default", "url": "https://example.com"},
    "auth": [{"type": "apiKey"}],
    "extensionSteps": [{
      "type": "AssignMessage",
      "name": "AM-SetHeader",
      "flowRunPoints": [{"runPoints": ["preRequest"]}],
      "set": {"headers": [{"name": "x-test", "value": "1"}]}
    }]
  }]
}`

const yamlInput = `
name: petstore
endpoints:
  - name: default
    basePath: /pets
    target:
      name: default
      url: https://example.com
    extensionSteps:
      - type: ExtractVariables
        name: Path
        flowRunPoints:
          - runPoints: [preRequest]
        prefix: path
`

func TestConvert(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantName  string
		wantSteps int
		wantErr   bool
	}{
		{name: "json", input: jsonInput, wantName: "petstore", wantSteps: 1},
		{name: "yaml", input: yamlInput, wantName: "petstore", wantSteps: 1},
		{name: "no name", input: `{"endpoints": [{"name": "default"}]}`, wantErr: true},
		{name: "not structured", input: "just some text", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := Convert([]byte(tt.input), DefaultConverters()...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, terrors.HasCode(err, terrors.NoConvertingFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, input.Name)
			assert.Equal(t, DefaultProfile, input.ProfileName())
			require.Len(t, input.Endpoints, 1)
			assert.Len(t, input.Endpoints[0].ExtensionSteps, tt.wantSteps)
		})
	}
}

func TestConvert_NoConverters(t *testing.T) {
	_, err := Convert([]byte(jsonInput))
	assert.True(t, terrors.HasCode(err, terrors.NoConvertingFormat))
}

func TestExtensionStep_KeepsRawObject(t *testing.T) {
	input, err := Convert([]byte(jsonInput), JSONConverter{})
	require.NoError(t, err)

	step := input.Endpoints[0].ExtensionSteps[0]
	assert.Equal(t, "AssignMessage", step.Type)
	assert.Equal(t, "AM-SetHeader", step.Name)
	require.Len(t, step.FlowRunPoints, 1)
	assert.Equal(t, []RunPoint{RunPointPreRequest}, step.FlowRunPoints[0].RunPoints)
	assert.Equal(t, []string{"type", "name", "flowRunPoints", "set"}, step.Raw.Keys())

	var config struct {
		Set struct {
			Headers []struct{ Name, Value string } `json:"headers"`
		} `json:"set"`
	}
	require.NoError(t, step.Decode(&config))
	require.Len(t, config.Set.Headers, 1)
	assert.Equal(t, "x-test", config.Set.Headers[0].Name)
}

func TestExtensionStep_YAML(t *testing.T) {
	input, err := Convert([]byte(yamlInput), YAMLConverter{})
	require.NoError(t, err)

	step := input.Endpoints[0].ExtensionSteps[0]
	assert.Equal(t, "ExtractVariables", step.Type)
	assert.Equal(t, "path", step.Raw.Scalar("prefix"))

	out, err := yaml.Marshal(step)
	require.NoError(t, err)
	assert.Contains(t, string(out), "prefix: path")
}

func TestExtensionStep_MarshalHeaderOnly(t *testing.T) {
	step := ExtensionStep{Type: "FlowCallout", Name: "Auth"}
	data, err := json.Marshal(step)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "FlowCallout", "name": "Auth", "flowRunPoints": null}`, string(data))
}
