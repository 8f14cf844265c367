package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Format is a document serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

type parser func(data []byte, v any) error

func parseJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func parseYAML(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// parsers are tried in order; the first one that accepts the input wins.
var parsers = []parser{parseJSON, parseYAML}

// Decode reads a template from JSON or YAML.
func Decode(data []byte) (*Template, error) {
	for _, parse := range parsers {
		var t Template
		if err := parse(data, &t); err == nil && t.Name != "" {
			return &t, nil
		}
	}
	return nil, terrors.NewNoConvertingFormat("template")
}

// DecodeFeature reads a feature from JSON or YAML.
func DecodeFeature(data []byte) (*Feature, error) {
	for _, parse := range parsers {
		var f Feature
		if err := parse(data, &f); err == nil && f.Name != "" {
			return &f, nil
		}
	}
	return nil, terrors.NewNoConvertingFormat("feature")
}

// Encode writes v (a Template, Feature or Tree) in the requested format.
func Encode(v any, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(v, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
