package generate

import (
	"bytes"
	"encoding/json"
	"errors"

	"gopkg.in/yaml.v3"

	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/store"
)

// Converter turns raw input text into a TemplateInput.
type Converter interface {
	Name() string
	Convert(data []byte) (*TemplateInput, error)
}

// DefaultConverters returns the JSON and YAML converters, in that order.
func DefaultConverters() []Converter {
	return []Converter{JSONConverter{}, YAMLConverter{}}
}

// Convert tries each converter in turn; the first success wins.
func Convert(data []byte, converters ...Converter) (*TemplateInput, error) {
	var errs []error
	for _, c := range converters {
		input, err := c.Convert(data)
		if err == nil {
			return input, nil
		}
		errs = append(errs, err)
	}
	return nil, terrors.NewNoConvertingFormat("generation input").WithCause(errors.Join(errs...))
}

// JSONConverter reads JSON input.
type JSONConverter struct{}

func (JSONConverter) Name() string { return "json" }

func (JSONConverter) Convert(data []byte) (*TemplateInput, error) {
	var input TemplateInput
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&input); err != nil {
		return nil, err
	}
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	return &input, nil
}

// YAMLConverter reads YAML input.
type YAMLConverter struct{}

func (YAMLConverter) Name() string { return "yaml" }

func (YAMLConverter) Convert(data []byte) (*TemplateInput, error) {
	var input TemplateInput
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	return &input, nil
}

func validateInput(input *TemplateInput) error {
	if input.Name == "" {
		return errors.New("input has no name")
	}
	if err := store.ValidateName(store.KindTemplate, input.Name); err != nil {
		return err
	}
	if len(input.Endpoints) == 0 && input.SharedFlow == nil {
		return errors.New("input has neither endpoints nor a shared flow")
	}
	return nil
}
