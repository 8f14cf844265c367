package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/structext"
)

// Any converts the step's "properties" object to a policy named after the
// step. properties must hold exactly one root element; it gets the step
// name as its name attribute unless it already has one. The policy is
// written as a bare fragment without an XML declaration.
type Any struct{}

func (Any) ID() string { return "any" }

func (p Any) Apply(_ context.Context, _ *generate.EndpointConfig, step *generate.ExtensionStep) (*generate.Result, error) {
	props := step.Raw.Child("properties")
	if props.Len() != 1 {
		return nil, fmt.Errorf("step %s: properties must hold exactly one root element, got %d", step.Name, props.Len())
	}
	policy := props.Clone()
	root := policy.Fields()[0]
	tree, ok := root.Value.(*document.Tree)
	if !ok {
		tree = document.NewTree()
		if s := document.ScalarString(root.Value); s != "" {
			tree.Set(document.TextKey, s)
		}
		policy.Set(root.Key, tree)
	}
	if tree.Attr("name") == "" {
		tree.SetAttr("name", step.Name)
	}

	contents, err := structext.EncodeFragment(policy)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.Name, err)
	}
	res := generate.NewResult(p.ID())
	res.Add(policyPath(step.Name), string(contents), step.Name, step.FlowRunPoints...)
	return res, nil
}
