// Package plugins holds the built-in generation plugins and profiles.
package plugins

import (
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/structext"
	"github.com/apigee/apigee-templater/internal/templates"
)

var snippets = templates.NewRegistry(nil)

// Snippets returns the policy snippets the built-in plugins render.
func Snippets() *templates.Registry {
	return snippets
}

func policyPath(name string) string {
	return "/policies/" + name + ".xml"
}

func encode(tree *document.Tree) (string, error) {
	out, err := structext.Encode(tree)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
