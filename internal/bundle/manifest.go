package bundle

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/apigee/apigee-templater/internal/document"
)

// ManifestFile carries template metadata that has no place in the bundle
// layout. It lives under resources/jsc and is never decoded as a resource.
const ManifestFile = "templater-manifest.js"

type manifest struct {
	Name        string               `json:"name"`
	Type        string               `json:"type,omitempty"`
	UID         string               `json:"uid,omitempty"`
	DisplayName string               `json:"displayName,omitempty"`
	Description string               `json:"description,omitempty"`
	Priority    int                  `json:"priority,omitempty"`
	Categories  []string             `json:"categories,omitempty"`
	Features    []string             `json:"features,omitempty"`
	Parameters  []document.Parameter `json:"parameters,omitempty"`
	Tests       *document.Tree       `json:"tests,omitempty"`
}

func manifestFor(t *document.Template) manifest {
	return manifest{
		Name:        t.Name,
		Type:        t.Type,
		UID:         t.UID,
		DisplayName: t.DisplayName,
		Description: t.Description,
		Priority:    t.Priority,
		Categories:  t.Categories,
		Features:    t.Features,
		Parameters:  t.Parameters,
		Tests:       t.Tests,
	}
}

// encode renders the manifest as a script assigning the proxy variable.
func (m manifest) encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("var proxy=")
	buf.Write(data)
	buf.WriteString(";\n")
	return buf.Bytes(), nil
}

func parseManifest(data []byte) (*manifest, error) {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end < start {
		return nil, errors.New("manifest holds no object")
	}
	var m manifest
	if err := json.Unmarshal(data[start:end+1], &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *manifest) applyTo(t *document.Template) {
	if m.Description != "" {
		t.Description = m.Description
	}
	if m.UID != "" {
		t.UID = m.UID
	}
	if m.DisplayName != "" {
		t.DisplayName = m.DisplayName
	}
	if m.Priority != 0 {
		t.Priority = m.Priority
	}
	if len(m.Categories) > 0 {
		t.Categories = m.Categories
	}
	if len(m.Features) > 0 {
		t.Features = m.Features
	}
	if len(m.Parameters) > 0 {
		t.Parameters = m.Parameters
	}
	if m.Tests != nil {
		t.Tests = m.Tests
	}
}
