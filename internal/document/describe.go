package document

import (
	"fmt"
	"strings"
)

// Describe returns a line-oriented summary of the template.
func (t *Template) Describe() string {
	var lines []string
	if t.Name != "" {
		lines = append(lines, "Name: "+t.Name)
	}
	if t.Description != "" {
		lines = append(lines, "Description: "+t.Description)
	}
	lines = appendList(lines, "Features", t.Features)
	lines = appendList(lines, "Parameters", parameterLines(t.Parameters))
	lines = appendList(lines, "Endpoints", endpointLines(t.Endpoints))
	lines = appendList(lines, "Targets", targetLines(t.Targets))
	lines = appendList(lines, "Policies", policyLines(t.Policies))
	lines = appendList(lines, "Resources", resourceLines(t.Resources))
	return strings.Join(lines, "\n")
}

// Describe returns a line-oriented summary of the feature.
func (f *Feature) Describe() string {
	var lines []string
	if f.Name != "" {
		lines = append(lines, "Name: "+f.Name)
	}
	if f.Description != "" {
		lines = append(lines, "Description: "+f.Description)
	}
	if f.UID != "" {
		lines = append(lines, "UID: "+f.UID)
	}
	lines = append(lines, fmt.Sprintf("Priority: %d", f.EffectivePriority()))
	lines = appendList(lines, "Parameters", parameterLines(f.Parameters))

	var flows []string
	if f.DefaultEndpoint != nil {
		for _, fl := range f.DefaultEndpoint.Flows {
			flows = append(flows, "endpoint "+flowLine(fl))
		}
	}
	if f.DefaultTarget != nil {
		for _, fl := range f.DefaultTarget.Flows {
			flows = append(flows, "target "+flowLine(fl))
		}
	}
	lines = appendList(lines, "Flows", flows)
	lines = appendList(lines, "Endpoints", endpointLines(f.Endpoints))
	lines = appendList(lines, "Targets", targetLines(f.Targets))
	lines = appendList(lines, "Policies", policyLines(f.Policies))
	lines = appendList(lines, "Resources", resourceLines(f.Resources))
	return strings.Join(lines, "\n")
}

func appendList(lines []string, title string, items []string) []string {
	if len(items) == 0 {
		return append(lines, title+": none")
	}
	lines = append(lines, title+":")
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return lines
}

func parameterLines(ps []Parameter) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		line := p.Name
		if p.Default != "" {
			line += " - " + p.Default
		}
		if p.Description != "" {
			line += " (" + p.Description + ")"
		}
		out = append(out, line)
	}
	return out
}

func endpointLines(es []ProxyEndpoint) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.BasePath)
	}
	return out
}

func targetLines(ts []ProxyTarget) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name+" - "+t.URL)
	}
	return out
}

func policyLines(ps []Policy) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name+" - "+p.Type)
	}
	return out
}

func resourceLines(rs []Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Name+" - "+r.Type)
	}
	return out
}

func flowLine(f Flow) string {
	names := make([]string, 0, len(f.Steps))
	for _, s := range f.Steps {
		names = append(names, s.Name)
	}
	line := f.Name
	if f.Mode != "" {
		line += " " + f.Mode
	}
	if f.Condition != "" {
		line += " [" + f.Condition + "]"
	}
	return line + ": " + strings.Join(names, ", ")
}
