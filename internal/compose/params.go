package compose

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"

	"github.com/apigee/apigee-templater/internal/document"
)

// ParameterKey is the template parameter name recording a feature
// parameter: <feature>.<name>, or <feature>.<uid>.<name> for scoped features.
func ParameterKey(f *document.Feature, name string) string {
	if f.UID != "" {
		return f.Name + "." + f.UID + "." + name
	}
	return f.Name + "." + name
}

// resolveValues picks the value of every feature parameter. Caller values
// keyed by ParameterKey win over caller values keyed by the bare name, which
// win over values already recorded on the template, which win over defaults.
func resolveValues(f *document.Feature, recorded []document.Parameter, params map[string]string) map[string]string {
	values := make(map[string]string, len(f.Parameters))
	for _, p := range f.Parameters {
		key := ParameterKey(f, p.Name)
		value := p.Default
		for _, r := range recorded {
			if r.Name == key && r.Default != "" {
				value = r.Default
			}
		}
		if v := params[key]; v != "" {
			value = v
		} else if v := params[p.Name]; v != "" {
			value = v
		}
		values[p.Name] = value
	}
	return values
}

// substitute returns a copy of f with parameter values written in. Parameters
// with paths are set at each JSONPath; the rest replace {name} tokens.
func substitute(f *document.Feature, values map[string]string) (*document.Feature, error) {
	out := f.Clone()

	var pathParams []document.Parameter
	var pairs []string
	for _, p := range f.Parameters {
		if len(p.Paths) > 0 {
			pathParams = append(pathParams, p)
			continue
		}
		pairs = append(pairs, "{"+p.Name+"}", values[p.Name])
	}

	if len(pathParams) > 0 {
		var err error
		out, err = setPaths(out, pathParams, values)
		if err != nil {
			return nil, err
		}
	}
	if len(pairs) > 0 {
		replacer := strings.NewReplacer(pairs...)
		stringMapper{fn: replacer.Replace, names: true}.feature(out)
	}
	return out, nil
}

// setPaths writes parameter values at JSONPath locations of the feature's
// JSON form, then restores the key order of every opaque tree.
func setPaths(f *document.Feature, params []document.Parameter, values map[string]string) (*document.Feature, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}

	for _, p := range params {
		for _, path := range p.Paths {
			x, err := jp.ParseString(path)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: invalid path %q: %w", p.Name, path, err)
			}
			if err := x.Set(data, values[p.Name]); err != nil {
				return nil, fmt.Errorf("parameter %s: failed to set %q: %w", p.Name, path, err)
			}
		}
	}

	raw, err = json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out document.Feature
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	alignTrees(&out, f)
	return &out, nil
}

// alignTrees restores the field order of out's opaque trees from ref, which
// has the same shape.
func alignTrees(out, ref *document.Feature) {
	for i := range out.Policies {
		if i < len(ref.Policies) {
			out.Policies[i].Content.AlignTo(ref.Policies[i].Content)
		}
	}
	alignTarget := func(o, r *document.ProxyTarget) {
		if o == nil || r == nil {
			return
		}
		o.HTTPTargetConnection.AlignTo(r.HTTPTargetConnection)
		o.LocalTargetConnection.AlignTo(r.LocalTargetConnection)
	}
	alignTarget(out.DefaultTarget, ref.DefaultTarget)
	for i := range out.Targets {
		if i < len(ref.Targets) {
			alignTarget(&out.Targets[i], &ref.Targets[i])
		}
	}
	out.Tests.AlignTo(ref.Tests)
}
