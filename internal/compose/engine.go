// Package compose merges features into templates and takes them out again.
package compose

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Engine applies and removes features. It never mutates its inputs.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Apply returns a copy of t with f merged in.
func (e *Engine) Apply(t *document.Template, f *document.Feature, params map[string]string) (*document.Template, error) {
	if t.HasFeature(f.Name) {
		return nil, terrors.NewFeatureAlreadyApplied(t.Name, f.Name)
	}
	values := resolveValues(f, t.Parameters, params)
	feature, err := e.prepare(f, values)
	if err != nil {
		return nil, err
	}

	out := t.Clone()
	if feature.DefaultEndpoint != nil {
		for i := range out.Endpoints {
			ep := &out.Endpoints[i]
			ep.Flows = mergeFlows(ep.Flows, feature.DefaultEndpoint.Flows)
			ep.DefaultFaultRule = mergeFaultRule(ep.DefaultFaultRule, feature.DefaultEndpoint.DefaultFaultRule)
		}
	}
	if feature.DefaultTarget != nil {
		for i := range out.Targets {
			target := &out.Targets[i]
			target.Flows = mergeFlows(target.Flows, feature.DefaultTarget.Flows)
			target.DefaultFaultRule = mergeFaultRule(target.DefaultFaultRule, feature.DefaultTarget.DefaultFaultRule)
		}
	}

	for _, ep := range feature.Endpoints {
		if existing := out.Endpoint(ep.Name); existing != nil {
			e.conflict(f, "endpoint", ep.Name)
			out.Shadowed = append(out.Shadowed, document.Shadowed{Feature: f.Name, Endpoint: existing.Clone()})
			*existing = ep
			continue
		}
		out.Endpoints = append(out.Endpoints, ep)
	}
	for _, target := range feature.Targets {
		if existing := out.Target(target.Name); existing != nil {
			e.conflict(f, "target", target.Name)
			out.Shadowed = append(out.Shadowed, document.Shadowed{Feature: f.Name, Target: existing.Clone()})
			*existing = target
			continue
		}
		out.Targets = append(out.Targets, target)
	}
	for _, p := range feature.Policies {
		if existing := out.Policy(p.Name); existing != nil {
			e.conflict(f, "policy", p.Name)
			prev := *existing
			out.Shadowed = append(out.Shadowed, document.Shadowed{Feature: f.Name, Policy: &prev})
			*existing = p
			continue
		}
		out.Policies = append(out.Policies, p)
	}
	for _, r := range feature.Resources {
		if i := resourceIndex(out.Resources, r); i >= 0 {
			e.conflict(f, "resource", r.Name)
			prev := out.Resources[i]
			out.Resources[i] = r
			out.Shadowed = append(out.Shadowed, document.Shadowed{Feature: f.Name, Resource: &prev})
			continue
		}
		out.Resources = append(out.Resources, r)
	}

	for _, p := range f.Parameters {
		key := ParameterKey(f, p.Name)
		if existing := out.Parameter(key); existing != nil {
			existing.Default = values[p.Name]
			continue
		}
		recorded := p
		recorded.Name = key
		recorded.Default = values[p.Name]
		recorded.Paths = nil
		out.Parameters = append(out.Parameters, recorded)
	}
	out.Features = append(out.Features, f.Name)

	e.logger.Debug("applied feature",
		zap.String("template", t.Name),
		zap.String("feature", f.Name),
		zap.Int("policies", len(feature.Policies)))
	return out, nil
}

// Remove returns a copy of t with everything f contributed taken out.
func (e *Engine) Remove(t *document.Template, f *document.Feature) (*document.Template, error) {
	if !t.HasFeature(f.Name) {
		return nil, terrors.NewFeatureNotApplied(t.Name, f.Name)
	}
	values := resolveValues(f, t.Parameters, nil)
	feature, err := e.prepare(f, values)
	if err != nil {
		return nil, err
	}

	out := t.Clone()
	if feature.DefaultEndpoint != nil {
		for i := range out.Endpoints {
			ep := &out.Endpoints[i]
			ep.Flows = unmergeFlows(ep.Flows, feature.DefaultEndpoint.Flows)
			ep.DefaultFaultRule = unmergeFaultRule(ep.DefaultFaultRule, feature.DefaultEndpoint.DefaultFaultRule)
		}
	}
	if feature.DefaultTarget != nil {
		for i := range out.Targets {
			target := &out.Targets[i]
			target.Flows = unmergeFlows(target.Flows, feature.DefaultTarget.Flows)
			target.DefaultFaultRule = unmergeFaultRule(target.DefaultFaultRule, feature.DefaultTarget.DefaultFaultRule)
		}
	}

	for _, ep := range feature.Endpoints {
		out.Endpoints = removeWhere(out.Endpoints, func(x document.ProxyEndpoint) bool { return x.Name == ep.Name })
	}
	for _, target := range feature.Targets {
		out.Targets = removeWhere(out.Targets, func(x document.ProxyTarget) bool { return x.Name == target.Name })
	}
	for _, p := range feature.Policies {
		out.Policies = removeWhere(out.Policies, func(x document.Policy) bool { return x.Name == p.Name })
	}
	for _, r := range feature.Resources {
		out.Resources = removeWhere(out.Resources, func(x document.Resource) bool { return x.Name == r.Name && x.Type == r.Type })
	}
	for _, p := range f.Parameters {
		key := ParameterKey(f, p.Name)
		out.Parameters = removeWhere(out.Parameters, func(x document.Parameter) bool { return x.Name == key })
	}
	restoreShadowed(out, f.Name)
	out.Features = removeWhere(out.Features, func(x string) bool { return x == f.Name })

	e.logger.Debug("removed feature", zap.String("template", t.Name), zap.String("feature", f.Name))
	return out, nil
}

// ApplyAll applies features by ascending priority. Features contributing
// endpoints or targets go first so policy-only features also reach them.
// Features already on the template are skipped.
func (e *Engine) ApplyAll(t *document.Template, features []*document.Feature, params map[string]string) (*document.Template, error) {
	ordered := append([]*document.Feature(nil), features...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectivePriority() < ordered[j].EffectivePriority()
	})

	out := t
	for _, structural := range []bool{true, false} {
		for _, f := range ordered {
			if f.Structural() != structural {
				continue
			}
			if out.HasFeature(f.Name) {
				e.logger.Debug("feature already applied, skipping", zap.String("feature", f.Name))
				continue
			}
			next, err := e.Apply(out, f, params)
			if err != nil {
				return nil, err
			}
			out = next
		}
	}
	if out == t {
		out = t.Clone()
	}
	return out, nil
}

// restoreShadowed puts back the entities feature replaced on apply.
func restoreShadowed(t *document.Template, feature string) {
	var kept []document.Shadowed
	for _, sh := range t.Shadowed {
		if sh.Feature != feature {
			kept = append(kept, sh)
			continue
		}
		switch {
		case sh.Endpoint != nil:
			t.Endpoints = append(t.Endpoints, *sh.Endpoint)
		case sh.Target != nil:
			t.Targets = append(t.Targets, *sh.Target)
		case sh.Policy != nil:
			t.Policies = append(t.Policies, *sh.Policy)
		case sh.Resource != nil:
			t.Resources = append(t.Resources, *sh.Resource)
		}
	}
	t.Shadowed = kept
}

// prepare substitutes parameters and scopes names with the feature uid.
func (e *Engine) prepare(f *document.Feature, values map[string]string) (*document.Feature, error) {
	feature, err := substitute(f, values)
	if err != nil {
		return nil, err
	}
	scope(feature)
	return feature, nil
}

func (e *Engine) conflict(f *document.Feature, kind, name string) {
	e.logger.Warn("feature overwrites existing entity",
		zap.String("feature", f.Name),
		zap.String("kind", kind),
		zap.String("name", name))
}

// mergeFlows prepends the steps of each feature flow to the flow with the
// same identity, or appends the flow when there is none.
func mergeFlows(flows, feature []document.Flow) []document.Flow {
	for _, ff := range feature {
		found := false
		for i := range flows {
			if flows[i].SameAs(ff) {
				steps := make([]document.Step, 0, len(ff.Steps)+len(flows[i].Steps))
				steps = append(steps, ff.Steps...)
				flows[i].Steps = append(steps, flows[i].Steps...)
				found = true
				break
			}
		}
		if !found {
			flows = append(flows, ff.Clone())
		}
	}
	return flows
}

func mergeFaultRule(rule, feature *document.FaultRule) *document.FaultRule {
	if feature == nil {
		return rule
	}
	if rule == nil {
		return feature.Clone()
	}
	steps := make([]document.Step, 0, len(feature.Steps)+len(rule.Steps))
	steps = append(steps, feature.Steps...)
	rule.Steps = append(steps, rule.Steps...)
	return rule
}

// unmergeFlows removes the first matching step for every feature step and
// drops flows the removal left empty.
func unmergeFlows(flows, feature []document.Flow) []document.Flow {
	emptied := map[int]bool{}
	for _, ff := range feature {
		for i := range flows {
			if !flows[i].SameAs(ff) {
				continue
			}
			removed := false
			for _, s := range ff.Steps {
				var ok bool
				flows[i].Steps, ok = removeStep(flows[i].Steps, s)
				removed = removed || ok
			}
			if removed && len(flows[i].Steps) == 0 {
				emptied[i] = true
			}
			break
		}
	}
	if len(emptied) == 0 {
		return flows
	}
	kept := make([]document.Flow, 0, len(flows)-len(emptied))
	for i, f := range flows {
		if !emptied[i] {
			kept = append(kept, f)
		}
	}
	return kept
}

func unmergeFaultRule(rule, feature *document.FaultRule) *document.FaultRule {
	if rule == nil || feature == nil {
		return rule
	}
	removed := false
	for _, s := range feature.Steps {
		var ok bool
		rule.Steps, ok = removeStep(rule.Steps, s)
		removed = removed || ok
	}
	if removed && len(rule.Steps) == 0 {
		return nil
	}
	return rule
}

func removeStep(steps []document.Step, s document.Step) ([]document.Step, bool) {
	for i, x := range steps {
		if x.Name == s.Name && x.Condition == s.Condition {
			return append(steps[:i:i], steps[i+1:]...), true
		}
	}
	return steps, false
}

func resourceIndex(resources []document.Resource, r document.Resource) int {
	for i, x := range resources {
		if x.Name == r.Name && x.Type == r.Type {
			return i
		}
	}
	return -1
}

func removeWhere[T any](items []T, match func(T) bool) []T {
	out := items[:0:0]
	for _, item := range items {
		if !match(item) {
			out = append(out, item)
		}
	}
	return out
}

// scope prefixes the names a feature contributes with its uid so several
// instances of one feature can live side by side.
func scope(f *document.Feature) {
	if f.UID == "" {
		return
	}
	prefix := f.UID + "-"

	policies := map[string]string{}
	for i := range f.Policies {
		p := &f.Policies[i]
		renamed := prefix + p.Name
		policies[p.Name] = renamed
		if root := p.Content.Child(p.Type); root != nil && root.Attr("name") == p.Name {
			root.SetAttr("name", renamed)
		}
		p.Name = renamed
	}
	renameSteps(f, policies)

	var refs []reference
	for old, renamed := range policies {
		refs = append(refs, reference{old + ".", renamed + "."})
	}
	for i := range f.Resources {
		r := &f.Resources[i]
		renamed := prefix + r.Name
		if base, ok := strings.CutSuffix(r.Name, ".properties"); ok {
			refs = append(refs, reference{"propertyset." + base + ".", "propertyset." + prefix + base + "."})
		} else {
			refs = append(refs, reference{"://" + r.Name, "://" + renamed})
		}
		r.Name = renamed
	}
	if len(refs) > 0 {
		stringMapper{fn: referenceRewriter(refs)}.feature(f)
	}

	for i := range f.Endpoints {
		ep := &f.Endpoints[i]
		ep.Name = prefix + ep.Name
		for j := range ep.Routes {
			if ep.Routes[j].Target != "" {
				ep.Routes[j].Target = prefix + ep.Routes[j].Target
			}
		}
	}
	for i := range f.Targets {
		f.Targets[i].Name = prefix + f.Targets[i].Name
	}
}

type reference struct {
	from, to string
}

// referenceRewriter replaces references. A reference beginning with a name
// character only matches at the start of a word, so "Key." does not rewrite
// "VerifyKey.". Longer references are tried first.
func referenceRewriter(refs []reference) func(string) string {
	sort.Slice(refs, func(i, j int) bool {
		if len(refs[i].from) != len(refs[j].from) {
			return len(refs[i].from) > len(refs[j].from)
		}
		return refs[i].from < refs[j].from
	})
	return func(s string) string {
		if s == "" {
			return s
		}
		var b strings.Builder
		for i := 0; i < len(s); {
			matched := false
			for _, ref := range refs {
				if isNameChar(ref.from[0]) && i > 0 && isNameChar(s[i-1]) {
					continue
				}
				if strings.HasPrefix(s[i:], ref.from) {
					b.WriteString(ref.to)
					i += len(ref.from)
					matched = true
					break
				}
			}
			if !matched {
				b.WriteByte(s[i])
				i++
			}
		}
		return b.String()
	}
}

func isNameChar(c byte) bool {
	return c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
