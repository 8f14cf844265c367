package bundle

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/structext"
)

// WriteDir encodes the template below root as apiproxy/ (or
// sharedflowbundle/ for shared flows), including the manifest.
func (c *Codec) WriteDir(t *document.Template, root string) error {
	if t.Type == document.TypeSharedFlow {
		return c.writeSharedFlow(t, filepath.Join(root, SharedFlowDir))
	}
	return c.writeProxy(t, filepath.Join(root, ProxyDir))
}

func (c *Codec) writeProxy(t *document.Template, base string) error {
	for _, ep := range t.Endpoints {
		if err := c.writeXML(base, "proxies", ep.Name+".xml", EncodeEndpoint(&ep)); err != nil {
			return err
		}
	}
	for _, target := range t.Targets {
		if err := c.writeXML(base, "targets", target.Name+".xml", EncodeTarget(&target)); err != nil {
			return err
		}
	}
	return c.writeCommon(t, base)
}

func (c *Codec) writeSharedFlow(t *document.Template, base string) error {
	endpoints := t.Endpoints
	if len(endpoints) == 0 {
		endpoints = []document.ProxyEndpoint{{Endpoint: document.Endpoint{Name: document.DefaultName}}}
	}
	for _, ep := range endpoints {
		if err := c.writeXML(base, "sharedflows", ep.Name+".xml", EncodeSharedFlow(&ep)); err != nil {
			return err
		}
	}
	return c.writeCommon(t, base)
}

// EncodeSharedFlow builds the <SharedFlow> element holding the steps of all
// of ep's flows in order.
func EncodeSharedFlow(ep *document.ProxyEndpoint) *document.Tree {
	var steps []document.Step
	for _, f := range ep.Flows {
		steps = append(steps, f.Steps...)
	}
	node := document.NewTree().SetAttr("name", ep.Name)
	setSteps(node, steps)
	return document.NewTree().Set("SharedFlow", node)
}

func (c *Codec) writeCommon(t *document.Template, base string) error {
	for _, p := range t.Policies {
		content := p.Content
		if content == nil {
			content = document.NewTree().Set(p.Type, document.NewTree().SetAttr("name", p.Name))
		}
		if err := c.writeXML(base, "policies", p.Name+".xml", content); err != nil {
			return err
		}
	}
	for _, r := range t.Resources {
		path, err := SafeJoin(filepath.Join(base, "resources"), r.Type+"/"+r.Name)
		if err != nil {
			return terrors.NewMalformedBundle(r.Name, "resource path escapes the bundle").WithCause(err)
		}
		if err := c.writeFile(path, []byte(r.Content)); err != nil {
			return err
		}
	}
	data, err := manifestFor(t).encode()
	if err != nil {
		return err
	}
	return c.writeFile(filepath.Join(base, "resources", "jsc", ManifestFile), data)
}

func (c *Codec) writeXML(base, dir, file string, tree *document.Tree) error {
	path, err := SafeJoin(filepath.Join(base, dir), file)
	if err != nil {
		return terrors.NewMalformedBundle(file, "fragment path escapes the bundle").WithCause(err)
	}
	data, err := structext.Encode(tree)
	if err != nil {
		return terrors.NewMalformedBundle(file, "fragment could not be encoded").WithCause(err)
	}
	return c.writeFile(path, data)
}

func (c *Codec) writeFile(path string, data []byte) error {
	if err := c.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(c.fs, path, data, 0o644)
}

// EncodeEndpoint renders a proxy endpoint as a ProxyEndpoint tree.
func EncodeEndpoint(ep *document.ProxyEndpoint) *document.Tree {
	node := document.NewTree().SetAttr("name", ep.Name)
	encodeFaultRules(node, ep.FaultRules, ep.DefaultFaultRule)

	unconditional, conditional := splitFlows(ep.Flows)
	node.Set(document.FlowPreFlow, flowHolder(document.FlowPreFlow, unconditional, true))
	if len(conditional) > 0 {
		node.Set("Flows", encodeConditionalFlows(conditional))
	} else {
		node.Set("Flows", document.NewTree())
	}
	node.Set(document.FlowPostFlow, flowHolder(document.FlowPostFlow, unconditional, true))
	encodeExtraFlows(node, unconditional)

	node.Set("HTTPProxyConnection", document.NewTree().Set("BasePath", ep.BasePath))
	routes := make([]any, 0, len(ep.Routes))
	for _, r := range ep.Routes {
		rule := document.NewTree().SetAttr("name", r.Name)
		if r.Condition != "" {
			rule.Set("Condition", r.Condition)
		}
		if r.Target != "" {
			rule.Set("TargetEndpoint", r.Target)
		}
		routes = append(routes, rule)
	}
	if v := document.Cardinality(routes); v != nil {
		node.Set("RouteRule", v)
	}
	return document.NewTree().Set("ProxyEndpoint", node)
}

// EncodeTarget renders a target as a TargetEndpoint tree.
func EncodeTarget(t *document.ProxyTarget) *document.Tree {
	node := document.NewTree().SetAttr("name", t.Name)
	encodeFaultRules(node, t.FaultRules, t.DefaultFaultRule)

	unconditional, conditional := splitFlows(t.Flows)
	node.Set(document.FlowPreFlow, flowHolder(document.FlowPreFlow, unconditional, true))
	if len(conditional) > 0 {
		node.Set("Flows", encodeConditionalFlows(conditional))
	}
	node.Set(document.FlowPostFlow, flowHolder(document.FlowPostFlow, unconditional, true))
	encodeExtraFlows(node, unconditional)

	switch {
	case t.HTTPTargetConnection != nil:
		conn := t.HTTPTargetConnection.Clone()
		if t.URL != "" && conn.Has("URL") {
			conn.Set("URL", t.URL)
		}
		node.Set("HTTPTargetConnection", withAuthentication(conn, t))
	case t.LocalTargetConnection != nil:
		node.Set("LocalTargetConnection", t.LocalTargetConnection.Clone())
	case t.URL != "":
		node.Set("HTTPTargetConnection", withAuthentication(document.NewTree().Set("URL", t.URL), t))
	}
	return document.NewTree().Set("TargetEndpoint", node)
}

func withAuthentication(conn *document.Tree, t *document.ProxyTarget) *document.Tree {
	if conn.Has("Authentication") {
		return conn
	}
	switch t.Auth {
	case "GoogleAccessToken":
		scopes := make([]any, 0, len(t.Scopes))
		for _, s := range t.Scopes {
			scopes = append(scopes, s)
		}
		if len(scopes) == 0 {
			scopes = append(scopes, cloudPlatformScope)
		}
		conn.Set("Authentication", document.NewTree().Set("GoogleAccessToken",
			document.NewTree().Set("Scopes", document.NewTree().Set("Scope", document.Cardinality(scopes)))))
	case "GoogleIDToken":
		conn.Set("Authentication", document.NewTree().Set("GoogleIDToken",
			document.NewTree().Set("Audience", t.Audience)))
	}
	return conn
}

func splitFlows(flows []document.Flow) (unconditional, conditional []document.Flow) {
	for _, f := range flows {
		if f.Condition != "" {
			conditional = append(conditional, f)
		} else {
			unconditional = append(unconditional, f)
		}
	}
	return unconditional, conditional
}

// flowHolder builds the element for an unconditional flow name holding a
// Request and a Response child. PreFlow and PostFlow always carry both.
func flowHolder(name string, flows []document.Flow, both bool) *document.Tree {
	holder := document.NewTree().SetAttr("name", name)
	if name == document.FlowEventFlow {
		holder.SetAttr("content-type", "text/event-stream")
	}
	for _, mode := range []string{document.ModeRequest, document.ModeResponse} {
		var steps []document.Step
		found := false
		for _, f := range flows {
			if f.Name == name && modeOf(f) == mode {
				steps = append(steps, f.Steps...)
				found = true
			}
		}
		if !found && !both {
			continue
		}
		holder.Set(mode, stepsNode(steps))
	}
	return holder
}

// encodeExtraFlows writes unconditional flows other than PreFlow and
// PostFlow (PostClientFlow, EventFlow, ...) in first-seen order.
func encodeExtraFlows(node *document.Tree, flows []document.Flow) {
	for _, f := range flows {
		if f.Name == document.FlowPreFlow || f.Name == document.FlowPostFlow || node.Has(f.Name) {
			continue
		}
		node.Set(f.Name, flowHolder(f.Name, flows, false))
	}
}

// encodeConditionalFlows groups flows sharing a name and condition into
// one Flow element with Request and Response children.
func encodeConditionalFlows(flows []document.Flow) *document.Tree {
	type key struct{ name, condition string }
	var order []key
	groups := map[key]*document.Tree{}
	for _, f := range flows {
		k := key{f.Name, f.Condition}
		group, ok := groups[k]
		if !ok {
			group = document.NewTree().SetAttr("name", f.Name)
			groups[k] = group
			order = append(order, k)
		}
		mode := modeOf(f)
		if existing := group.Child(mode); existing != nil {
			steps := append(decodeSteps(existing), f.Steps...)
			group.Set(mode, stepsNode(steps))
		} else {
			group.Set(mode, stepsNode(f.Steps))
		}
	}
	items := make([]any, 0, len(order))
	for _, k := range order {
		group := groups[k]
		for _, mode := range []string{document.ModeRequest, document.ModeResponse} {
			if !group.Has(mode) {
				group.Set(mode, document.NewTree())
			}
		}
		group.Set("Condition", k.condition)
		items = append(items, group)
	}
	return document.NewTree().Set("Flow", document.Cardinality(items))
}

func modeOf(f document.Flow) string {
	if f.Mode == "" {
		return document.ModeRequest
	}
	return f.Mode
}

func encodeFaultRules(node *document.Tree, rules []document.Flow, def *document.FaultRule) {
	if len(rules) > 0 {
		items := make([]any, 0, len(rules))
		for _, r := range rules {
			rule := document.NewTree().SetAttr("name", r.Name)
			setSteps(rule, r.Steps)
			if r.Condition != "" {
				rule.Set("Condition", r.Condition)
			}
			items = append(items, rule)
		}
		node.Set("FaultRules", document.NewTree().Set("FaultRule", document.Cardinality(items)))
	}
	if def != nil {
		rule := document.NewTree().SetAttr("name", def.Name)
		setSteps(rule, def.Steps)
		if def.Condition != "" {
			rule.Set("Condition", def.Condition)
		}
		if def.AlwaysEnforce {
			rule.Set("AlwaysEnforce", "true")
		}
		node.Set("DefaultFaultRule", rule)
	}
}

func stepsNode(steps []document.Step) *document.Tree {
	node := document.NewTree()
	setSteps(node, steps)
	return node
}

func setSteps(node *document.Tree, steps []document.Step) {
	items := make([]any, 0, len(steps))
	for _, s := range steps {
		step := document.NewTree().Set("Name", s.Name)
		if s.Condition != "" {
			step.Set("Condition", s.Condition)
		}
		items = append(items, step)
	}
	if v := document.Cardinality(items); v != nil {
		node.Set("Step", v)
	}
}

