package bundle

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/structext"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// flowSlots is the decode order of unconditional flows.
var flowSlots = []struct{ name, mode string }{
	{document.FlowPreFlow, document.ModeRequest},
	{document.FlowPreFlow, document.ModeResponse},
	{document.FlowPostFlow, document.ModeRequest},
	{document.FlowPostFlow, document.ModeResponse},
	{document.FlowPostClientFlow, document.ModeResponse},
}

// ReadDir decodes an extracted bundle. root is the directory holding
// apiproxy/ or sharedflowbundle/.
func (c *Codec) ReadDir(root, name string) (*document.Template, error) {
	if ok, _ := afero.DirExists(c.fs, filepath.Join(root, SharedFlowDir)); ok {
		return c.readSharedFlow(filepath.Join(root, SharedFlowDir), name)
	}
	return c.readProxy(filepath.Join(root, ProxyDir), name)
}

func newTemplate(name, kind string) *document.Template {
	return &document.Template{
		Name:        name,
		Type:        kind,
		Description: name,
		Features:    []string{},
		Parameters:  []document.Parameter{},
		Endpoints:   []document.ProxyEndpoint{},
		Targets:     []document.ProxyTarget{},
		Policies:    []document.Policy{},
		Resources:   []document.Resource{},
	}
}

func (c *Codec) readProxy(base, name string) (*document.Template, error) {
	proxiesDir := filepath.Join(base, "proxies")
	if ok, _ := afero.DirExists(c.fs, proxiesDir); !ok {
		return nil, terrors.NewMalformedBundle(name, "bundle has no proxies directory")
	}
	t := newTemplate(name, document.TypeProxy)

	files, err := c.xmlFiles(proxiesDir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		tree, err := c.readXML(file)
		if err != nil {
			return nil, err
		}
		ep, err := decodeEndpoint(file, tree)
		if err != nil {
			return nil, err
		}
		t.Endpoints = append(t.Endpoints, *ep)
	}

	files, err = c.xmlFiles(filepath.Join(base, "targets"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		tree, err := c.readXML(file)
		if err != nil {
			return nil, err
		}
		target, err := decodeTarget(file, tree)
		if err != nil {
			return nil, err
		}
		t.Targets = append(t.Targets, *target)
	}

	if err := c.readPolicies(base, t); err != nil {
		return nil, err
	}
	if err := c.readResources(base, t); err != nil {
		return nil, err
	}
	c.logger.Debug("decoded proxy bundle",
		zap.String("template", name),
		zap.Int("endpoints", len(t.Endpoints)),
		zap.Int("targets", len(t.Targets)),
		zap.Int("policies", len(t.Policies)))
	return t, nil
}

func (c *Codec) readSharedFlow(base, name string) (*document.Template, error) {
	flowsDir := filepath.Join(base, "sharedflows")
	if ok, _ := afero.DirExists(c.fs, flowsDir); !ok {
		return nil, terrors.NewMalformedBundle(name, "bundle has no sharedflows directory")
	}
	t := newTemplate(name, document.TypeSharedFlow)

	files, err := c.xmlFiles(flowsDir)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		tree, err := c.readXML(file)
		if err != nil {
			return nil, err
		}
		sf := tree.Child("SharedFlow")
		if sf == nil {
			return nil, terrors.NewMalformedBundle(file, "shared flow has no SharedFlow element")
		}
		ep := document.ProxyEndpoint{
			Endpoint: document.Endpoint{Name: sf.Attr("name"), Routes: []document.Route{}},
			Flows:    []document.Flow{},
		}
		if ep.Name == "" {
			ep.Name = strings.TrimSuffix(filepath.Base(file), ".xml")
		}
		if steps := decodeSteps(sf); len(steps) > 0 {
			ep.Flows = append(ep.Flows, document.Flow{Name: document.FlowPreFlow, Mode: document.ModeRequest, Steps: steps})
		}
		t.Endpoints = append(t.Endpoints, ep)
	}

	if err := c.readPolicies(base, t); err != nil {
		return nil, err
	}
	if err := c.readResources(base, t); err != nil {
		return nil, err
	}
	return t, nil
}

// xmlFiles lists the .xml files of dir in name order. A missing directory
// yields no files.
func (c *Codec) xmlFiles(dir string) ([]string, error) {
	if ok, _ := afero.DirExists(c.fs, dir); !ok {
		return nil, nil
	}
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Codec) readXML(file string) (*document.Tree, error) {
	data, err := afero.ReadFile(c.fs, file)
	if err != nil {
		return nil, err
	}
	tree, err := structext.Decode(data)
	if err != nil {
		return nil, terrors.NewMalformedBundle(filepath.Base(file), "fragment is not well-formed").WithCause(err)
	}
	return tree, nil
}

func decodeEndpoint(file string, tree *document.Tree) (*document.ProxyEndpoint, error) {
	node := tree.Child("ProxyEndpoint")
	if node == nil {
		return nil, terrors.NewMalformedBundle(filepath.Base(file), "endpoint has no ProxyEndpoint element")
	}
	name := node.Attr("name")
	if name == "" {
		return nil, terrors.NewMalformedBundle(filepath.Base(file), "endpoint has no name")
	}
	conn := node.Child("HTTPProxyConnection")
	if conn == nil || !conn.Has("BasePath") {
		return nil, terrors.NewMalformedBundle(filepath.Base(file), "endpoint has no HTTPProxyConnection/BasePath")
	}

	ep := &document.ProxyEndpoint{
		Endpoint: document.Endpoint{
			Name:     name,
			BasePath: conn.Scalar("BasePath"),
			Routes:   []document.Route{},
		},
	}
	for _, item := range node.Items("RouteRule") {
		rule := asTree(item)
		ep.Routes = append(ep.Routes, document.Route{
			Name:      rule.Attr("name"),
			Condition: rule.Scalar("Condition"),
			Target:    rule.Scalar("TargetEndpoint"),
		})
	}
	ep.Flows = decodeFlows(node)
	ep.FaultRules = decodeFaultRules(node)
	ep.DefaultFaultRule = decodeDefaultFaultRule(node)
	return ep, nil
}

func decodeTarget(file string, tree *document.Tree) (*document.ProxyTarget, error) {
	node := tree.Child("TargetEndpoint")
	if node == nil {
		return nil, terrors.NewMalformedBundle(filepath.Base(file), "target has no TargetEndpoint element")
	}
	target := &document.ProxyTarget{
		Target: document.Target{Name: node.Attr("name")},
	}
	if target.Name == "" {
		target.Name = strings.TrimSuffix(filepath.Base(file), ".xml")
	}

	if conn := node.Child("HTTPTargetConnection"); conn != nil {
		target.URL = conn.Scalar("URL")
		auth := conn.Child("Authentication")
		if token := auth.Child("GoogleAccessToken"); token != nil || auth.Has("GoogleAccessToken") {
			target.Auth = "GoogleAccessToken"
			for _, s := range token.Child("Scopes").Items("Scope") {
				target.Scopes = append(target.Scopes, document.ScalarString(s))
			}
			if len(target.Scopes) == 0 {
				target.Scopes = []string{cloudPlatformScope}
			}
		} else if auth.Has("GoogleIDToken") {
			target.Auth = "GoogleIDToken"
			target.Audience = auth.Child("GoogleIDToken").Scalar("Audience")
		}
		if hasExtraConnection(conn, target.Auth) {
			target.HTTPTargetConnection = conn
		}
	} else if local := node.Child("LocalTargetConnection"); local != nil {
		target.LocalTargetConnection = local
	}

	target.Flows = decodeFlows(node)
	target.FaultRules = decodeFaultRules(node)
	target.DefaultFaultRule = decodeDefaultFaultRule(node)
	return target, nil
}

// hasExtraConnection reports whether conn holds anything beyond the URL and
// the authentication already captured on the target.
func hasExtraConnection(conn *document.Tree, auth string) bool {
	for _, key := range conn.Keys() {
		switch key {
		case "URL":
		case "Authentication":
			if !capturedAuthentication(conn.Child(key), auth) {
				return true
			}
		default:
			return true
		}
	}
	return false
}

func capturedAuthentication(node *document.Tree, auth string) bool {
	if auth == "" || node.Len() != 1 || !node.Has(auth) {
		return false
	}
	for _, key := range node.Child(auth).Keys() {
		if key != "Scopes" && key != "Audience" {
			return false
		}
	}
	return true
}

// decodeFlows reads unconditional flows in slot order, then EventFlow,
// then the conditional flows. Unconditional flows without steps are dropped.
func decodeFlows(node *document.Tree) []document.Flow {
	flows := []document.Flow{}
	for _, slot := range flowSlots {
		holder := node.Child(slot.name)
		if !holder.Has(slot.mode) {
			continue
		}
		if steps := decodeSteps(holder.Child(slot.mode)); len(steps) > 0 {
			flows = append(flows, document.Flow{Name: slot.name, Mode: slot.mode, Steps: steps})
		}
	}
	if event := node.Child(document.FlowEventFlow); event.Has(document.ModeResponse) {
		flows = append(flows, document.Flow{
			Name:  document.FlowEventFlow,
			Mode:  document.ModeResponse,
			Steps: decodeSteps(event.Child(document.ModeResponse)),
		})
	}
	for _, item := range node.Child("Flows").Items("Flow") {
		flow := asTree(item)
		for _, mode := range []string{document.ModeRequest, document.ModeResponse} {
			steps := decodeSteps(flow.Child(mode))
			if len(steps) == 0 {
				continue
			}
			flows = append(flows, document.Flow{
				Name:      flow.Attr("name"),
				Mode:      mode,
				Condition: flow.Scalar("Condition"),
				Steps:     steps,
			})
		}
	}
	return flows
}

func decodeSteps(node *document.Tree) []document.Step {
	steps := []document.Step{}
	for _, item := range node.Items("Step") {
		step := asTree(item)
		steps = append(steps, document.Step{
			Name:      step.Scalar("Name"),
			Condition: step.Scalar("Condition"),
		})
	}
	return steps
}

func decodeFaultRules(node *document.Tree) []document.Flow {
	var rules []document.Flow
	for _, item := range node.Child("FaultRules").Items("FaultRule") {
		rule := asTree(item)
		rules = append(rules, document.Flow{
			Name:      rule.Attr("name"),
			Condition: rule.Scalar("Condition"),
			Steps:     decodeSteps(rule),
		})
	}
	return rules
}

func decodeDefaultFaultRule(node *document.Tree) *document.FaultRule {
	if !node.Has("DefaultFaultRule") {
		return nil
	}
	rule := node.Child("DefaultFaultRule")
	return &document.FaultRule{
		Flow: document.Flow{
			Name:      rule.Attr("name"),
			Condition: rule.Scalar("Condition"),
			Steps:     decodeSteps(rule),
		},
		AlwaysEnforce: rule.Scalar("AlwaysEnforce") == "true",
	}
}

// asTree returns v as a tree. Scalars become an empty tree.
func asTree(v any) *document.Tree {
	if t, ok := v.(*document.Tree); ok {
		return t
	}
	return document.NewTree()
}

func (c *Codec) readPolicies(base string, t *document.Template) error {
	files, err := c.xmlFiles(filepath.Join(base, "policies"))
	if err != nil {
		return err
	}
	for _, file := range files {
		tree, err := c.readXML(file)
		if err != nil {
			return err
		}
		policyType := ""
		for _, key := range tree.Keys() {
			if !strings.HasPrefix(key, "_") {
				policyType = key
				break
			}
		}
		if policyType == "" {
			return terrors.NewMalformedBundle(filepath.Base(file), "policy has no root element")
		}
		name := tree.Child(policyType).Attr("name")
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		}
		t.Policies = append(t.Policies, document.Policy{Name: name, Type: policyType, Content: tree})
	}
	return nil
}

func (c *Codec) readResources(base string, t *document.Template) error {
	resDir := filepath.Join(base, "resources")
	if ok, _ := afero.DirExists(c.fs, resDir); !ok {
		return nil
	}

	manifestPath := filepath.Join(resDir, "jsc", ManifestFile)
	if ok, _ := afero.Exists(c.fs, manifestPath); ok {
		data, err := afero.ReadFile(c.fs, manifestPath)
		if err != nil {
			return err
		}
		m, err := parseManifest(data)
		if err != nil {
			c.logger.Warn("ignoring unreadable manifest", zap.String("template", t.Name), zap.Error(err))
		} else {
			m.applyTo(t)
		}
	}

	types, err := afero.ReadDir(c.fs, resDir)
	if err != nil {
		return err
	}
	for _, typeDir := range types {
		if !typeDir.IsDir() {
			continue
		}
		files, err := afero.ReadDir(c.fs, filepath.Join(resDir, typeDir.Name()))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() || (typeDir.Name() == "jsc" && f.Name() == ManifestFile) {
				continue
			}
			data, err := afero.ReadFile(c.fs, filepath.Join(resDir, typeDir.Name(), f.Name()))
			if err != nil {
				return err
			}
			res := document.Resource{Name: f.Name(), Type: typeDir.Name(), Content: string(data)}
			if res.Type == "properties" && c.config.ImportParameters {
				res.Content = importProperties(t, res.Content)
			}
			t.Resources = append(t.Resources, res)
		}
	}
	return nil
}

// importProperties adds a parameter for every key of a properties file and
// rewrites each entry to reference it.
func importProperties(t *document.Template, content string) string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			b.WriteString(line + "\n")
			continue
		}
		key, value, _ := strings.Cut(trimmed, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if t.Parameter(key) == nil {
			t.Parameters = append(t.Parameters, document.Parameter{
				Name:        key,
				DisplayName: key,
				Description: "Configuration input for " + key,
				Default:     value,
			})
		}
		b.WriteString(key + "={" + key + "}\n")
	}
	return b.String()
}
