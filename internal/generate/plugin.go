package generate

import "context"

// RunPoint is a position in the proxy flow where a policy runs.
type RunPoint string

const (
	RunPointNone               RunPoint = "none"
	RunPointPreRequest         RunPoint = "preRequest"
	RunPointPostRequest        RunPoint = "postRequest"
	RunPointPreTarget          RunPoint = "preTarget"
	RunPointPostTarget         RunPoint = "postTarget"
	RunPointPreResponse        RunPoint = "preResponse"
	RunPointPostResponse       RunPoint = "postResponse"
	RunPointPostClientResponse RunPoint = "postClientResponse"
	RunPointEndpointFault      RunPoint = "endpointFault"
	RunPointTargetFault        RunPoint = "targetFault"
)

// FlowRunPoint places a policy. A FlowCondition puts it into a conditional
// flow; StepCondition guards the step itself.
type FlowRunPoint struct {
	Name          string     `json:"name,omitempty" yaml:"name,omitempty"`
	FlowCondition string     `json:"flowCondition,omitempty" yaml:"flowCondition,omitempty"`
	StepCondition string     `json:"stepCondition,omitempty" yaml:"stepCondition,omitempty"`
	RunPoints     []RunPoint `json:"runPoints" yaml:"runPoints"`
}

// PolicyConfig names the policy a file defines and where it runs.
type PolicyConfig struct {
	Name          string         `json:"name" yaml:"name"`
	FlowRunPoints []FlowRunPoint `json:"flowRunPoints" yaml:"flowRunPoints"`
}

// File is one generated bundle file. Path is relative to the bundle
// directory, e.g. /policies/SA-SpikeArrest.xml.
type File struct {
	PolicyConfig *PolicyConfig `json:"policyConfig,omitempty" yaml:"policyConfig,omitempty"`
	Path         string        `json:"path" yaml:"path"`
	Contents     string        `json:"contents" yaml:"contents"`
}

// Result is what one plugin produced for one endpoint.
type Result struct {
	Source string `json:"source" yaml:"source"`
	Files  []File `json:"files" yaml:"files"`
}

// NewResult creates an empty result owned by source.
func NewResult(source string) *Result {
	return &Result{Source: source, Files: []File{}}
}

// Add appends a file placed at the given run points.
func (r *Result) Add(path, contents, policy string, points ...FlowRunPoint) {
	f := File{Path: path, Contents: contents}
	if policy != "" {
		f.PolicyConfig = &PolicyConfig{Name: policy, FlowRunPoints: points}
	}
	r.Files = append(r.Files, f)
}

// At is a FlowRunPoint running unconditionally at the given points.
func At(points ...RunPoint) FlowRunPoint {
	return FlowRunPoint{RunPoints: points}
}

// Plugin produces bundle files for an endpoint. Extension plugins receive
// the step they were selected for; other plugins receive nil. Plugins must
// not modify the endpoint.
type Plugin interface {
	ID() string
	Apply(ctx context.Context, endpoint *EndpointConfig, step *ExtensionStep) (*Result, error)
}

// PlacedStep is a policy reference collected from earlier results.
type PlacedStep struct {
	Policy        string
	FlowName      string
	FlowCondition string
	StepCondition string
	RunPoint      RunPoint
}

// Placements lists every policy placement of the endpoint's accumulated
// results in result, file and run point order.
func Placements(endpoint *EndpointConfig) []PlacedStep {
	var out []PlacedStep
	for _, res := range endpoint.FileResults {
		if res == nil {
			continue
		}
		for _, f := range res.Files {
			if f.PolicyConfig == nil {
				continue
			}
			for _, frp := range f.PolicyConfig.FlowRunPoints {
				for _, point := range frp.RunPoints {
					out = append(out, PlacedStep{
						Policy:        f.PolicyConfig.Name,
						FlowName:      frp.Name,
						FlowCondition: frp.FlowCondition,
						StepCondition: frp.StepCondition,
						RunPoint:      point,
					})
				}
			}
		}
	}
	return out
}
