package plugins

import "github.com/apigee/apigee-templater/internal/generate"

// Built-in profile names.
const (
	ProfileDefault    = generate.DefaultProfile
	ProfileSharedFlow = "sharedflow"
	ProfileBigQuery   = "bigquery"
)

// Extension step types understood by the built-in profiles.
const (
	StepExtractVariables = "ExtractVariables"
	StepAssignMessage    = "AssignMessage"
	StepFlowCallout      = "FlowCallout"
	StepMessageLogging   = "MessageLogging"
	StepResourceFiles    = "resourceFiles"
)

func basePlugins() []generate.Plugin {
	return []generate.Plugin{SpikeArrest{}, APIKey{}, AuthSharedFlow{}, Quota{}}
}

// DefaultProfiles returns the default, sharedflow and bigquery profiles.
func DefaultProfiles() []*generate.Profile {
	return []*generate.Profile{
		{
			Name:    ProfileDefault,
			Plugins: basePlugins(),
			Extensions: map[string]generate.Plugin{
				StepExtractVariables:       ExtractVariables{},
				StepAssignMessage:          AssignMessage{},
				StepFlowCallout:            FlowCallout{},
				StepMessageLogging:         MessageLogging{},
				StepResourceFiles:          ResourceFiles{},
				generate.FallbackExtension: Any{},
			},
			Finalizers: []generate.Plugin{Targets{}, Proxy{}},
		},
		{
			Name:    ProfileSharedFlow,
			Plugins: basePlugins(),
			Extensions: map[string]generate.Plugin{
				StepExtractVariables:       ExtractVariables{},
				StepAssignMessage:          AssignMessage{},
				StepMessageLogging:         MessageLogging{},
				StepResourceFiles:          ResourceFiles{},
				generate.FallbackExtension: Any{},
			},
			Finalizers: []generate.Plugin{Targets{}, SharedFlow{}},
		},
		{
			Name:       ProfileBigQuery,
			Plugins:    basePlugins(),
			Extensions: map[string]generate.Plugin{},
			Finalizers: []generate.Plugin{TargetsBigQuery{}, Proxy{}},
		},
	}
}

// RegisterDefaults adds the built-in profiles to r.
func RegisterDefaults(r *generate.Registry) *generate.Registry {
	for _, p := range DefaultProfiles() {
		r.SetProfile(p)
	}
	return r
}

// NewRegistry returns a registry holding the built-in profiles.
func NewRegistry() *generate.Registry {
	return RegisterDefaults(generate.NewRegistry())
}
