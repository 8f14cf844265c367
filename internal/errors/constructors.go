package errors

import "fmt"

// NewMalformedBundle reports an archive that does not follow the bundle layout
func NewMalformedBundle(entity, reason string) *TemplaterError {
	return &TemplaterError{
		Code:     MalformedBundle,
		Type:     "malformed_bundle",
		Category: CategoryBundle,
		Message:  reason,
		Entity:   entity,
	}
}

// NewMalformedText reports a structural text fragment that failed to parse
func NewMalformedText(entity string, cause error) *TemplaterError {
	return &TemplaterError{
		Code:     MalformedText,
		Type:     "malformed_text",
		Category: CategoryText,
		Message:  "could not parse structural text",
		Entity:   entity,
		Cause:    cause,
	}
}

// NewNoConvertingFormat reports input that no registered converter accepted
func NewNoConvertingFormat(what string) *TemplaterError {
	return &TemplaterError{
		Code:       NoConvertingFormat,
		Type:       "no_converting_format",
		Category:   CategoryConvert,
		Message:    fmt.Sprintf("no converter could read the %s", what),
		Suggestion: "supply the document as JSON or YAML",
	}
}

func NewFeatureAlreadyApplied(template, feature string) *TemplaterError {
	return &TemplaterError{
		Code:     FeatureAlreadyApplied,
		Type:     "feature_already_applied",
		Category: CategoryCompose,
		Message:  fmt.Sprintf("feature %s is already applied to %s", feature, template),
		Entity:   feature,
	}
}

func NewFeatureNotApplied(template, feature string) *TemplaterError {
	return &TemplaterError{
		Code:     FeatureNotApplied,
		Type:     "feature_not_applied",
		Category: CategoryCompose,
		Message:  fmt.Sprintf("feature %s is not applied to %s", feature, template),
		Entity:   feature,
	}
}

// NewUnknownProfile reports a generation request for a profile that is not registered
func NewUnknownProfile(profile string) *TemplaterError {
	return &TemplaterError{
		Code:       UnknownProfile,
		Type:       "unknown_profile",
		Category:   CategoryGenerate,
		Message:    fmt.Sprintf("profile %s is not registered", profile),
		Entity:     profile,
		Suggestion: "use one of the built-in profiles: default, sharedflow, bigquery",
	}
}

// NewUnknownExtensionType reports an extension step no plugin handles
func NewUnknownExtensionType(stepType, profile string) *TemplaterError {
	return &TemplaterError{
		Code:     UnknownExtensionType,
		Type:     "unknown_extension_type",
		Category: CategoryGenerate,
		Message:  fmt.Sprintf("plugin %s not found in profile %s", stepType, profile),
		Entity:   stepType,
	}
}

// NewPluginFailure wraps an error returned by a plugin
func NewPluginFailure(plugin, endpoint, phase string, cause error) *TemplaterError {
	return &TemplaterError{
		Code:     PluginFailure,
		Type:     "plugin_failure",
		Category: CategoryGenerate,
		Message:  fmt.Sprintf("plugin %s failed for endpoint %s", plugin, endpoint),
		Entity:   plugin,
		Stage:    phase,
		Cause:    cause,
	}
}

func NewNotFound(kind, name string) *TemplaterError {
	return &TemplaterError{
		Code:     NotFound,
		Type:     "not_found",
		Category: CategoryStore,
		Message:  fmt.Sprintf("%s %s not found", kind, name),
		Entity:   name,
	}
}

func NewAlreadyExists(kind, name string) *TemplaterError {
	return &TemplaterError{
		Code:     AlreadyExists,
		Type:     "already_exists",
		Category: CategoryStore,
		Message:  fmt.Sprintf("%s %s already exists", kind, name),
		Entity:   name,
	}
}
