package generate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Security schemes a generated spec can declare.
const (
	SpecAuthNone   = "none"
	SpecAuthAPIKey = "apiKey"
	SpecAuthBasic  = "basic"
	SpecAuthBearer = "bearer"
)

// OpenAPIVersion is written to every generated spec.
const OpenAPIVersion = "3.0.3"

const nextPageToken = "next_page_token"

var (
	datePattern     = regexp.MustCompile(`^(19|20)\d{2}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)
	dateTimePattern = regexp.MustCompile(`^(19|20)\d{2}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01]).([0-1][0-9]|2[0-3]):[0-5][0-9]:[0-5][0-9](\.[0-9]{1,3})?(Z|(\+|\-)([0-1][0-9]|2[0-3]):[0-5][0-9])$`)
)

// SpecOptions controls OpenAPI generation from a sample payload.
type SpecOptions struct {
	Servers      []string
	Auth         string
	Examples     bool
	Descriptions bool
}

// SpecDocument builds an OpenAPI document describing a read-only, paged
// collection API for a sample JSON payload. The first key of the payload
// names the entity; every top-level key becomes a component schema. An
// array value is described by the merged schema of its elements.
func SpecDocument(payload []byte, opts SpecOptions) (*document.Tree, error) {
	auth := opts.Auth
	if auth == "" {
		auth = SpecAuthNone
	}
	scheme, err := securityScheme(auth)
	if err != nil {
		return nil, err
	}

	var sample document.Tree
	if err := json.Unmarshal(payload, &sample); err != nil {
		return nil, terrors.NewNoConvertingFormat("sample payload").WithCause(err)
	}
	if sample.Len() == 0 {
		return nil, terrors.NewNoConvertingFormat("sample payload").WithCause(fmt.Errorf("payload has no fields"))
	}

	b := schemaBuilder{opts: opts}
	schemas := document.NewTree()
	for _, f := range sample.Fields() {
		if items, ok := f.Value.([]any); ok {
			schemas.Set(f.Key, b.merged(items))
			continue
		}
		schemas.Set(f.Key, b.schema(f.Key, f.Value))
	}
	if !schemas.Has(nextPageToken) {
		schemas.Set(nextPageToken, document.NewTree().Set("type", "string"))
	}

	entity := sample.Fields()[0].Key
	title := capitalize(entity)

	spec := document.NewTree().
		Set("openapi", OpenAPIVersion).
		Set("info", document.NewTree().
			Set("title", title+" API").
			Set("description", "This API provides access to "+title+" data.").
			Set("version", "1.0.0"))
	if len(opts.Servers) > 0 {
		servers := make([]any, 0, len(opts.Servers))
		for _, s := range opts.Servers {
			servers = append(servers, document.NewTree().Set("url", s))
		}
		spec.Set("servers", servers)
	}
	if scheme != nil {
		spec.Set("security", []any{document.NewTree().Set(schemeName(auth), []any{})})
	}

	listing := document.NewTree().
		Set("type", "object").
		Set("properties", document.NewTree().
			Set(entity, document.NewTree().
				Set("type", "array").
				Set("items", ref(entity))).
			Set(nextPageToken, ref(nextPageToken)))
	get := document.NewTree().
		Set("operationId", "list"+title).
		Set("parameters", []any{
			queryParameter("pageSize", "Maximum number of items to return.", "integer"),
			queryParameter("pageToken", "Token of the page to return.", "string"),
			queryParameter("filter", "Filter expression for the items.", "string"),
		}).
		Set("responses", document.NewTree().
			Set("200", document.NewTree().
				Set("description", "Success").
				Set("content", document.NewTree().
					Set("application/json", document.NewTree().
						Set("schema", listing)))))
	spec.Set("paths", document.NewTree().Set("/"+entity, document.NewTree().Set("get", get)))

	components := document.NewTree()
	if scheme != nil {
		components.Set("securitySchemes", document.NewTree().Set(schemeName(auth), scheme))
	}
	components.Set("schemas", schemas)
	spec.Set("components", components)
	return spec, nil
}

// Spec renders SpecDocument as YAML.
func Spec(payload []byte, opts SpecOptions) ([]byte, error) {
	spec, err := SpecDocument(payload, opts)
	if err != nil {
		return nil, err
	}
	return document.Encode(spec, document.FormatYAML)
}

func securityScheme(auth string) (*document.Tree, error) {
	switch auth {
	case SpecAuthNone:
		return nil, nil
	case SpecAuthAPIKey:
		return document.NewTree().Set("type", "apiKey").Set("name", "apikey").Set("in", "query"), nil
	case SpecAuthBasic, SpecAuthBearer:
		return document.NewTree().Set("type", "http").Set("scheme", auth), nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q (expected %s, %s, %s or %s)",
			auth, SpecAuthNone, SpecAuthAPIKey, SpecAuthBasic, SpecAuthBearer)
	}
}

func schemeName(auth string) string {
	switch auth {
	case SpecAuthAPIKey:
		return "ApiKeyAuth"
	case SpecAuthBasic:
		return "BasicAuth"
	default:
		return "BearerAuth"
	}
}

func ref(name string) *document.Tree {
	return document.NewTree().Set("$ref", "#/components/schemas/"+name)
}

func queryParameter(name, description, kind string) *document.Tree {
	return document.NewTree().
		Set("name", name).
		Set("in", "query").
		Set("required", false).
		Set("description", description).
		Set("schema", document.NewTree().Set("type", kind))
}

type schemaBuilder struct {
	opts SpecOptions
}

func (b schemaBuilder) schema(name string, v any) *document.Tree {
	s := document.NewTree()
	switch x := v.(type) {
	case *document.Tree:
		s.Set("type", "object")
		b.describe(s, name, "The %s object.")
		props := document.NewTree()
		for _, f := range x.Fields() {
			props.Set(f.Key, b.schema(f.Key, f.Value))
		}
		s.Set("properties", props)
	case []any:
		s.Set("type", "array")
		b.describe(s, name, "The %s array for the object.")
		s.Set("items", b.merged(x))
	case json.Number:
		b.number(s, name, x)
	case string:
		s.Set("type", "string")
		b.describe(s, name, "The %s tag for the object.")
		switch {
		case dateTimePattern.MatchString(x):
			s.Set("format", "date-time")
		case datePattern.MatchString(x):
			s.Set("format", "date")
		}
		if b.opts.Examples {
			s.Set("example", x)
		}
	case bool:
		s.Set("type", "boolean")
		b.describe(s, name, "The %s flag for the object.")
	case nil:
		s.Set("type", "string")
		s.Set("nullable", true)
		b.describe(s, name, "The %s tag for the object.")
	}
	return s
}

// merged describes the elements of items. Object elements are merged so
// every key seen in any element is a property, typed by its first value.
func (b schemaBuilder) merged(items []any) *document.Tree {
	fields := document.NewTree()
	objects := false
	for _, item := range items {
		obj, ok := item.(*document.Tree)
		if !ok {
			continue
		}
		objects = true
		for _, f := range obj.Fields() {
			if !fields.Has(f.Key) {
				fields.Set(f.Key, f.Value)
			}
		}
	}
	if objects {
		return b.schema("", fields)
	}
	if len(items) > 0 {
		return b.schema("", items[0])
	}
	return document.NewTree()
}

func (b schemaBuilder) number(s *document.Tree, name string, n json.Number) {
	text := n.String()
	if strings.ContainsAny(text, ".eE") {
		s.Set("type", "number")
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < math.MaxInt32 {
			s.Set("type", "integer").Set("format", "int32")
		}
	} else {
		s.Set("type", "integer")
		if i, err := strconv.ParseInt(text, 10, 64); err == nil && i > math.MinInt32 && i < math.MaxInt32 {
			s.Set("format", "int32")
		} else {
			s.Set("format", "int64")
		}
	}
	b.describe(s, name, "The %s number.")
	if b.opts.Examples {
		s.Set("example", n)
	}
}

func (b schemaBuilder) describe(s *document.Tree, name, format string) {
	if b.opts.Descriptions && name != "" {
		s.Set("description", fmt.Sprintf(format, name))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
