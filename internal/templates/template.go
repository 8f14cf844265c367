package templates

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/apigee/apigee-templater/internal/structext"
)

// Engine parses policy snippets with a shared function map.
type Engine struct {
	funcs template.FuncMap
}

// NewEngine creates a new snippet engine
func NewEngine() *Engine {
	return &Engine{
		funcs: template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"xml":   escape,
			"default": func(def string, val any) any {
				if val == nil {
					return def
				}
				if s, ok := val.(string); ok && s == "" {
					return def
				}
				return val
			},
			"join": func(sep string, items []string) string { return strings.Join(items, sep) },
			"keys": sortedKeys,
		},
	}
}

// Snippet is a parsed XML template.
type Snippet struct {
	Name string
	tmpl *template.Template
}

// Parse compiles source into a snippet. Missing keys are an error.
func (e *Engine) Parse(name, source string) (*Snippet, error) {
	tmpl, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snippet %s: %w", name, err)
	}
	return &Snippet{Name: name, tmpl: tmpl}, nil
}

// Must panics when err is set. Used for snippets compiled at init.
func Must(s *Snippet, err error) *Snippet {
	if err != nil {
		panic(err)
	}
	return s
}

// Render executes the snippet.
func (s *Snippet) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render snippet %s: %w", s.Name, err)
	}
	return buf.String(), nil
}

// RenderXML executes the snippet, checks the result is well formed and
// returns it re-indented with an XML declaration.
func (s *Snippet) RenderXML(data any) (string, error) {
	raw, err := s.Render(data)
	if err != nil {
		return "", err
	}
	tree, err := structext.Decode([]byte(raw))
	if err != nil {
		return "", fmt.Errorf("snippet %s: %w", s.Name, err)
	}
	out, err := structext.Encode(tree)
	if err != nil {
		return "", fmt.Errorf("snippet %s: %w", s.Name, err)
	}
	return string(out), nil
}

func escape(v any) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(fmt.Sprint(v)))
	return buf.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
