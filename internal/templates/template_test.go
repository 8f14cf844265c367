package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apigee/apigee-templater/internal/structext"
)

func TestSnippetRender(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name   string
		source string
		data   any
		want   string
	}{
		{"plain", "<Rate>{{.rate}}</Rate>", map[string]any{"rate": "30s"}, "<Rate>30s</Rate>"},
		{"escape", "<C>{{xml .c}}</C>", map[string]any{"c": `a < "b"`}, "<C>a &lt; &#34;b&#34;</C>"},
		{"upper", "{{upper .v}}", map[string]any{"v": "minute"}, "MINUTE"},
		{"default", `{{.v | default "none"}}`, map[string]any{"v": ""}, "none"},
		{"join", `{{join "," .v}}`, map[string]any{"v": []string{"a", "b"}}, "a,b"},
		{"keys", `{{range keys .m}}{{.}};{{end}}`, map[string]any{"m": map[string]string{"b": "2", "a": "1"}}, "a;b;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snippet, err := engine.Parse(tt.name, tt.source)
			require.NoError(t, err)
			got, err := snippet.Render(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnippetRenderMissingKey(t *testing.T) {
	snippet := Must(NewEngine().Parse("missing", "<Rate>{{.rate}}</Rate>"))
	_, err := snippet.Render(map[string]any{})
	assert.Error(t, err)
}

func TestSnippetRenderXML(t *testing.T) {
	snippet := Must(NewEngine().Parse("sa", `
<SpikeArrest name="SA-SpikeArrest">
    <DisplayName>SA-SpikeArrest</DisplayName>
    <Properties/>
    {{- if .rate}}
    <Rate>{{xml .rate}}</Rate>
    {{- end}}
</SpikeArrest>`))

	got, err := snippet.RenderXML(map[string]any{"rate": "30s"})
	require.NoError(t, err)
	assert.Equal(t, structext.Declaration+`
<SpikeArrest name="SA-SpikeArrest">
  <DisplayName>SA-SpikeArrest</DisplayName>
  <Properties/>
  <Rate>30s</Rate>
</SpikeArrest>
`, got)

	broken := Must(NewEngine().Parse("broken", "<A><B></A>"))
	_, err = broken.RenderXML(nil)
	assert.Error(t, err)
}

func TestParseError(t *testing.T) {
	_, err := NewEngine().Parse("bad", "{{.x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "bad"))

	assert.Panics(t, func() { Must(NewEngine().Parse("bad", "{{end}}")) })
}
