package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTree_JSONKeepsOrder(t *testing.T) {
	input := `{"z":"1","a":{"_attributes":{"name":"AM-Test"},"Set":{"Headers":[{"Header":"x"},{"Header":"y"}]}},"m":true,"n":5}`

	var tree Tree
	require.NoError(t, json.Unmarshal([]byte(input), &tree))
	assert.Equal(t, []string{"z", "a", "m", "n"}, tree.Keys())
	assert.Equal(t, "AM-Test", tree.Child("a").Attr("name"))

	out, err := json.Marshal(&tree)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.Equal(t, input, string(out))
}

func TestTree_YAMLRoundTrip(t *testing.T) {
	tree := NewTree().
		Set("Rate", "30s").
		Set("Identifier", NewTree().SetAttr("ref", "client_id")).
		Set("Enabled", true).
		Set("Items", []any{"a", "b"})

	out, err := yaml.Marshal(tree)
	require.NoError(t, err)

	var back Tree
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.True(t, tree.Equal(&back), "yaml:\n%s", out)
}

func TestTree_SetKeepsPosition(t *testing.T) {
	tree := NewTree().Set("a", "1").Set("b", "2").Set("a", "3")
	assert.Equal(t, []string{"a", "b"}, tree.Keys())
	assert.Equal(t, "3", tree.Scalar("a"))

	assert.True(t, tree.Delete("a"))
	assert.False(t, tree.Delete("a"))
	assert.Equal(t, []string{"b"}, tree.Keys())
}

func TestTree_Items(t *testing.T) {
	tree := NewTree().Set("one", NewTree().Set("x", "1")).Set("many", []any{"a", "b"})

	assert.Len(t, tree.Items("one"), 1)
	assert.Len(t, tree.Items("many"), 2)
	assert.Empty(t, tree.Items("none"))
}

func TestCardinality(t *testing.T) {
	assert.Nil(t, Cardinality(nil))
	assert.Equal(t, "a", Cardinality([]any{"a"}))
	assert.Equal(t, []any{"a", "b"}, Cardinality([]any{"a", "b"}))

	tree := NewTree().Set("Scope", Cardinality([]any{"a"}))
	assert.Equal(t, []any{"a"}, tree.Items("Scope"))
}

func TestTree_CloneIsDeep(t *testing.T) {
	orig := NewTree().Set("child", NewTree().Set("k", "v")).Set("list", []any{NewTree().Set("i", "1")})
	c := orig.Clone()

	c.Child("child").Set("k", "changed")
	c.Items("list")[0].(*Tree).Set("i", "2")

	assert.Equal(t, "v", orig.Child("child").Scalar("k"))
	assert.Equal(t, "1", orig.Items("list")[0].(*Tree).Scalar("i"))
}

func TestTree_MapStrings(t *testing.T) {
	tree := NewTree().Set("a", "{host}/x").Set("b", []any{"{host}", NewTree().Set("c", "{host}")})
	tree.MapStrings(func(s string) string {
		if s == "{host}" {
			return "example.com"
		}
		return s
	})
	assert.Equal(t, "{host}/x", tree.Scalar("a"))
	assert.Equal(t, "example.com", tree.Items("b")[0])
	assert.Equal(t, "example.com", tree.Items("b")[1].(*Tree).Scalar("c"))
}

func TestTree_AlignTo(t *testing.T) {
	ref := NewTree().Set("a", "1").Set("b", NewTree().Set("x", "1").Set("y", "2")).Set("c", "3")
	got := NewTree().Set("c", "3").Set("d", "4").Set("b", NewTree().Set("y", "2").Set("x", "9")).Set("a", "1")

	got.AlignTo(ref)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got.Keys())
	assert.Equal(t, []string{"x", "y"}, got.Child("b").Keys())
	assert.Equal(t, "9", got.Child("b").Scalar("x"))
}

func TestScalarString(t *testing.T) {
	assert.Equal(t, "abc", ScalarString("abc"))
	assert.Equal(t, "5", ScalarString(json.Number("5")))
	assert.Equal(t, "true", ScalarString(true))
	assert.Equal(t, "txt", ScalarString(NewTree().Set(TextKey, "txt")))
	assert.Equal(t, "", ScalarString(NewTree().Set("k", "v")))
}
