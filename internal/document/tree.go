package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Reserved keys used by the structural text convention.
const (
	AttributesKey = "_attributes"
	TextKey       = "_text"
)

// Field is one key/value entry of a Tree.
type Field struct {
	Key   string
	Value any
}

// Tree is an insertion-ordered structural node. Values are string,
// json.Number, bool, nil, *Tree or []any holding the same kinds.
type Tree struct {
	fields []Field
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of fields.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (t *Tree) Fields() []Field {
	if t == nil {
		return nil
	}
	return t.fields
}

// Keys returns the keys in order.
func (t *Tree) Keys() []string {
	keys := make([]string, 0, t.Len())
	for _, f := range t.Fields() {
		keys = append(keys, f.Key)
	}
	return keys
}

func (t *Tree) index(key string) int {
	if t == nil {
		return -1
	}
	for i, f := range t.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// Has reports whether key is present.
func (t *Tree) Has(key string) bool {
	return t.index(key) >= 0
}

// Get returns the value stored under key.
func (t *Tree) Get(key string) (any, bool) {
	i := t.index(key)
	if i < 0 {
		return nil, false
	}
	return t.fields[i].Value, true
}

// Set stores value under key, keeping the key's position when it already
// exists. It returns t so calls can be chained.
func (t *Tree) Set(key string, value any) *Tree {
	if i := t.index(key); i >= 0 {
		t.fields[i].Value = value
		return t
	}
	t.fields = append(t.fields, Field{Key: key, Value: value})
	return t
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key string) bool {
	i := t.index(key)
	if i < 0 {
		return false
	}
	t.fields = append(t.fields[:i], t.fields[i+1:]...)
	return true
}

// Child returns the child tree under key, or nil.
func (t *Tree) Child(key string) *Tree {
	v, _ := t.Get(key)
	child, _ := v.(*Tree)
	return child
}

// Scalar returns the scalar under key. A child tree holding only text
// yields that text.
func (t *Tree) Scalar(key string) string {
	v, ok := t.Get(key)
	if !ok {
		return ""
	}
	return ScalarString(v)
}

// Attr returns the named attribute of this node.
func (t *Tree) Attr(name string) string {
	return t.Child(AttributesKey).Scalar(name)
}

// SetAttr sets an attribute, creating the attribute map first in key order.
func (t *Tree) SetAttr(name, value string) *Tree {
	attrs := t.Child(AttributesKey)
	if attrs == nil {
		attrs = NewTree()
		t.fields = append([]Field{{Key: AttributesKey, Value: attrs}}, t.fields...)
	}
	attrs.Set(name, value)
	return t
}

// Items returns the value under key as a list: an array stays an array,
// a single value becomes a one-element list, and a missing key is empty.
func (t *Tree) Items(key string) []any {
	v, ok := t.Get(key)
	if !ok || v == nil {
		return nil
	}
	if arr, ok := v.([]any); ok {
		return arr
	}
	return []any{v}
}

// Cardinality is the inverse of Items: one item is stored as a single
// value, several as an array and none as nil.
func Cardinality(items []any) any {
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0]
	default:
		return items
	}
}

// ScalarString renders a scalar value as text. A tree holding only a
// text key yields that text; any other tree yields "".
func ScalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	case *Tree:
		if s.Len() == 1 && s.Has(TextKey) {
			return ScalarString(s.fields[0].Value)
		}
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	c := &Tree{}
	if t.fields != nil {
		c.fields = make([]Field, len(t.fields))
	}
	for i, f := range t.fields {
		c.fields[i] = Field{Key: f.Key, Value: cloneValue(f.Value)}
	}
	return c
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case *Tree:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// MapStrings replaces every string value in the tree, recursively, with
// fn applied to it. Keys are left alone.
func (t *Tree) MapStrings(fn func(string) string) {
	if t == nil {
		return
	}
	for i := range t.fields {
		t.fields[i].Value = mapValue(t.fields[i].Value, fn)
	}
}

func mapValue(v any, fn func(string) string) any {
	switch x := v.(type) {
	case string:
		return fn(x)
	case *Tree:
		x.MapStrings(fn)
		return x
	case []any:
		for i := range x {
			x[i] = mapValue(x[i], fn)
		}
		return x
	default:
		return v
	}
}

// AlignTo reorders the fields of t to follow the key order of ref,
// recursively. Keys only present in t keep their relative order at the end.
func (t *Tree) AlignTo(ref *Tree) {
	if t == nil || ref == nil {
		return
	}
	ordered := make([]Field, 0, len(t.fields))
	used := make(map[string]bool, len(t.fields))
	for _, rf := range ref.fields {
		i := t.index(rf.Key)
		if i < 0 {
			continue
		}
		f := t.fields[i]
		alignValue(f.Value, rf.Value)
		ordered = append(ordered, f)
		used[f.Key] = true
	}
	for _, f := range t.fields {
		if !used[f.Key] {
			ordered = append(ordered, f)
		}
	}
	t.fields = ordered
}

func alignValue(v, ref any) {
	switch x := v.(type) {
	case *Tree:
		if r, ok := ref.(*Tree); ok {
			x.AlignTo(r)
		}
	case []any:
		if r, ok := ref.([]any); ok {
			for i := range x {
				if i < len(r) {
					alignValue(x[i], r[i])
				}
			}
		}
	}
}

// Equal reports whether two trees hold the same fields in the same order.
func (t *Tree) Equal(o *Tree) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i, f := range t.Fields() {
		of := o.fields[i]
		if f.Key != of.Key || !valueEqual(f.Value, of.Value) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case *Tree:
		y, ok := b.(*Tree)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// MarshalJSON writes the tree as a JSON object in field order.
func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range t.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping its key order.
func (t *Tree) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	parsed, ok := v.(*Tree)
	if !ok {
		return fmt.Errorf("expected a JSON object, got %T", v)
	}
	t.fields = parsed.fields
	return nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			t := NewTree()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				t.fields = append(t.fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return t, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", v)
		}
	default:
		// string, json.Number, bool or nil
		return v, nil
	}
}

// MarshalYAML renders the tree as an ordered YAML mapping.
func (t *Tree) MarshalYAML() (interface{}, error) {
	return treeToNode(t)
}

func treeToNode(t *Tree) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range t.Fields() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key}
		val, err := valueToNode(f.Value)
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

func valueToNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case *Tree:
		return treeToNode(x)
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range x {
			n, err := valueToNode(e)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(x.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: x.String()}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(x); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// UnmarshalYAML reads a YAML mapping keeping its key order.
func (t *Tree) UnmarshalYAML(node *yaml.Node) error {
	v, err := nodeToValue(node)
	if err != nil {
		return err
	}
	parsed, ok := v.(*Tree)
	if !ok {
		return fmt.Errorf("expected a YAML mapping at line %d", node.Line)
	}
	t.fields = parsed.fields
	return nil
}

func nodeToValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return nodeToValue(node.Content[0])
	case yaml.AliasNode:
		return nodeToValue(node.Alias)
	case yaml.MappingNode:
		t := NewTree()
		for i := 0; i+1 < len(node.Content); i += 2 {
			val, err := nodeToValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			t.fields = append(t.fields, Field{Key: node.Content[i].Value, Value: val})
		}
		return t, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(node.Content))
		for _, c := range node.Content {
			val, err := nodeToValue(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		return arr, nil
	default:
		switch node.ShortTag() {
		case "!!int", "!!float":
			return json.Number(node.Value), nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		case "!!null":
			return nil, nil
		default:
			return node.Value, nil
		}
	}
}
