// Package structext converts structural text (XML) to and from the
// document tree using the compact convention: attributes live under
// "_attributes", text under "_text", repeated elements become arrays and a
// text-only element collapses to its scalar text.
package structext

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Declaration is written at the top of every encoded document.
const Declaration = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`

const indent = "  "

type frame struct {
	name string
	tree *document.Tree
	text strings.Builder
}

// Decode parses an XML document into a tree holding its root element.
// The declaration and comments are dropped; CDATA is folded into text.
func Decode(data []byte) (*document.Tree, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = true

	var (
		stack []*frame
		root  *document.Tree
	)
	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, terrors.NewMalformedText("", err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && root != nil {
				return nil, terrors.NewMalformedText("", fmt.Errorf("multiple root elements: %s", qualified(tok.Name)))
			}
			f := &frame{name: qualified(tok.Name), tree: document.NewTree()}
			for _, a := range tok.Attr {
				f.tree.SetAttr(qualified(a.Name), a.Value)
			}
			stack = append(stack, f)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(tok)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, terrors.NewMalformedText("", fmt.Errorf("unexpected end element %s", qualified(tok.Name)))
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.name != qualified(tok.Name) {
				return nil, terrors.NewMalformedText("", fmt.Errorf("element <%s> closed by </%s>", f.name, qualified(tok.Name)))
			}
			value := f.value()
			if len(stack) == 0 {
				root = document.NewTree().Set(f.name, value)
				continue
			}
			appendChild(stack[len(stack)-1].tree, f.name, value)
		}
	}
	if len(stack) > 0 {
		return nil, terrors.NewMalformedText("", fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].name))
	}
	if root == nil {
		return nil, terrors.NewMalformedText("", errors.New("no root element"))
	}
	return root, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func (f *frame) value() any {
	text := f.text.String()
	if strings.TrimSpace(text) == "" {
		text = ""
	}
	switch {
	case text != "" && f.tree.Len() == 0:
		return text
	case text != "":
		f.tree.Set(document.TextKey, text)
	}
	return f.tree
}

func appendChild(parent *document.Tree, name string, value any) {
	existing, ok := parent.Get(name)
	if !ok {
		parent.Set(name, value)
		return
	}
	if arr, isArr := existing.([]any); isArr {
		parent.Set(name, append(arr, value))
		return
	}
	parent.Set(name, []any{existing, value})
}

// Encode writes the tree as an XML document with the standard declaration.
func Encode(tree *document.Tree) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(Declaration)
	buf.WriteByte('\n')
	if err := encodeFields(&buf, tree, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeFragment writes the tree as XML without a declaration.
func EncodeFragment(tree *document.Tree) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeFields(&buf, tree, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeFields(buf *bytes.Buffer, tree *document.Tree, depth int) error {
	for _, f := range tree.Fields() {
		if f.Key == document.AttributesKey || f.Key == document.TextKey {
			continue
		}
		if err := encodeElement(buf, f.Key, f.Value, depth); err != nil {
			return err
		}
	}
	return nil
}

func encodeElement(buf *bytes.Buffer, name string, value any, depth int) error {
	if name == "" {
		return errors.New("element with empty name")
	}
	pad := strings.Repeat(indent, depth)
	switch v := value.(type) {
	case []any:
		for _, e := range v {
			if _, nested := e.([]any); nested {
				return fmt.Errorf("element %s: nested arrays cannot be encoded", name)
			}
			if err := encodeElement(buf, name, e, depth); err != nil {
				return err
			}
		}
		return nil
	case *document.Tree:
		buf.WriteString(pad + "<" + name)
		writeAttributes(buf, v.Child(document.AttributesKey))
		text := ""
		if t, ok := v.Get(document.TextKey); ok {
			text = document.ScalarString(t)
		}
		children := 0
		for _, f := range v.Fields() {
			if f.Key != document.AttributesKey && f.Key != document.TextKey {
				children++
			}
		}
		switch {
		case children == 0 && text == "":
			buf.WriteString("/>\n")
		case children == 0:
			buf.WriteString(">" + textEscaper.Replace(text) + "</" + name + ">\n")
		default:
			buf.WriteString(">\n")
			if text != "" {
				buf.WriteString(pad + indent + textEscaper.Replace(text) + "\n")
			}
			if err := encodeFields(buf, v, depth+1); err != nil {
				return err
			}
			buf.WriteString(pad + "</" + name + ">\n")
		}
		return nil
	default:
		text := document.ScalarString(v)
		if text == "" {
			buf.WriteString(pad + "<" + name + "/>\n")
			return nil
		}
		buf.WriteString(pad + "<" + name + ">" + textEscaper.Replace(text) + "</" + name + ">\n")
		return nil
	}
}

func writeAttributes(buf *bytes.Buffer, attrs *document.Tree) {
	for _, a := range attrs.Fields() {
		buf.WriteString(" " + a.Key + `="` + attrEscaper.Replace(document.ScalarString(a.Value)) + `"`)
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")
)
