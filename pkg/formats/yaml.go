package formats

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthur-debert/jin/pkg/merge"
	"gopkg.in/yaml.v3"
)

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// ParseYAML decodes the first document of a YAML stream. Mappings keep their
// key order, non-string keys are dropped, aliases are followed and custom
// tags are discarded in favor of the value they wrap.
func ParseYAML(content []byte) (merge.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return merge.Null(), yamlParseError(err)
	}
	if doc.Kind == 0 {
		return merge.Null(), nil
	}
	v, err := yamlNodeToValue(&doc, 0)
	if err != nil {
		return merge.Null(), &ParseError{Format: YAML, Message: err.Error(), Line: doc.Line, Column: doc.Column}
	}
	return v, nil
}

// maxAliasDepth bounds alias expansion; yaml.v3 already rejects cycles
const maxAliasDepth = 10000

func yamlNodeToValue(n *yaml.Node, depth int) (merge.Value, error) {
	if depth > maxAliasDepth {
		return merge.Null(), fmt.Errorf("document nesting too deep at line %d", n.Line)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return merge.Null(), nil
		}
		return yamlNodeToValue(n.Content[0], depth+1)
	case yaml.AliasNode:
		if n.Alias == nil {
			return merge.Null(), fmt.Errorf("unresolved alias %q at line %d", n.Value, n.Line)
		}
		return yamlNodeToValue(n.Alias, depth+1)
	case yaml.SequenceNode:
		items := make([]merge.Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := yamlNodeToValue(c, depth+1)
			if err != nil {
				return merge.Null(), err
			}
			items = append(items, item)
		}
		return merge.Array(items...), nil
	case yaml.MappingNode:
		return yamlMapping(n, depth)
	case yaml.ScalarNode:
		return yamlScalar(n), nil
	}
	return merge.Null(), fmt.Errorf("unsupported YAML node kind %d at line %d", n.Kind, n.Line)
}

func yamlMapping(n *yaml.Node, depth int) (merge.Value, error) {
	obj := merge.NewObject()
	explicit := map[string]bool{}

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == "!!merge" {
			if err := yamlMergeKey(obj, explicit, valNode, depth); err != nil {
				return merge.Null(), err
			}
			continue
		}

		key, ok := yamlStringKey(keyNode)
		if !ok {
			continue
		}
		val, err := yamlNodeToValue(valNode, depth+1)
		if err != nil {
			return merge.Null(), err
		}
		obj.Set(key, val)
		explicit[key] = true
	}
	return merge.ObjectValue(obj), nil
}

// yamlMergeKey applies a "<<" merge key: entries from the referenced
// mapping(s) fill in keys the mapping does not set itself.
func yamlMergeKey(obj *merge.Object, explicit map[string]bool, n *yaml.Node, depth int) error {
	sources := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		sources = n.Content
	}
	for _, src := range sources {
		v, err := yamlNodeToValue(src, depth+1)
		if err != nil {
			return err
		}
		srcObj, ok := v.AsObject()
		if !ok {
			return fmt.Errorf("merge key at line %d must reference a mapping", n.Line)
		}
		srcObj.Range(func(key string, val merge.Value) bool {
			if !explicit[key] {
				if _, exists := obj.Get(key); !exists {
					obj.Set(key, val)
				}
			}
			return true
		})
	}
	return nil
}

func yamlStringKey(n *yaml.Node) (string, bool) {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return "", false
	}
	if yamlResolvedTag(n) != "!!str" {
		return "", false
	}
	return n.Value, true
}

// yamlResolvedTag returns the node's core tag, re-resolving the value when
// the node carries an application specific tag.
func yamlResolvedTag(n *yaml.Node) string {
	tag := n.ShortTag()
	if strings.HasPrefix(tag, "!!") {
		return tag
	}
	untagged := *n
	untagged.Tag = ""
	return untagged.ShortTag()
}

func yamlScalar(n *yaml.Node) merge.Value {
	untagged := *n
	untagged.Tag = yamlResolvedTag(n)

	switch untagged.Tag {
	case "!!null":
		return merge.Null()
	case "!!bool":
		var b bool
		if err := untagged.Decode(&b); err == nil {
			return merge.Bool(b)
		}
	case "!!int":
		var i int64
		if err := untagged.Decode(&i); err == nil {
			return merge.Int(i)
		}
		var f float64
		if err := untagged.Decode(&f); err == nil {
			return merge.Float(f)
		}
	case "!!float":
		var f float64
		if err := untagged.Decode(&f); err == nil {
			return merge.Float(f)
		}
	}
	return merge.String(n.Value)
}

func yamlParseError(err error) *ParseError {
	perr := &ParseError{Format: YAML, Message: strings.TrimPrefix(err.Error(), "yaml: ")}
	if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
		perr.Line, _ = strconv.Atoi(m[1])
	}
	return perr
}

// SerializeYAML encodes v as a YAML document with two space indentation
func SerializeYAML(v merge.Value) ([]byte, error) {
	node := valueToYAMLNode(v)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func valueToYAMLNode(v merge.Value) *yaml.Node {
	switch v.Kind() {
	case merge.KindBool:
		b, _ := v.AsBool()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
	case merge.KindInteger:
		i, _ := v.AsInt()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(i, 10)}
	case merge.KindFloat:
		f, _ := v.AsFloat()
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: yamlFloat(f)}
	case merge.KindString:
		s, _ := v.AsString()
		node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
		if strings.Contains(strings.TrimSuffix(s, "\n"), "\n") {
			node.Style = yaml.LiteralStyle
		}
		return node
	case merge.KindArray:
		items, _ := v.AsArray()
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range items {
			node.Content = append(node.Content, valueToYAMLNode(item))
		}
		return node
	case merge.KindObject:
		obj, _ := v.AsObject()
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		obj.Range(func(key string, val merge.Value) bool {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
				valueToYAMLNode(val))
			return true
		})
		return node
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return formatFloat(f)
}
