package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML settings file into a tree
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return Decode(data)
}

// Decode parses YAML into a tree. An empty document yields an empty tree.
func Decode(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	t := New()
	if err := t.UnmarshalYAML(&doc); err != nil {
		return nil, err
	}
	return t, nil
}

// Encode renders the tree as YAML, keeping key order
func (t *Tree) Encode() ([]byte, error) {
	node, err := toNode(t)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the tree to path as YAML
func (t *Tree) Save(path string) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (t *Tree) MarshalYAML() (any, error) {
	return toNode(t)
}

// UnmarshalYAML implements yaml.Unmarshaler. The tree is replaced, not merged.
func (t *Tree) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			*t = *New()
			return nil
		}
		node = node.Content[0]
	}
	if node.Kind == 0 {
		*t = *New()
		return nil
	}

	v, err := fromNode(node)
	if err != nil {
		return err
	}
	parsed, ok := v.(*Tree)
	if !ok {
		// a document holding only "~" is an empty tree
		if v == nil {
			*t = *New()
			return nil
		}
		return fmt.Errorf("%w: document root is %T", ErrNotMapping, v)
	}
	*t = *parsed
	return nil
}

// MarshalJSON renders the tree as a JSON object, keeping key order
func (t *Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// maxDecodedNodes bounds how many nodes a document may expand to through aliases
const maxDecodedNodes = 1 << 20

// decoder turns yaml nodes into tree values, refusing alias cycles and
// documents whose aliases expand past maxDecodedNodes
type decoder struct {
	expanding map[*yaml.Node]bool
	nodes     int
}

func fromNode(n *yaml.Node) (any, error) {
	d := &decoder{expanding: make(map[*yaml.Node]bool)}
	return d.value(n)
}

func (d *decoder) value(n *yaml.Node) (any, error) {
	d.nodes++
	if d.nodes > maxDecodedNodes {
		return nil, fmt.Errorf("%w: more than %d nodes", ErrAliasExpansion, maxDecodedNodes)
	}

	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil || d.expanding[n.Alias] {
			return nil, fmt.Errorf("%w: alias *%s at line %d refers to itself", ErrAliasExpansion, n.Value, n.Line)
		}
		d.expanding[n.Alias] = true
		v, err := d.value(n.Alias)
		delete(d.expanding, n.Alias)
		return v, err
	case yaml.MappingNode:
		t := New()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := d.value(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			t.put(n.Content[i].Value, v)
		}
		return t, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.value(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode scalar at line %d: %w", n.Line, err)
		}
		return normalize(v), nil
	default:
		return nil, fmt.Errorf("settings: unsupported yaml node kind %d at line %d", n.Kind, n.Line)
	}
}

func toNode(v any) (*yaml.Node, error) {
	switch vv := v.(type) {
	case *Tree:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if vv.Len() == 0 {
			n.Style = yaml.FlowStyle
			return n, nil
		}
		for _, k := range vv.keys {
			child, err := toNode(vv.values[k])
			if err != nil {
				return nil, err
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
			n.Content = append(n.Content, key, child)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(vv) == 0 {
			n.Style = yaml.FlowStyle
		}
		for _, item := range vv {
			child, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, fmt.Errorf("failed to encode %T: %w", v, err)
		}
		return n, nil
	}
}

func writeJSON(buf *bytes.Buffer, v any) error {
	switch vv := v.(type) {
	case *Tree:
		buf.WriteByte('{')
		for i, k := range vv.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, vv.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range vv {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %T: %w", v, err)
		}
		buf.Write(data)
	}
	return nil
}
