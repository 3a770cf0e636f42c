// Package request turns the ways a user can describe metadata changes
// (--set key=value pairs, an inline JSON object, a JSON or YAML request
// file, an HTTP body) into an ordered list of editor updates.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/ggufedit/internal/editor"
)

// ErrInvalid marks malformed request input.
var ErrInvalid = errors.New("invalid request")

// ParseSet parses key=value pairs. Values are kept as editor.Text so they
// are interpreted against the existing entry's type.
func ParseSet(pairs []string) ([]editor.Update, error) {
	out := make([]editor.Update, 0, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --set %q: expected key=value", ErrInvalid, p)
		}
		out = append(out, editor.Update{Key: key, Value: editor.Text(value)})
	}
	return out, nil
}

// ParseJSON decodes a JSON object of key to value. Numbers are kept as
// json.Number so integer precision survives until the value is resolved.
// Keys are applied in document order; a repeated key is an error.
func ParseJSON(data []byte) ([]editor.Update, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalid, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: json: expected an object", ErrInvalid)
	}

	var out []editor.Update
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrInvalid, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: json: unexpected %v in object", ErrInvalid, tok)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: json: duplicate key %q", ErrInvalid, key)
		}
		seen[key] = struct{}{}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: json: key %q: %v", ErrInvalid, key, err)
		}
		out = append(out, editor.Update{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrInvalid, err)
	}

	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("%w: json: trailing data after object", ErrInvalid)
	}
	return out, nil
}

// ParseYAML decodes a YAML mapping of key to value. Keys are applied in
// document order.
func ParseYAML(data []byte) ([]editor.Update, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("%w: yaml: empty document", ErrInvalid)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: yaml: expected a mapping", ErrInvalid)
	}

	out := make([]editor.Update, 0, len(root.Content)/2)
	seen := make(map[string]struct{}, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: yaml: line %d: keys must be scalars", ErrInvalid, k.Line)
		}
		if _, dup := seen[k.Value]; dup {
			return nil, fmt.Errorf("%w: yaml: line %d: duplicate key %q", ErrInvalid, k.Line, k.Value)
		}
		seen[k.Value] = struct{}{}
		var value any
		if err := v.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: yaml: key %q: %v", ErrInvalid, k.Value, err)
		}
		out = append(out, editor.Update{Key: k.Value, Value: normalizeYAML(value)})
	}
	return out, nil
}

// ReadFile parses a request file; .yaml and .yml are YAML, everything else
// is JSON.
func ReadFile(path string) ([]editor.Update, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseByExt(path, data)
}

// Read parses r as JSON, or as YAML when it does not start with '{'.
func Read(r io.Reader) ([]editor.Update, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

func parseByExt(path string, data []byte) ([]editor.Update, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// Sources collects every update source of one command invocation.
type Sources struct {
	Set         []string
	JSON        string
	RequestFile string
}

// Build merges the sources in a fixed order: request file, inline JSON,
// then --set pairs, so the most specific source is applied last.
func (s Sources) Build() ([]editor.Update, error) {
	var out []editor.Update
	if s.RequestFile != "" {
		u, err := ReadFile(s.RequestFile)
		if err != nil {
			return nil, err
		}
		out = append(out, u...)
	}
	if s.JSON != "" {
		u, err := ParseJSON([]byte(s.JSON))
		if err != nil {
			return nil, err
		}
		out = append(out, u...)
	}
	if len(s.Set) > 0 {
		u, err := ParseSet(s.Set)
		if err != nil {
			return nil, err
		}
		out = append(out, u...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no updates given (use --set, --json or --request)", ErrInvalid)
	}
	return out, nil
}

// normalizeYAML rewrites the map types yaml.v3 produces so typed values
// ({type: u16, value: 7}) look the same as their JSON form.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeYAML(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = normalizeYAML(e)
		}
		return x
	default:
		return v
	}
}
