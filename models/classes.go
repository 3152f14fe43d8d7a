package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrClassIndexNotFound is returned when the class index file does not exist.
var ErrClassIndexNotFound = errors.New("class index file not found")

// ClassIndex maps the integer index produced by a classifier to its label.
type ClassIndex struct {
	labels map[int]string
	size   int
}

// NewClassIndex builds a class index from an index to label map.
func NewClassIndex(labels map[int]string) (*ClassIndex, error) {
	c := &ClassIndex{labels: make(map[int]string, len(labels))}
	for i, label := range labels {
		if i < 0 {
			return nil, fmt.Errorf("negative class index %d for %q", i, label)
		}
		c.labels[i] = label
		if i+1 > c.size {
			c.size = i + 1
		}
	}
	return c, nil
}

// NewClassIndexFromLabels builds a class index where label i has index i.
func NewClassIndexFromLabels(labels []string) *ClassIndex {
	c := &ClassIndex{labels: make(map[int]string, len(labels)), size: len(labels)}
	for i, label := range labels {
		c.labels[i] = label
	}
	return c
}

// LoadClassIndex reads a class index file.
//
// JSON files hold either an object of index to label (`{"0": "Apple___Apple_scab"}`),
// the inverted label to index object Keras generators produce, or an array of
// labels. YAML files (.yaml, .yml) accept the same shapes.
//
// Arguments:
//   - path: The class index file.
//
// Returns:
//   - *ClassIndex: The loaded index.
//   - error: ErrClassIndexNotFound when the file is missing, or a parse error.
func LoadClassIndex(path string) (*ClassIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrClassIndexNotFound, path)
		}
		return nil, fmt.Errorf("failed to read class index: %w", err)
	}

	var c *ClassIndex
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		c, err = parseYAML(data)
	default:
		c, err = parseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse class index %s: %w", path, err)
	}

	return c, nil
}

type entry struct {
	key   string
	value string
}

func parseJSON(data []byte) (*ClassIndex, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var labels []string
		if err := json.Unmarshal(trimmed, &labels); err != nil {
			return nil, err
		}
		return NewClassIndexFromLabels(labels), nil
	}

	var raw map[string]any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			entries = append(entries, entry{key: k, value: val})
		case float64:
			entries = append(entries, entry{key: k, value: strconv.FormatFloat(val, 'f', -1, 64)})
		default:
			return nil, fmt.Errorf("unsupported value for key %q: %v", k, v)
		}
	}

	return fromEntries(entries)
}

func parseYAML(data []byte) (*ClassIndex, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return NewClassIndexFromLabels(nil), nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var labels []string
		if err := root.Decode(&labels); err != nil {
			return nil, err
		}
		return NewClassIndexFromLabels(labels), nil
	case yaml.MappingNode:
		entries := make([]entry, 0, len(root.Content)/2)
		for i := 0; i+1 < len(root.Content); i += 2 {
			entries = append(entries, entry{key: root.Content[i].Value, value: root.Content[i+1].Value})
		}
		return fromEntries(entries)
	default:
		return nil, fmt.Errorf("expected a mapping or a sequence, got %q", root.Tag)
	}
}

func fromEntries(entries []entry) (*ClassIndex, error) {
	labels := make(map[int]string, len(entries))
	add := func(i int, label string) error {
		if i < 0 {
			return fmt.Errorf("negative class index %d for %q", i, label)
		}
		if _, dup := labels[i]; dup {
			return fmt.Errorf("duplicate class index %d", i)
		}
		labels[i] = label
		return nil
	}

	for _, e := range entries {
		if i, ok := parseIndex(e.key); ok {
			if err := add(i, e.value); err != nil {
				return nil, err
			}
			continue
		}
		i, ok := parseIndex(e.value)
		if !ok {
			return nil, fmt.Errorf("key %q is not a class index", e.key)
		}
		if err := add(i, e.key); err != nil {
			return nil, err
		}
	}
	return NewClassIndex(labels)
}

// parseIndex accepts only the canonical decimal form of an index, the form
// predictions are looked up by.
func parseIndex(s string) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(i) != s {
		return 0, false
	}
	return i, true
}

// Name returns the label of index i, or "Unknown Class (i)" when the index has
// no entry.
func (c *ClassIndex) Name(i int) string {
	if label, ok := c.Lookup(i); ok {
		return label
	}
	return fmt.Sprintf("Unknown Class (%d)", i)
}

// Lookup returns the label of index i and whether it exists.
func (c *ClassIndex) Lookup(i int) (string, bool) {
	if c == nil {
		return "", false
	}
	label, ok := c.labels[i]
	return label, ok
}

// Len is the number of labels in the index.
func (c *ClassIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.labels)
}

// Size is one past the highest index, the output width a model must have.
func (c *ClassIndex) Size() int {
	if c == nil {
		return 0
	}
	return c.size
}

// Labels returns the labels ordered by index. Gaps are named like Name does.
func (c *ClassIndex) Labels() []string {
	out := make([]string, c.Size())
	for i := range out {
		out[i] = c.Name(i)
	}
	return out
}

// Indices returns the defined indices in ascending order.
func (c *ClassIndex) Indices() []int {
	if c == nil {
		return nil
	}
	out := make([]int, 0, len(c.labels))
	for i := range c.labels {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
