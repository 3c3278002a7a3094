package model

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// The watchdog config document is hand-edited YAML, so scalar fields
// accept whichever representation the operator typed: quoted or bare
// numbers, a single time or a list of times, an id list of ints or
// strings. These helper types absorb that instead of failing the load.

// FlexString decodes any YAML scalar as its string form.
type FlexString string

func (f *FlexString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*f = ""
		return nil
	}
	*f = FlexString(strings.TrimSpace(node.Value))
	return nil
}

func (f FlexString) String() string { return string(f) }

// FlexInt64 decodes an int or a numeric string; anything else is zero.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalYAML(node *yaml.Node) error {
	*f = 0
	if node.Kind != yaml.ScalarNode {
		return nil
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(node.Value), 10, 64); err == nil {
		*f = FlexInt64(v)
	}
	return nil
}

// FlexTimes decodes a single HH:MM scalar or a list of them.
type FlexTimes []string

func (f *FlexTimes) UnmarshalYAML(node *yaml.Node) error {
	*f = nil
	switch node.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" {
			*f = FlexTimes{v}
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				if v := strings.TrimSpace(item.Value); v != "" {
					*f = append(*f, v)
				}
			}
		}
	}
	return nil
}

// StringList decodes a sequence of scalars (of any type) as strings.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	*l = nil
	switch node.Kind {
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" {
			*l = StringList{v}
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode {
				if v := strings.TrimSpace(item.Value); v != "" {
					*l = append(*l, v)
				}
			}
		}
	}
	return nil
}

// AlertLevels decodes notification thresholds from a YAML list. Items
// that do not parse as positive integers are dropped, duplicates
// collapse, and the result is ascending. Anything other than a non-empty
// list falls back to the default ladder.
type AlertLevels []int

func (a *AlertLevels) UnmarshalYAML(node *yaml.Node) error {
	*a = nil
	if node.Kind != yaml.SequenceNode {
		return nil
	}
	seen := make(map[int]struct{}, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(item.Value))
		if err != nil || v <= 0 {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		*a = append(*a, v)
	}
	levels := *a
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j] < levels[j-1]; j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
	return nil
}

// Levels returns the configured ladder, defaulting when unset.
func (a AlertLevels) Levels() []int {
	if len(a) > 0 {
		return a
	}
	return []int{80, 90, 95, 100}
}
