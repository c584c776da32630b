// Package report renders reconciliation results as human-readable text.
// The layout follows "terraform plan" output: a header naming the entity
// and what happened to it, then one line per affected field.
package report

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
)

// Format renders rep as a multi-line block.
func Format(rep *engine.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("  # %s %s %s\n", rep.ResourceType, rep.KeyString(), headerVerb(rep)))
	if id := entityID(rep); id != "" {
		b.WriteString(fmt.Sprintf("  # id: %s\n", id))
	}
	b.WriteString("\n")

	switch {
	case !rep.Changed:
		b.WriteString("  No changes.\n")

	case rep.Action == engine.ActionCreate:
		for _, field := range sortedKeys(rep.Diff) {
			b.WriteString(fmt.Sprintf("    + %s = %s\n", field, renderValue(rep.Diff[field])))
		}

	case rep.Action == engine.ActionUpdate:
		for _, field := range sortedKeys(rep.Diff) {
			old, present := rep.Before[field]
			oldText := "(absent)"
			if present {
				oldText = renderValue(old)
			}
			b.WriteString(fmt.Sprintf("    ~ %s = %s -> %s\n", field, oldText, renderValue(rep.Diff[field])))
		}

	case rep.Action == engine.ActionDelete:
		for _, field := range sortedKeys(rep.Before) {
			b.WriteString(fmt.Sprintf("    - %s = %s\n", field, renderValue(rep.Before[field])))
		}
	}

	return b.String()
}

// FormatSummary returns a single-line summary of rep.
func FormatSummary(rep *engine.Report) string {
	prefix := ""
	if rep.DryRun {
		prefix = "(planned) "
	}
	if !rep.Changed {
		return fmt.Sprintf("%s%s %s: no changes", prefix, rep.ResourceType, rep.KeyString())
	}
	switch rep.Action {
	case engine.ActionUpdate:
		return fmt.Sprintf("%s%s %s: update, %d field(s) changed", prefix, rep.ResourceType, rep.KeyString(), len(rep.Diff))
	case engine.ActionCreate:
		return fmt.Sprintf("%s%s %s: create, %d field(s) set", prefix, rep.ResourceType, rep.KeyString(), len(rep.Diff))
	default:
		return fmt.Sprintf("%s%s %s: %s", prefix, rep.ResourceType, rep.KeyString(), rep.Action)
	}
}

// FormatList renders entities as a YAML document keyed by typeName. When
// fields is non-empty only those fields are shown. Entities are sorted by
// sortField.
func FormatList(typeName string, entities []engine.Entity, sortField string, fields []string) (string, error) {
	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		row := make(map[string]any, len(e))
		if len(fields) == 0 {
			for k, v := range e {
				row[k] = v
			}
		} else {
			for _, f := range fields {
				if v, ok := e[f]; ok {
					row[f] = v
				}
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return fmt.Sprint(rows[i][sortField]) < fmt.Sprint(rows[j][sortField])
	})

	out, err := yaml.Marshal(map[string]any{typeName: rows})
	if err != nil {
		return "", fmt.Errorf("report: render %s list: %w", typeName, err)
	}
	return string(out), nil
}

func headerVerb(rep *engine.Report) string {
	planned := rep.DryRun
	switch {
	case !rep.Changed:
		return "is up to date"
	case rep.Action == engine.ActionCreate && planned:
		return "will be created"
	case rep.Action == engine.ActionCreate:
		return "was created"
	case rep.Action == engine.ActionUpdate && planned:
		return "will be updated in-place"
	case rep.Action == engine.ActionUpdate:
		return "was updated in-place"
	case rep.Action == engine.ActionDelete && planned:
		return "will be destroyed"
	case rep.Action == engine.ActionDelete:
		return "was destroyed"
	default:
		return string(rep.Action)
	}
}

func entityID(rep *engine.Report) string {
	for _, e := range []engine.Entity{rep.After, rep.Before} {
		if e == nil {
			continue
		}
		if href, ok := e["pulp_href"].(string); ok {
			return href
		}
		if id, ok := e["id"].(string); ok {
			return id
		}
	}
	return ""
}

// renderValue formats one attribute value on a single line: strings are
// double-quoted, maps and lists use YAML flow style.
func renderValue(v any) string {
	if v == nil {
		return "null"
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	flowStyle(&node)
	out, err := yaml.Marshal(&node)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(string(out))
}

func flowStyle(n *yaml.Node) {
	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		n.Style = yaml.FlowStyle
	case yaml.ScalarNode:
		if n.Tag == "!!str" {
			n.Style = yaml.DoubleQuotedStyle
		}
	}
	for _, c := range n.Content {
		flowStyle(c)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
