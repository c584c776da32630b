package report

import (
	"strings"
	"testing"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
)

func TestFormat_Update(t *testing.T) {
	rep := &engine.Report{
		ResourceType: "rpm distribution",
		Key:          map[string]any{"name": "d1"},
		Action:       engine.ActionUpdate,
		Changed:      true,
		Before: engine.Entity{
			"pulp_href":   "/pulp/api/v3/distributions/rpm/rpm/1/",
			"base_path":   "old/path",
			"publication": "/pulp/api/v3/publications/rpm/rpm/9/",
		},
		After: engine.Entity{"pulp_href": "/pulp/api/v3/distributions/rpm/rpm/1/", "base_path": "new/path"},
		Diff:  map[string]any{"base_path": "new/path", "publication": nil, "content_guard": "/cg/1/"},
	}

	output := Format(rep)

	if !strings.Contains(output, `# rpm distribution name="d1" was updated in-place`) {
		t.Errorf("missing header in output:\n%s", output)
	}
	if !strings.Contains(output, "# id: /pulp/api/v3/distributions/rpm/rpm/1/") {
		t.Error("missing id line")
	}
	if !strings.Contains(output, `~ base_path = "old/path" -> "new/path"`) {
		t.Errorf("missing base_path change in output:\n%s", output)
	}
	if !strings.Contains(output, `~ publication = "/pulp/api/v3/publications/rpm/rpm/9/" -> null`) {
		t.Errorf("missing publication clear in output:\n%s", output)
	}
	if !strings.Contains(output, `~ content_guard = (absent) -> "/cg/1/"`) {
		t.Errorf("missing absent field in output:\n%s", output)
	}

	// Fields are listed in sorted order.
	if strings.Index(output, "base_path") > strings.Index(output, "publication") {
		t.Error("fields are not sorted")
	}
}

func TestFormat_PlannedCreate(t *testing.T) {
	rep := &engine.Report{
		ResourceType: "rpm distribution",
		Key:          map[string]any{"name": "d1"},
		Action:       engine.ActionCreate,
		Changed:      true,
		DryRun:       true,
		Diff:         map[string]any{"name": "d1", "base_path": "a/b", "labels": map[string]any{"env": "prod"}},
	}

	output := Format(rep)

	if !strings.Contains(output, "will be created") {
		t.Errorf("missing planned header in output:\n%s", output)
	}
	if !strings.Contains(output, `+ base_path = "a/b"`) {
		t.Errorf("missing base_path in output:\n%s", output)
	}
	if !strings.Contains(output, `+ labels = {"env":`) {
		t.Errorf("map not rendered in flow style:\n%s", output)
	}
}

func TestFormat_DeleteAndNoop(t *testing.T) {
	del := &engine.Report{
		ResourceType: "rpm distribution",
		Key:          map[string]any{"name": "d1"},
		Action:       engine.ActionDelete,
		Changed:      true,
		Before:       engine.Entity{"name": "d1", "base_path": "a/b"},
	}
	if out := Format(del); !strings.Contains(out, `- base_path = "a/b"`) || !strings.Contains(out, "was destroyed") {
		t.Errorf("unexpected delete output:\n%s", out)
	}

	noop := &engine.Report{ResourceType: "rpm distribution", Key: map[string]any{"name": "d1"}, Action: engine.ActionNone}
	if out := Format(noop); !strings.Contains(out, "No changes.") || !strings.Contains(out, "is up to date") {
		t.Errorf("unexpected no-op output:\n%s", out)
	}
}

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		rep  *engine.Report
		want string
	}{
		{
			rep:  &engine.Report{ResourceType: "rpm repository", Key: map[string]any{"name": "r"}},
			want: `rpm repository name="r": no changes`,
		},
		{
			rep:  &engine.Report{ResourceType: "rpm repository", Key: map[string]any{"name": "r"}, Action: engine.ActionUpdate, Changed: true, Diff: map[string]any{"a": 1, "b": 2}},
			want: `rpm repository name="r": update, 2 field(s) changed`,
		},
		{
			rep:  &engine.Report{ResourceType: "rpm repository", Key: map[string]any{"name": "r"}, Action: engine.ActionDelete, Changed: true, DryRun: true},
			want: `(planned) rpm repository name="r": delete`,
		},
	}
	for _, tt := range tests {
		if got := FormatSummary(tt.rep); got != tt.want {
			t.Errorf("FormatSummary() = %q, want %q", got, tt.want)
		}
	}
}

func TestFormatList(t *testing.T) {
	entities := []engine.Entity{
		{"name": "zeta", "base_path": "z", "pulp_created": "2026-01-01"},
		{"name": "alpha", "base_path": "a", "pulp_created": "2026-01-02"},
	}

	out, err := FormatList("distributions", entities, "name", []string{"name", "base_path"})
	if err != nil {
		t.Fatalf("FormatList() returned error: %v", err)
	}
	if !strings.HasPrefix(out, "distributions:\n") {
		t.Errorf("missing list key:\n%s", out)
	}
	if strings.Contains(out, "pulp_created") {
		t.Error("unselected field rendered")
	}
	if strings.Index(out, "alpha") > strings.Index(out, "zeta") {
		t.Errorf("entities not sorted by name:\n%s", out)
	}
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{"x", `"x"`},
		{3, "3"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := renderValue(tt.in); got != tt.want {
			t.Errorf("renderValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	list := renderValue([]any{"a", "b"})
	if strings.Contains(list, "\n") || !strings.HasPrefix(list, "[") || !strings.Contains(list, `"b"`) {
		t.Errorf("renderValue(list) = %q, want single-line flow sequence", list)
	}
}
