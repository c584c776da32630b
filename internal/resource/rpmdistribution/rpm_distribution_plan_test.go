package rpmdistribution

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/pulp"
)

const distHref = "/pulp/api/v3/distributions/rpm/rpm/41/"

func TestPreviewChange(t *testing.T) {
	existing := map[string]any{"pulp_href": distHref, "name": "d1", "base_path": "old/path"}

	tests := []struct {
		name        string
		remote      []map[string]any
		plan        *RpmDistributionResourceModel
		state       *RpmDistributionResourceModel
		wantAction  engine.Action
		wantChanged bool
		wantDiff    map[string]any
		wantAdopt   bool
	}{
		{
			name:        "create",
			plan:        ptr(model("d1", "a/b")),
			wantAction:  engine.ActionCreate,
			wantChanged: true,
		},
		{
			name:        "create adopts existing",
			remote:      []map[string]any{existing},
			plan:        ptr(model("d1", "a/b")),
			wantAction:  engine.ActionUpdate,
			wantChanged: true,
			wantDiff:    map[string]any{"base_path": "a/b"},
			wantAdopt:   true,
		},
		{
			name:        "update",
			remote:      []map[string]any{existing},
			plan:        ptr(model("d1", "a/b")),
			state:       ptr(model("d1", "old/path")),
			wantAction:  engine.ActionUpdate,
			wantChanged: true,
			wantDiff:    map[string]any{"base_path": "a/b"},
		},
		{
			name:       "in sync",
			remote:     []map[string]any{existing},
			plan:       ptr(model("d1", "old/path")),
			state:      ptr(model("d1", "old/path")),
			wantAction: engine.ActionNone,
		},
		{
			name:        "destroy",
			remote:      []map[string]any{existing},
			state:       ptr(model("d1", "old/path")),
			wantAction:  engine.ActionDelete,
			wantChanged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// stubAPI fails every mutation, so a mutating preview errors.
			eng := engine.New(&stubAPI{entities: map[string][]map[string]any{
				pulp.RpmDistribution.Endpoint: tt.remote,
			}}, nil)

			rep, err := previewChange(context.Background(), eng, tt.plan, tt.state)
			if err != nil {
				t.Fatalf("previewChange: %v", err)
			}
			if !rep.DryRun {
				t.Error("DryRun = false, want true")
			}
			if rep.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", rep.Action, tt.wantAction)
			}
			if rep.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", rep.Changed, tt.wantChanged)
			}
			if tt.wantDiff != nil {
				if diff := cmp.Diff(tt.wantDiff, rep.Diff); diff != "" {
					t.Errorf("diff mismatch (-want +got):\n%s", diff)
				}
			}
			if got := adopts(tt.state, rep); got != tt.wantAdopt {
				t.Errorf("adopts = %v, want %v", got, tt.wantAdopt)
			}
		})
	}
}

func TestPreviewChange_UnresolvedReference(t *testing.T) {
	m := model("d1", "a/b")
	m.Repository = m.Name // "d1" names no repository

	_, err := previewChange(context.Background(), testEngine(), &m, nil)
	if engine.Kind(err) != engine.KindNotFound {
		t.Errorf("error = %v (kind %q), want not_found", err, engine.Kind(err))
	}
}

func ptr(m RpmDistributionResourceModel) *RpmDistributionResourceModel {
	return &m
}
