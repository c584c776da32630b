package rpmdistribution

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/pulp"
	"github.com/pulp/terraform-provider-pulp/internal/report"
)

var _ resource.ResourceWithModifyPlan = &RpmDistributionResource{}

// ModifyPlan dry-runs the reconciliation the apply will perform and logs the
// predicted change report. The plan itself is left as Terraform computed it.
// A create that will take over an existing distribution gets a warning.
func (r *RpmDistributionResource) ModifyPlan(ctx context.Context, req resource.ModifyPlanRequest, resp *resource.ModifyPlanResponse) {
	if r.providerData == nil {
		return
	}

	var plan, state *RpmDistributionResourceModel
	if !req.Plan.Raw.IsNull() {
		var m RpmDistributionResourceModel
		resp.Diagnostics.Append(req.Plan.Get(ctx, &m)...)
		if resp.Diagnostics.HasError() {
			return
		}
		if m.Name.IsUnknown() || m.BasePath.IsUnknown() {
			return
		}
		plan = &m
	}
	if !req.State.Raw.IsNull() {
		var m RpmDistributionResourceModel
		resp.Diagnostics.Append(req.State.Get(ctx, &m)...)
		if resp.Diagnostics.HasError() {
			return
		}
		state = &m
	}
	if plan == nil && state == nil {
		return
	}

	rep, err := previewChange(ctx, r.providerData.Engine, plan, state)
	if err != nil {
		// References created in the same apply do not resolve yet; the
		// apply reports real failures.
		tflog.Debug(ctx, "skipping rpm distribution change preview", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	tflog.Info(ctx, report.FormatSummary(rep))
	if rep.Changed {
		tflog.Debug(ctx, "planned change report", map[string]interface{}{
			"report": report.Format(rep),
		})
	}

	if adopts(state, rep) {
		resp.Diagnostics.AddWarning(
			"Existing Distribution Will Be Adopted",
			fmt.Sprintf("An rpm distribution named %q already exists in Pulp at %s. Applying this plan manages it from now on and updates it in place.",
				plan.Name.ValueString(), pulp.RpmDistribution.IDOf(rep.Before)),
		)
	}
}

// previewChange computes the report the apply would produce without
// changing anything. A nil plan previews the destroy of state.
func previewChange(ctx context.Context, eng *engine.Engine, plan, state *RpmDistributionResourceModel) (*engine.Report, error) {
	var rep *engine.Report
	err := eng.Run(ctx, func(ctx context.Context) error {
		var (
			d    *engine.Descriptor
			err  error
			want = engine.StatePresent
		)
		if plan == nil {
			want = engine.StateAbsent
			d, err = engine.NewDescriptor(pulp.RpmDistribution, map[string]any{"name": state.Name.ValueString()}, nil)
		} else {
			d, err = buildDescriptor(ctx, eng, *plan)
		}
		if err != nil {
			return err
		}
		rep, err = eng.Plan(ctx, d, want)
		return err
	})
	return rep, err
}

// adopts reports whether a planned create finds the distribution already
// present in Pulp.
func adopts(state *RpmDistributionResourceModel, rep *engine.Report) bool {
	return state == nil && rep != nil && rep.Before != nil
}
