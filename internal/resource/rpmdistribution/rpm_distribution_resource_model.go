package rpmdistribution

import "github.com/hashicorp/terraform-plugin-framework/types"

// RpmDistributionResourceModel maps the pulp_rpm_distribution resource schema
// to a Go struct.
type RpmDistributionResourceModel struct {
	// Required
	Name     types.String `tfsdk:"name"`
	BasePath types.String `tfsdk:"base_path"`

	// Optional
	Publication  types.String `tfsdk:"publication"`
	Repository   types.String `tfsdk:"repository"`
	ContentGuard types.String `tfsdk:"content_guard"`

	// Computed
	ID               types.String `tfsdk:"id"`
	PulpHref         types.String `tfsdk:"pulp_href"`
	BaseURL          types.String `tfsdk:"base_url"`
	PulpCreated      types.String `tfsdk:"pulp_created"`
	RepositoryHref   types.String `tfsdk:"repository_href"`
	ContentGuardHref types.String `tfsdk:"content_guard_href"`
}
