package rpmrepository

import "github.com/hashicorp/terraform-plugin-framework/types"

// RpmRepositoryResourceModel maps the pulp_rpm_repository resource schema to
// a Go struct.
type RpmRepositoryResourceModel struct {
	Name                  types.String `tfsdk:"name"`
	Description           types.String `tfsdk:"description"`
	RetainPackageVersions types.Int64  `tfsdk:"retain_package_versions"`
	Autopublish           types.Bool   `tfsdk:"autopublish"`

	// Computed
	ID                types.String `tfsdk:"id"`
	PulpHref          types.String `tfsdk:"pulp_href"`
	PulpCreated       types.String `tfsdk:"pulp_created"`
	LatestVersionHref types.String `tfsdk:"latest_version_href"`
}
