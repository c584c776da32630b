package rpmrepository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/int64default"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/providerdata"
	"github.com/pulp/terraform-provider-pulp/internal/pulp"
)

// Compile-time interface checks.
var (
	_ resource.Resource                = &RpmRepositoryResource{}
	_ resource.ResourceWithConfigure   = &RpmRepositoryResource{}
	_ resource.ResourceWithImportState = &RpmRepositoryResource{}
)

// NewRpmRepositoryResource returns a new resource.Resource for the
// pulp_rpm_repository type.
func NewRpmRepositoryResource() resource.Resource {
	return &RpmRepositoryResource{}
}

// RpmRepositoryResource implements the pulp_rpm_repository Terraform
// resource.
type RpmRepositoryResource struct {
	providerData *providerdata.ProviderData
}

func (r *RpmRepositoryResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_rpm_repository"
}

func (r *RpmRepositoryResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages an RPM repository in Pulp. Changing `name` forces recreation.",

		Attributes: map[string]schema.Attribute{
			"name": schema.StringAttribute{
				MarkdownDescription: "Unique name of the repository.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"description": schema.StringAttribute{
				MarkdownDescription: "Free-form description. Removing it clears the description on the server.",
				Optional:            true,
			},
			"retain_package_versions": schema.Int64Attribute{
				MarkdownDescription: "Number of versions of each package to keep in new repository versions. `0` keeps all.",
				Optional:            true,
				Computed:            true,
				Default:             int64default.StaticInt64(0),
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"autopublish": schema.BoolAttribute{
				MarkdownDescription: "Whether Pulp publishes every new repository version automatically.",
				Optional:            true,
				Computed:            true,
				Default:             booldefault.StaticBool(false),
			},

			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier of the repository (same as `pulp_href`).",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"pulp_href": schema.StringAttribute{
				MarkdownDescription: "API href of the repository.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"pulp_created": schema.StringAttribute{
				MarkdownDescription: "Timestamp when the repository was created.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"latest_version_href": schema.StringAttribute{
				MarkdownDescription: "API href of the latest repository version.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
		},
	}
}

func (r *RpmRepositoryResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Resource Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	r.providerData = pd
}

func (r *RpmRepositoryResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan RpmRepositoryResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	rep, err := r.reconcile(ctx, plan, engine.StatePresent)
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Create", subject(plan), err)
		return
	}
	r.providerData.RecordChange(ctx, &resp.Diagnostics, rep)

	applyRemote(&plan, rep.After)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *RpmRepositoryResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state RpmRepositoryResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	eng := r.providerData.Engine
	var remote engine.Entity
	err := eng.Run(ctx, func(ctx context.Context) error {
		d, err := engine.NewDescriptor(pulp.RpmRepository, naturalKey(state), nil)
		if err != nil {
			return err
		}
		remote, err = eng.Find(ctx, d)
		return err
	})
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Read", subject(state), err)
		return
	}

	if remote == nil {
		tflog.Info(ctx, "rpm repository not found in Pulp, removing from state", map[string]interface{}{
			"name": state.Name.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	applyRemote(&state, remote)
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

func (r *RpmRepositoryResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan RpmRepositoryResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	rep, err := r.reconcile(ctx, plan, engine.StatePresent)
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Update", subject(plan), err)
		return
	}
	r.providerData.RecordChange(ctx, &resp.Diagnostics, rep)

	applyRemote(&plan, rep.After)
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *RpmRepositoryResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state RpmRepositoryResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	rep, err := r.reconcile(ctx, state, engine.StateAbsent)
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Delete", subject(state), err)
		return
	}
	r.providerData.RecordChange(ctx, &resp.Diagnostics, rep)
}

// ImportState imports a repository by name.
func (r *RpmRepositoryResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resource.ImportStatePassthroughID(ctx, path.Root("name"), req, resp)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (r *RpmRepositoryResource) reconcile(ctx context.Context, model RpmRepositoryResourceModel, state engine.State) (*engine.Report, error) {
	var desired map[string]any
	if state == engine.StatePresent {
		desired = desiredAttributes(model)
	}

	d, err := engine.NewDescriptor(pulp.RpmRepository, naturalKey(model), desired)
	if err != nil {
		return nil, err
	}

	eng := r.providerData.Engine
	var rep *engine.Report
	err = eng.Run(ctx, func(ctx context.Context) error {
		rep, err = eng.Process(ctx, d, state)
		return err
	})
	return rep, err
}

func naturalKey(m RpmRepositoryResourceModel) map[string]any {
	return map[string]any{"name": m.Name.ValueString()}
}

// desiredAttributes maps the model onto Pulp fields. A null description is
// sent as an explicit null so removing it from the configuration clears it.
func desiredAttributes(m RpmRepositoryResourceModel) map[string]any {
	desired := map[string]any{
		"description": nil,
	}
	if !m.Description.IsNull() && !m.Description.IsUnknown() {
		desired["description"] = m.Description.ValueString()
	}
	if !m.RetainPackageVersions.IsNull() && !m.RetainPackageVersions.IsUnknown() {
		desired["retain_package_versions"] = m.RetainPackageVersions.ValueInt64()
	}
	if !m.Autopublish.IsNull() && !m.Autopublish.IsUnknown() {
		desired["autopublish"] = m.Autopublish.ValueBool()
	}
	return desired
}

func applyRemote(m *RpmRepositoryResourceModel, remote engine.Entity) {
	href := pulp.RpmRepository.IDOf(remote)
	m.ID = types.StringValue(href)
	m.PulpHref = types.StringValue(href)
	m.PulpCreated = stringField(remote, "pulp_created")
	m.LatestVersionHref = stringField(remote, "latest_version_href")
	m.Description = stringField(remote, "description")

	if n, ok := int64Field(remote, "retain_package_versions"); ok {
		m.RetainPackageVersions = types.Int64Value(n)
	}
	if b, ok := remote["autopublish"].(bool); ok {
		m.Autopublish = types.BoolValue(b)
	}
}

func stringField(e engine.Entity, field string) types.String {
	s, ok := e[field].(string)
	if !ok {
		return types.StringNull()
	}
	return types.StringValue(s)
}

// int64Field reads a JSON number that may have been decoded as float64.
func int64Field(e engine.Entity, field string) (int64, bool) {
	switch n := e[field].(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		v, err := n.Int64()
		return v, err == nil
	default:
		return 0, false
	}
}

func subject(m RpmRepositoryResourceModel) string {
	return fmt.Sprintf("rpm repository %q", m.Name.ValueString())
}
