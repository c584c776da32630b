package rpmdistribution

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
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
	_ resource.Resource                = &RpmDistributionResource{}
	_ resource.ResourceWithConfigure   = &RpmDistributionResource{}
	_ resource.ResourceWithImportState = &RpmDistributionResource{}
)

// publicationHrefPattern matches a publication pulp_href under any API root.
var publicationHrefPattern = regexp.MustCompile(`^/.+/publications/.+/$`)

// NewRpmDistributionResource returns a new resource.Resource for the
// pulp_rpm_distribution type.
func NewRpmDistributionResource() resource.Resource {
	return &RpmDistributionResource{}
}

// RpmDistributionResource implements the pulp_rpm_distribution Terraform
// resource. A distribution is identified by its name and serves either a
// fixed publication or the latest publication of a repository under
// base_path.
type RpmDistributionResource struct {
	providerData *providerdata.ProviderData
}

// --------------------------------------------------------------------------
// Metadata
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_rpm_distribution"
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages an RPM distribution in Pulp. The distribution serves either `publication` or the latest publication of `repository` under `base_path`. Changing `name` forces recreation.",

		Attributes: map[string]schema.Attribute{
			// ---- Required ----
			"name": schema.StringAttribute{
				MarkdownDescription: "Unique name of the distribution.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"base_path": schema.StringAttribute{
				MarkdownDescription: "Path the content is served under, relative to the content app root (e.g. `rhel/9/baseos`).",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
					stringvalidator.RegexMatches(regexp.MustCompile(`^[^/]`), "must be relative, without a leading slash"),
				},
			},

			// ---- Optional ----
			"publication": schema.StringAttribute{
				MarkdownDescription: "`pulp_href` of the publication to serve. Conflicts with `repository`. Leaving both unset keeps whatever the server has.",
				Optional:            true,
				Computed:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(publicationHrefPattern, "must be a publication pulp_href"),
					stringvalidator.ConflictsWith(path.MatchRoot("repository")),
				},
			},
			"repository": schema.StringAttribute{
				MarkdownDescription: "Name of the RPM repository whose latest publication is served. Conflicts with `publication`.",
				Optional:            true,
				Computed:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
					stringvalidator.ConflictsWith(path.MatchRoot("publication")),
				},
			},
			"content_guard": schema.StringAttribute{
				MarkdownDescription: "Name of the content guard protecting the served content. Set to `\"\"` to remove the guard; leave unset to keep the server's value.",
				Optional:            true,
				Computed:            true,
			},

			// ---- Computed ----
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier of the distribution (same as `pulp_href`).",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"pulp_href": schema.StringAttribute{
				MarkdownDescription: "API href of the distribution.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"base_url": schema.StringAttribute{
				MarkdownDescription: "URL the content app serves the distribution at.",
				Computed:            true,
			},
			"pulp_created": schema.StringAttribute{
				MarkdownDescription: "Timestamp when the distribution was created.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"repository_href": schema.StringAttribute{
				MarkdownDescription: "API href of the served repository, if any.",
				Computed:            true,
			},
			"content_guard_href": schema.StringAttribute{
				MarkdownDescription: "API href of the content guard, if any.",
				Computed:            true,
			},
		},
	}
}

// --------------------------------------------------------------------------
// Configure
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
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

// --------------------------------------------------------------------------
// Create
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan RpmDistributionResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	rep, err := r.converge(ctx, &plan)
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Create", subject(plan), err)
		return
	}
	r.providerData.RecordChange(ctx, &resp.Diagnostics, rep)

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state RpmDistributionResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	eng := r.providerData.Engine
	var found bool
	err := eng.Run(ctx, func(ctx context.Context) error {
		d, err := engine.NewDescriptor(pulp.RpmDistribution, map[string]any{"name": state.Name.ValueString()}, nil)
		if err != nil {
			return err
		}
		remote, err := eng.Find(ctx, d)
		if err != nil || remote == nil {
			return err
		}
		found = true
		return applyRemote(ctx, eng, &state, remote)
	})
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Read", subject(state), err)
		return
	}

	if !found {
		// Removed outside Terraform; the next plan recreates it.
		tflog.Info(ctx, "rpm distribution not found in Pulp, removing from state", map[string]interface{}{
			"name": state.Name.ValueString(),
		})
		resp.State.RemoveResource(ctx)
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan RpmDistributionResourceModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}

	rep, err := r.converge(ctx, &plan)
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Update", subject(plan), err)
		return
	}
	r.providerData.RecordChange(ctx, &resp.Diagnostics, rep)

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// --------------------------------------------------------------------------
// Delete
// --------------------------------------------------------------------------

func (r *RpmDistributionResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var state RpmDistributionResourceModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	eng := r.providerData.Engine
	var rep *engine.Report
	err := eng.Run(ctx, func(ctx context.Context) error {
		d, err := engine.NewDescriptor(pulp.RpmDistribution, map[string]any{"name": state.Name.ValueString()}, nil)
		if err != nil {
			return err
		}
		rep, err = eng.Process(ctx, d, engine.StateAbsent)
		return err
	})
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Delete", subject(state), err)
		return
	}
	r.providerData.RecordChange(ctx, &resp.Diagnostics, rep)
}

// --------------------------------------------------------------------------
// Import
// --------------------------------------------------------------------------

// ImportState imports a distribution by name. The following Read looks the
// entity up and fills in everything else.
func (r *RpmDistributionResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	if req.ID == "" {
		resp.Diagnostics.AddError("Invalid Import ID", "Import ID must be the name of the distribution.")
		return
	}
	resource.ImportStatePassthroughID(ctx, path.Root("name"), req, resp)
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// converge reconciles the distribution to model and refreshes model from
// the resulting remote entity.
func (r *RpmDistributionResource) converge(ctx context.Context, model *RpmDistributionResourceModel) (*engine.Report, error) {
	eng := r.providerData.Engine
	var rep *engine.Report
	err := eng.Run(ctx, func(ctx context.Context) error {
		d, err := buildDescriptor(ctx, eng, *model)
		if err != nil {
			return err
		}
		rep, err = eng.Process(ctx, d, engine.StatePresent)
		if err != nil {
			return err
		}
		return applyRemote(ctx, eng, model, rep.After)
	})
	return rep, err
}

// buildDescriptor translates model into the natural key and desired
// attributes of one distribution, resolving cross-references on the way.
func buildDescriptor(ctx context.Context, eng *engine.Engine, model RpmDistributionResourceModel) (*engine.Descriptor, error) {
	target, err := targetFromModel(model)
	if err != nil {
		return nil, err
	}

	desired := map[string]any{
		"base_path": model.BasePath.ValueString(),
	}
	if err := target.apply(ctx, eng, desired); err != nil {
		return nil, err
	}
	if err := applyContentGuard(ctx, eng, model.ContentGuard, desired); err != nil {
		return nil, err
	}

	tflog.Debug(ctx, "built rpm distribution descriptor", map[string]interface{}{
		"name":   model.Name.ValueString(),
		"target": target.String(),
	})
	return engine.NewDescriptor(pulp.RpmDistribution, map[string]any{"name": model.Name.ValueString()}, desired)
}

// applyRemote copies the remote entity into model. Related hrefs are mapped
// back to the names the configuration uses.
func applyRemote(ctx context.Context, eng *engine.Engine, model *RpmDistributionResourceModel, remote engine.Entity) error {
	href := pulp.RpmDistribution.IDOf(remote)
	model.ID = types.StringValue(href)
	model.PulpHref = types.StringValue(href)
	model.BasePath = stringField(remote, "base_path")
	model.BaseURL = stringField(remote, "base_url")
	model.PulpCreated = stringField(remote, "pulp_created")
	model.Publication = stringField(remote, "publication")

	model.RepositoryHref = stringField(remote, "repository")
	if model.RepositoryHref.IsNull() {
		model.Repository = types.StringNull()
	} else {
		name, err := relatedName(ctx, eng, pulp.RpmRepository, model.RepositoryHref.ValueString())
		if err != nil {
			return err
		}
		model.Repository = types.StringValue(name)
	}

	model.ContentGuardHref = stringField(remote, "content_guard")
	switch {
	case !model.ContentGuardHref.IsNull():
		name, err := relatedName(ctx, eng, pulp.ContentGuard, model.ContentGuardHref.ValueString())
		if err != nil {
			return err
		}
		model.ContentGuard = types.StringValue(name)
	case model.ContentGuard.IsUnknown() || model.ContentGuard.ValueString() != "":
		model.ContentGuard = types.StringNull()
	}
	return nil
}

func relatedName(ctx context.Context, eng *engine.Engine, rt engine.ResourceType, href string) (string, error) {
	related, err := eng.Fetch(ctx, rt, href)
	if err != nil {
		return "", err
	}
	name, _ := related["name"].(string)
	return name, nil
}

// stringField returns e[field] as a string value, or null when the field is
// missing or null.
func stringField(e engine.Entity, field string) types.String {
	s, ok := e[field].(string)
	if !ok {
		return types.StringNull()
	}
	return types.StringValue(s)
}

func subject(m RpmDistributionResourceModel) string {
	return fmt.Sprintf("rpm distribution %q", m.Name.ValueString())
}
