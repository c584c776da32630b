// Package rpmdistributions implements the pulp_rpm_distributions data source,
// which lists distributions and renders them as a report.
package rpmdistributions

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/providerdata"
	"github.com/pulp/terraform-provider-pulp/internal/pulp"
	"github.com/pulp/terraform-provider-pulp/internal/report"
)

var (
	_ datasource.DataSource              = &RpmDistributionsDataSource{}
	_ datasource.DataSourceWithConfigure = &RpmDistributionsDataSource{}
)

// reportFields are the entity fields shown in the rendered report.
var reportFields = []string{"name", "base_path", "base_url", "publication", "repository", "content_guard"}

// NewRpmDistributionsDataSource returns a new datasource.DataSource for the
// pulp_rpm_distributions type.
func NewRpmDistributionsDataSource() datasource.DataSource {
	return &RpmDistributionsDataSource{}
}

// RpmDistributionsDataSource lists RPM distributions, optionally narrowed
// by name or a base_path glob.
type RpmDistributionsDataSource struct {
	providerData *providerdata.ProviderData
}

// RpmDistributionsDataSourceModel maps the data source schema.
type RpmDistributionsDataSourceModel struct {
	Name            types.String        `tfsdk:"name"`
	BasePathPattern types.String        `tfsdk:"base_path_pattern"`
	ID              types.String        `tfsdk:"id"`
	Distributions   []DistributionModel `tfsdk:"distributions"`
	Report          types.String        `tfsdk:"report"`
}

// DistributionModel is one entry of the distributions list.
type DistributionModel struct {
	Name             types.String `tfsdk:"name"`
	BasePath         types.String `tfsdk:"base_path"`
	BaseURL          types.String `tfsdk:"base_url"`
	PulpHref         types.String `tfsdk:"pulp_href"`
	Publication      types.String `tfsdk:"publication"`
	RepositoryHref   types.String `tfsdk:"repository_href"`
	ContentGuardHref types.String `tfsdk:"content_guard_href"`
}

func (d *RpmDistributionsDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_rpm_distributions"
}

func (d *RpmDistributionsDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists RPM distributions in Pulp. Without arguments every distribution is returned.",

		Attributes: map[string]schema.Attribute{
			"name": schema.StringAttribute{
				MarkdownDescription: "Only return the distribution with this name.",
				Optional:            true,
			},
			"base_path_pattern": schema.StringAttribute{
				MarkdownDescription: "Glob matched against `base_path`, e.g. `rhel/**`.",
				Optional:            true,
			},
			"id": schema.StringAttribute{
				Computed: true,
			},
			"report": schema.StringAttribute{
				MarkdownDescription: "YAML rendering of the matched distributions.",
				Computed:            true,
			},
			"distributions": schema.ListNestedAttribute{
				MarkdownDescription: "Matched distributions, sorted by name.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"name":               schema.StringAttribute{Computed: true},
						"base_path":          schema.StringAttribute{Computed: true},
						"base_url":           schema.StringAttribute{Computed: true},
						"pulp_href":          schema.StringAttribute{Computed: true},
						"publication":        schema.StringAttribute{Computed: true},
						"repository_href":    schema.StringAttribute{Computed: true},
						"content_guard_href": schema.StringAttribute{Computed: true},
					},
				},
			},
		},
	}
}

func (d *RpmDistributionsDataSource) Configure(_ context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	pd, ok := req.ProviderData.(*providerdata.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *providerdata.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.providerData = pd
}

func (d *RpmDistributionsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var config RpmDistributionsDataSourceModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &config)...)
	if resp.Diagnostics.HasError() {
		return
	}

	pattern := config.BasePathPattern.ValueString()
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		resp.Diagnostics.AddAttributeError(
			path.Root("base_path_pattern"),
			"Invalid Glob Pattern",
			fmt.Sprintf("base_path_pattern %q is not a valid glob.", pattern),
		)
		return
	}

	filter := map[string]any{}
	if name := config.Name.ValueString(); name != "" {
		filter["name"] = name
	}

	eng := d.providerData.Engine
	var entities []engine.Entity
	err := eng.Run(ctx, func(ctx context.Context) error {
		var err error
		entities, err = eng.List(ctx, pulp.RpmDistribution, filter)
		return err
	})
	if err != nil {
		providerdata.AddEngineError(&resp.Diagnostics, "Read", "rpm distributions", err)
		return
	}

	matched := filterEntities(entities, config.Name.ValueString(), pattern)
	tflog.Debug(ctx, "listed rpm distributions", map[string]interface{}{
		"total":   len(entities),
		"matched": len(matched),
	})

	text, err := report.FormatList("distributions", matched, "name", reportFields)
	if err != nil {
		resp.Diagnostics.AddError("Report Rendering Failed", err.Error())
		return
	}

	config.ID = types.StringValue(listID(config))
	config.Report = types.StringValue(text)
	config.Distributions = make([]DistributionModel, 0, len(matched))
	for _, e := range matched {
		config.Distributions = append(config.Distributions, DistributionModel{
			Name:             stringField(e, "name"),
			BasePath:         stringField(e, "base_path"),
			BaseURL:          stringField(e, "base_url"),
			PulpHref:         stringField(e, "pulp_href"),
			Publication:      stringField(e, "publication"),
			RepositoryHref:   stringField(e, "repository"),
			ContentGuardHref: stringField(e, "content_guard"),
		})
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &config)...)
}

// filterEntities re-applies the name filter and matches base_path against
// pattern. The result is sorted by name.
func filterEntities(entities []engine.Entity, name, pattern string) []engine.Entity {
	var out []engine.Entity
	for _, e := range entities {
		if name != "" && e["name"] != name {
			continue
		}
		if pattern != "" {
			basePath, _ := e["base_path"].(string)
			if ok, _ := doublestar.Match(pattern, basePath); !ok {
				continue
			}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fmt.Sprint(out[i]["name"]) < fmt.Sprint(out[j]["name"])
	})
	return out
}

func listID(m RpmDistributionsDataSourceModel) string {
	return fmt.Sprintf("rpm_distributions/name=%s/base_path=%s", m.Name.ValueString(), m.BasePathPattern.ValueString())
}

func stringField(e engine.Entity, field string) types.String {
	s, ok := e[field].(string)
	if !ok {
		return types.StringNull()
	}
	return types.StringValue(s)
}
