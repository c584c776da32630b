package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/listvalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/semaphore"

	"github.com/pulp/terraform-provider-pulp/internal/datasource/rpmdistributions"
	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/journal"
	"github.com/pulp/terraform-provider-pulp/internal/pulp"
	"github.com/pulp/terraform-provider-pulp/internal/resource/rpmdistribution"
	"github.com/pulp/terraform-provider-pulp/internal/resource/rpmrepository"
)

// Ensure PulpProvider satisfies the provider.Provider interface.
var _ provider.Provider = &PulpProvider{}

const (
	defaultTimeoutSeconds     = 30
	defaultMaxRetries         = 3
	defaultTaskTimeoutSeconds = 600
	defaultMaxConcurrency     = 4
	defaultJournalRetain      = 20
)

// PulpProvider implements the pulp Terraform provider.
type PulpProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and run locally.
	version string
	// lookuper resolves environment defaults; nil means the process
	// environment.
	lookuper envconfig.Lookuper
}

// New returns a factory function that creates a new PulpProvider instance
// for the given version string. This is the entry-point used in main.go.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &PulpProvider{
			version: version,
		}
	}
}

// Metadata returns the provider type name.
func (p *PulpProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "pulp"
	resp.Version = p.version
}

// Schema returns the provider schema.
func (p *PulpProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The pulp provider reconciles entities of a Pulp 3 server (RPM distributions and repositories) to the declared configuration.",
		Attributes: map[string]schema.Attribute{
			"base_url": schema.StringAttribute{
				MarkdownDescription: "Base URL of the Pulp server, e.g. `https://pulp.example.org`. May also be set with the `PULP_URL` environment variable.",
				Optional:            true,
			},
			"username": schema.StringAttribute{
				MarkdownDescription: "Username for HTTP basic authentication. May also be set with `PULP_USERNAME`.",
				Optional:            true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for HTTP basic authentication. May also be set with `PULP_PASSWORD`.",
				Optional:            true,
				Sensitive:           true,
			},
			"api_root": schema.StringAttribute{
				MarkdownDescription: "Path of the API root on the server. Defaults to `\"/pulp/api/v3/\"`.",
				Optional:            true,
			},
			"validate_certs": schema.BoolAttribute{
				MarkdownDescription: "Whether to verify the server's TLS certificate. Defaults to `true`.",
				Optional:            true,
			},
			"timeout_seconds": schema.Int64Attribute{
				MarkdownDescription: "Timeout in seconds for individual HTTP requests. Defaults to `30`.",
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
			"max_retries": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of retries for failed read requests. Mutating requests are never retried. Defaults to `3`.",
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(0)},
			},
			"task_timeout_seconds": schema.Int64Attribute{
				MarkdownDescription: "How long to wait for an asynchronous Pulp task to finish. Defaults to `600`.",
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
			"max_concurrency": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of reconciliations the provider runs against the server at once. Defaults to `4`.",
				Optional:            true,
				Validators:          []validator.Int64{int64validator.AtLeast(1)},
			},
		},
		Blocks: map[string]schema.Block{
			"journal": schema.ListNestedBlock{
				MarkdownDescription: "Records every change the provider makes to object storage. At most one block may be specified.",
				Validators:          []validator.List{listvalidator.SizeAtMost(1)},
				NestedObject: schema.NestedBlockObject{
					Attributes: map[string]schema.Attribute{
						"name": schema.StringAttribute{
							MarkdownDescription: "Name of the journal, used in logs. For the `memory` type it also selects the in-process store.",
							Optional:            true,
						},
						"type": schema.StringAttribute{
							MarkdownDescription: "Storage backend type. Supported values are `\"memory\"`, `\"s3\"`, `\"azure\"`, and `\"gcs\"`.",
							Required:            true,
							Validators:          []validator.String{stringvalidator.OneOf("memory", "s3", "azure", "gcs")},
						},
						"bucket": schema.StringAttribute{
							MarkdownDescription: "S3 or GCS bucket name. Required for `s3` and `gcs`.",
							Optional:            true,
						},
						"region": schema.StringAttribute{
							MarkdownDescription: "AWS region of the S3 bucket.",
							Optional:            true,
						},
						"prefix": schema.StringAttribute{
							MarkdownDescription: "Key prefix prepended to every record path.",
							Optional:            true,
						},
						"storage_account": schema.StringAttribute{
							MarkdownDescription: "Azure Storage account name. Required for `azure`.",
							Optional:            true,
						},
						"container_name": schema.StringAttribute{
							MarkdownDescription: "Azure Blob Storage container name. Required for `azure`.",
							Optional:            true,
						},
						"max_retries": schema.Int64Attribute{
							MarkdownDescription: "Maximum number of retries for failed storage operations. Defaults to `3`.",
							Optional:            true,
							Validators:          []validator.Int64{int64validator.AtLeast(0)},
						},
						"retry_backoff": schema.StringAttribute{
							MarkdownDescription: "Retry backoff strategy. Supported values are `\"exponential\"` and `\"linear\"`. Defaults to `\"exponential\"`.",
							Optional:            true,
							Validators:          []validator.String{stringvalidator.OneOf("exponential", "linear")},
						},
						"retain": schema.Int64Attribute{
							MarkdownDescription: "Number of records kept per entity; older records are pruned. `0` keeps everything. Defaults to `20`.",
							Optional:            true,
							Validators:          []validator.Int64{int64validator.AtLeast(0)},
						},
					},
				},
			},
		},
	}
}

// Configure parses the provider configuration, falls back to environment
// variables for connection settings, builds the Pulp client, the engine and
// the optional journal, and stores everything in ProviderData for
// downstream resources.
func (p *PulpProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var config ProviderModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &config)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// ----------------------------------------------------------------
	// Connection settings (configuration, then PULP_* environment)
	// ----------------------------------------------------------------
	conn, err := resolveConnection(ctx, config, p.lookuper)
	if errors.Is(err, errMissingURL) {
		resp.Diagnostics.AddError(
			"Missing Pulp Server URL",
			"Set base_url in the provider configuration or the PULP_URL environment variable.",
		)
		return
	}
	if err != nil {
		resp.Diagnostics.AddError(
			"Invalid Environment Configuration",
			fmt.Sprintf("Failed to read PULP_* environment variables: %s", err),
		)
		return
	}

	if conn.Password != "" {
		ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, "password")
		ctx = tflog.MaskMessageStrings(ctx, conn.Password)
	}

	// ----------------------------------------------------------------
	// Client and engine
	// ----------------------------------------------------------------
	maxConcurrency := int64Or(config.MaxConcurrency.ValueInt64(), defaultMaxConcurrency, config.MaxConcurrency.IsNull() || config.MaxConcurrency.IsUnknown())

	client := pulp.NewClient(pulp.ClientConfig{
		BaseURL:            conn.BaseURL,
		APIRoot:            conn.APIRoot,
		Username:           conn.Username,
		Password:           conn.Password,
		InsecureSkipVerify: !conn.ValidateCerts,
		TimeoutSeconds:     int(int64Or(config.TimeoutSeconds.ValueInt64(), defaultTimeoutSeconds, config.TimeoutSeconds.IsNull() || config.TimeoutSeconds.IsUnknown())),
		MaxRetries:         int(int64Or(config.MaxRetries.ValueInt64(), defaultMaxRetries, config.MaxRetries.IsNull() || config.MaxRetries.IsUnknown())),
		TaskTimeoutSeconds: int(int64Or(config.TaskTimeoutSeconds.ValueInt64(), defaultTaskTimeoutSeconds, config.TaskTimeoutSeconds.IsNull() || config.TaskTimeoutSeconds.IsUnknown())),
	})

	sem := semaphore.NewWeighted(maxConcurrency)

	// ----------------------------------------------------------------
	// Optional journal
	// ----------------------------------------------------------------
	if len(config.Journal) > 1 {
		resp.Diagnostics.AddError(
			"Invalid Journal Configuration",
			"At most one journal block may be specified.",
		)
		return
	}

	var j *journal.Journal
	if len(config.Journal) == 1 {
		jc := config.Journal[0]

		name := jc.Name.ValueString()
		if name == "" {
			name = "journal"
		}

		cfg := journal.Config{
			Name:           name,
			Type:           jc.Type.ValueString(),
			Bucket:         jc.Bucket.ValueString(),
			Region:         jc.Region.ValueString(),
			Prefix:         jc.Prefix.ValueString(),
			StorageAccount: jc.StorageAccount.ValueString(),
			ContainerName:  jc.ContainerName.ValueString(),
			MaxRetries:     int(int64Or(jc.MaxRetries.ValueInt64(), defaultMaxRetries, jc.MaxRetries.IsNull() || jc.MaxRetries.IsUnknown())),
			RetryBackoff:   jc.RetryBackoff.ValueString(),
		}
		if err := journal.ValidateConfig(cfg); err != nil {
			resp.Diagnostics.AddError("Invalid Journal Configuration", err.Error())
			return
		}

		store, err := journal.NewStore(cfg)
		if err != nil {
			resp.Diagnostics.AddError(
				"Journal Initialization Failed",
				fmt.Sprintf("Failed to create journal %q: %s", name, err),
			)
			return
		}

		retain := int64Or(jc.Retain.ValueInt64(), defaultJournalRetain, jc.Retain.IsNull() || jc.Retain.IsUnknown())
		j = journal.New(store, int(retain), p.version)
	}

	tflog.Info(ctx, "configured pulp provider", map[string]interface{}{
		"base_url":        conn.BaseURL,
		"api_root":        conn.APIRoot,
		"username":        conn.Username,
		"validate_certs":  conn.ValidateCerts,
		"max_concurrency": maxConcurrency,
		"journal":         j != nil,
	})

	// ----------------------------------------------------------------
	// Build ProviderData and share with resources / data sources
	// ----------------------------------------------------------------
	pd := &ProviderData{
		Engine:  engine.New(client, sem),
		Journal: j,
	}

	resp.DataSourceData = pd
	resp.ResourceData = pd
}

// Resources returns the set of resource types supported by this provider.
func (p *PulpProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		rpmdistribution.NewRpmDistributionResource,
		rpmrepository.NewRpmRepositoryResource,
	}
}

// DataSources returns the set of data source types supported by this provider.
func (p *PulpProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		rpmdistributions.NewRpmDistributionsDataSource,
	}
}

var errMissingURL = errors.New("no Pulp server URL configured")

// connectionSettings are the resolved settings for reaching the server.
type connectionSettings struct {
	BaseURL       string
	Username      string
	Password      string
	APIRoot       string
	ValidateCerts bool
}

// resolveConnection merges the provider configuration with the PULP_*
// environment. Configured values win; lookuper nil means the process
// environment.
func resolveConnection(ctx context.Context, config ProviderModel, lookuper envconfig.Lookuper) (connectionSettings, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var env envDefaults
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: lookuper}); err != nil {
		return connectionSettings{}, err
	}

	conn := connectionSettings{
		BaseURL:       stringOr(config.BaseURL.ValueString(), env.URL, config.BaseURL.IsUnknown()),
		Username:      stringOr(config.Username.ValueString(), env.Username, config.Username.IsUnknown()),
		Password:      stringOr(config.Password.ValueString(), env.Password, config.Password.IsUnknown()),
		APIRoot:       stringOr(config.APIRoot.ValueString(), env.APIRoot, config.APIRoot.IsUnknown()),
		ValidateCerts: env.ValidateCerts,
	}
	if !config.ValidateCerts.IsNull() && !config.ValidateCerts.IsUnknown() {
		conn.ValidateCerts = config.ValidateCerts.ValueBool()
	}
	if conn.BaseURL == "" {
		return conn, errMissingURL
	}
	return conn, nil
}

// stringOr returns configured unless it is empty or unknown, otherwise
// fallback.
func stringOr(configured, fallback string, unknown bool) string {
	if configured == "" || unknown {
		return fallback
	}
	return configured
}

func int64Or(configured, fallback int64, unset bool) int64 {
	if unset {
		return fallback
	}
	return configured
}
