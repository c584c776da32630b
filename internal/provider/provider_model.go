package provider

import "github.com/hashicorp/terraform-plugin-framework/types"

// ProviderModel maps the provider schema to a Go struct.
type ProviderModel struct {
	BaseURL            types.String         `tfsdk:"base_url"`
	Username           types.String         `tfsdk:"username"`
	Password           types.String         `tfsdk:"password"`
	APIRoot            types.String         `tfsdk:"api_root"`
	ValidateCerts      types.Bool           `tfsdk:"validate_certs"`
	TimeoutSeconds     types.Int64          `tfsdk:"timeout_seconds"`
	MaxRetries         types.Int64          `tfsdk:"max_retries"`
	TaskTimeoutSeconds types.Int64          `tfsdk:"task_timeout_seconds"`
	MaxConcurrency     types.Int64          `tfsdk:"max_concurrency"`
	Journal            []JournalConfigModel `tfsdk:"journal"`
}

// envDefaults holds the environment fallbacks for connection settings.
type envDefaults struct {
	URL           string `env:"PULP_URL"`
	Username      string `env:"PULP_USERNAME"`
	Password      string `env:"PULP_PASSWORD"`
	APIRoot       string `env:"PULP_API_ROOT,default=/pulp/api/v3/"`
	ValidateCerts bool   `env:"PULP_VALIDATE_CERTS,default=true"`
}
