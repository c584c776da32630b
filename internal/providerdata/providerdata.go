// Package providerdata defines the ProviderData struct that is shared between
// the provider and its resources / data sources. It is separated into its own
// package to avoid import cycles (provider -> resource -> provider).
package providerdata

import (
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/journal"
)

// ProviderData is configured during provider.Configure() and shared with
// resources via resp.ResourceData and resp.DataSourceData.
type ProviderData struct {
	Engine *engine.Engine
	// Journal is nil unless a journal block is configured.
	Journal *journal.Journal
}

// JournalConfigModel maps the journal {} block in the provider configuration.
type JournalConfigModel struct {
	Name           types.String `tfsdk:"name"`
	Type           types.String `tfsdk:"type"`
	Bucket         types.String `tfsdk:"bucket"`
	Region         types.String `tfsdk:"region"`
	Prefix         types.String `tfsdk:"prefix"`
	StorageAccount types.String `tfsdk:"storage_account"`
	ContainerName  types.String `tfsdk:"container_name"`
	MaxRetries     types.Int64  `tfsdk:"max_retries"`
	RetryBackoff   types.String `tfsdk:"retry_backoff"`
	Retain         types.Int64  `tfsdk:"retain"`
}
