package provider

import "github.com/pulp/terraform-provider-pulp/internal/providerdata"

// Aliases for the shared types, whose canonical definitions live in the
// providerdata package to break the import cycle with resource packages.
type (
	ProviderData       = providerdata.ProviderData
	JournalConfigModel = providerdata.JournalConfigModel
)
