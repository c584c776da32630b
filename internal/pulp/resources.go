package pulp

import "github.com/pulp/terraform-provider-pulp/internal/engine"

// Resource types served by the Pulp API. Endpoints are relative to the API
// root; every entity is identified by its pulp_href.
var (
	RpmDistribution = engine.ResourceType{
		Name:       "rpm distribution",
		Endpoint:   "distributions/rpm/rpm/",
		IDField:    "pulp_href",
		NaturalKey: []string{"name"},
		// Older servers omit unset relations from the representation.
		Policies: map[string]engine.Policy{
			"publication":   engine.PolicyNullIfAbsent,
			"repository":    engine.PolicyNullIfAbsent,
			"content_guard": engine.PolicyNullIfAbsent,
		},
	}

	RpmRepository = engine.ResourceType{
		Name:       "rpm repository",
		Endpoint:   "repositories/rpm/rpm/",
		IDField:    "pulp_href",
		NaturalKey: []string{"name"},
		Policies: map[string]engine.Policy{
			"description":             engine.PolicyNullIfAbsent,
			"retain_package_versions": engine.PolicyNullIfAbsent,
		},
	}

	RpmPublication = engine.ResourceType{
		Name:       "rpm publication",
		Endpoint:   "publications/rpm/rpm/",
		IDField:    "pulp_href",
		NaturalKey: []string{"repository_version"},
	}

	ContentGuard = engine.ResourceType{
		Name:       "content guard",
		Endpoint:   "contentguards/",
		IDField:    "pulp_href",
		NaturalKey: []string{"name"},
	}
)
