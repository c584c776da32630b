package rpmdistribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/pulp"
)

type targetKind int

const (
	targetUnset targetKind = iota
	targetPublication
	targetRepository
)

// Target is the content a distribution serves: one fixed publication, or
// whatever the latest publication of a repository is. An unset Target
// leaves the remote choice untouched.
type Target struct {
	kind targetKind
	ref  string
}

// PublicationTarget serves the publication with the given pulp_href.
func PublicationTarget(href string) Target {
	return Target{kind: targetPublication, ref: href}
}

// RepositoryTarget serves the latest publication of the named repository.
func RepositoryTarget(name string) Target {
	return Target{kind: targetRepository, ref: name}
}

// IsUnset reports whether the configuration chose neither variant.
func (t Target) IsUnset() bool {
	return t.kind == targetUnset
}

func (t Target) String() string {
	switch t.kind {
	case targetPublication:
		return "publication " + t.ref
	case targetRepository:
		return fmt.Sprintf("repository %q", t.ref)
	default:
		return "unset"
	}
}

var errBothTargets = errors.New("publication and repository are mutually exclusive")

// targetFromModel reads the Target variant out of the configured
// publication and repository attributes.
func targetFromModel(m RpmDistributionResourceModel) (Target, error) {
	pub, hasPub := knownString(m.Publication)
	repo, hasRepo := knownString(m.Repository)

	switch {
	case hasPub && hasRepo:
		return Target{}, &engine.ValidationError{
			ResourceType: pulp.RpmDistribution.Name,
			Field:        "publication",
			Reason:       errBothTargets.Error(),
		}
	case hasPub:
		return PublicationTarget(pub), nil
	case hasRepo:
		return RepositoryTarget(repo), nil
	default:
		return Target{}, nil
	}
}

// apply writes t into desired. Switching variants clears the other field
// with an explicit null. A repository name is resolved to its href and a
// publication href is checked to exist, both before any mutating call.
func (t Target) apply(ctx context.Context, eng *engine.Engine, desired map[string]any) error {
	switch t.kind {
	case targetPublication:
		if _, err := eng.Fetch(ctx, pulp.RpmPublication, t.ref); err != nil {
			return err
		}
		desired["publication"] = t.ref
		desired["repository"] = nil

	case targetRepository:
		href, err := eng.Resolve(ctx, pulp.RpmRepository, map[string]any{"name": t.ref})
		if err != nil {
			return err
		}
		desired["repository"] = href
		desired["publication"] = nil
	}
	return nil
}

// applyContentGuard writes the content guard choice into desired: null
// leaves it alone, "" clears it, a name is resolved to its href.
func applyContentGuard(ctx context.Context, eng *engine.Engine, v types.String, desired map[string]any) error {
	if v.IsNull() || v.IsUnknown() {
		return nil
	}
	name := v.ValueString()
	if name == "" {
		desired["content_guard"] = nil
		return nil
	}

	href, err := eng.Resolve(ctx, pulp.ContentGuard, map[string]any{"name": name})
	if err != nil {
		return err
	}
	desired["content_guard"] = href
	return nil
}

func knownString(v types.String) (string, bool) {
	if v.IsNull() || v.IsUnknown() || v.ValueString() == "" {
		return "", false
	}
	return v.ValueString(), true
}
