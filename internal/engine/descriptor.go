package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// Policy selects how diff compares one desired field against the remote
// representation.
type Policy int

const (
	// PolicyExact requires the remote value to equal the desired value. A
	// field missing from the remote entity differs from every desired
	// value, null included.
	PolicyExact Policy = iota
	// PolicyNullIfAbsent treats a field missing from the remote entity as
	// null.
	PolicyNullIfAbsent
	// PolicyIgnore never reports the field as changed. It is still sent on
	// create. Use it for write-only fields the server does not echo back.
	PolicyIgnore
)

func (p Policy) String() string {
	switch p {
	case PolicyExact:
		return "exact"
	case PolicyNullIfAbsent:
		return "null-if-absent"
	case PolicyIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ResourceType describes one kind of remote entity.
type ResourceType struct {
	// Name is the human-readable type name used in messages,
	// e.g. "rpm distribution".
	Name string
	// Endpoint is passed through to the API unchanged.
	Endpoint string
	// IDField names the field holding the entity's server-side handle.
	// Defaults to "id".
	IDField string
	// NaturalKey lists the fields that together identify one entity.
	NaturalKey []string
	// Policies overrides DefaultPolicy per field.
	Policies      map[string]Policy
	DefaultPolicy Policy
}

// IDOf returns the server-side handle of e, or "" if it has none.
func (rt ResourceType) IDOf(e Entity) string {
	field := rt.IDField
	if field == "" {
		field = "id"
	}
	id, _ := e[field].(string)
	return id
}

// PolicyFor returns the comparison policy for field.
func (rt ResourceType) PolicyFor(field string) Policy {
	if p, ok := rt.Policies[field]; ok {
		return p
	}
	return rt.DefaultPolicy
}

// Entity is a snapshot of one remote entity's representation.
type Entity map[string]any

// clone returns a shallow copy of e.
func (e Entity) clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Descriptor binds a natural key and desired attributes to a ResourceType.
// A nil value in Desired means "clear this field"; a missing entry means
// "leave it alone".
type Descriptor struct {
	Type       ResourceType
	NaturalKey map[string]any
	Desired    map[string]any
}

// NewDescriptor validates naturalKey against rt and returns a Descriptor.
// Every declared key field must be present and non-null, and no other
// field may appear in the key.
func NewDescriptor(rt ResourceType, naturalKey, desired map[string]any) (*Descriptor, error) {
	if len(rt.NaturalKey) == 0 {
		return nil, &ValidationError{ResourceType: rt.Name, Reason: "resource type declares no natural key"}
	}

	key := make(map[string]any, len(rt.NaturalKey))
	for _, field := range rt.NaturalKey {
		v, ok := naturalKey[field]
		if !ok || v == nil {
			return nil, &ValidationError{ResourceType: rt.Name, Field: field, Reason: "natural key field is required"}
		}
		if s, isString := v.(string); isString && s == "" {
			return nil, &ValidationError{ResourceType: rt.Name, Field: field, Reason: "natural key field must not be empty"}
		}
		key[field] = v
	}
	for field := range naturalKey {
		if _, ok := key[field]; !ok {
			return nil, &ValidationError{ResourceType: rt.Name, Field: field, Reason: "not part of the natural key"}
		}
	}

	want := make(map[string]any, len(desired))
	for field, v := range desired {
		if kv, isKey := key[field]; isKey {
			if !equalValues(kv, v) {
				return nil, &ValidationError{ResourceType: rt.Name, Field: field, Reason: "desired value conflicts with natural key"}
			}
			continue
		}
		want[field] = v
	}

	return &Descriptor{Type: rt, NaturalKey: key, Desired: want}, nil
}

// Find searches for the entity identified by the natural key. Results are
// filtered again client-side so a server that ignores a filter cannot cause
// a silent first match. With no match Find returns (nil, nil), or a
// *NotFoundError if failOnMissing is set. More than one match is always an
// *AmbiguousError.
func (d *Descriptor) Find(ctx context.Context, api API, failOnMissing bool) (Entity, error) {
	results, err := api.Search(ctx, d.Type.Endpoint, d.NaturalKey)
	if err != nil {
		return nil, &OpError{Op: "search", ResourceType: d.Type.Name, Key: formatKey(d.NaturalKey), Err: err}
	}

	var matches []Entity
	for _, r := range results {
		if d.matchesKey(r) {
			matches = append(matches, Entity(r))
		}
	}

	switch len(matches) {
	case 0:
		if failOnMissing {
			return nil, &NotFoundError{ResourceType: d.Type.Name, Key: d.NaturalKey}
		}
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, d.Type.IDOf(m))
		}
		return nil, &AmbiguousError{ResourceType: d.Type.Name, Key: d.NaturalKey, IDs: ids}
	}
}

// Diff returns the desired fields whose values differ from remote under
// each field's policy. It never mentions a field absent from Desired.
func (d *Descriptor) Diff(remote Entity) map[string]any {
	diff := make(map[string]any)
	for field, want := range d.Desired {
		policy := d.Type.PolicyFor(field)
		if policy == PolicyIgnore {
			continue
		}

		have, present := remote[field]
		if !present {
			if policy == PolicyNullIfAbsent && want == nil {
				continue
			}
			diff[field] = want
			continue
		}

		if !equalValues(have, want) {
			diff[field] = want
		}
	}
	return diff
}

// createAttributes merges the natural key and desired attributes. Explicit
// nulls are kept so the server clears those fields.
func (d *Descriptor) createAttributes() map[string]any {
	attrs := make(map[string]any, len(d.NaturalKey)+len(d.Desired))
	for k, v := range d.Desired {
		attrs[k] = v
	}
	for k, v := range d.NaturalKey {
		attrs[k] = v
	}
	return attrs
}

func (d *Descriptor) matchesKey(remote map[string]any) bool {
	for field, want := range d.NaturalKey {
		have, ok := remote[field]
		if !ok || !equalValues(have, want) {
			return false
		}
	}
	return true
}

// equalValues compares two attribute values after normalising both to
// their JSON form, so int64(3) equals float64(3) and []string equals []any.
func equalValues(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b))
}

func normalize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
