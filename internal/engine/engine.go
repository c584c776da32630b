// Package engine reconciles remote API entities to a declared state. Callers
// describe an entity by its natural key and desired attributes; the engine
// looks the entity up, diffs it against the desired attributes and issues the
// minimal create, update or delete call to converge.
package engine

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/semaphore"
)

// API is the remote client the engine drives. resourceType is the endpoint
// of one resource kind and id the server-side handle of one entity. Errors
// for missing entities must match ErrRemoteNotFound via errors.Is.
type API interface {
	Search(ctx context.Context, resourceType string, filter map[string]any) ([]map[string]any, error)
	Fetch(ctx context.Context, resourceType, id string) (map[string]any, error)
	Create(ctx context.Context, resourceType string, attributes map[string]any) (map[string]any, error)
	Update(ctx context.Context, resourceType, id string, attributes map[string]any) (map[string]any, error)
	Delete(ctx context.Context, resourceType, id string) error
}

// Engine drives Descriptors through find, diff and act. A weighted
// semaphore bounds how many reconciliations Run lets proceed at once.
type Engine struct {
	api API
	sem *semaphore.Weighted
}

// New creates an Engine on top of api. sem may be nil for no bound.
func New(api API, sem *semaphore.Weighted) *Engine {
	return &Engine{api: api, sem: sem}
}

// Run executes fn while holding one reconciliation slot. The slot is
// released on every exit path and a panic inside fn is returned as an
// error instead of unwinding into the caller.
func (e *Engine) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("engine: acquire slot: %w", err)
		}
		defer e.sem.Release(1)
	}

	defer func() {
		if r := recover(); r != nil {
			tflog.Error(ctx, "reconciliation panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
			err = &OpError{Op: "run", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	return fn(ctx)
}

// List returns every entity of rt matching filter. An empty filter lists all
// entities of the type.
func (e *Engine) List(ctx context.Context, rt ResourceType, filter map[string]any) ([]Entity, error) {
	results, err := e.api.Search(ctx, rt.Endpoint, filter)
	if err != nil {
		return nil, &OpError{Op: "list", ResourceType: rt.Name, Key: formatKey(filter), Err: err}
	}

	entities := make([]Entity, 0, len(results))
	for _, r := range results {
		entities = append(entities, Entity(r))
	}
	return entities, nil
}

// Find looks up the entity described by d without changing anything. A
// missing entity is (nil, nil).
func (e *Engine) Find(ctx context.Context, d *Descriptor) (Entity, error) {
	return d.Find(ctx, e.api, false)
}

// Fetch re-reads a single entity by its server-side handle.
func (e *Engine) Fetch(ctx context.Context, rt ResourceType, id string) (Entity, error) {
	remote, err := e.api.Fetch(ctx, rt.Endpoint, id)
	if err != nil {
		return nil, &OpError{Op: "fetch", ResourceType: rt.Name, Key: id, Err: err}
	}
	return Entity(remote), nil
}

// Resolve turns the natural key of a related entity into its server-side
// handle. A missing entity is a *NotFoundError.
func (e *Engine) Resolve(ctx context.Context, rt ResourceType, naturalKey map[string]any) (string, error) {
	d, err := NewDescriptor(rt, naturalKey, nil)
	if err != nil {
		return "", err
	}

	remote, err := d.Find(ctx, e.api, true)
	if err != nil {
		return "", err
	}

	id := rt.IDOf(remote)
	tflog.Debug(ctx, "resolved cross-reference", map[string]interface{}{
		"resource_type": rt.Name,
		"natural_key":   formatKey(naturalKey),
		"id":            id,
	})
	return id, nil
}
