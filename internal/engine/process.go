package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// State is the lifecycle state a caller wants an entity to reach.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// ParseState converts a user-supplied state name into a State.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePresent, StateAbsent:
		return State(s), nil
	default:
		return "", &ValidationError{ResourceType: "state", Reason: fmt.Sprintf("unknown state %q (must be present or absent)", s)}
	}
}

// Process brings the entity described by d to state and reports what it
// did. It performs one lookup and at most one mutating call; failures are
// returned immediately and nothing is retried or rolled back. Running
// Process again is safe: it re-derives the diff from fresh server state.
func (e *Engine) Process(ctx context.Context, d *Descriptor, state State) (*Report, error) {
	return e.process(ctx, d, state, false)
}

// Plan computes the Report that Process would return without issuing any
// mutating call. After holds the predicted entity.
func (e *Engine) Plan(ctx context.Context, d *Descriptor, state State) (*Report, error) {
	return e.process(ctx, d, state, true)
}

func (e *Engine) process(ctx context.Context, d *Descriptor, state State, dryRun bool) (*Report, error) {
	if _, err := ParseState(string(state)); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"resource_type": d.Type.Name,
		"natural_key":   formatKey(d.NaturalKey),
		"state":         string(state),
		"dry_run":       dryRun,
	}

	remote, err := d.Find(ctx, e.api, false)
	if err != nil {
		return nil, err
	}
	fields["found"] = remote != nil
	tflog.Debug(ctx, "looked up entity", fields)

	rep := &Report{
		ResourceType: d.Type.Name,
		Key:          d.NaturalKey,
		Action:       ActionNone,
		DryRun:       dryRun,
	}

	switch state {
	case StateAbsent:
		if remote == nil {
			return rep, nil
		}
		return e.delete(ctx, d, remote, rep)

	default:
		if remote == nil {
			return e.create(ctx, d, rep)
		}
		return e.update(ctx, d, remote, rep)
	}
}

func (e *Engine) create(ctx context.Context, d *Descriptor, rep *Report) (*Report, error) {
	attrs := d.createAttributes()
	rep.Action = ActionCreate
	rep.Changed = true
	rep.Diff = attrs

	if rep.DryRun {
		rep.After = Entity(attrs).clone()
		return rep, nil
	}

	created, err := e.api.Create(ctx, d.Type.Endpoint, attrs)
	if err != nil {
		return nil, &OpError{Op: "create", ResourceType: d.Type.Name, Key: formatKey(d.NaturalKey), Err: err}
	}
	rep.After = Entity(created)

	tflog.Info(ctx, "created entity", map[string]interface{}{
		"resource_type": d.Type.Name,
		"natural_key":   formatKey(d.NaturalKey),
		"id":            d.Type.IDOf(rep.After),
	})
	return rep, nil
}

func (e *Engine) update(ctx context.Context, d *Descriptor, remote Entity, rep *Report) (*Report, error) {
	rep.Before = remote

	diff := d.Diff(remote)
	if len(diff) == 0 {
		rep.After = remote
		return rep, nil
	}

	id := d.Type.IDOf(remote)
	if id == "" {
		return nil, &OpError{Op: "update", ResourceType: d.Type.Name, Key: formatKey(d.NaturalKey), Err: errors.New("remote entity has no id")}
	}

	rep.Action = ActionUpdate
	rep.Changed = true
	rep.Diff = diff

	if rep.DryRun {
		after := remote.clone()
		for k, v := range diff {
			after[k] = v
		}
		rep.After = after
		return rep, nil
	}

	updated, err := e.api.Update(ctx, d.Type.Endpoint, id, diff)
	if err != nil {
		return nil, &OpError{Op: "update", ResourceType: d.Type.Name, Key: formatKey(d.NaturalKey), Err: err}
	}
	rep.After = Entity(updated)

	tflog.Info(ctx, "updated entity", map[string]interface{}{
		"resource_type": d.Type.Name,
		"natural_key":   formatKey(d.NaturalKey),
		"id":            id,
		"fields":        len(diff),
	})
	return rep, nil
}

func (e *Engine) delete(ctx context.Context, d *Descriptor, remote Entity, rep *Report) (*Report, error) {
	rep.Before = remote

	id := d.Type.IDOf(remote)
	if id == "" {
		return nil, &OpError{Op: "delete", ResourceType: d.Type.Name, Key: formatKey(d.NaturalKey), Err: errors.New("remote entity has no id")}
	}

	if rep.DryRun {
		rep.Action = ActionDelete
		rep.Changed = true
		return rep, nil
	}

	if err := e.api.Delete(ctx, d.Type.Endpoint, id); err != nil {
		if errors.Is(err, ErrRemoteNotFound) {
			// Someone else removed it between lookup and delete.
			tflog.Warn(ctx, "entity vanished before delete", map[string]interface{}{
				"resource_type": d.Type.Name,
				"id":            id,
			})
			return rep, nil
		}
		return nil, &OpError{Op: "delete", ResourceType: d.Type.Name, Key: formatKey(d.NaturalKey), Err: err}
	}

	rep.Action = ActionDelete
	rep.Changed = true

	tflog.Info(ctx, "deleted entity", map[string]interface{}{
		"resource_type": d.Type.Name,
		"natural_key":   formatKey(d.NaturalKey),
		"id":            id,
	})
	return rep, nil
}
