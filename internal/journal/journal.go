// Package journal appends reconciliation reports to object storage so every
// change made to a Pulp server leaves an audit trail. Records are grouped by
// entity and pruned to a fixed number per entity.
package journal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/sync/errgroup"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
)

const (
	recordSuffix     = ".json"
	pruneConcurrency = 4
)

// Journal writes Records to a Store.
type Journal struct {
	store           Store
	retain          int
	providerVersion string
	now             func() time.Time
}

// New returns a Journal writing to store. retain is the number of records
// kept per entity; 0 keeps everything.
func New(store Store, retain int, providerVersion string) *Journal {
	return &Journal{
		store:           store,
		retain:          retain,
		providerVersion: providerVersion,
		now:             time.Now,
	}
}

// Store returns the underlying store.
func (j *Journal) Store() Store {
	return j.store
}

// Record appends rep to the journal and prunes old records for the same
// entity. Planned and unchanged reports are not recorded; Record returns ""
// for them.
func (j *Journal) Record(ctx context.Context, rep *engine.Report) (string, error) {
	if rep == nil || rep.DryRun || !rep.Changed {
		return "", nil
	}

	now := j.now()
	id := NewRecordID(now)
	prefix := EntityPrefix(rep.ResourceType, rep.Key)

	data, err := MarshalRecord(NewRecord(id, j.providerVersion, now, rep))
	if err != nil {
		return "", err
	}

	key := prefix + id + recordSuffix
	err = j.store.Put(ctx, key, bytes.NewReader(data), PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"resource-type": rep.ResourceType,
			"action":        string(rep.Action),
		},
		CreateOnly: true,
	})
	if err != nil {
		return "", fmt.Errorf("journal: write record %s: %w", key, err)
	}

	tflog.Debug(ctx, "recorded change", map[string]interface{}{
		"journal":   j.store.Name(),
		"record_id": id,
		"action":    string(rep.Action),
	})

	if j.retain > 0 {
		if removed, err := j.Prune(ctx, prefix); err != nil {
			tflog.Warn(ctx, "journal prune failed", map[string]interface{}{
				"prefix": prefix,
				"error":  err.Error(),
			})
		} else if removed > 0 {
			tflog.Debug(ctx, "pruned journal records", map[string]interface{}{
				"prefix":  prefix,
				"removed": removed,
			})
		}
	}

	return id, nil
}

// History returns the records stored for one entity, oldest first.
func (j *Journal) History(ctx context.Context, resourceType string, key map[string]any) ([]*Record, error) {
	keys, err := j.recordKeys(ctx, EntityPrefix(resourceType, key))
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(keys))
	for _, k := range keys {
		rc, err := j.store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("journal: read %s: %w", k, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("journal: read %s: %w", k, err)
		}
		r, err := UnmarshalRecord(data)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Prune deletes all but the newest retain records under prefix and
// returns how many were removed.
func (j *Journal) Prune(ctx context.Context, prefix string) (int, error) {
	if j.retain <= 0 {
		return 0, nil
	}

	keys, err := j.recordKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) <= j.retain {
		return 0, nil
	}
	stale := keys[:len(keys)-j.retain]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pruneConcurrency)
	for _, k := range stale {
		k := k
		g.Go(func() error {
			if err := j.store.Delete(gctx, k); err != nil {
				return fmt.Errorf("journal: delete %s: %w", k, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// recordKeys lists record keys under prefix sorted by record ID, which is
// chronological.
func (j *Journal) recordKeys(ctx context.Context, prefix string) ([]string, error) {
	objects, err := j.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("journal: list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		name := strings.TrimPrefix(o.Key, prefix)
		// Skip nested prefixes and foreign objects.
		if strings.Contains(name, "/") || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		if _, err := ParseRecordID(strings.TrimSuffix(name, recordSuffix)); err != nil {
			continue
		}
		keys = append(keys, o.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// EntityPrefix returns the key prefix under which records for one entity
// are stored, e.g. "rpm_distribution/name=%22d1%22/".
func EntityPrefix(resourceType string, key map[string]any) string {
	rt := strings.ReplaceAll(strings.ToLower(resourceType), " ", "_")
	r := &engine.Report{Key: key}
	return url.PathEscape(rt) + "/" + url.PathEscape(r.KeyString()) + "/"
}
