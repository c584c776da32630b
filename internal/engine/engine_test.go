package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/semaphore"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
)

// ---------------------------------------------------------------------------
// Fake API
// ---------------------------------------------------------------------------

// call records one mutating call made against fakeAPI.
type call struct {
	Op    string
	ID    string
	Attrs map[string]any
}

// fakeAPI is an in-memory API keyed by id. Search ignores the filter when
// ignoreFilter is set to mimic servers that do not support a filter.
type fakeAPI struct {
	mu           sync.Mutex
	entities     map[string]map[string]any
	order        []string
	counter      int
	calls        []call
	ignoreFilter bool

	searchErr error
	createErr error
	updateErr error
	deleteErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{entities: make(map[string]map[string]any)}
}

func (f *fakeAPI) seed(attrs map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	id := fmt.Sprintf("/things/%d/", f.counter)
	e := map[string]any{"id": id}
	for k, v := range attrs {
		e[k] = v
	}
	f.entities[id] = e
	f.order = append(f.order, id)
	return id
}

func (f *fakeAPI) mutations() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeAPI) Search(_ context.Context, _ string, filter map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []map[string]any
	for _, id := range f.order {
		e, ok := f.entities[id]
		if !ok {
			continue
		}
		if !f.ignoreFilter {
			match := true
			for k, v := range filter {
				if fmt.Sprint(e[k]) != fmt.Sprint(v) {
					match = false
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, copyMap(e))
	}
	return out, nil
}

func (f *fakeAPI) Fetch(_ context.Context, _ string, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return nil, engine.ErrRemoteNotFound
	}
	return copyMap(e), nil
}

func (f *fakeAPI) Create(_ context.Context, _ string, attrs map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Op: "create", Attrs: copyMap(attrs)})
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	id := f.seed(attrs)
	return f.Fetch(context.Background(), "", id)
}

func (f *fakeAPI) Update(_ context.Context, _ string, id string, attrs map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: "update", ID: id, Attrs: copyMap(attrs)})
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	e, ok := f.entities[id]
	if !ok {
		return nil, engine.ErrRemoteNotFound
	}
	for k, v := range attrs {
		e[k] = v
	}
	return copyMap(e), nil
}

func (f *fakeAPI) Delete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Op: "delete", ID: id})
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.entities[id]; !ok {
		return engine.ErrRemoteNotFound
	}
	delete(f.entities, id)
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var distributionType = engine.ResourceType{
	Name:       "distribution",
	Endpoint:   "distributions/",
	NaturalKey: []string{"name"},
	Policies: map[string]engine.Policy{
		"repository": engine.PolicyNullIfAbsent,
		"password":   engine.PolicyIgnore,
	},
}

func newDescriptor(t *testing.T, key, desired map[string]any) *engine.Descriptor {
	t.Helper()
	d, err := engine.NewDescriptor(distributionType, key, desired)
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	return d
}

// ---------------------------------------------------------------------------
// Process: absent
// ---------------------------------------------------------------------------

func TestProcess_AbsentMissingIsNoop(t *testing.T) {
	api := newFakeAPI()
	eng := engine.New(api, nil)

	rep, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil), engine.StateAbsent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.Changed {
		t.Error("Changed = true, want false")
	}
	if rep.Before != nil || rep.After != nil {
		t.Errorf("Before/After = %v/%v, want nil/nil", rep.Before, rep.After)
	}
	if rep.Action != engine.ActionNone {
		t.Errorf("Action = %q, want %q", rep.Action, engine.ActionNone)
	}
	if n := len(api.mutations()); n != 0 {
		t.Errorf("mutating calls = %d, want 0", n)
	}
}

func TestProcess_AbsentExistingDeletes(t *testing.T) {
	api := newFakeAPI()
	id := api.seed(map[string]any{"name": "d1", "base_path": "a/b"})
	eng := engine.New(api, nil)

	rep, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil), engine.StateAbsent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !rep.Changed {
		t.Error("Changed = false, want true")
	}
	if rep.After != nil {
		t.Errorf("After = %v, want nil", rep.After)
	}
	if got := rep.Before["id"]; got != id {
		t.Errorf("Before.id = %v, want %q", got, id)
	}
	want := []call{{Op: "delete", ID: id}}
	if diff := cmp.Diff(want, api.mutations()); diff != "" {
		t.Errorf("mutations mismatch (-want +got):\n%s", diff)
	}

	rep, err = eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil), engine.StateAbsent)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if rep.Changed {
		t.Error("second Process Changed = true, want false")
	}
}

func TestProcess_AbsentVanishedBeforeDelete(t *testing.T) {
	api := newFakeAPI()
	api.seed(map[string]any{"name": "d1"})
	api.deleteErr = fmt.Errorf("delete: %w", engine.ErrRemoteNotFound)
	eng := engine.New(api, nil)

	rep, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil), engine.StateAbsent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.Changed {
		t.Error("Changed = true, want false")
	}
	if rep.Before == nil {
		t.Error("Before = nil, want snapshot")
	}
}

// ---------------------------------------------------------------------------
// Process: present
// ---------------------------------------------------------------------------

func TestProcess_PresentCreates(t *testing.T) {
	api := newFakeAPI()
	eng := engine.New(api, nil)

	d := newDescriptor(t, map[string]any{"name": "d1"}, map[string]any{"base_path": "a/b"})
	rep, err := eng.Process(context.Background(), d, engine.StatePresent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !rep.Changed {
		t.Error("Changed = false, want true")
	}
	if rep.Before != nil {
		t.Errorf("Before = %v, want nil", rep.Before)
	}
	if rep.After["base_path"] != "a/b" || rep.After["id"] == nil {
		t.Errorf("After = %v, want created entity", rep.After)
	}

	want := []call{{Op: "create", Attrs: map[string]any{"name": "d1", "base_path": "a/b"}}}
	if diff := cmp.Diff(want, api.mutations()); diff != "" {
		t.Errorf("mutations mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_PresentCreateSendsNulls(t *testing.T) {
	api := newFakeAPI()
	eng := engine.New(api, nil)

	d := newDescriptor(t, map[string]any{"name": "d1"}, map[string]any{"base_path": "a/b", "publication": nil})
	if _, err := eng.Process(context.Background(), d, engine.StatePresent); err != nil {
		t.Fatalf("Process: %v", err)
	}

	calls := api.mutations()
	if len(calls) != 1 {
		t.Fatalf("mutating calls = %d, want 1", len(calls))
	}
	v, ok := calls[0].Attrs["publication"]
	if !ok || v != nil {
		t.Errorf("create attrs publication = %v (present=%v), want explicit null", v, ok)
	}
}

func TestProcess_PresentUpdatesOnlyDiff(t *testing.T) {
	api := newFakeAPI()
	id := api.seed(map[string]any{"name": "d1", "base_path": "old", "description": "keep"})
	eng := engine.New(api, nil)

	d := newDescriptor(t, map[string]any{"name": "d1"}, map[string]any{"base_path": "new"})
	rep, err := eng.Process(context.Background(), d, engine.StatePresent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !rep.Changed {
		t.Error("Changed = false, want true")
	}
	if rep.Action != engine.ActionUpdate {
		t.Errorf("Action = %q, want %q", rep.Action, engine.ActionUpdate)
	}
	if rep.Before["base_path"] != "old" {
		t.Errorf("Before.base_path = %v, want old", rep.Before["base_path"])
	}
	if rep.After["base_path"] != "new" {
		t.Errorf("After.base_path = %v, want new", rep.After["base_path"])
	}

	want := []call{{Op: "update", ID: id, Attrs: map[string]any{"base_path": "new"}}}
	if diff := cmp.Diff(want, api.mutations()); diff != "" {
		t.Errorf("mutations mismatch (-want +got):\n%s", diff)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	api := newFakeAPI()
	eng := engine.New(api, nil)
	d := newDescriptor(t, map[string]any{"name": "d1"}, map[string]any{"base_path": "a/b"})

	first, err := eng.Process(context.Background(), d, engine.StatePresent)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	second, err := eng.Process(context.Background(), d, engine.StatePresent)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}

	if !first.Changed || second.Changed {
		t.Errorf("Changed = %v,%v, want true,false", first.Changed, second.Changed)
	}
	if diff := cmp.Diff(second.Before, second.After); diff != "" {
		t.Errorf("unchanged report Before != After:\n%s", diff)
	}
	if n := len(api.mutations()); n != 1 {
		t.Errorf("mutating calls = %d, want 1", n)
	}
}

func TestProcess_AmbiguousAborts(t *testing.T) {
	api := newFakeAPI()
	api.seed(map[string]any{"name": "dup"})
	api.seed(map[string]any{"name": "dup"})
	eng := engine.New(api, nil)

	_, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "dup"}, map[string]any{"base_path": "x"}), engine.StatePresent)
	var aerr *engine.AmbiguousError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *AmbiguousError", err)
	}
	if len(aerr.IDs) != 2 {
		t.Errorf("IDs = %v, want 2 entries", aerr.IDs)
	}
	if engine.Kind(err) != engine.KindAmbiguous {
		t.Errorf("Kind = %q, want %q", engine.Kind(err), engine.KindAmbiguous)
	}
	if n := len(api.mutations()); n != 0 {
		t.Errorf("mutating calls = %d, want 0", n)
	}
}

func TestProcess_ClientSideKeyFilter(t *testing.T) {
	api := newFakeAPI()
	api.ignoreFilter = true
	api.seed(map[string]any{"name": "other", "base_path": "x"})
	id := api.seed(map[string]any{"name": "d1", "base_path": "x"})
	eng := engine.New(api, nil)

	rep, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, map[string]any{"base_path": "x"}), engine.StatePresent)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.Changed {
		t.Error("Changed = true, want false")
	}
	if rep.Before["id"] != id {
		t.Errorf("matched %v, want %q", rep.Before["id"], id)
	}
}

func TestProcess_MutationErrorsSurface(t *testing.T) {
	conflict := fmt.Errorf("409 conflict: %w", engine.ErrAPI)

	tests := []struct {
		name  string
		seed  bool
		state engine.State
		setup func(*fakeAPI)
		op    string
	}{
		{name: "create", state: engine.StatePresent, setup: func(f *fakeAPI) { f.createErr = conflict }, op: "create"},
		{name: "update", seed: true, state: engine.StatePresent, setup: func(f *fakeAPI) { f.updateErr = conflict }, op: "update"},
		{name: "delete", seed: true, state: engine.StateAbsent, setup: func(f *fakeAPI) { f.deleteErr = conflict }, op: "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			if tt.seed {
				api.seed(map[string]any{"name": "d1", "base_path": "old"})
			}
			tt.setup(api)
			eng := engine.New(api, nil)

			d := newDescriptor(t, map[string]any{"name": "d1"}, map[string]any{"base_path": "new"})
			_, err := eng.Process(context.Background(), d, tt.state)

			var oerr *engine.OpError
			if !errors.As(err, &oerr) {
				t.Fatalf("error = %v, want *OpError", err)
			}
			if oerr.Op != tt.op {
				t.Errorf("Op = %q, want %q", oerr.Op, tt.op)
			}
			if !errors.Is(err, conflict) {
				t.Errorf("error %v does not wrap the API error", err)
			}
			if engine.Kind(err) != engine.KindAPI {
				t.Errorf("Kind = %q, want %q", engine.Kind(err), engine.KindAPI)
			}
			if !strings.Contains(err.Error(), `name="d1"`) {
				t.Errorf("error %q does not name the entity", err)
			}
		})
	}
}

func TestProcess_SearchTransportError(t *testing.T) {
	api := newFakeAPI()
	api.searchErr = fmt.Errorf("dial tcp: connection refused: %w", engine.ErrTransport)
	eng := engine.New(api, nil)

	_, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil), engine.StatePresent)
	if engine.Kind(err) != engine.KindTransport {
		t.Errorf("Kind = %q, want %q (err=%v)", engine.Kind(err), engine.KindTransport, err)
	}
}

func TestProcess_InvalidState(t *testing.T) {
	eng := engine.New(newFakeAPI(), nil)
	_, err := eng.Process(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil), engine.State("gone"))
	if engine.Kind(err) != engine.KindValidation {
		t.Errorf("Kind = %q, want %q", engine.Kind(err), engine.KindValidation)
	}
}

// ---------------------------------------------------------------------------
// Plan (dry run)
// ---------------------------------------------------------------------------

func TestPlan_NoMutations(t *testing.T) {
	api := newFakeAPI()
	api.seed(map[string]any{"name": "upd", "base_path": "old"})
	api.seed(map[string]any{"name": "del"})
	eng := engine.New(api, nil)
	ctx := context.Background()

	create, err := eng.Plan(ctx, newDescriptor(t, map[string]any{"name": "new"}, map[string]any{"base_path": "p"}), engine.StatePresent)
	if err != nil {
		t.Fatalf("Plan create: %v", err)
	}
	if create.Action != engine.ActionCreate || create.After["base_path"] != "p" || create.After["name"] != "new" {
		t.Errorf("create plan = %+v", create)
	}

	update, err := eng.Plan(ctx, newDescriptor(t, map[string]any{"name": "upd"}, map[string]any{"base_path": "new"}), engine.StatePresent)
	if err != nil {
		t.Fatalf("Plan update: %v", err)
	}
	if update.Action != engine.ActionUpdate || update.After["base_path"] != "new" || update.Before["base_path"] != "old" {
		t.Errorf("update plan = %+v", update)
	}

	del, err := eng.Plan(ctx, newDescriptor(t, map[string]any{"name": "del"}, nil), engine.StateAbsent)
	if err != nil {
		t.Fatalf("Plan delete: %v", err)
	}
	if del.Action != engine.ActionDelete || !del.Changed || del.After != nil {
		t.Errorf("delete plan = %+v", del)
	}

	if n := len(api.mutations()); n != 0 {
		t.Errorf("mutating calls = %d, want 0", n)
	}
	for _, r := range []*engine.Report{create, update, del} {
		if !r.DryRun {
			t.Errorf("%s report DryRun = false", r.Action)
		}
	}
}

// ---------------------------------------------------------------------------
// Resolve / List / Run
// ---------------------------------------------------------------------------

func TestResolve(t *testing.T) {
	api := newFakeAPI()
	id := api.seed(map[string]any{"name": "repo"})
	eng := engine.New(api, nil)

	got, err := eng.Resolve(context.Background(), distributionType, map[string]any{"name": "repo"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != id {
		t.Errorf("Resolve = %q, want %q", got, id)
	}
}

func TestResolve_MissingIsNotFound(t *testing.T) {
	eng := engine.New(newFakeAPI(), nil)

	_, err := eng.Resolve(context.Background(), distributionType, map[string]any{"name": "missing-repo"})
	var nerr *engine.NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
	if engine.Kind(err) != engine.KindNotFound {
		t.Errorf("Kind = %q, want %q", engine.Kind(err), engine.KindNotFound)
	}
	if !strings.Contains(err.Error(), "missing-repo") {
		t.Errorf("error %q does not name the missing entity", err)
	}
}

func TestFind(t *testing.T) {
	api := newFakeAPI()
	id := api.seed(map[string]any{"name": "d1", "base_path": "a/b"})
	eng := engine.New(api, nil)

	got, err := eng.Find(context.Background(), newDescriptor(t, map[string]any{"name": "d1"}, nil))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got["id"] != id {
		t.Errorf("Find returned %v, want entity %q", got, id)
	}

	missing, err := eng.Find(context.Background(), newDescriptor(t, map[string]any{"name": "nope"}, nil))
	if err != nil || missing != nil {
		t.Errorf("Find(missing) = %v, %v; want nil, nil", missing, err)
	}
	if len(api.mutations()) != 0 {
		t.Errorf("Find issued mutations: %v", api.mutations())
	}
}

func TestList(t *testing.T) {
	api := newFakeAPI()
	api.seed(map[string]any{"name": "a"})
	api.seed(map[string]any{"name": "b"})
	eng := engine.New(api, nil)

	all, err := eng.List(context.Background(), distributionType, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List returned %d entities, want 2", len(all))
	}
}

func TestRun_RecoversPanicAndReleases(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	eng := engine.New(newFakeAPI(), sem)

	err := eng.Run(context.Background(), func(context.Context) error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Run error = %v, want panic error", err)
	}
	if engine.Kind(err) != engine.KindInternal {
		t.Errorf("Kind = %q, want %q", engine.Kind(err), engine.KindInternal)
	}
	if !sem.TryAcquire(1) {
		t.Error("semaphore slot was not released")
	}
}

func TestRun_PropagatesError(t *testing.T) {
	eng := engine.New(newFakeAPI(), semaphore.NewWeighted(1))
	want := errors.New("failed")

	if err := eng.Run(context.Background(), func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("Run error = %v, want %v", err, want)
	}
}

func TestRun_CancelledWhileWaiting(t *testing.T) {
	sem := semaphore.NewWeighted(1)
	if !sem.TryAcquire(1) {
		t.Fatal("TryAcquire failed")
	}
	eng := engine.New(newFakeAPI(), sem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := eng.Run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("fn ran without a slot")
	}
}
