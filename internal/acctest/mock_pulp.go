package acctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const mockAPIRoot = "/pulp/api/v3/"

// Collections served by the mock, relative to the API root.
const (
	DistributionsPath = "distributions/rpm/rpm/"
	RepositoriesPath  = "repositories/rpm/rpm/"
	PublicationsPath  = "publications/rpm/rpm/"
	ContentGuardsPath = "contentguards/"
	tasksPath         = "tasks/"
)

// MockPulpServer is an in-memory Pulp REST API. Entities live in plain maps
// keyed by pulp_href; list endpoints support exact-match filters and
// limit/offset pagination.
type MockPulpServer struct {
	mu       sync.Mutex
	entities map[string]map[string]any
	order    []string
	counter  int
	requests map[string]int // by method

	// Async makes POST, PATCH and DELETE answer 202 with a completed task.
	Async bool
	// PageSize caps list pages regardless of the client's limit. Zero
	// means no cap.
	PageSize int

	Server *httptest.Server
}

// NewMockPulpServer starts a mock Pulp server. It is closed when the test
// finishes.
func NewMockPulpServer(t *testing.T) *MockPulpServer {
	t.Helper()

	m := &MockPulpServer{
		entities: make(map[string]map[string]any),
		requests: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(mockAPIRoot, m.handle)

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Server.Close)

	return m
}

// URL returns the base URL of the mock server.
func (m *MockPulpServer) URL() string {
	return m.Server.URL
}

// ---------------------------------------------------------------------------
// Seeding and inspection
// ---------------------------------------------------------------------------

// SeedRepository adds an RPM repository and returns its href.
func (m *MockPulpServer) SeedRepository(name string) string {
	return m.seed(RepositoriesPath, map[string]any{"name": name})
}

// SeedPublication adds a publication of repoHref and returns its href.
func (m *MockPulpServer) SeedPublication(repoHref string) string {
	return m.seed(PublicationsPath, map[string]any{
		"repository":         repoHref,
		"repository_version": repoHref + "versions/1/",
	})
}

// SeedContentGuard adds a content guard and returns its href.
func (m *MockPulpServer) SeedContentGuard(name string) string {
	return m.seed(ContentGuardsPath, map[string]any{"name": name})
}

// SeedDistribution adds a distribution with the given attributes.
func (m *MockPulpServer) SeedDistribution(attrs map[string]any) string {
	return m.seed(DistributionsPath, attrs)
}

// Entity returns a copy of the entity at href, or nil.
func (m *MockPulpServer) Entity(href string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[href]
	if !ok {
		return nil
	}
	return copyEntity(e)
}

// FindByName returns the first entity in collection with the given name.
func (m *MockPulpServer) FindByName(collection, name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, href := range m.order {
		e := m.entities[href]
		if e != nil && strings.HasPrefix(href, mockAPIRoot+collection) && e["name"] == name {
			return copyEntity(e)
		}
	}
	return nil
}

// Remove deletes an entity behind the provider's back.
func (m *MockPulpServer) Remove(href string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, href)
}

// Requests returns how many requests with method the server has seen.
func (m *MockPulpServer) Requests(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[method]
}

func (m *MockPulpServer) seed(collection string, attrs map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(collection, attrs)
}

func (m *MockPulpServer) insertLocked(collection string, attrs map[string]any) string {
	m.counter++
	href := fmt.Sprintf("%s%s%d/", mockAPIRoot, collection, m.counter)

	e := map[string]any{
		"pulp_href":    href,
		"pulp_created": time.Date(2026, 1, 1, 0, 0, m.counter, 0, time.UTC).Format(time.RFC3339),
	}
	switch collection {
	case DistributionsPath:
		e["publication"] = nil
		e["repository"] = nil
		e["content_guard"] = nil
	case RepositoriesPath:
		e["description"] = nil
		e["retain_package_versions"] = 0
		e["autopublish"] = false
		e["latest_version_href"] = href + "versions/0/"
	}
	for k, v := range attrs {
		e[k] = v
	}
	if collection == DistributionsPath {
		e["base_url"] = fmt.Sprintf("%s/pulp/content/%v/", m.Server.URL, e["base_path"])
	}

	m.entities[href] = e
	m.order = append(m.order, href)
	return href
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func (m *MockPulpServer) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.Method]++

	rel := strings.TrimPrefix(r.URL.Path, mockAPIRoot)

	if strings.HasPrefix(rel, tasksPath) {
		m.getTask(w, r)
		return
	}

	collection, ok := collectionOf(rel)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	if rel == collection {
		switch r.Method {
		case http.MethodGet:
			m.list(w, r, collection)
		case http.MethodPost:
			m.create(w, r, collection)
		default:
			writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %q not allowed.", r.Method))
		}
		return
	}

	href := r.URL.Path
	e, exists := m.entities[href]
	if !exists {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, e)
	case http.MethodPatch:
		m.update(w, r, href, e)
	case http.MethodDelete:
		delete(m.entities, href)
		if m.Async {
			m.acceptTask(w, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %q not allowed.", r.Method))
	}
}

func collectionOf(rel string) (string, bool) {
	for _, c := range []string{DistributionsPath, RepositoriesPath, PublicationsPath, ContentGuardsPath} {
		if strings.HasPrefix(rel, c) {
			return c, true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Handlers (called with mu held)
// ---------------------------------------------------------------------------

func (m *MockPulpServer) list(w http.ResponseWriter, r *http.Request, collection string) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	if limit <= 0 {
		limit = 100
	}
	if m.PageSize > 0 && limit > m.PageSize {
		limit = m.PageSize
	}

	var matches []map[string]any
	for _, href := range m.order {
		e, ok := m.entities[href]
		if !ok || !strings.HasPrefix(href, mockAPIRoot+collection) {
			continue
		}
		if matchesQuery(e, query) {
			matches = append(matches, e)
		}
	}

	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	page := []map[string]any{}
	if offset < len(matches) {
		page = matches[offset:end]
	}

	var next any
	if end < len(matches) {
		q := r.URL.Query()
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(end))
		next = fmt.Sprintf("%s%s?%s", m.Server.URL, r.URL.Path, q.Encode())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(matches),
		"next":     next,
		"previous": nil,
		"results":  page,
	})
}

func (m *MockPulpServer) create(w http.ResponseWriter, r *http.Request, collection string) {
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error.")
		return
	}

	if name, ok := attrs["name"]; ok {
		for _, href := range m.order {
			e, exists := m.entities[href]
			if exists && strings.HasPrefix(href, mockAPIRoot+collection) && e["name"] == name {
				writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field must be unique."}})
				return
			}
		}
	}

	href := m.insertLocked(collection, attrs)
	if m.Async {
		m.acceptTask(w, []string{href})
		return
	}
	writeJSON(w, http.StatusCreated, m.entities[href])
}

func (m *MockPulpServer) update(w http.ResponseWriter, r *http.Request, href string, e map[string]any) {
	var attrs map[string]any
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error.")
		return
	}
	for k, v := range attrs {
		e[k] = v
	}
	if _, ok := attrs["base_path"]; ok {
		e["base_url"] = fmt.Sprintf("%s/pulp/content/%v/", m.Server.URL, e["base_path"])
	}

	if m.Async {
		m.acceptTask(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (m *MockPulpServer) acceptTask(w http.ResponseWriter, created []string) {
	if created == nil {
		created = []string{}
	}
	m.counter++
	href := fmt.Sprintf("%s%s%d/", mockAPIRoot, tasksPath, m.counter)
	m.entities[href] = map[string]any{
		"pulp_href":         href,
		"state":             "completed",
		"created_resources": created,
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"task": href})
}

func (m *MockPulpServer) getTask(w http.ResponseWriter, r *http.Request) {
	task, ok := m.entities[r.URL.Path]
	if !ok || r.Method != http.MethodGet {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func matchesQuery(e map[string]any, query map[string][]string) bool {
	for k, values := range query {
		if k == "limit" || k == "offset" {
			continue
		}
		if fmt.Sprint(e[k]) != values[0] {
			return false
		}
	}
	return true
}

func copyEntity(e map[string]any) map[string]any {
	out := make(map[string]any, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
