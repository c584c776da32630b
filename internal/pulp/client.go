package pulp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	defaultAPIRoot            = "/pulp/api/v3/"
	defaultMaxRetries         = 3
	defaultTimeoutSeconds     = 30
	defaultTaskTimeoutSeconds = 600
	defaultPollInterval       = time.Second
	defaultPageSize           = 100
)

// ClientConfig holds configuration for constructing a new Client.
type ClientConfig struct {
	BaseURL            string
	APIRoot            string
	Username           string
	Password           string
	InsecureSkipVerify bool
	MaxRetries         int
	TimeoutSeconds     int
	TaskTimeoutSeconds int
	PollInterval       time.Duration
	PageSize           int
}

// Client is an HTTP client for the Pulp 3 REST API. Resource types are
// endpoint paths relative to the API root, and entity ids are pulp_href
// values. Client satisfies engine.API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	base         *url.URL
	apiRoot      string
	username     string
	password     string
	maxRetries   int
	taskTimeout  time.Duration
	pollInterval time.Duration
	pageSize     int
}

// NewClient creates a new Pulp API client from the given configuration.
func NewClient(cfg ClientConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	timeoutSec := cfg.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = defaultTimeoutSeconds
	}

	taskTimeoutSec := cfg.TaskTimeoutSeconds
	if taskTimeoutSec <= 0 {
		taskTimeoutSec = defaultTaskTimeoutSeconds
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	apiRoot := cfg.APIRoot
	if apiRoot == "" {
		apiRoot = defaultAPIRoot
	}
	if !strings.HasPrefix(apiRoot, "/") {
		apiRoot = "/" + apiRoot
	}
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via validate_certs = false
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	// An unparsable base URL fails on the first request instead.
	base, _ := url.Parse(baseURL)

	return &Client{
		httpClient: &http.Client{
			Timeout:   time.Duration(timeoutSec) * time.Second,
			Transport: transport,
		},
		baseURL:      baseURL,
		base:         base,
		apiRoot:      apiRoot,
		username:     cfg.Username,
		password:     cfg.Password,
		maxRetries:   maxRetries,
		taskTimeout:  time.Duration(taskTimeoutSec) * time.Second,
		pollInterval: poll,
		pageSize:     pageSize,
	}
}

// ---------------------------------------------------------------------------
// engine.API
// ---------------------------------------------------------------------------

// Search lists every entity of resourceType matching filter, following the
// server's pagination links until exhausted.
func (c *Client) Search(ctx context.Context, resourceType string, filter map[string]any) ([]map[string]any, error) {
	query := url.Values{}
	for k, v := range filter {
		query.Set(k, queryValue(v))
	}
	query.Set("limit", fmt.Sprint(c.pageSize))
	query.Set("offset", "0")

	next := c.endpointURL(resourceType) + "?" + query.Encode()
	var out []map[string]any

	for next != "" {
		var page listResponse
		if _, err := c.doJSON(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		next = c.absoluteURL(page.Next)
	}

	tflog.Debug(ctx, "pulp search", map[string]interface{}{
		"resource_type": resourceType,
		"matches":       len(out),
	})
	return out, nil
}

// Fetch reads one entity by its href.
func (c *Client) Fetch(ctx context.Context, _ string, id string) (map[string]any, error) {
	var entity map[string]any
	if _, err := c.doJSON(ctx, http.MethodGet, c.absoluteURL(id), nil, &entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Create posts attributes to the resourceType endpoint. When the server
// answers with a task, Create waits for it and returns the entity it
// created.
func (c *Client) Create(ctx context.Context, resourceType string, attributes map[string]any) (map[string]any, error) {
	status, body, err := c.do(ctx, http.MethodPost, c.endpointURL(resourceType), attributes)
	if err != nil {
		return nil, err
	}

	if status == http.StatusAccepted {
		task, err := c.awaitTask(ctx, body)
		if err != nil {
			return nil, err
		}
		if len(task.CreatedResources) == 0 {
			return nil, fmt.Errorf("pulp: task %s completed without creating a resource", task.PulpHref)
		}
		return c.Fetch(ctx, resourceType, task.CreatedResources[0])
	}

	return decodeEntity(body)
}

// Update patches the entity at id with attributes. An asynchronous update is
// awaited and the entity re-fetched.
func (c *Client) Update(ctx context.Context, resourceType, id string, attributes map[string]any) (map[string]any, error) {
	status, body, err := c.do(ctx, http.MethodPatch, c.absoluteURL(id), attributes)
	if err != nil {
		return nil, err
	}

	if status == http.StatusAccepted {
		if _, err := c.awaitTask(ctx, body); err != nil {
			return nil, err
		}
		return c.Fetch(ctx, resourceType, id)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return c.Fetch(ctx, resourceType, id)
	}
	return decodeEntity(body)
}

// Delete removes the entity at id, waiting for the deletion task if the
// server runs it asynchronously.
func (c *Client) Delete(ctx context.Context, _ string, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, c.absoluteURL(id), nil)
	if err != nil {
		return err
	}
	if status == http.StatusAccepted {
		_, err := c.awaitTask(ctx, body)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func (c *Client) awaitTask(ctx context.Context, body []byte) (*Task, error) {
	var ref taskRef
	if err := json.Unmarshal(body, &ref); err != nil || ref.Task == "" {
		return nil, fmt.Errorf("pulp: decode task reference: unexpected body %q", truncate(string(body), 200))
	}
	return c.WaitForTask(ctx, ref.Task)
}

// WaitForTask polls the task at href until it reaches a final state. A
// failed, canceled or skipped task is returned as a *TaskError, as is a task
// still running once the configured task timeout elapses.
func (c *Client) WaitForTask(ctx context.Context, href string) (*Task, error) {
	deadline := time.Now().Add(c.taskTimeout)

	for {
		var task Task
		if _, err := c.doJSON(ctx, http.MethodGet, c.absoluteURL(href), nil, &task); err != nil {
			return nil, err
		}
		if task.PulpHref == "" {
			task.PulpHref = href
		}

		switch task.State {
		case TaskCompleted:
			tflog.Debug(ctx, "pulp task completed", map[string]interface{}{
				"task":              href,
				"created_resources": len(task.CreatedResources),
			})
			return &task, nil
		case TaskFailed, TaskCanceled, TaskSkipped:
			return nil, &TaskError{Href: href, State: task.State, Description: task.errorDescription()}
		}

		if time.Now().After(deadline) {
			return nil, &TaskError{
				Href:        href,
				State:       task.State,
				Description: fmt.Sprintf("did not finish within %s", c.taskTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return nil, &TransportError{Method: http.MethodGet, URL: c.absoluteURL(href), Err: ctx.Err()}
		case <-time.After(c.pollInterval):
		}
	}
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// doJSON performs a request and decodes a 2xx response body into result.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, result interface{}) (int, error) {
	status, respBody, err := c.do(ctx, method, rawURL, body)
	if err != nil {
		return status, err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return status, fmt.Errorf("pulp: decode response from %s %s: %w", method, rawURL, err)
		}
	}
	return status, nil
}

// do performs an HTTP request with JSON encoding and retry logic and returns
// the status code and body of a 2xx response. Only GET requests are
// retried; a mutating request is sent at most once.
func (c *Client) do(ctx context.Context, method, rawURL string, body interface{}) (int, []byte, error) {
	ctx = c.maskCredentials(ctx)

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("pulp: marshal request body: %w", err)
		}
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}

	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s, ...
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return 0, nil, &TransportError{Method: method, URL: rawURL, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		var bodyReader io.Reader
		if encoded != nil {
			bodyReader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
		if err != nil {
			return 0, nil, fmt.Errorf("pulp: create request: %w", err)
		}

		req.SetBasicAuth(c.username, c.password)
		req.Header.Set("Accept", "application/json")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Method: method, URL: rawURL, Err: err}
			if ctx.Err() != nil {
				return 0, nil, lastErr
			}
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &TransportError{Method: method, URL: rawURL, Err: fmt.Errorf("read response body: %w", err)}
			continue
		}

		tflog.Debug(ctx, "pulp request", map[string]interface{}{
			"method":  method,
			"url":     rawURL,
			"status":  resp.StatusCode,
			"attempt": attempt,
		})

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, respBody, nil
		}

		apiErr := parseAPIError(method, rawURL, resp.StatusCode, respBody)

		// Retry on 429 (rate limit) and 5xx (server errors).
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}

		return resp.StatusCode, nil, apiErr
	}

	if retries == 0 {
		return 0, nil, lastErr
	}
	return 0, nil, fmt.Errorf("pulp: request failed after %d retries: %w", retries, lastErr)
}

// maskCredentials hides the password from every log entry written under ctx.
func (c *Client) maskCredentials(ctx context.Context) context.Context {
	if c.password == "" {
		return ctx
	}
	ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, "password")
	return tflog.MaskMessageStrings(ctx, c.password)
}

// endpointURL returns the absolute URL of a resource type collection.
func (c *Client) endpointURL(resourceType string) string {
	return c.baseURL + c.apiRoot + strings.TrimPrefix(resourceType, "/")
}

// absoluteURL turns a server-relative href into an absolute URL. Absolute
// links (as found in pagination "next" fields) are kept when they point at
// the configured server. Links to any other origin are re-based onto it.
func (c *Client) absoluteURL(href string) string {
	if href == "" {
		return ""
	}
	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		if c.sameOrigin(u) {
			return href
		}
		href = u.RequestURI()
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return c.baseURL + href
}

func (c *Client) sameOrigin(u *url.URL) bool {
	return c.base != nil &&
		strings.EqualFold(u.Scheme, c.base.Scheme) &&
		strings.EqualFold(u.Host, c.base.Host)
}

// parseAPIError turns an error response body into an APIError. Pulp
// reports either {"detail": "..."} or field errors of the form
// {"field": ["msg", ...]}; both are flattened into Message.
func parseAPIError(method, rawURL string, statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Method: method, URL: rawURL}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		apiErr.Message = truncate(strings.TrimSpace(string(body)), 200)
		return apiErr
	}

	if detail, ok := fields["detail"].(string); ok {
		apiErr.Message = detail
		return apiErr
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+flattenMessages(fields[name]))
	}
	apiErr.Message = strings.Join(parts, "; ")
	return apiErr
}

func flattenMessages(v interface{}) string {
	switch m := v.(type) {
	case string:
		return m
	case []interface{}:
		msgs := make([]string, 0, len(m))
		for _, item := range m {
			msgs = append(msgs, flattenMessages(item))
		}
		return strings.Join(msgs, ", ")
	default:
		b, _ := json.Marshal(m)
		return string(b)
	}
}

func decodeEntity(body []byte) (map[string]any, error) {
	var entity map[string]any
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("pulp: decode entity: %w", err)
	}
	return entity, nil
}

// queryValue renders a filter value the way Pulp's query parser expects.
func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
