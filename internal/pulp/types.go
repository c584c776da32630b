package pulp

import (
	"fmt"
	"net/http"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
)

// Task states reported by the Pulp tasking system.
const (
	TaskWaiting   = "waiting"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
	TaskCanceled  = "canceled"
	TaskSkipped   = "skipped"
)

// Task is the subset of a Pulp task the client needs to follow it.
type Task struct {
	PulpHref         string                 `json:"pulp_href"`
	State            string                 `json:"state"`
	CreatedResources []string               `json:"created_resources"`
	Error            map[string]interface{} `json:"error,omitempty"`
}

func (t *Task) errorDescription() string {
	if t.State == TaskSkipped && len(t.Error) == 0 {
		return "skipped by the tasking system"
	}
	if d, ok := t.Error["description"].(string); ok && d != "" {
		return d
	}
	if len(t.Error) > 0 {
		return fmt.Sprint(t.Error)
	}
	return "no error description"
}

// taskRef is the body of a 202 Accepted response.
type taskRef struct {
	Task string `json:"task"`
}

// listResponse is one page of a Pulp list endpoint.
type listResponse struct {
	Count    int              `json:"count"`
	Next     string           `json:"next"`
	Previous string           `json:"previous"`
	Results  []map[string]any `json:"results"`
}

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pulp: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets TransportError match engine.ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == engine.ErrTransport
}

// APIError represents a non-2xx response from the Pulp API.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	status := fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		return "pulp: " + status + ": " + e.Message
	}
	return "pulp: HTTP " + status
}

// Is lets APIError match engine.ErrAPI, and engine.ErrRemoteNotFound for a
// 404.
func (e *APIError) Is(target error) bool {
	switch target {
	case engine.ErrAPI:
		return true
	case engine.ErrRemoteNotFound:
		return e.StatusCode == http.StatusNotFound
	default:
		return false
	}
}

// TaskError reports an asynchronous task that did not complete.
type TaskError struct {
	Href        string
	State       string
	Description string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("pulp: task %s %s: %s", e.Href, e.State, e.Description)
}

// Is lets TaskError match engine.ErrAPI.
func (e *TaskError) Is(target error) bool {
	return target == engine.ErrAPI
}
