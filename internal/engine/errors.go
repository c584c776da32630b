package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors matched by API client errors via errors.Is.
var (
	// ErrRemoteNotFound marks a client error for an entity that does not
	// exist on the server (HTTP 404).
	ErrRemoteNotFound = errors.New("remote entity not found")
	// ErrTransport marks a failure to reach the server at all.
	ErrTransport = errors.New("transport failure")
	// ErrAPI marks a request the server received and rejected.
	ErrAPI = errors.New("server rejected request")
)

// ValidationError reports a natural key or desired attribute set that cannot
// be reconciled. It is returned before any network call.
type ValidationError struct {
	ResourceType string
	Field        string
	Reason       string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.ResourceType, e.Reason)
	}
	return fmt.Sprintf("invalid %s: field %q: %s", e.ResourceType, e.Field, e.Reason)
}

// NotFoundError reports a required lookup that matched no entity.
type NotFoundError struct {
	ResourceType string
	Key          map[string]any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s matches %s", e.ResourceType, formatKey(e.Key))
}

// Is lets NotFoundError match ErrRemoteNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrRemoteNotFound
}

// AmbiguousError reports a lookup that expected a unique entity but matched
// several. IDs lists the handles of every match.
type AmbiguousError struct {
	ResourceType string
	Key          map[string]any
	IDs          []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d %s entities match %s: %s",
		len(e.IDs), e.ResourceType, formatKey(e.Key), strings.Join(e.IDs, ", "))
}

// OpError records which engine operation failed and for which entity.
type OpError struct {
	Op           string // search, list, fetch, create, update, delete, run
	ResourceType string
	Key          string
	Err          error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString("engine: ")
	b.WriteString(e.Op)
	if e.ResourceType != "" {
		b.WriteString(" ")
		b.WriteString(e.ResourceType)
	}
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }

// ErrorKind classifies an error for user-visible reporting.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindAmbiguous  ErrorKind = "ambiguous"
	KindTransport  ErrorKind = "transport"
	KindAPI        ErrorKind = "api"
	KindInternal   ErrorKind = "internal"
)

// Kind returns the ErrorKind of err. Lookups that found nothing take
// precedence over the generic API kind so a 404 on update reads as
// not_found.
func Kind(err error) ErrorKind {
	var (
		verr *ValidationError
		aerr *AmbiguousError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &aerr):
		return KindAmbiguous
	case errors.Is(err, ErrRemoteNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrAPI):
		return KindAPI
	default:
		return KindInternal
	}
}

// formatKey renders a natural key as sorted name="value" pairs.
func formatKey(key map[string]any) string {
	if len(key) == 0 {
		return ""
	}
	fields := make([]string, 0, len(key))
	for k := range key {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := key[f]
		if s, ok := v.(string); ok {
			parts = append(parts, fmt.Sprintf("%s=%q", f, s))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", f, v))
	}
	return strings.Join(parts, ",")
}
