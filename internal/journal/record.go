package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/report"
)

// RecordSchemaVersion is written to every record and checked on read.
const RecordSchemaVersion = 1

// Record is one journal entry: a ChangeReport plus bookkeeping.
type Record struct {
	SchemaVersion   int            `json:"schema_version"`
	ID              string         `json:"id"`
	ProviderVersion string         `json:"provider_version"`
	RecordedAt      string         `json:"recorded_at"`
	ResourceType    string         `json:"resource_type"`
	Key             map[string]any `json:"key"`
	Action          string         `json:"action"`
	Changed         bool           `json:"changed"`
	Summary         string         `json:"summary"`
	Before          map[string]any `json:"before"`
	After           map[string]any `json:"after"`
	Diff            map[string]any `json:"diff,omitempty"`
}

// NewRecord builds the record for rep.
func NewRecord(id, providerVersion string, now time.Time, rep *engine.Report) *Record {
	return &Record{
		SchemaVersion:   RecordSchemaVersion,
		ID:              id,
		ProviderVersion: providerVersion,
		RecordedAt:      now.UTC().Format(time.RFC3339),
		ResourceType:    rep.ResourceType,
		Key:             rep.Key,
		Action:          string(rep.Action),
		Changed:         rep.Changed,
		Summary:         report.FormatSummary(rep),
		Before:          rep.Before,
		After:           rep.After,
		Diff:            rep.Diff,
	}
}

// MarshalRecord serializes r to indented JSON. Map keys are emitted in
// sorted order, so equal records produce equal bytes.
func MarshalRecord(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("journal: cannot marshal nil record")
	}
	return json.MarshalIndent(r, "", "  ")
}

// UnmarshalRecord deserializes a record and rejects unknown schema
// versions.
func UnmarshalRecord(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("journal: unmarshal record: %w", err)
	}
	if r.SchemaVersion != RecordSchemaVersion {
		return nil, fmt.Errorf("journal: unsupported record schema_version %d", r.SchemaVersion)
	}
	return &r, nil
}
