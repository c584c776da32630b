package engine

// Action is the mutation a reconciliation performed (or would perform).
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNone   Action = "none"
)

// Report is the outcome of one reconciliation cycle. Before is nil when the
// entity did not exist; After is nil when it no longer exists.
type Report struct {
	ResourceType string
	Key          map[string]any
	Action       Action
	Changed      bool
	Before       Entity
	After        Entity
	// Diff holds the attributes sent to the server: the full create
	// payload, or only the changed fields on update.
	Diff   map[string]any
	DryRun bool
}

// KeyString renders the natural key the report is about.
func (r *Report) KeyString() string {
	return formatKey(r.Key)
}
