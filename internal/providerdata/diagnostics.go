package providerdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/pulp/terraform-provider-pulp/internal/engine"
	"github.com/pulp/terraform-provider-pulp/internal/report"
)

// ErrorTitle picks the diagnostic summary for an engine error.
func ErrorTitle(op string, err error) string {
	switch engine.Kind(err) {
	case engine.KindValidation:
		return "Invalid " + op + " Arguments"
	case engine.KindNotFound:
		return op + " Failed: Entity Not Found"
	case engine.KindAmbiguous:
		return op + " Failed: Ambiguous Lookup"
	case engine.KindTransport:
		return op + " Failed: Pulp Unreachable"
	case engine.KindAPI:
		return op + " Failed: Pulp Rejected Request"
	default:
		return op + " Failed"
	}
}

// AddEngineError appends an error diagnostic for err to diags.
func AddEngineError(diags *diag.Diagnostics, op, subject string, err error) {
	diags.AddError(
		ErrorTitle(op, err),
		fmt.Sprintf("Failed to %s %s: %s", strings.ToLower(op), subject, err),
	)
}

// RecordChange logs rep and, when a journal is configured, stores it. A
// journal failure is a warning; the remote change already happened.
func (pd *ProviderData) RecordChange(ctx context.Context, diags *diag.Diagnostics, rep *engine.Report) {
	if rep == nil {
		return
	}

	tflog.Info(ctx, report.FormatSummary(rep))
	if rep.Changed {
		tflog.Debug(ctx, "change report", map[string]interface{}{
			"report": report.Format(rep),
		})
	}

	if pd.Journal == nil {
		return
	}
	if _, err := pd.Journal.Record(ctx, rep); err != nil {
		diags.AddWarning(
			"Change Journal Write Failed",
			fmt.Sprintf("The change to %s %s was applied but could not be journaled: %s", rep.ResourceType, rep.KeyString(), err),
		)
	}
}
