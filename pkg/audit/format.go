package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// FormatIssue renders one finding as a single log line.
func FormatIssue(issue Issue) string {
	entityID := "-"
	if issue.EntityID != 0 {
		entityID = fmt.Sprintf("%d", issue.EntityID)
	}
	prefix := fmt.Sprintf("[%s] %s#%s %s", strings.ToUpper(issue.Severity), issue.Entity, entityID, issue.Category)
	if len(issue.Details) > 0 {
		details, err := json.Marshal(issue.Details)
		if err == nil {
			return fmt.Sprintf("%s: %s | %s", prefix, issue.Message, details)
		}
	}
	return fmt.Sprintf("%s: %s", prefix, issue.Message)
}

// WriteReport renders the report in the human-readable form.
func WriteReport(w io.Writer, report *Report) {
	fmt.Fprintf(w, "Audited customers=%d, loans=%d, repayments=%d, balance_events=%d\n",
		report.Stats.Customers, report.Stats.Loans, report.Stats.Repayments, report.Stats.BalanceEvents)
	if len(report.Issues) == 0 {
		fmt.Fprintln(w, "No consistency issues detected.")
		return
	}
	fmt.Fprintf(w, "Found %d issues:\n", report.IssueCount)
	for i, issue := range report.Issues {
		fmt.Fprintf(w, "%02d. %s\n", i+1, FormatIssue(issue))
	}
}
