package formatting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aonescu/driftguard/internal/types"
)

// FormatDriftReport renders one guard's latest status for operators.
func FormatDriftReport(guard types.Guard, status types.GuardStatus) string {
	var output strings.Builder

	output.WriteString("\nGUARD\n")
	output.WriteString("────────────────────────\n")
	output.WriteString(fmt.Sprintf("%s -> %s %s/%s\n", guard.Key(), guard.TargetKind, guard.TargetNamespace, guard.TargetName))
	output.WriteString(fmt.Sprintf("State: %s\n\n", status.State))

	output.WriteString("DETECTION\n")
	output.WriteString("────────────────────────\n")
	output.WriteString(fmt.Sprintf("Last checked: %s\n", status.LastChecked.Format("2006-01-02 15:04:05 MST")))
	if status.CurrentHash != "" {
		output.WriteString(fmt.Sprintf("Current hash:  %s\n", status.CurrentHash))
		output.WriteString(fmt.Sprintf("Expected hash: %s\n", status.ExpectedHash))
	}
	if status.Reason != "" {
		output.WriteString(fmt.Sprintf("Reason: %s\n", status.Reason))
	}
	output.WriteString(fmt.Sprintf("Consecutive failures: %d\n\n", status.ConsecutiveFailures))

	if status.State == types.StateDrifted {
		output.WriteString("REMEDIATION\n")
		output.WriteString("────────────────────────\n")
		switch {
		case status.Remediated == nil:
			output.WriteString("Not attempted (autoRemediate disabled)\n")
		case *status.Remediated:
			output.WriteString("Patch applied; next cycle should converge\n")
		default:
			output.WriteString("Attempted and failed; will retry next interval\n")
		}
		output.WriteString("\n")
	}

	output.WriteString("NEXT ACTION\n")
	output.WriteString("────────────────────────\n")
	switch status.State {
	case types.StateHealthy:
		output.WriteString("None, target matches its expected hash\n")
	case types.StateDrifted:
		output.WriteString(fmt.Sprintf("Inspect %s %s/%s for unexpected edits\n", guard.TargetKind, guard.TargetNamespace, guard.TargetName))
	case types.StateError:
		output.WriteString("Check target existence and API connectivity\n")
	case types.StateInvalid:
		output.WriteString("Correct the guard spec; it is not reconciled until fixed\n")
	}

	return output.String()
}

// GenerateSummary aggregates a fleet of guard statuses.
func GenerateSummary(statuses map[string]types.GuardStatus) map[string]interface{} {
	summary := map[string]interface{}{
		"total":   len(statuses),
		"alerted": 0,
		"by_state": map[string]int{
			string(types.StateHealthy): 0,
			string(types.StateDrifted): 0,
			string(types.StateError):   0,
			string(types.StateInvalid): 0,
		},
		"remediation": map[string]int{
			"succeeded": 0,
			"failed":    0,
		},
	}

	for _, status := range statuses {
		byState := summary["by_state"].(map[string]int)
		byState[string(status.State)]++

		if status.Alerted {
			summary["alerted"] = summary["alerted"].(int) + 1
		}

		if status.Remediated != nil {
			remediation := summary["remediation"].(map[string]int)
			if *status.Remediated {
				remediation["succeeded"]++
			} else {
				remediation["failed"]++
			}
		}
	}

	return summary
}

// DriftedKeys lists the guards currently in a non-Healthy state, sorted.
func DriftedKeys(statuses map[string]types.GuardStatus) []string {
	var keys []string
	for key, status := range statuses {
		if status.State != types.StateHealthy {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
