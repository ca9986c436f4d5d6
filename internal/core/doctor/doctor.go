// Package doctor runs health checks on the local vgloss setup and the
// configured gallery backend.
package doctor

import "context"

// Status represents the result status of a check item.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// CheckItem represents a single line item within a check result.
type CheckItem struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result represents the outcome of a check containing multiple items.
type Result struct {
	Name  string      `json:"name"`
	Items []CheckItem `json:"items"`
}

// Check defines the interface for a doctor check.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// RunAll executes all checks and returns their results.
func RunAll(ctx context.Context, checks []Check) []Result {
	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		results = append(results, check.Run(ctx))
	}
	return results
}

// Summary returns counts of passed, warned, and failed items across all results.
func Summary(results []Result) (passed, warned, failed int) {
	for _, r := range results {
		for _, item := range r.Items {
			switch item.Status {
			case StatusPass:
				passed++
			case StatusWarn:
				warned++
			case StatusFail:
				failed++
			}
		}
	}

	return passed, warned, failed
}
