package selftest

import "strings"

// Classification is the Doctor's verdict for one failing step (spec §4.7):
// HARNESS_ISSUE means the environment itself is broken (toolchain, venv,
// git); SERVICE_ISSUE means the step's own command failed against a sound
// environment; HEALTHY means the step passed. Modeled on the teacher's
// ProviderErrorKind split of "this class of failure means X" from a small
// closed category set, adapted from provider failures to environment vs.
// service failures.
type Classification string

const (
	ClassificationHealthy       Classification = "HEALTHY"
	ClassificationHarnessIssue  Classification = "HARNESS_ISSUE"
	ClassificationServiceIssue  Classification = "SERVICE_ISSUE"
)

// environmentCategories names the step categories whose failure indicates a
// broken environment rather than a broken service under test: toolchain
// availability, virtualenv/dependency installation, and VCS plumbing.
var environmentCategories = map[string]bool{
	"toolchain": true,
	"venv":      true,
	"git":       true,
}

// Classify reports the Doctor's verdict for one step result. Classify never
// modifies state (spec §4.7: "Never modifies state").
func Classify(r StepResult) Classification {
	if r.Status == "" || r.Status == "PASS" {
		return ClassificationHealthy
	}
	if environmentCategories[r.Step.Category] {
		return ClassificationHarnessIssue
	}
	return ClassificationServiceIssue
}

// ServiceIssueReason is a finer sub-classification of a SERVICE_ISSUE
// verdict, adapted from the teacher's ProviderErrorKind split (auth,
// invalid_request, rate_limited, unavailable, unknown) from provider-call
// failures to selftest command failures.
type ServiceIssueReason string

const (
	ServiceIssueAuth           ServiceIssueReason = "auth"
	ServiceIssueInvalidRequest ServiceIssueReason = "invalid_request"
	ServiceIssueRateLimited    ServiceIssueReason = "rate_limited"
	ServiceIssueUnavailable    ServiceIssueReason = "unavailable"
	ServiceIssueUnknown        ServiceIssueReason = "unknown"
)

// serviceIssueMarkers maps substrings found in a failing step's own reason
// or message to a ServiceIssueReason, checked in order.
var serviceIssueMarkers = []struct {
	reason ServiceIssueReason
	needle []string
}{
	{ServiceIssueAuth, []string{"401", "unauthorized", "authentication"}},
	{ServiceIssueRateLimited, []string{"429", "rate limit", "too many requests"}},
	{ServiceIssueInvalidRequest, []string{"400", "invalid request", "bad request"}},
	{ServiceIssueUnavailable, []string{"503", "connection refused", "timeout", "unavailable"}},
}

// ClassifyServiceIssue returns the finer sub-reason for a SERVICE_ISSUE
// verdict, or "" when r does not classify as SERVICE_ISSUE. Kept as a
// separate function from Classify so existing single-value call sites
// never have to change.
func ClassifyServiceIssue(r StepResult) ServiceIssueReason {
	if Classify(r) != ClassificationServiceIssue {
		return ""
	}
	text := strings.ToLower(r.Reason + " " + r.Message)
	for _, m := range serviceIssueMarkers {
		for _, needle := range m.needle {
			if strings.Contains(text, needle) {
				return m.reason
			}
		}
	}
	return ServiceIssueUnknown
}

// Diagnose classifies every failing/timing-out result in results, skipping
// results that passed or were skipped.
func Diagnose(results []StepResult) map[string]Classification {
	out := make(map[string]Classification, len(results))
	for _, r := range results {
		if r.Status == "PASS" || r.Status == "SKIP" {
			continue
		}
		out[r.Step.ID] = Classify(r)
	}
	return out
}
