package selftest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stepflow-dev/harness/internal/selftest"
)

func TestClassifyServiceIssue_EmptyForNonServiceIssue(t *testing.T) {
	toolchainFail := selftest.StepResult{Step: selftest.Step{ID: "go-toolchain", Category: "toolchain"}, Status: schema.StatusFail}
	require.Equal(t, selftest.ServiceIssueReason(""), selftest.ClassifyServiceIssue(toolchainFail))

	healthy := selftest.StepResult{Step: selftest.Step{ID: "go-vet", Category: "lint"}, Status: schema.StatusPass}
	require.Equal(t, selftest.ServiceIssueReason(""), selftest.ClassifyServiceIssue(healthy))
}

func TestClassifyServiceIssue_RecognizesWellKnownMarkers(t *testing.T) {
	cases := []struct {
		name   string
		result selftest.StepResult
		want   selftest.ServiceIssueReason
	}{
		{"auth", selftest.StepResult{Step: selftest.Step{ID: "api-check", Category: "tests"}, Status: schema.StatusFail, Message: "401 Unauthorized"}, selftest.ServiceIssueAuth},
		{"rate_limited", selftest.StepResult{Step: selftest.Step{ID: "api-check", Category: "tests"}, Status: schema.StatusFail, Message: "429 too many requests"}, selftest.ServiceIssueRateLimited},
		{"invalid_request", selftest.StepResult{Step: selftest.Step{ID: "api-check", Category: "tests"}, Status: schema.StatusFail, Reason: "400 bad request"}, selftest.ServiceIssueInvalidRequest},
		{"unavailable", selftest.StepResult{Step: selftest.Step{ID: "api-check", Category: "tests"}, Status: schema.StatusFail, Message: "connection refused"}, selftest.ServiceIssueUnavailable},
		{"unknown", selftest.StepResult{Step: selftest.Step{ID: "api-check", Category: "tests"}, Status: schema.StatusFail, Message: "exit status 1"}, selftest.ServiceIssueUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, selftest.ClassifyServiceIssue(tc.result))
		})
	}
}
