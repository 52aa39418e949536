// Package harnesserr defines the typed error taxonomy shared by every
// component of the orchestrator. Errors never cross a step or orchestrator
// boundary as Go panics or bare errors; they are always classified into one
// of the Kind values below and carried inside a StepResult/Receipt.error
// field instead.
package harnesserr

import "fmt"

// Kind classifies a harness failure into the categories the orchestrator and
// CLI exit-code mapping understand.
type Kind string

const (
	// KindConfig covers invalid flow definitions, cycles, and unknown agent
	// keys. Surfaced at load time; maps to CLI exit code 2.
	KindConfig Kind = "config_error"
	// KindPathViolation covers an attempted write outside the run root. Fatal.
	KindPathViolation Kind = "path_violation"
	// KindBudgetInfeasible covers a prompt that cannot fit inside its budget.
	KindBudgetInfeasible Kind = "budget_infeasible"
	// KindTransport covers a backend failure. Not retried at the step-engine
	// layer.
	KindTransport Kind = "transport_error"
	// KindStructuredOutput covers a parse failure of the step's declared
	// output shape.
	KindStructuredOutput Kind = "structured_output_error"
	// KindHandoffOverflow covers a handoff envelope exceeding its tier cap.
	KindHandoffOverflow Kind = "handoff_overflow"
	// KindTimeout covers a wall-clock budget exceeded.
	KindTimeout Kind = "timeout"
	// KindArtifactMissing covers a required input artifact absent on disk.
	KindArtifactMissing Kind = "artifact_missing"
	// KindGovernanceFailure covers a failed selftest step; the tier
	// determines whether it blocks.
	KindGovernanceFailure Kind = "governance_failure"
	// KindCapacityExceeded covers an artifact write that would exceed the
	// configured per-artifact cap.
	KindCapacityExceeded Kind = "capacity_exceeded"
)

// Error is the typed error value produced by every harness component.
// Component identifies where the error originated (e.g. "runstore",
// "budget", "step") for log correlation; it is not part of the taxonomy
// itself.
type Error struct {
	kind      Kind
	component string
	message   string
	cause     error
}

// New constructs an Error of the given kind, scoped to component, with a
// human-readable message. Use Wrap instead when an underlying error exists.
func New(kind Kind, component, message string) *Error {
	return &Error{kind: kind, component: component, message: message}
}

// Wrap constructs an Error of the given kind that carries cause as its
// underlying error. Unwrap returns cause.
func Wrap(kind Kind, component, message string, cause error) *Error {
	return &Error{kind: kind, component: component, message: message, cause: cause}
}

// Kind returns the error's taxonomy classification.
func (e *Error) Kind() Kind { return e.kind }

// Component returns the originating component name.
func (e *Error) Component() string { return e.component }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.component, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.component, e.message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// ExitCode implements the exit-coder interface main() looks for, so any
// harnesserr.Error returned up to the CLI maps to its Kind's exit code
// without the caller needing to switch on Kind itself.
func (e *Error) ExitCode() int { return e.kind.ExitCode() }

// ExitCode maps a Kind to the CLI exit code convention in spec §6: 0 success
// or non-blocking degradation, 1 blocking failure, 2 configuration/usage
// error.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	default:
		return 1
	}
}

// Blocking reports whether the kind represents a hard stop at the step
// engine layer (as opposed to a SKIP/ESCALATE that lets the flow continue
// under degradation).
func (k Kind) Blocking() bool {
	switch k {
	case KindArtifactMissing:
		return false
	default:
		return true
	}
}
