package selftest

import "github.com/stepflow-dev/harness/internal/schema"

// DefaultCatalog is the static 16-step selftest catalog (spec §4.7). Steps
// are grouped by category. Gating follows declared Dependencies only: every
// GOVERNANCE step depends, directly or through another step, on go-toolchain
// or python-venv and is SKIPped when that KERNEL step fails.
// git-clean-worktree and run-base-writable gate no other step, and OPTIONAL
// steps without a dependency run regardless.
var DefaultCatalog = []Step{
	{ID: "go-toolchain", Tier: schema.TierKernel, Severity: schema.SeverityCritical, Category: "toolchain",
		Command: []string{"go", "version"}, ACIDs: []string{"AC-001"}},
	{ID: "python-venv", Tier: schema.TierKernel, Severity: schema.SeverityCritical, Category: "venv",
		Command: []string{"python3", "--version"}, ACIDs: []string{"AC-002"}},
	{ID: "git-clean-worktree", Tier: schema.TierKernel, Severity: schema.SeverityCritical, Category: "git",
		Command: []string{"git", "status", "--porcelain"}, ACIDs: []string{"AC-003"}},
	{ID: "run-base-writable", Tier: schema.TierKernel, Severity: schema.SeverityCritical, Category: "filesystem",
		Command: []string{"test", "-w", "."}, ACIDs: []string{"AC-004"}},

	{ID: "flow-registry-valid", Tier: schema.TierGovernance, Severity: schema.SeverityCritical, Category: "config",
		Command: []string{"true"}, Dependencies: []string{"go-toolchain"}, ACIDs: []string{"AC-010"}},
	{ID: "agent-bijection", Tier: schema.TierGovernance, Severity: schema.SeverityCritical, Category: "config",
		Command: []string{"true"}, Dependencies: []string{"flow-registry-valid"}, ACIDs: []string{"AC-011"}},
	{ID: "schema-compat", Tier: schema.TierGovernance, Severity: schema.SeverityCritical, Category: "schema",
		Command: []string{"true"}, Dependencies: []string{"go-toolchain"}, ACIDs: []string{"AC-012"}},
	{ID: "go-vet", Tier: schema.TierGovernance, Severity: schema.SeverityWarning, Category: "lint",
		Command: []string{"go", "vet", "./..."}, Dependencies: []string{"go-toolchain"}, ACIDs: []string{"AC-013"}},
	{ID: "go-test", Tier: schema.TierGovernance, Severity: schema.SeverityCritical, Category: "tests",
		Command: []string{"go", "test", "./..."}, Dependencies: []string{"go-vet"}, ACIDs: []string{"AC-014"}},
	{ID: "pytest-suite", Tier: schema.TierGovernance, Severity: schema.SeverityCritical, Category: "tests",
		Command: []string{"pytest", "-q"}, Dependencies: []string{"python-venv"}, ACIDs: []string{"AC-015"}},
	{ID: "degradation-log-valid", Tier: schema.TierGovernance, Severity: schema.SeverityWarning, Category: "schema",
		Command: []string{"true"}, Dependencies: []string{"schema-compat"}, ACIDs: []string{"AC-016"}},
	{ID: "routing-log-append-only", Tier: schema.TierGovernance, Severity: schema.SeverityWarning, Category: "schema",
		Command: []string{"true"}, Dependencies: []string{"schema-compat"}, ACIDs: []string{"AC-017"}},

	{ID: "docs-lint", Tier: schema.TierOptional, Severity: schema.SeverityInfo, Category: "lint",
		Command: []string{"true"}, ACIDs: []string{"AC-020"}},
	{ID: "dependency-audit", Tier: schema.TierOptional, Severity: schema.SeverityInfo, Category: "security",
		Command: []string{"true"}, Dependencies: []string{"go-toolchain"}, ACIDs: []string{"AC-021"}},
	{ID: "metrics-endpoint-reachable", Tier: schema.TierOptional, Severity: schema.SeverityInfo, Category: "observability",
		Command: []string{"true"}, ACIDs: []string{"AC-022"}},
	{ID: "sandbox-transport-smoke", Tier: schema.TierOptional, Severity: schema.SeverityInfo, Category: "transport",
		Command: []string{"true"}, Dependencies: []string{"flow-registry-valid"}, ACIDs: []string{"AC-023"}},
}
