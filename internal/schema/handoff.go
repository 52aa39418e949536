package schema

import (
	"encoding/json"

	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// Tier names the three bounded handoff envelope sizes from spec §3: minimal
// (<=500 tokens), standard (<=2000 tokens), heavy (<=5000 tokens). The
// harness approximates a token as 4 bytes of serialized JSON, matching the
// common whole-word heuristic used across the pack's model-adjacent code;
// this is documented as an approximation, not a tokenizer.
type Tier string

const (
	TierMinimal  Tier = "minimal"
	TierStandard Tier = "standard"
	TierHeavy    Tier = "heavy"
)

// TokenCap returns the maximum token count permitted for the tier.
func (t Tier) TokenCap() int {
	switch t {
	case TierMinimal:
		return 500
	case TierStandard:
		return 2000
	case TierHeavy:
		return 5000
	default:
		return 0
	}
}

const bytesPerToken = 4

// Pointer is a reference to content already on disk. Handoff envelopes must
// never embed content whose source is a receipt or artifact already on disk
// (spec invariant 4) — only pointers.
type Pointer struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Envelope is the minimal/standard/heavy bounded structure carrying state
// between steps (spec §3). Pointers dominate content; prose (Notes) is kept
// deliberately short and is the first thing trimmed when a tier is
// exceeded.
type Envelope struct {
	SchemaVersion string `json:"schema_version"`
	Tier          Tier   `json:"tier"`

	FromStep string `json:"from_step"`
	ToStep   string `json:"to_step"`

	Pointers         []Pointer      `json:"pointers,omitempty"`
	StructuredFields map[string]any `json:"structured_fields,omitempty"`
	Notes            string         `json:"notes,omitempty"`
}

const HandoffSchemaVersion = "1.0"

// EstimatedTokens approximates the envelope's serialized token count.
func (e Envelope) EstimatedTokens() (int, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return 0, harnesserr.Wrap(harnesserr.KindStructuredOutput, "schema", "marshal handoff envelope", err)
	}
	return (len(raw) + bytesPerToken - 1) / bytesPerToken, nil
}

// Validate enforces the handoff size bound testable property from spec §8:
// len(serialize(env)) <= cap[tier]. Returns a HandoffOverflow error when the
// envelope exceeds its declared tier's cap.
func (e Envelope) Validate() error {
	capLimit := e.Tier.TokenCap()
	if capLimit == 0 {
		return harnesserr.New(harnesserr.KindHandoffOverflow, "schema", "unknown handoff tier")
	}
	tokens, err := e.EstimatedTokens()
	if err != nil {
		return err
	}
	if tokens > capLimit {
		return harnesserr.New(harnesserr.KindHandoffOverflow, "schema",
			"handoff envelope exceeds tier cap")
	}
	return nil
}
