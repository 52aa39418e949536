package schema

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// receiptSchemaDoc is the versioned JSON Schema gate for receipts (spec §6:
// "Receipts: JSON, schema version field required"). Only the fields whose
// shape is load-bearing for downstream readers are constrained; optional
// forward-compatible fields (spec §9) are intentionally left unconstrained.
const receiptSchemaDoc = `{
  "$id": "https://stepflow.dev/schema/receipt.json",
  "type": "object",
  "required": ["schema_version", "run_id", "flow_key", "step_id", "agent_key", "status", "started_at", "ended_at"],
  "properties": {
    "schema_version": {"type": "string"},
    "status": {"enum": ["PASS", "FAIL", "SKIP", "TIMEOUT"]}
  }
}`

const handoffSchemaDoc = `{
  "$id": "https://stepflow.dev/schema/handoff.json",
  "type": "object",
  "required": ["schema_version", "tier", "from_step", "to_step"],
  "properties": {
    "schema_version": {"type": "string"},
    "tier": {"enum": ["minimal", "standard", "heavy"]}
  }
}`

var (
	once          sync.Once
	receiptSchema *jsonschema.Schema
	handoffSchema *jsonschema.Schema
	compileErr    error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("receipt.json", mustJSON(receiptSchemaDoc)); err != nil {
		compileErr = err
		return
	}
	if err := c.AddResource("handoff.json", mustJSON(handoffSchemaDoc)); err != nil {
		compileErr = err
		return
	}
	receiptSchema, compileErr = c.Compile("receipt.json")
	if compileErr != nil {
		return
	}
	handoffSchema, compileErr = c.Compile("handoff.json")
}

func mustJSON(doc string) any {
	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(doc)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		panic(err)
	}
	return v
}

// ValidateReceipt checks raw against the receipt JSON Schema (spec §6's
// schema-version gate). Called by the Step Engine immediately before
// writing a receipt file.
func ValidateReceipt(raw []byte) error {
	once.Do(compileSchemas)
	if compileErr != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "schema", "compile receipt schema", compileErr)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "schema", "decode receipt for validation", err)
	}
	if err := receiptSchema.Validate(v); err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "schema", "receipt failed schema validation", err)
	}
	return nil
}

// ValidateHandoff checks raw against the handoff envelope JSON Schema.
func ValidateHandoff(raw []byte) error {
	once.Do(compileSchemas)
	if compileErr != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "schema", "compile handoff schema", compileErr)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return harnesserr.Wrap(harnesserr.KindStructuredOutput, "schema", "decode handoff for validation", err)
	}
	if err := handoffSchema.Validate(v); err != nil {
		return harnesserr.Wrap(harnesserr.KindHandoffOverflow, "schema", "handoff failed schema validation", err)
	}
	return nil
}
