package schema_test

import (
	"strings"
	"testing"

	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_Validate_WithinCapPasses(t *testing.T) {
	env := schema.Envelope{
		SchemaVersion: schema.HandoffSchemaVersion, Tier: schema.TierMinimal,
		FromStep: "triage", ToStep: "triage_critic", Notes: "short",
	}
	require.NoError(t, env.Validate())
}

func TestEnvelope_Validate_OverflowingTierFails(t *testing.T) {
	env := schema.Envelope{
		SchemaVersion: schema.HandoffSchemaVersion, Tier: schema.TierMinimal,
		FromStep: "draft", ToStep: "review", Notes: strings.Repeat("x", schema.TierMinimal.TokenCap()*4+100),
	}
	require.Error(t, env.Validate())
}

func TestEnvelope_Validate_UnknownTierFails(t *testing.T) {
	env := schema.Envelope{Tier: schema.Tier("bogus"), FromStep: "a", ToStep: "b"}
	require.Error(t, env.Validate())
}

func TestTier_TokenCap(t *testing.T) {
	require.Equal(t, 500, schema.TierMinimal.TokenCap())
	require.Equal(t, 2000, schema.TierStandard.TokenCap())
	require.Equal(t, 5000, schema.TierHeavy.TokenCap())
	require.Equal(t, 0, schema.Tier("unknown").TokenCap())
}

func TestEnvelope_EstimatedTokens_GrowsWithContent(t *testing.T) {
	small := schema.Envelope{Tier: schema.TierMinimal, FromStep: "a", ToStep: "b"}
	large := schema.Envelope{Tier: schema.TierMinimal, FromStep: "a", ToStep: "b", Notes: strings.Repeat("y", 1000)}

	smallTokens, err := small.EstimatedTokens()
	require.NoError(t, err)
	largeTokens, err := large.EstimatedTokens()
	require.NoError(t, err)
	require.Greater(t, largeTokens, smallTokens)
}
