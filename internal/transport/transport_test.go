package transport_test

import (
	"testing"

	"github.com/stepflow-dev/harness/internal/transport"
	"github.com/stretchr/testify/require"
)

func TestSelectStrategy_NativeOutputFormatSkipsFallback(t *testing.T) {
	strategy := transport.SelectStrategy(transport.Capabilities{SupportsOutputFormat: true})
	require.Equal(t, transport.StrategyNone, strategy)
}

func TestSelectStrategy_NoNativeSupportFallsBackToMicroloop(t *testing.T) {
	strategy := transport.SelectStrategy(transport.Capabilities{})
	require.Equal(t, transport.StrategyMicroloop, strategy)
}

func TestMicroloopMaxRetries_IsCappedAtThree(t *testing.T) {
	require.Equal(t, 3, transport.MicroloopMaxRetries)
}
