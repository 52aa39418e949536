package transport_test

import (
	"context"
	"testing"

	"github.com/stepflow-dev/harness/internal/transport"
	"github.com/stretchr/testify/require"
)

// Sandbox's Execute/run path needs a live Docker daemon, so it is exercised
// only in an environment with DOCKER_HOST reachable; here we cover the parts
// that don't touch the daemon.

func TestSandbox_Capabilities_ReportsToolObservationAndSandboxOnly(t *testing.T) {
	caps := (&transport.Sandbox{Image: "alpine:3.20"}).Capabilities()
	require.True(t, caps.SupportsToolObservation)
	require.True(t, caps.SupportsSandbox)
	require.False(t, caps.SupportsOutputFormat)
	require.False(t, caps.SupportsStreaming)
}

func TestSandbox_Interrupt_IsUnsupported(t *testing.T) {
	err := (&transport.Sandbox{}).Interrupt(context.Background())
	require.Error(t, err)
}
