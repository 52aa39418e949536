package runstore_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write_IsAtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	l := runstore.NewLayout(dir, "run-1")
	w := runstore.NewWriter(l, 0)

	target := l.ReceiptPath("signal", "triage", "signal_triage")
	require.NoError(t, w.Write(target, []byte(`{"status":"PASS"}`)))

	data, err := runstore.Read(target)
	require.NoError(t, err)
	require.Equal(t, `{"status":"PASS"}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestWriter_Write_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	l := runstore.NewLayout(dir, "run-1")
	w := runstore.NewWriter(l, 0)

	err := w.Write(filepath.Join(dir, "run-2", "escaped.json"), []byte("{}"))
	require.Error(t, err)
}

func TestWriter_Write_RejectsOversizedArtifact(t *testing.T) {
	dir := t.TempDir()
	l := runstore.NewLayout(dir, "run-1")
	w := runstore.NewWriter(l, 8)

	err := w.Write(l.DomainArtifactPath("signal", "big.json"), []byte("0123456789"))
	require.Error(t, err)
}

func TestWriter_AppendJSONL_AppendsLines(t *testing.T) {
	dir := t.TempDir()
	l := runstore.NewLayout(dir, "run-1")
	w := runstore.NewWriter(l, 0)

	target := l.RoutingDecisionsPath("gate")
	require.NoError(t, w.AppendJSONL(target, []byte(`{"decision":"DETOUR"}`)))
	require.NoError(t, w.AppendJSONL(target, []byte(`{"decision":"CONTINUE"}`)))

	data, err := runstore.Read(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
}

func TestWriter_AppendJSONL_RejectsOversizedLine(t *testing.T) {
	dir := t.TempDir()
	l := runstore.NewLayout(dir, "run-1")
	w := runstore.NewWriter(l, 0)

	huge := make([]byte, 64*1024+1)
	err := w.AppendJSONL(l.RunLogPath(), huge)
	require.Error(t, err)
}

func TestExists_ReportsPresenceWithoutDistinguishingErrors(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "here.json")
	require.NoError(t, os.WriteFile(present, []byte("{}"), 0o644))

	require.True(t, runstore.Exists(present))
	require.False(t, runstore.Exists(filepath.Join(dir, "absent.json")))
}

func TestRead_MissingFileReturnsArtifactMissingError(t *testing.T) {
	dir := t.TempDir()
	_, err := runstore.Read(filepath.Join(dir, "absent.json"))
	require.Error(t, err)
}
