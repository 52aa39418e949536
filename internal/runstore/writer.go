package runstore

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stepflow-dev/harness/internal/harnesserr"
)

// maxAppendLine bounds a single append_jsonl record so line atomicity holds
// even on filesystems that don't guarantee atomic writes above small sizes
// (spec §4.1: "append_jsonl... guarantees line atomicity up to 64 KiB").
const maxAppendLine = 64 * 1024

// DefaultArtifactCapBytes is the built-in per-artifact size cap (spec
// §4.1).
const DefaultArtifactCapBytes = 8 << 20

// Writer performs atomic, crash-safe writes scoped to a Layout's run root.
type Writer struct {
	Layout       Layout
	ArtifactCap  int64
}

// NewWriter constructs a Writer with the given per-artifact cap. A cap of
// zero uses DefaultArtifactCapBytes.
func NewWriter(layout Layout, artifactCapBytes int64) *Writer {
	if artifactCapBytes <= 0 {
		artifactCapBytes = DefaultArtifactCapBytes
	}
	return &Writer{Layout: layout, ArtifactCap: artifactCapBytes}
}

// Write atomically writes bytes to path: write to a temp sibling, fsync,
// rename over the destination (spec §4.1).
func (w *Writer) Write(targetPath string, data []byte) error {
	if err := w.Layout.CheckWithinRoot(targetPath); err != nil {
		return err
	}
	if int64(len(data)) > w.ArtifactCap {
		return harnesserr.New(harnesserr.KindCapacityExceeded, "runstore", "artifact exceeds per-artifact cap")
	}
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "create artifact directory", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(targetPath)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "create temp artifact", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "write temp artifact", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "fsync temp artifact", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "close temp artifact", err)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		os.Remove(tmp)
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "rename temp artifact into place", err)
	}
	return nil
}

// AppendJSONL appends a single already-marshaled JSON record as one line to
// targetPath, creating the file if needed. record must not exceed
// maxAppendLine bytes.
func (w *Writer) AppendJSONL(targetPath string, record []byte) error {
	if err := w.Layout.CheckWithinRoot(targetPath); err != nil {
		return err
	}
	if len(record) > maxAppendLine {
		return harnesserr.New(harnesserr.KindCapacityExceeded, "runstore", "jsonl record exceeds 64 KiB line-atomicity cap")
	}
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "create log directory", err)
	}
	f, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "open jsonl for append", err)
	}
	defer f.Close()
	line := append(append([]byte{}, record...), '\n')
	if _, err := f.Write(line); err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runstore", "append jsonl record", err)
	}
	return f.Sync()
}

// Exists reports whether a file exists at path, without distinguishing
// "not found" from other stat errors (callers use this only for
// ArtifactMissing detection, where any stat failure means "treat as
// missing").
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Read reads the full contents of path.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindArtifactMissing, "runstore", "read artifact", err)
	}
	return data, nil
}
