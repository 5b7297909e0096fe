package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rigger/core/internal/config"
	"github.com/rigger/core/internal/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestScanDirectoryFiltersByExtensionAndSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.md", "hello")
	writeFile(t, dir, "skip.bin", "binary-ish")
	writeFile(t, dir, "toobig.md", "0123456789")

	limits := config.ScanLimits{AllowedExtensions: []string{".md"}, MaxFileSizeBytes: 5}
	result, err := ScanDirectory(dir, limits)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	require.Equal(t, "keep.md", result.Files[0].RelPath)
}

func TestScanDirectoryRejectsBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "blob.md")
	require.NoError(t, os.WriteFile(p, []byte("hello\x00world"), 0o644))

	limits := config.ScanLimits{AllowedExtensions: []string{".md"}, MaxFileSizeBytes: 1024}
	result, err := ScanDirectory(dir, limits)
	require.NoError(t, err)
	require.Empty(t, result.Files)
	require.Empty(t, result.Errors)
}

func TestFingerprintMatchIgnoresMtime(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.md", "same content")
	fp1, err := Fingerprint(p)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(p, future, future))

	fp2, err := Fingerprint(p)
	require.NoError(t, err)
	require.True(t, fp1.Matches(fp2))
}

func TestPlanRescanDetectsDeletionReReadAndSkip(t *testing.T) {
	dir := t.TempDir()
	unchanged := writeFile(t, dir, "unchanged.md", "same")
	changed := writeFile(t, dir, "changed.md", "v1")
	deleted := writeFile(t, dir, "deleted.md", "bye")

	fpUnchanged, err := Fingerprint(unchanged)
	require.NoError(t, err)
	fpChanged, err := Fingerprint(changed)
	require.NoError(t, err)
	fpDeleted, err := Fingerprint(deleted)
	require.NoError(t, err)

	require.NoError(t, os.Remove(deleted))
	require.NoError(t, os.WriteFile(changed, []byte("v2-longer-content"), 0o644))

	prev := map[string]types.FileFingerprint{
		"unchanged.md": fpUnchanged,
		"changed.md":   fpChanged,
		"deleted.md":   fpDeleted,
	}

	plans, err := PlanRescan(dir, prev)
	require.NoError(t, err)

	byPath := map[string]RescanAction{}
	for _, p := range plans {
		byPath[p.RelPath] = p.Action
	}
	require.Equal(t, ActionSkip, byPath["unchanged.md"])
	require.Equal(t, ActionReread, byPath["changed.md"])
	require.Equal(t, ActionDeleted, byPath["deleted.md"])
}
