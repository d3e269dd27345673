// Package testutil holds fixtures shared by unit tests, the godog features and
// the data generator: synthetic labels, the produce catalog and drop folders.
package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// PayloadExt marks drop-folder files holding an already decoded barcode payload.
const PayloadExt = ".payload"

// GetProjectRoot walks up from this source file to the directory holding go.mod.
func GetProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to get caller information")
	}

	for dir := filepath.Dir(filename); ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find go.mod above %s", filepath.Dir(filename))
		}
		dir = parent
	}
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WritePayload writes a decoded barcode payload file the way a handheld scanner
// drops it into a watched folder, newline terminated.
func WritePayload(t *testing.T, dir, name, payload string) string {
	t.Helper()
	if filepath.Ext(name) == "" {
		name += PayloadExt
	}
	path := filepath.Join(dir, name)
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, os.WriteFile(path, []byte(payload+"\n"), 0o600))
	return path
}

// DropFolder creates a scan drop folder preloaded with label images (name →
// lines) and payload files (name → payload). It returns the folder path.
func DropFolder(t *testing.T, labels map[string][]string, payloads map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "drop")
	require.NoError(t, EnsureDir(dir))
	for name, lines := range labels {
		WriteLabelPNG(t, dir, name, lines)
	}
	for name, payload := range payloads {
		WritePayload(t, dir, name, payload)
	}
	return dir
}
