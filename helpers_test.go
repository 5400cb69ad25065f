package pgfixture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFiles creates files relative to root and returns root.
func writeFiles(t *testing.T, root string, files map[string]string) string {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func schemaV1(t *testing.T) string {
	t.Helper()

	return writeFiles(t, t.TempDir(), map[string]string{
		"01_init.sql": "CREATE TABLE mytable (id int);",
		"02_seed.sql": "INSERT INTO mytable VALUES (1);",
	})
}

// symlink creates link pointing at target, skipping the test where the
// filesystem cannot hold symlinks.
func symlink(t *testing.T, target, link string) {
	t.Helper()

	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
}
