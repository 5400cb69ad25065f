package pgfixture

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectSQLFiles(t *testing.T) {
	root := writeFiles(t, t.TempDir(), map[string]string{
		"02_seed.sql":           "",
		"01_init.sql":           "",
		"b/01_more.sql":         "",
		"a/nested/deep/x.sql":   "",
		"README.md":             "",
		"a/notes.txt":           "",
		"a/nested/10_Upper.sql": "",
		"a/nested/10_lower.sql": "",
		".hidden.sql":           "",
		".git/ignored.sql":      "",
		"not_sql.sql.bak":       "",
	})

	files, err := CollectSQLFiles(root)
	require.NoError(t, err)

	want := []string{
		filepath.Join(root, "01_init.sql"),
		filepath.Join(root, "02_seed.sql"),
		filepath.Join(root, "a", "nested", "10_Upper.sql"),
		filepath.Join(root, "a", "nested", "10_lower.sql"),
		filepath.Join(root, "a", "nested", "deep", "x.sql"),
		filepath.Join(root, "b", "01_more.sql"),
	}
	assert.Equal(t, want, files)
}

func TestCollectSQLFiles_relativePathIsMadeAbsolute(t *testing.T) {
	root := schemaV1(t)
	wd, err := os.Getwd()
	require.NoError(t, err)

	rel, err := filepath.Rel(wd, root)
	if err != nil {
		t.Skipf("temp dir not reachable from %s: %v", wd, err)
	}

	files, err := CollectSQLFiles(rel)
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f), f)
	}
}

func TestCollectSQLFiles_errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "empty path",
			path: func(t *testing.T) string { return "" },
		},
		{
			name: "does not exist",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
		},
		{
			name: "is a file",
			path: func(t *testing.T) string {
				return filepath.Join(writeFiles(t, t.TempDir(), map[string]string{"a.sql": ""}), "a.sql")
			},
		},
		{
			name: "empty directory",
			path: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name: "no sql files",
			path: func(t *testing.T) string {
				return writeFiles(t, t.TempDir(), map[string]string{"README.md": "", "sub/x.txt": ""})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := CollectSQLFiles(tt.path(t))
			assert.Nil(t, files)

			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestCollectSQLFiles_followsSymlinkedDirectories(t *testing.T) {
	shared := writeFiles(t, t.TempDir(), map[string]string{
		"10_shared.sql": "",
		"nested/11.sql": "",
	})
	root := writeFiles(t, t.TempDir(), map[string]string{"01_init.sql": ""})
	symlink(t, shared, filepath.Join(root, "shared"))

	files, err := CollectSQLFiles(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "01_init.sql"),
		filepath.Join(root, "shared", "10_shared.sql"),
		filepath.Join(root, "shared", "nested", "11.sql"),
	}, files)
}

func TestCollectSQLFiles_symlinkedRoot(t *testing.T) {
	dir := writeFiles(t, t.TempDir(), map[string]string{"01_init.sql": ""})
	link := filepath.Join(t.TempDir(), "schema")
	symlink(t, dir, link)

	files, err := CollectSQLFiles(link)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(link, "01_init.sql")}, files)
}

func TestCollectSQLFiles_symlinkCycle(t *testing.T) {
	root := writeFiles(t, t.TempDir(), map[string]string{
		"01_init.sql":  "",
		"a/02_a.sql":   "",
		"b/03_b.sql":   "",
		"c/d/04_d.sql": "",
	})
	symlink(t, root, filepath.Join(root, "a", "back_to_root"))
	symlink(t, filepath.Join(root, "c"), filepath.Join(root, "c", "d", "up"))
	symlink(t, filepath.Join(root, "b"), filepath.Join(root, "a", "to_b"))
	symlink(t, filepath.Join(root, "a"), filepath.Join(root, "b", "to_a"))

	files, err := CollectSQLFiles(root)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "01_init.sql"),
		filepath.Join(root, "a", "02_a.sql"),
		filepath.Join(root, "a", "to_b", "03_b.sql"),
		filepath.Join(root, "b", "03_b.sql"),
		filepath.Join(root, "b", "to_a", "02_a.sql"),
		filepath.Join(root, "c", "d", "04_d.sql"),
	}, files)
}

func TestCollectSQLFiles_danglingSymlink(t *testing.T) {
	root := writeFiles(t, t.TempDir(), map[string]string{"01_init.sql": ""})
	symlink(t, filepath.Join(root, "missing"), filepath.Join(root, "gone"))
	symlink(t, filepath.Join(root, "missing.sql"), filepath.Join(root, "02_gone.sql"))

	files, err := CollectSQLFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "01_init.sql")}, files)
}
