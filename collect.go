package pgfixture

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const sqlSuffix = ".sql"

// CollectSQLFiles returns every .sql file under dir, at any depth, as absolute
// paths sorted ascending. Hidden files and directories are skipped. The order
// is what the loader executes, so callers encode dependencies in file names
// (01_init.sql, 02_seed.sql, ...).
func CollectSQLFiles(dir string) ([]string, error) {
	root, err := checkSchemaDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	err = walkTree(root, func(path, _ string) error {
		if strings.HasSuffix(filepath.Base(path), sqlSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &ConfigurationError{Path: dir, Reason: "cannot walk schema directory", Err: err}
	}

	if len(files) == 0 {
		return nil, &ConfigurationError{Path: dir, Reason: "no .sql files found"}
	}

	sort.Strings(files)
	return files, nil
}

// checkSchemaDir makes sure dir exists and is a directory and returns its
// absolute form.
func checkSchemaDir(dir string) (string, error) {
	if dir == "" {
		return "", &ConfigurationError{Reason: "empty schema path"}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &ConfigurationError{Path: dir, Reason: "cannot resolve path", Err: err}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", &ConfigurationError{Path: dir, Reason: "schema directory does not exist", Err: err}
	}
	if !info.IsDir() {
		return "", &ConfigurationError{Path: dir, Reason: "schema path is not a directory"}
	}

	return abs, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// walkTree calls fn with every non hidden file under root, both as a path
// below root and relative to it. Symlinked directories are followed unless
// that would enter a directory already being walked.
func walkTree(root string, fn func(path, rel string) error) error {
	realDir, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	return walkDir(realDir, root, "", []string{realDir}, fn)
}

// walkDir walks the real directory realDir, reporting paths as if it lived at
// shown. chain holds the real directories on the way down: the root, then for
// every followed link the directory holding it and its target.
func walkDir(realDir, shown, relBase string, chain []string, fn func(path, rel string) error) error {
	return filepath.WalkDir(realDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == realDir {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		inner, err := filepath.Rel(realDir, path)
		if err != nil {
			return err
		}
		shownPath := filepath.Join(shown, inner)
		rel := filepath.Join(relBase, inner)

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(path)
			if err != nil {
				// dangling link
				return nil
			}
			info, err := os.Stat(target)
			if err != nil {
				return err
			}
			if info.IsDir() {
				dir := filepath.Dir(path)
				if isLinkCycle(dir, target, chain) {
					return nil
				}
				next := append(chain[:len(chain):len(chain)], dir, target)
				return walkDir(target, shownPath, rel, next, fn)
			}
		}

		return fn(shownPath, rel)
	})
}

// isLinkCycle reports whether a link in dir pointing at target leads back
// to a directory on the current chain or to one of its ancestors.
func isLinkCycle(dir, target string, chain []string) bool {
	for _, d := range append(chain[:len(chain):len(chain)], dir) {
		if d == target || strings.HasPrefix(d, target+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
