package pgfixture

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiffResult is the set of slash separated paths, relative to the compared
// roots, of .sql files that differ between two schema directories.
type DiffResult map[string]struct{}

func (d DiffResult) Has(rel string) bool {
	_, ok := d[rel]
	return ok
}

func (d DiffResult) Len() int { return len(d) }

func (d DiffResult) Empty() bool { return len(d) == 0 }

// Sorted returns the members in ascending order, for logs and messages.
func (d DiffResult) Sorted() []string {
	out := make([]string, 0, len(d))
	for rel := range d {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// DiffSchemas compares two schema directories by content. A .sql file is
// reported when it exists on one side only or when its bytes differ.
// Modification times are never looked at.
func DiffSchemas(a, b string) (DiffResult, error) {
	rootA, err := checkSchemaDir(a)
	if err != nil {
		return nil, err
	}
	rootB, err := checkSchemaDir(b)
	if err != nil {
		return nil, err
	}

	filesA, err := listFiles(rootA)
	if err != nil {
		return nil, &ConfigurationError{Path: a, Reason: "cannot walk schema directory", Err: err}
	}
	filesB, err := listFiles(rootB)
	if err != nil {
		return nil, &ConfigurationError{Path: b, Reason: "cannot walk schema directory", Err: err}
	}

	result := DiffResult{}
	for rel, pathA := range filesA {
		if !strings.HasSuffix(rel, sqlSuffix) {
			continue
		}
		pathB, ok := filesB[rel]
		if !ok {
			result[rel] = struct{}{}
			continue
		}
		same, err := sameContent(pathA, pathB)
		if err != nil {
			return nil, &ConfigurationError{Path: rel, Reason: "cannot compare schema files", Err: err}
		}
		if !same {
			result[rel] = struct{}{}
		}
	}

	for rel := range filesB {
		if !strings.HasSuffix(rel, sqlSuffix) {
			continue
		}
		if _, ok := filesA[rel]; !ok {
			result[rel] = struct{}{}
		}
	}

	return result, nil
}

// listFiles maps the slash separated relative path of every file under root
// to its full path. It walks like CollectSQLFiles.
func listFiles(root string) (map[string]string, error) {
	files := map[string]string{}
	err := walkTree(root, func(path, rel string) error {
		files[filepath.ToSlash(rel)] = path
		return nil
	})
	return files, err
}

func sameContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	contentA, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	contentB, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(contentA, contentB), nil
}
