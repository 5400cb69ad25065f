package pgfixture

import (
	"path/filepath"
	"strings"
)

type (
	// PlanSource is either StaticSource or DiffPairSource.
	PlanSource interface {
		isPlanSource()
	}

	// StaticSource lists schema directories that must all be loadable.
	StaticSource struct {
		Paths []string
	}

	// DiffPairSource tests Current always and Next only when it differs.
	DiffPairSource struct {
		Current string
		Next    string
	}

	// PlanEntry is one schema directory and the files the loader runs for it.
	PlanEntry struct {
		Dir   string
		Files []string
	}
)

func (StaticSource) isPlanSource()   {}
func (DiffPairSource) isPlanSource() {}

// Name is a label for the subtest that runs against this entry.
func (e PlanEntry) Name() string {
	name := filepath.Base(filepath.Clean(e.Dir))
	if name == "." || name == string(filepath.Separator) {
		return strings.Trim(filepath.ToSlash(e.Dir), "/")
	}
	return name
}

// Plan resolves src into the schema directories tests run against.
//
// Static paths are required: a missing or empty directory fails. In a diff
// pair the current schema is required and the next one is optional; a next
// schema that is missing or holds no .sql files is dropped, as is one with
// the same .sql content as the current schema.
func Plan(src PlanSource) ([]PlanEntry, error) {
	switch s := src.(type) {
	case nil:
		return nil, nil
	case StaticSource:
		return planStatic(s)
	case DiffPairSource:
		return planDiffPair(s)
	default:
		return nil, &ConfigurationError{Reason: "unknown plan source"}
	}
}

func planStatic(s StaticSource) ([]PlanEntry, error) {
	plan := make([]PlanEntry, 0, len(s.Paths))
	for _, dir := range s.Paths {
		files, err := CollectSQLFiles(dir)
		if err != nil {
			return nil, err
		}
		plan = append(plan, PlanEntry{Dir: dir, Files: files})
	}
	return plan, nil
}

func planDiffPair(s DiffPairSource) ([]PlanEntry, error) {
	files, err := CollectSQLFiles(s.Current)
	if err != nil {
		return nil, err
	}
	plan := []PlanEntry{{Dir: s.Current, Files: files}}

	if s.Next == "" {
		return plan, nil
	}

	// the next schema is optional: nothing to load means nothing to test
	nextFiles, err := CollectSQLFiles(s.Next)
	if err != nil {
		return plan, nil
	}

	diff, err := DiffSchemas(s.Current, s.Next)
	if err != nil {
		return nil, err
	}
	if diff.Empty() {
		return plan, nil
	}

	return append(plan, PlanEntry{Dir: s.Next, Files: nextFiles}), nil
}
