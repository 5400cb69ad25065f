package pgfixture

import (
	"context"
	"testing"
)

// Environment is what a test binary resolves once, in TestMain, and passes
// to its tests: the configuration, the shared server and the schema plan.
type Environment struct {
	Config Config
	Server Server
	Plan   []PlanEntry
}

// NewEnvironment computes the plan from cfg, then starts the database
// service and waits for it. Configuration errors are reported before any
// container is started.
func NewEnvironment(ctx context.Context, services Services, cfg Config) (*Environment, error) {
	cfg = cfg.Apply()

	src, err := cfg.Source()
	if err != nil {
		return nil, err
	}

	plan, err := Plan(src)
	if err != nil {
		return nil, err
	}

	server, err := ResolveServer(ctx, services, cfg)
	if err != nil {
		return nil, err
	}

	return &Environment{Config: cfg, Server: server, Plan: plan}, nil
}

// Session returns an empty database that lives until t ends.
func (e *Environment) Session(t testing.TB) *Session {
	t.Helper()

	s := NewSession(t, e.Server, e.Config)
	e.logf(t, "created database %s", s.Name)
	return s
}

// SchemaSession returns a database that lives until t ends, loaded with the
// files of entry.
func (e *Environment) SchemaSession(t testing.TB, entry PlanEntry) *Session {
	t.Helper()

	s := e.Session(t)
	e.logf(t, "loading %d files from %s into %s", len(entry.Files), entry.Dir, s.Name)

	if err := LoadSchema(context.Background(), s.Conn, entry.Files); err != nil {
		t.Fatal(err)
	}
	return s
}

// Run calls fn once per plan entry, in a subtest named after the schema
// directory, each with a freshly loaded database. Without a plan fn runs once
// on an empty database.
//
// Subtests share the database name unless Config.UniqueDatabase is set, so
// fn must not call t.Parallel otherwise.
func (e *Environment) Run(t *testing.T, fn func(t *testing.T, s *Session)) {
	t.Helper()

	if len(e.Plan) == 0 {
		fn(t, e.Session(t))
		return
	}

	for _, entry := range e.Plan {
		entry := entry
		t.Run(entry.Name(), func(t *testing.T) {
			fn(t, e.SchemaSession(t, entry))
		})
	}
}

func (e *Environment) logf(t testing.TB, format string, args ...interface{}) {
	if e.Config.Debug {
		t.Helper()
		t.Logf("pgfixture: "+format, args...)
	}
}
