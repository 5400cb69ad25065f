package pgfixture

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// maintenanceDatabase is where CREATE and DROP DATABASE are issued from.
const maintenanceDatabase = "postgres"

type (
	// Provisioner creates and drops one database on a ready server.
	Provisioner struct {
		server Server
		name   string
		admin  func(addr string) (*sql.DB, error)
		open   func(ctx context.Context, addr string) (*pgx.Conn, error)
	}

	// Session is a connection to a freshly created database. Close drops it.
	Session struct {
		Conn *pgx.Conn
		Name string
		URL  string

		p *Provisioner
	}

	execer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	}
)

// NewProvisioner returns a provisioner for cfg.DatabaseName on server. With
// cfg.UniqueDatabase every provisioner gets its own name.
func NewProvisioner(server Server, cfg Config) *Provisioner {
	cfg = cfg.Apply()
	if server.User == "" {
		server.User = cfg.User
	}

	name := cfg.DatabaseName
	if cfg.UniqueDatabase {
		name = uniqueName(name)
	}

	return &Provisioner{server: server, name: name, admin: openAdmin, open: pgx.Connect}
}

func (p *Provisioner) Name() string { return p.name }

// Open creates the database and connects to it. When creation fails nothing
// is left to clean up.
func (p *Provisioner) Open(ctx context.Context) (*Session, error) {
	err := p.withAdmin(func(admin *sql.DB) error {
		return createDatabase(ctx, admin, p.name)
	})
	if err != nil {
		return nil, &ProvisioningError{Op: "create", Database: p.name, Err: err}
	}

	addr := p.server.URL(p.name)
	conn, err := p.open(ctx, addr)
	if err != nil {
		connErr := &ProvisioningError{Op: "connect to", Database: p.name, Err: err}
		if dropErr := p.drop(ctx); dropErr != nil {
			return nil, errors.Join(connErr, dropErr)
		}
		return nil, connErr
	}

	return &Session{Conn: conn, Name: p.name, URL: addr, p: p}, nil
}

// Close closes the connection and drops the database. The drop is attempted
// even when closing the connection fails.
func (s *Session) Close(ctx context.Context) error {
	var closeErr error
	if s.Conn != nil {
		closeErr = s.Conn.Close(ctx)
	}
	return errors.Join(closeErr, s.p.drop(ctx))
}

func (p *Provisioner) drop(ctx context.Context) error {
	err := p.withAdmin(func(admin *sql.DB) error {
		return dropDatabase(ctx, admin, p.name)
	})
	if err != nil {
		return &ProvisioningError{Op: "drop", Database: p.name, Err: err}
	}
	return nil
}

func (p *Provisioner) withAdmin(fn func(admin *sql.DB) error) error {
	admin, err := p.admin(p.server.URL(maintenanceDatabase))
	if err != nil {
		return err
	}
	defer admin.Close()

	return fn(admin)
}

func openAdmin(addr string) (*sql.DB, error) {
	return sql.Open("postgres", addr)
}

func createDatabase(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	return err
}

// dropDatabase disconnects whatever the test left open before dropping.
func dropDatabase(ctx context.Context, db execer, name string) error {
	_, err := db.ExecContext(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		name,
	)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, "DROP DATABASE "+pq.QuoteIdentifier(name))
	return err
}

func uniqueName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSession provisions a database for the duration of t. The database is
// dropped in t.Cleanup whether the test passes or not.
func NewSession(t testing.TB, server Server, cfg Config) *Session {
	t.Helper()

	return openSession(t, NewProvisioner(server, cfg))
}

func openSession(t testing.TB, p *Provisioner) *Session {
	t.Helper()

	s, err := p.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := s.Close(context.Background()); err != nil {
			t.Error(err)
		}
	})

	return s
}
