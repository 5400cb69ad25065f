package pgfixture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
)

const (
	// DefaultWaitTimeout bounds how long a fresh server may take to accept
	// connections.
	DefaultWaitTimeout = 30 * time.Second

	// DefaultWaitPause is the pause between two readiness probes.
	DefaultWaitPause = 100 * time.Millisecond

	probeTimeout = 2 * time.Second
)

var errNotReady = errors.New("server is not accepting connections")

// MakeURL builds the postgres url used by both lib/pq and pgx. An empty
// database connects to the default database of user.
func MakeURL(user, host string, port int, database string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(user),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// IsReady reports whether the server at host:port accepts a connection from
// the default user. Every failure, from refused connections to bad
// credentials, is reported as false.
func IsReady(ctx context.Context, host string, port int) bool {
	return isReady(ctx, MakeURL(DefaultUser, host, port, ""))
}

func isReady(ctx context.Context, addr string) bool {
	db, err := sql.Open("postgres", addr)
	if err != nil {
		return false
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	return db.PingContext(ctx) == nil
}

// WaitUntilResponsive calls check every pause until it returns true. It
// gives up with a *ProvisioningError once timeout has passed.
func WaitUntilResponsive(ctx context.Context, timeout, pause time.Duration, check func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryNum := 0
	err := backoff.Retry(func() error {
		retryNum++
		if check() {
			return nil
		}
		return errNotReady
	}, backoff.WithContext(backoff.NewConstantBackOff(pause), ctx))

	if err != nil {
		return &ProvisioningError{
			Op:  "wait for server",
			Err: fmt.Errorf("not responsive after %d attempts in %s: %w", retryNum, timeout, err),
		}
	}

	return nil
}
