package pgfixture

import (
	"context"
	"errors"
	"time"
)

const (
	// ServiceName is the name of the database service in the orchestration
	// layer and, inside a docker network, its host name.
	ServiceName = "db"

	// ServicePort is the port postgres listens on inside its container.
	ServicePort = 5432

	loopbackHost = "127.0.0.1"
)

type (
	// Services starts containers and waits for them. The docker package
	// implements it with dockertest.
	Services interface {
		// Start starts the named service once. Further calls are no-ops.
		Start(ctx context.Context, service string) error

		// WaitUntilResponsive polls check until it returns true or timeout
		// passes.
		WaitUntilResponsive(ctx context.Context, timeout, pause time.Duration, check func() bool) error

		// WaitForService returns the host port mapped to privatePort once
		// check accepts it.
		WaitForService(ctx context.Context, service string, privatePort int, check func(host string, port int) bool) (int, error)
	}

	// Server is the address of the shared database server. It is resolved
	// once per test binary and handed to every test.
	Server struct {
		Host string
		Port int
		User string
	}
)

// URL is the connection url for database on s.
func (s Server) URL(database string) string {
	user := s.User
	if user == "" {
		user = DefaultUser
	}
	return MakeURL(user, s.Host, s.Port, database)
}

// ResolveServer starts the database service and returns its address once it
// accepts connections. Inside a docker network the service is reached by
// name on its own port, from the host on loopback and the mapped port.
func ResolveServer(ctx context.Context, services Services, cfg Config) (Server, error) {
	cfg = cfg.Apply()

	if err := services.Start(ctx, ServiceName); err != nil {
		return Server{}, &ProvisioningError{Op: "start service " + ServiceName, Err: err}
	}

	if cfg.InDockerCompose != "" {
		server := Server{Host: ServiceName, Port: ServicePort, User: cfg.User}
		err := services.WaitUntilResponsive(ctx, DefaultWaitTimeout, DefaultWaitPause, func() bool {
			return isReady(ctx, server.URL(""))
		})
		if err != nil {
			return Server{}, asProvisioningError("wait for service "+ServiceName, err)
		}
		return server, nil
	}

	port, err := services.WaitForService(ctx, ServiceName, ServicePort, func(host string, port int) bool {
		return isReady(ctx, MakeURL(cfg.User, host, port, ""))
	})
	if err != nil {
		return Server{}, asProvisioningError("wait for service "+ServiceName, err)
	}

	return Server{Host: loopbackHost, Port: port, User: cfg.User}, nil
}

func asProvisioningError(op string, err error) error {
	var pErr *ProvisioningError
	if errors.As(err, &pErr) {
		return err
	}
	return &ProvisioningError{Op: op, Err: err}
}
