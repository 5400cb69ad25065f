package docker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/egon12/pgfixture"
	dockertest "github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

// hostAddr is where mapped ports are published.
const hostAddr = "127.0.0.1"

var errNotReady = errors.New("container is not ready")

// Services runs the database service with dockertest. It implements
// pgfixture.Services.
type Services struct {
	pool      *dockertest.Pool
	cfg       PostgresConfig
	resources map[string]*dockertest.Resource
	logs      map[string]*logBuffer
}

// logBuffer is written by the attach goroutine and read by GetLogs.
type logBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

var _ pgfixture.Services = (*Services)(nil)

func NewServices(cfg PostgresConfig) (*Services, error) {
	pool, err := dockertest.NewPool(cfg.DockerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to docker endpoint (%s) %w", cfg.DockerEndpoint, err)
	}

	if err = pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("cannot ping docker endpoint (%s) %w", cfg.DockerEndpoint, err)
	}

	return &Services{
		pool:      pool,
		cfg:       cfg,
		resources: map[string]*dockertest.Resource{},
		logs:      map[string]*logBuffer{},
	}, nil
}

func (s *Services) Start(ctx context.Context, service string) error {
	if _, ok := s.resources[service]; ok {
		return nil
	}

	if service != pgfixture.ServiceName {
		return fmt.Errorf("unknown service %q", service)
	}

	option, err := s.generatePostgresOption(service)
	if err != nil {
		return err
	}

	resource, err := s.pool.RunWithOptions(option, func(hc *docker.HostConfig) {
		hc.AutoRemove = !s.cfg.KeepContainer
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return fmt.Errorf("cannot run container (%s) %w", option.Name, err)
	}
	s.resources[service] = resource

	if s.cfg.DebugMode {
		log.Println("getting docker container logs")
	}
	logs := &logBuffer{}
	s.logs[service] = logs
	_, err = s.pool.Client.AttachToContainerNonBlocking(docker.AttachToContainerOptions{
		Container:    resource.Container.ID,
		Stdout:       true,
		Stderr:       true,
		Stream:       true,
		Logs:         true,
		OutputStream: logs,
		ErrorStream:  logs,
	})
	if err != nil {
		log.Printf("Could not attach to container: %v", err)
	}

	return nil
}

func (s *Services) WaitUntilResponsive(ctx context.Context, timeout, pause time.Duration, check func() bool) error {
	return s.wait(ctx, timeout, pause, check)
}

func (s *Services) WaitForService(ctx context.Context, service string, privatePort int, check func(host string, port int) bool) (int, error) {
	resource, ok := s.resources[service]
	if !ok {
		return 0, fmt.Errorf("service %q is not started", service)
	}

	hostPort := resource.GetPort(fmt.Sprintf("%d/tcp", privatePort))
	port, err := strconv.Atoi(hostPort)
	if err != nil {
		return 0, fmt.Errorf("service %q has no host port for %d: %w", service, privatePort, err)
	}

	if s.cfg.DebugMode {
		log.Printf("service %s port %d is mapped to %d", service, privatePort, port)
	}

	err = s.wait(ctx, pgfixture.DefaultWaitTimeout, pgfixture.DefaultWaitPause, func() bool {
		return check(hostAddr, port)
	})
	if err != nil {
		return 0, err
	}

	return port, nil
}

// GetLogs returns the logs of the service container. It is useful for debugging
func (s *Services) GetLogs(service string) string {
	logs, ok := s.logs[service]
	if !ok {
		return ""
	}
	return logs.String()
}

// Finish will stop and remove every started container
func (s *Services) Finish() error {
	var errs []error
	for service, resource := range s.resources {
		if s.cfg.DebugMode {
			log.Printf("docker logs of %s:\n%s\n", service, s.GetLogs(service))
		}

		err := s.pool.Purge(resource)
		if err != nil {
			var noSuch *docker.NoSuchContainer
			if !errors.As(err, &noSuch) {
				log.Printf("Could not purge resource: %s", err)
				errs = append(errs, err)
			}
		}
		delete(s.resources, service)
	}
	return errors.Join(errs...)
}

// wait polls ready with a fixed pause. A container that died stops the
// polling right away instead of waiting for the timeout.
func (s *Services) wait(ctx context.Context, timeout, pause time.Duration, ready func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryNum := 0
	err := backoff.Retry(func() error {
		retryNum++

		if err := s.checkContainers(); err != nil {
			return backoff.Permanent(err)
		}

		if ready() {
			return nil
		}

		if s.cfg.DebugMode {
			log.Printf("not ready after %d tries", retryNum)
		}
		return errNotReady
	}, backoff.WithContext(backoff.NewConstantBackOff(pause), ctx))

	if err != nil {
		return &pgfixture.ProvisioningError{
			Op:  "wait for container",
			Err: fmt.Errorf("could not connect to database after %d times: %w", retryNum, err),
		}
	}

	return nil
}

func (s *Services) checkContainers() error {
	for service, resource := range s.resources {
		container, err := s.pool.Client.InspectContainer(resource.Container.ID)
		if err != nil {
			if s.cfg.DebugMode {
				log.Printf("could not inspect container of %s: %v", service, err)
			}
			continue
		}

		if container.State.Dead || (!container.State.Running && !container.State.FinishedAt.IsZero()) {
			return fmt.Errorf("container of %s dead: %s\n%s", service, &container.State, s.GetLogs(service))
		}
	}
	return nil
}

func (s *Services) generatePostgresOption(service string) (*dockertest.RunOptions, error) {
	option := &dockertest.RunOptions{
		Repository: "postgres",
		Tag:        s.cfg.PostgresVersion,
		Env:        []string{"POSTGRES_HOST_AUTH_METHOD=trust"},
		Name:       s.getContainerName(service),
	}

	if s.cfg.Network != "" {
		option.NetworkID = s.cfg.Network
	}

	if s.cfg.InitPath != "" {
		initPath, err := filepath.Abs(s.cfg.InitPath)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve init path %s: %w", s.cfg.InitPath, err)
		}
		if s.cfg.DebugMode {
			log.Println("use absolute init path in:", initPath)
		}
		option.Mounts = []string{initPath + ":/docker-entrypoint-initdb.d/"}
	}

	return option, nil
}

// getContainerName returns the bare service name inside a docker network,
// since that is the host name other containers resolve.
func (s *Services) getContainerName(service string) string {
	if s.cfg.Network != "" {
		return service
	}
	return "pgfixture_" + service + sanitizeName(s.cfg.ContainerNameSuffix)
}

func sanitizeName(n string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, n)
}
