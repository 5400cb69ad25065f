package docker

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/egon12/pgfixture"
)

// RunInM starts postgres for the whole test binary. bind receives the
// resolved environment before the tests run. With -short no container is
// started and bind is not called.
//
//	var env *pgfixture.Environment
//
//	func TestMain(m *testing.M) {
//		docker.RunInM(m, func(e *pgfixture.Environment) { env = e })
//	}
func RunInM(m *testing.M, bind func(env *pgfixture.Environment), options ...Options) {
	flags := pgfixture.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	os.Exit(runInM(m, flags, bind, options...))
}

func runInM(m *testing.M, flags *pgfixture.Flags, bind func(env *pgfixture.Environment), options ...Options) int {
	base, err := pgfixture.LoadConfig(flags)
	if err != nil {
		log.Println(err)
		return 1
	}

	env, finish, err := Start(context.Background(), base, options...)
	if err != nil {
		log.Println(err)
		return 1
	}
	defer func() {
		if err := finish(); err != nil {
			log.Println(err)
		}
	}()

	bind(env)
	return m.Run()
}

// Start resolves base and options into an environment, running the database
// container. finish removes the container.
func Start(ctx context.Context, base pgfixture.Config, options ...Options) (env *pgfixture.Environment, finish func() error, err error) {
	cfg := newConfig(base, options...)

	services, err := NewServices(cfg.PostgresConfig)
	if err != nil {
		return nil, nil, err
	}

	env, err = pgfixture.NewEnvironment(ctx, services, cfg.Config)
	if err != nil {
		if finishErr := services.Finish(); finishErr != nil {
			log.Println(finishErr)
		}
		return nil, nil, err
	}

	if cfg.DebugMode {
		log.Printf("postgres is ready at %s, %d schema(s) planned", env.Server.URL(""), len(env.Plan))
	}

	return env, services.Finish, nil
}

// RunInT starts a container that lives as long as t. The test is skipped
// with -short or when docker is not reachable.
func RunInT(t *testing.T, options ...Options) *pgfixture.Environment {
	t.Helper()

	if testing.Short() {
		t.Skip("skip need docker test")
	}

	options = append([]Options{func(cfg *Config) { cfg.ContainerNameSuffix = t.Name() }}, options...)
	cfg := newConfig(pgfixture.Config{}, options...)

	services, err := NewServices(cfg.PostgresConfig)
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	t.Cleanup(func() {
		if err := services.Finish(); err != nil {
			t.Error(err)
		}
	})

	env, err := pgfixture.NewEnvironment(context.Background(), services, cfg.Config)
	if err != nil {
		t.Fatal(err)
	}
	return env
}
