package docker

import (
	"github.com/egon12/pgfixture"
)

type (
	PostgresConfig struct {
		// DockerEndpoint is the endpoint to connect to docker
		DockerEndpoint string

		// InitPath is mounted into /docker-entrypoint-initdb.d/ so its sql
		// files run once, when the container is created
		InitPath string

		// Network is the docker network to join. When set the container is
		// named after the service so other containers on the network reach
		// it by that name
		Network string

		// DebugMode will print the logs of the container
		DebugMode bool

		// PostgresVersion is the image tag of postgres to use
		PostgresVersion string

		// ContainerNameSuffix is the suffix to add to the container name
		ContainerNameSuffix string

		// KeepContainer will keep the container when the container stop
		KeepContainer bool
	}

	Config struct {
		PostgresConfig
		pgfixture.Config
	}

	Options func(cfg *Config)
)

func WithDebug() Options {
	return func(cfg *Config) {
		cfg.PostgresConfig.DebugMode = true
		cfg.Config.Debug = true
	}
}

func WithInitPath(path string) Options {
	return func(cfg *Config) {
		cfg.InitPath = path
	}
}

func WithPostgresVersion(tag string) Options {
	return func(cfg *Config) {
		cfg.PostgresVersion = tag
	}
}

func WithKeepContainer() Options {
	return func(cfg *Config) {
		cfg.KeepContainer = true
	}
}

// WithFixture applies fixture options, such as the schema folders to load.
func WithFixture(options ...pgfixture.Options) Options {
	return func(cfg *Config) {
		cfg.Config = cfg.Config.Apply(options...)
	}
}

func newConfig(base pgfixture.Config, options ...Options) Config {
	var cfg Config
	cfg.Config = base

	for _, o := range options {
		o(&cfg)
	}

	cfg.Config = cfg.Config.Apply()
	if cfg.Network == "" {
		cfg.Network = cfg.InDockerCompose
	}
	if cfg.Config.Debug {
		cfg.DebugMode = true
	}
	return cfg
}
