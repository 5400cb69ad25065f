package pgfixture

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultDatabaseName is the database created for every test.
	DefaultDatabaseName = "test"

	// DefaultUser is the superuser of the postgres image.
	DefaultUser = "postgres"

	// EnvConfigFile names an optional yaml/toml/json file read by LoadConfig.
	EnvConfigFile = "PGFIXTURE_CONFIG"

	envPrefix = "pgfixture"
)

type (
	Config struct {
		// InDockerCompose is not empty when the tests run inside the same
		// docker network as the database. The value names that network.
		InDockerCompose string

		// LoadSQL are schema directories every test is run against.
		// When set, CurrentSchema and NextSchema are ignored.
		LoadSQL []string

		// CurrentSchema is the schema directory in production.
		CurrentSchema string

		// NextSchema is the upcoming schema. Tests run against it too, but
		// only when it differs from CurrentSchema.
		NextSchema string

		// DatabaseName is the database created for each test, "test" by default.
		DatabaseName string

		// User connects to the server, "postgres" by default.
		User string

		// UniqueDatabase appends a random suffix to DatabaseName so tests
		// can run in parallel against one server.
		UniqueDatabase bool

		Debug bool
	}

	Options func(cfg *Config)

	// stringList is a repeatable flag.
	stringList []string
)

func WithDebug() Options {
	return func(cfg *Config) {
		cfg.Debug = true
	}
}

func WithLoadSQL(paths ...string) Options {
	return func(cfg *Config) {
		cfg.LoadSQL = append(cfg.LoadSQL, paths...)
	}
}

func WithSchemaPair(current, next string) Options {
	return func(cfg *Config) {
		cfg.CurrentSchema = current
		cfg.NextSchema = next
	}
}

func WithDockerCompose(network string) Options {
	return func(cfg *Config) {
		cfg.InDockerCompose = network
	}
}

func WithDatabaseName(name string) Options {
	return func(cfg *Config) {
		cfg.DatabaseName = name
	}
}

func WithUniqueDatabase() Options {
	return func(cfg *Config) {
		cfg.UniqueDatabase = true
	}
}

// Apply returns a copy of cfg with options applied and defaults filled in.
func (cfg Config) Apply(options ...Options) Config {
	cfg.LoadSQL = append([]string(nil), cfg.LoadSQL...)
	for _, o := range options {
		o(&cfg)
	}
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = DefaultDatabaseName
	}
	if cfg.User == "" {
		cfg.User = DefaultUser
	}
	return cfg
}

// Source resolves which schema directories to test against. LoadSQL wins
// over the current/next pair. A NextSchema without CurrentSchema is an error.
func (cfg Config) Source() (PlanSource, error) {
	if len(cfg.LoadSQL) > 0 {
		return StaticSource{Paths: cfg.LoadSQL}, nil
	}
	if cfg.CurrentSchema != "" {
		return DiffPairSource{Current: cfg.CurrentSchema, Next: cfg.NextSchema}, nil
	}
	if cfg.NextSchema != "" {
		return nil, &ConfigurationError{Path: cfg.NextSchema, Reason: "next schema given without current schema"}
	}
	return StaticSource{}, nil
}

func (l *stringList) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// Flags holds the command line values registered by RegisterFlags.
type Flags struct {
	fs              *flag.FlagSet
	inDockerCompose string
	loadSQL         stringList
	currentSchema   string
	nextSchema      string
	debug           bool
}

// RegisterFlags adds the fixture flags to fs. With go test, pass
// flag.CommandLine before flag.Parse runs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.inDockerCompose, "in-docker-compose", "", "Assume inside a docker network with this name")
	fs.Var(&f.loadSQL, "load-sql", "Folder of sql files to load into every test database (repeatable)")
	fs.StringVar(&f.currentSchema, "current-schema", "", "Folder of sql files of the current schema")
	fs.StringVar(&f.nextSchema, "next-schema", "", "Folder of sql files of the next schema, tested when it differs from the current one")
	fs.BoolVar(&f.debug, "pgfixture.debug", false, "Log fixture activity")
	return f
}

// LoadConfig builds a Config from PGFIXTURE_* environment variables, the file
// named by PGFIXTURE_CONFIG and finally the flags in f that were set on the
// command line. f may be nil.
func LoadConfig(f *Flags) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("database_name", DefaultDatabaseName)
	v.SetDefault("user", DefaultUser)

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ConfigurationError{Path: file, Reason: "cannot read config file", Err: err}
		}
	}

	cfg := Config{
		InDockerCompose: v.GetString("in_docker_compose"),
		LoadSQL:         pathList(v.Get("load_sql")),
		CurrentSchema:   v.GetString("current_schema"),
		NextSchema:      v.GetString("next_schema"),
		DatabaseName:    v.GetString("database_name"),
		User:            v.GetString("user"),
		UniqueDatabase:  v.GetBool("unique_database"),
		Debug:           v.GetBool("debug"),
	}

	if f != nil {
		f.override(&cfg)
	}

	return cfg.Apply(), nil
}

func (f *Flags) override(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "in-docker-compose":
			cfg.InDockerCompose = f.inDockerCompose
		case "load-sql":
			cfg.LoadSQL = append([]string(nil), f.loadSQL...)
		case "current-schema":
			cfg.CurrentSchema = f.currentSchema
		case "next-schema":
			cfg.NextSchema = f.nextSchema
		case "pgfixture.debug":
			cfg.Debug = f.debug
		}
	})
}

// pathList accepts an OS path list from the environment or a list from a
// config file.
func pathList(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		var out []string
		for _, p := range filepath.SplitList(v) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, p := range v {
			out = append(out, fmt.Sprint(p))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
