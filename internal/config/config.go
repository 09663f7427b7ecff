package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a
// double underscore: DBMETA_CONNECTION__HOST sets connection.host.
const EnvPrefix = "DBMETA_"

// Config represents the top-level configuration.
type Config struct {
	Connection       Connection        `koanf:"connection"`
	Dialect          string            `koanf:"dialect"`
	DialectVersion   string            `koanf:"dialect_version"`
	Capabilities     []string          `koanf:"capabilities"`
	Schemas          []string          `koanf:"schemas"`
	ExcludeTables    []string          `koanf:"exclude_tables"`
	VirtualRelations []VirtualRelation `koanf:"virtual_relations"`
	Roots            []Root            `koanf:"roots"`
	Output           string            `koanf:"output"`
	Log              Log               `koanf:"log"`
}

// Connection holds database connection parameters. DSN, when set, is
// passed to the driver unchanged.
type Connection struct {
	Driver   string            `koanf:"driver"`
	DSN      string            `koanf:"dsn"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	SSLMode  string            `koanf:"sslmode"`
	Params   map[string]string `koanf:"params"`
}

// VirtualRelation declares a foreign key the database does not enforce.
type VirtualRelation struct {
	ChildTable   string `koanf:"child_table"`
	ChildColumn  string `koanf:"child_column"`
	ParentTable  string `koanf:"parent_table"`
	ParentColumn string `koanf:"parent_column"`
}

// Root defines a delete-script root table. Where and Keys are optional
// and combined with AND; Keys lists primary key values of a single-column
// key.
type Root struct {
	Table string `koanf:"table"`
	Where string `koanf:"where"`
	Keys  []any  `koanf:"keys"`
}

// Log configures the process logger.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultPorts maps drivers to their listener ports.
var DefaultPorts = map[string]int{
	"postgres":   5432,
	"redshift":   5439,
	"mysql":      3306,
	"mariadb":    3306,
	"sqlserver":  1433,
	"hana":       39017,
	"clickhouse": 9000,
}

func defaults() map[string]any {
	return map[string]any{
		"connection.driver": "postgres",
		"log.level":         "info",
		"log.format":        "text",
	}
}

// Load reads configuration from defaults, an optional YAML file, DBMETA_
// environment variables and explicitly set flags, in increasing priority.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"driver":          "connection.driver",
	"dsn":             "connection.dsn",
	"host":            "connection.host",
	"port":            "connection.port",
	"database":        "connection.database",
	"user":            "connection.user",
	"password":        "connection.password",
	"sslmode":         "connection.sslmode",
	"dialect":         "dialect",
	"dialect-version": "dialect_version",
	"capabilities":    "capabilities",
	"schema":          "schemas",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"output":          "output",
}

// envKey turns DBMETA_CONNECTION__HOST into connection.host.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// applyEnv fills in empty Connection fields from the libpq environment
// variables. Configured values take precedence.
func (c *Config) applyEnv() {
	conn := &c.Connection
	if conn.Driver != "postgres" && conn.Driver != "redshift" {
		return
	}
	if conn.Host == "" {
		conn.Host = envOr("PGHOST", "POSTGRES_HOST")
	}
	if conn.Port == 0 {
		if s := envOr("PGPORT", "POSTGRES_PORT"); s != "" {
			if p, err := strconv.Atoi(s); err == nil {
				conn.Port = p
			}
		}
	}
	if conn.Database == "" {
		conn.Database = envOr("PGDATABASE", "POSTGRES_DB")
	}
	if conn.User == "" {
		conn.User = envOr("PGUSER", "POSTGRES_USER")
	}
	if conn.Password == "" {
		conn.Password = envOr("PGPASSWORD", "POSTGRES_PASSWORD")
	}
	if conn.SSLMode == "" {
		conn.SSLMode = envOr("PGSSLMODE")
	}
}

// envOr returns the first non-empty value from the given env var names.
func envOr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// validate checks connection settings and fills in defaults.
func (c *Config) validate() error {
	conn := &c.Connection
	conn.Driver = strings.ToLower(conn.Driver)
	if conn.Driver == "" {
		return fmt.Errorf("connection.driver is required")
	}

	if conn.DSN == "" {
		switch conn.Driver {
		case "sqlite", "duckdb":
			if conn.Database == "" {
				return fmt.Errorf("connection.database is required for %s", conn.Driver)
			}
		default:
			if conn.Host == "" {
				return fmt.Errorf("connection.host is required")
			}
			if conn.User == "" {
				return fmt.Errorf("connection.user is required")
			}
		}
	}
	if conn.Port == 0 {
		conn.Port = DefaultPorts[conn.Driver]
	}
	if conn.SSLMode == "" && (conn.Driver == "postgres" || conn.Driver == "redshift") {
		conn.SSLMode = "disable"
	}

	for i, vr := range c.VirtualRelations {
		if vr.ChildTable == "" || vr.ChildColumn == "" || vr.ParentTable == "" || vr.ParentColumn == "" {
			return fmt.Errorf("virtual_relations[%d]: child_table, child_column, parent_table and parent_column are required", i)
		}
	}
	return nil
}

// ValidateForDeleteScript checks the fields required to generate a delete
// script.
func (c *Config) ValidateForDeleteScript() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("at least one root table must be specified in config")
	}
	for i, r := range c.Roots {
		if r.Table == "" {
			return fmt.Errorf("roots[%d].table is required", i)
		}
	}
	return nil
}

// ExcludeSet returns a set of excluded table names, lower-cased.
func (c *Config) ExcludeSet() map[string]bool {
	set := make(map[string]bool, len(c.ExcludeTables))
	for _, t := range c.ExcludeTables {
		set[strings.ToLower(t)] = true
	}
	return set
}
