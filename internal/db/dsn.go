package db

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/hurou927/dbmeta/internal/config"
)

// DSN builds the driver connection string for cfg. An explicit
// connection.dsn is returned unchanged.
func DSN(cfg *config.Connection) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	switch cfg.Driver {
	case "postgres", "redshift":
		return postgresDSN(cfg)
	case "mysql", "mariadb":
		return mysqlDSN(cfg)
	case "sqlserver":
		u := urlDSN("sqlserver", cfg, "")
		q := u.Query()
		if cfg.Database != "" {
			q.Set("database", cfg.Database)
		}
		u.RawQuery = q.Encode()
		return u.String()
	case "hana":
		return urlDSN("hdb", cfg, "").String()
	case "clickhouse":
		return urlDSN("clickhouse", cfg, cfg.Database).String()
	case "sqlite", "duckdb":
		return cfg.Database
	}
	return ""
}

// postgresDSN builds a libpq keyword/value connection string.
func postgresDSN(c *config.Connection) string {
	parts := []string{
		"host=" + quoteValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"dbname=" + quoteValue(c.Database),
		"user=" + quoteValue(c.User),
		"password=" + quoteValue(c.Password),
		"sslmode=" + quoteValue(c.SSLMode),
	}
	for _, k := range sortedKeys(c.Params) {
		parts = append(parts, k+"="+quoteValue(c.Params[k]))
	}
	return strings.Join(parts, " ")
}

// quoteValue quotes libpq values containing spaces or quotes.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func mysqlDSN(c *config.Connection) string {
	m := mysql.NewConfig()
	m.User = c.User
	m.Passwd = c.Password
	m.Net = "tcp"
	m.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	m.DBName = c.Database
	if len(c.Params) > 0 {
		m.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			m.Params[k] = v
		}
	}
	return m.FormatDSN()
}

func urlDSN(scheme string, c *config.Connection, path string) *url.URL {
	u := &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	if path != "" {
		u.Path = "/" + path
	}
	q := url.Values{}
	for _, k := range sortedKeys(c.Params) {
		q.Set(k, c.Params[k])
	}
	u.RawQuery = q.Encode()
	return u
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Redact hides the password of a DSN for logging.
func Redact(cfg *config.Connection) string {
	c := *cfg
	if c.Password != "" {
		c.Password = "xxxxx"
	}
	if c.DSN != "" {
		if u, err := url.Parse(c.DSN); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
			}
			return u.String()
		}
		return fmt.Sprintf("%s (dsn)", c.Driver)
	}
	return DSN(&c)
}
