// Package config resolves and validates the refresher's run configuration.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Recognized configuration keys. The same names are used for command-line
// flags and for positional key=value arguments.
const (
	KeyServer         = "server"
	KeyUser           = "user"
	KeyPassword       = "password"
	KeyDaemon         = "daemon"
	KeyDaemonDelaySec = "daemonDelaySec"
	KeyDatabases      = "databases"
)

const (
	DefaultDaemonDelaySec = 60 * 10
	MinDaemonDelaySec     = 60
	MaxDaemonDelaySec     = 60 * 60
)

// ErrInvalidConfig is wrapped by every error Resolve returns.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// RunConfig is the validated configuration of a refresher run.
// It is built once by Resolve and not modified afterwards.
type RunConfig struct {
	// CouchDB server url with port
	Server string

	// Optional basic auth credentials, both set or both empty
	User     string
	Password string

	// Daemon mode
	Daemon         bool
	DaemonDelaySec int

	// Explicit database list, empty means all non-system databases
	Databases []string
}

// Resolve validates raw key/value input and builds a RunConfig.
// A key counts as supplied when it is present in raw, even with an empty value.
func Resolve(raw map[string]string) (*RunConfig, error) {
	cfg := &RunConfig{
		DaemonDelaySec: DefaultDaemonDelaySec,
	}

	user, hasUser := raw[KeyUser]
	password, hasPassword := raw[KeyPassword]
	if hasUser && !hasPassword {
		return nil, invalid("missing password")
	}
	if !hasUser && hasPassword {
		return nil, invalid("missing user")
	}
	cfg.User = user
	cfg.Password = password

	server, ok := raw[KeyServer]
	if !ok {
		return nil, invalid("server required")
	}
	if !strings.HasPrefix(strings.ToLower(server), "http") {
		return nil, invalid("server must be proper http(s) url")
	}
	cfg.Server = server

	if value, ok := raw[KeyDaemon]; ok {
		daemon, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, invalid("daemon must be a boolean, got %q", value)
		}
		cfg.Daemon = daemon
	}

	if value, ok := raw[KeyDaemonDelaySec]; ok {
		delay, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, invalid("daemonDelaySec must be an integer, got %q", value)
		}
		cfg.DaemonDelaySec = delay
	}

	if cfg.DaemonDelaySec < MinDaemonDelaySec || cfg.DaemonDelaySec > MaxDaemonDelaySec {
		return nil, invalid("daemonDelaySec must be >= %d and <= %d, got %d",
			MinDaemonDelaySec, MaxDaemonDelaySec, cfg.DaemonDelaySec)
	}

	if value, ok := raw[KeyDatabases]; ok {
		cfg.Databases = splitDatabases(value)
	}

	return cfg, nil
}

// DaemonDelay returns the pause between the end of one cycle and the start of the next.
func (c *RunConfig) DaemonDelay() time.Duration {
	return time.Duration(c.DaemonDelaySec) * time.Second
}

// DiscoverAll reports whether databases are discovered from the server.
func (c *RunConfig) DiscoverAll() bool {
	return len(c.Databases) == 0
}

// HasCredentials reports whether basic auth is configured.
func (c *RunConfig) HasCredentials() bool {
	return c.User != "" || c.Password != ""
}

func (c *RunConfig) String() string {
	var sb strings.Builder

	user := "null"
	if c.User != "" {
		user = c.User
	}
	password := "null"
	if c.Password != "" {
		password = strings.Repeat("*", len([]rune(c.Password)))
	}

	fmt.Fprintf(&sb, "\tserver=%s\n", c.Server)
	fmt.Fprintf(&sb, "\tuser=%s\n", user)
	fmt.Fprintf(&sb, "\tpassword=%s\n", password)
	fmt.Fprintf(&sb, "\tdaemon=%t\n", c.Daemon)
	fmt.Fprintf(&sb, "\tdaemonDelaySec=%d\n", c.DaemonDelaySec)
	fmt.Fprintf(&sb, "\tdatabases=[%s]\n", strings.Join(c.Databases, " "))

	return sb.String()
}

// Help describes every recognized option.
func Help() string {
	var sb strings.Builder

	sb.WriteString("\nusage: refresher server=server [options]\n")
	sb.WriteString("   or: refresher --server=server [--option=value ...]\n")
	sb.WriteString("where:\n")
	sb.WriteString("\tserver=string                couchdb server url with port (env COUCHDB_SERVER)\n")
	sb.WriteString("\tuser=string                  optional, couchdb user (env COUCHDB_USER)\n")
	sb.WriteString("\tpassword=string              optional, couchdb password (env COUCHDB_PASSWORD)\n")
	sb.WriteString("\tdaemon=bool                  optional, run in daemon mode (env REFRESH_DAEMON)\n")
	sb.WriteString("\tdaemonDelaySec=int           optional, delay between runs in daemon mode, default 600 (env REFRESH_DAEMON_DELAY_SEC)\n")
	sb.WriteString("\tdatabases=string,string,...  optional, list of databases to update, by default all databases will be updated (env REFRESH_DATABASES)\n")

	return sb.String()
}

// splitDatabases strips all whitespace and splits on commas. Input that is
// empty after stripping yields no list; otherwise empty entries are kept.
func splitDatabases(value string) []string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)

	if stripped == "" {
		return nil
	}

	return strings.Split(stripped, ",")
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
