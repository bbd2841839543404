package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// option ties a configuration key to its environment variable and flag usage.
type option struct {
	Key    string
	EnvVar string
	Usage  string
}

var options = []option{
	{KeyServer, "COUCHDB_SERVER", "couchdb server url with port"},
	{KeyUser, "COUCHDB_USER", "couchdb user"},
	{KeyPassword, "COUCHDB_PASSWORD", "couchdb password"},
	{KeyDaemon, "REFRESH_DAEMON", "run in daemon mode"},
	{KeyDaemonDelaySec, "REFRESH_DAEMON_DELAY_SEC", "delay between runs in daemon mode, default 600"},
	{KeyDatabases, "REFRESH_DATABASES", "comma separated list of databases to update, default all"},
}

// Runtime holds process settings that are not part of the run configuration.
type Runtime struct {
	LogLevel  string
	LogFormat string

	RequestTimeout time.Duration

	// Optional integrations, empty disables
	NatsURL    string
	HealthPort string
}

// RegisterFlags adds one string flag per configuration key. Values are kept
// as raw strings so Resolve applies the same parsing to every source.
func RegisterFlags(flags *pflag.FlagSet) {
	for _, o := range options {
		flags.String(o.Key, "", o.Usage)
	}
	flags.Lookup(KeyDaemon).NoOptDefVal = "true"
}

// Load merges .env files, environment variables, flags and positional
// key=value arguments (later sources win) and resolves the result.
func Load(log *logrus.Logger, flags *pflag.FlagSet, args []string) (*RunConfig, *Runtime, error) {
	loadEnvFile(log)

	raw, err := gather(flags, args)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := Resolve(raw)
	if err != nil {
		return nil, nil, err
	}

	rt, err := LoadRuntime()
	if err != nil {
		return nil, nil, err
	}

	return cfg, rt, nil
}

// LoadRuntime reads process settings from the environment.
func LoadRuntime() (*Runtime, error) {
	rt := &Runtime{
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:  getEnvOrDefault("LOG_FORMAT", "text"),
		NatsURL:    os.Getenv("NATS_URL"),
		HealthPort: os.Getenv("HEALTH_PORT"),
	}

	timeoutStr := getEnvOrDefault("REQUEST_TIMEOUT", "60s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	rt.RequestTimeout = timeout

	if err := rt.Validate(); err != nil {
		return nil, err
	}

	return rt, nil
}

// Validate checks the runtime settings.
func (r *Runtime) Validate() error {
	if r.RequestTimeout < 1*time.Second {
		return fmt.Errorf("REQUEST_TIMEOUT must be at least 1 second")
	}

	switch r.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", r.LogFormat)
	}

	return nil
}

func loadEnvFile(log *logrus.Logger) {
	// Try multiple .env locations
	envPaths := []string{
		".env",
		"../.env",
		"/app/.env", // Docker
	}

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Infof("Loaded config from: %s", path)
			return
		}
	}

	log.Debug("No .env file found, using environment variables")
}

// gather collects every supplied key. Unset keys are left out of the map so
// Resolve can tell absent from empty.
func gather(flags *pflag.FlagSet, args []string) (map[string]string, error) {
	v := viper.New()

	for _, o := range options {
		if err := v.BindEnv(o.Key, o.EnvVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", o.EnvVar, err)
		}
		if flags == nil {
			continue
		}
		if f := flags.Lookup(o.Key); f != nil {
			if err := v.BindPFlag(o.Key, f); err != nil {
				return nil, fmt.Errorf("bind --%s: %w", o.Key, err)
			}
		}
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, invalid("argument %q is not key=value", arg)
		}
		o, found := lookupOption(key)
		if !found {
			return nil, invalid("unknown option %q", key)
		}
		v.Set(o.Key, value)
	}

	raw := make(map[string]string)
	for _, o := range options {
		if v.IsSet(o.Key) {
			raw[o.Key] = v.GetString(o.Key)
		}
	}

	return raw, nil
}

func lookupOption(key string) (option, bool) {
	for _, o := range options {
		if strings.EqualFold(o.Key, strings.TrimSpace(key)) {
			return o, true
		}
	}
	return option{}, false
}

// Helper function for defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
