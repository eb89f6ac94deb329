package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup. Every malformed value is
// reported, not just the first.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func applyDefaults(cfg *Config) error {
	return loadStruct(reflect.ValueOf(cfg).Elem(), func(string) string { return "" })
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadStruct fills tagged fields of v, descending into nested sections.
// Tags: env (variable), envAlt (fallback variable), default, required and
// unit ("bytes" accepts KB/MB/GB suffixes).
func loadStruct(v reflect.Value, getenv func(string) string) error {
	var errs []error
	t := v.Type()

	for i := range t.NumField() {
		sf := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv, getenv); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw := strings.TrimSpace(getenv(name))
		if raw == "" {
			if alt := sf.Tag.Get("envAlt"); alt != "" {
				raw = strings.TrimSpace(getenv(alt))
			}
		}
		if raw == "" {
			if sf.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("required environment variable %s is not set", name))
				continue
			}
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}

		if err := setField(fv, raw, sf.Tag.Get("unit")); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", name, raw, err))
		}
	}
	return errors.Join(errs...)
}

func setField(field reflect.Value, value, unit string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case unit == "bytes":
		n, err := parseByteSize(value)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Int, field.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		field.Set(reflect.ValueOf(splitList(value)))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var byteUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// parseByteSize reads "20971520", "20MB" or "512 KB". Units are binary.
func parseByteSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	mult := int64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	return n * mult, nil
}

// problems collects validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

// Validate checks that the configuration is usable and describes every
// failure at once.
func (c *Config) Validate() error {
	var p problems

	switch strings.ToLower(c.Store.Driver) {
	case DriverPostgres:
		p.check(c.Store.URL != "", "DATABASE_URL is required when STORE_DRIVER is postgres")
		p.check(c.Store.MaxConns > 0, "DB_MAX_CONNS must be positive")
		p.check(c.Store.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
		p.check(c.Store.MaxConns >= c.Store.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Store.MaxConns, c.Store.MinConns)
	case DriverSQLite:
		p.check(c.Store.SQLitePath != "", "SQLITE_PATH is required when STORE_DRIVER is sqlite")
	case DriverMemory:
	default:
		p.check(false, "STORE_DRIVER (%q) must be one of: postgres, sqlite, memory", c.Store.Driver)
	}

	p.check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	p.check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	p.check(c.Import.MaxFileSize > 0, "IMPORT_MAX_FILE_SIZE must be positive")
	p.check(c.Import.MaxConcurrent > 0, "IMPORT_MAX_CONCURRENT must be positive")
	p.check(c.Import.BatchSize > 0, "IMPORT_BATCH_SIZE must be positive")
	p.check(c.Import.Timeout > 0, "IMPORT_TIMEOUT must be positive")

	if c.Rate.Enabled {
		p.check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		p.check(c.Rate.ImportLimit > 0, "RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}

	p.check(!c.Security.RequireAPIKey || len(c.Security.APIKeys) > 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")

	p.check(!c.Annotator.Enabled || c.Annotator.Timeout > 0, "ANNOTATOR_TIMEOUT must be positive")

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		p.check(false, "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

// String renders the config for logging with the database URL and API
// keys masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Store: {Driver: %q, URL: [MASKED], SQLitePath: %q, MaxConns: %d, MinConns: %d}, ",
		c.Store.Driver, c.Store.SQLitePath, c.Store.MaxConns, c.Store.MinConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxConcurrent: %d, BatchSize: %d}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.BatchSize)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d [MASKED]}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Annotator: {Active: %v, APIKey: [MASKED], Model: %q}, ", c.Annotator.Active(), c.Annotator.Model)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}}", c.Logging.Level, c.Logging.Format)
	return b.String()
}
