package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Service       ServiceConfig
	Query         QueryConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type QueryConfig struct {
	// MemoryLimit is the default memory specification applied when the
	// caller does not set one: a percentage of total system memory or
	// an absolute byte quantity.
	MemoryLimit string
	Parallel    bool
	WorkerCap   int
	// Table is the SQL name the resolved file set is bound under.
	Table string
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

// Enabled reports whether s3:// patterns can be served.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := defaults()
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "FLOCKQL_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_MEMORY_LIMIT", &cfg.Query.MemoryLimit); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FLOCKQL_PARALLEL", &cfg.Query.Parallel); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "FLOCKQL_WORKER_CAP", &cfg.Query.WorkerCap); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_TABLE", &cfg.Query.Table); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FLOCKQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "FLOCKQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "FLOCKQL_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "FLOCKQL_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if strings.TrimSpace(cfg.Query.MemoryLimit) == "" {
		return Config{}, fmt.Errorf("default memory limit is required")
	}
	if strings.TrimSpace(cfg.Query.Table) == "" {
		return Config{}, fmt.Errorf("relation table name is required")
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{Name: "flockql"},
		Query: QueryConfig{
			MemoryLimit: "75%",
			Parallel:    true,
			WorkerCap:   16,
			Table:       "files",
		},
		ObjectStore: ObjectStoreConfig{
			Region: "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
