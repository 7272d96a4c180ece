package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

// Package config provides utilities for loading and managing application configuration
// from various sources, including YAML files and environment variables.

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	Expander       EnvironmentExpander `optional:"true"`
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig loads configuration in four layers: defaults, YAML (after ${VAR} expansion),
// .env and finally RECORDBATCH_* environment variables.
func loadConfig(envFilePath string, raw EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	expanded, err := expander.Expand(raw)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to expand environment variables in config", err, false, false)
	}

	cfg := NewConfig()

	// Unmarshalling onto the defaults keeps every value the YAML does not mention.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewConfigurationError("failed to unmarshal config: %v", err)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewConfigurationError("failed to load config from environment variables: %v", err)
	}
	if cfg.RecordBatch.Storage == nil {
		cfg.RecordBatch.Storage = map[string]interface{}{}
	}
	if cfg.RecordBatch.Database == nil {
		cfg.RecordBatch.Database = map[string]interface{}{}
	}
	return cfg, nil
}

// NewConfigProvider is an Fx provider that loads, validates and provides *Config.
// It also sets the global logger level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.RecordBatch.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.RecordBatch.System.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from raw YAML, the .env file and environment variables.
// The result is not validated.
func LoadConfig(envFilePath string, raw EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, raw, nil)
}

// Validate checks the configuration before any I/O happens.
// Every problem found is reported as a ConfigurationError, aggregated with multierror.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...interface{}) {
		result = multierror.Append(result, exception.NewConfigurationError(format, args...))
	}
	rb := &c.RecordBatch

	switch rb.Source.Kind {
	case SourceKindLocal:
		if rb.Source.Local.Root == "" {
			add("source.local.root must be set for a local source")
		}
	case SourceKindRemote:
		if rb.Source.Remote.Bucket == "" {
			add("source.remote.bucket must be set for a remote source")
		}
		if _, ok := rb.Storage[rb.Source.Remote.StorageRef]; !ok {
			add("source.remote.storage_ref '%s' is not defined under storage", rb.Source.Remote.StorageRef)
		}
		if rb.Source.Remote.PageSize <= 0 {
			add("source.remote.page_size must be positive, got %d", rb.Source.Remote.PageSize)
		}
	default:
		add("source.kind must be 'local' or 'remote', got '%s'", rb.Source.Kind)
	}
	if rb.Source.MaxRecords < 0 {
		add("source.max_records must not be negative, got %d", rb.Source.MaxRecords)
	}

	if rb.Pipeline.BatchSize <= 0 {
		add("pipeline.batch_size must be positive, got %d", rb.Pipeline.BatchSize)
	}
	if rb.Pipeline.Workers < 1 {
		add("pipeline.workers must be at least 1, got %d", rb.Pipeline.Workers)
	}
	if rb.Pipeline.ResumeFrom < -1 {
		add("pipeline.resume_from must be -1 or a position, got %d", rb.Pipeline.ResumeFrom)
	}

	if rb.Decode.OnFailure != OnFailureEmpty && rb.Decode.OnFailure != OnFailureSkip {
		add("decode.on_failure must be 'empty' or 'skip', got '%s'", rb.Decode.OnFailure)
	}
	for i, f := range rb.Decode.Fields {
		if f.Group == "" || f.Name == "" {
			add("decode.fields[%d] needs both group and name", i)
		}
		switch f.Kind {
		case "float", "double", "float64", "int", "int32", "int64", "integer", "string":
		default:
			add("decode.fields[%d] has unsupported kind '%s'", i, f.Kind)
		}
	}

	switch rb.Output.Format {
	case FormatParquet:
		switch strings.ToUpper(rb.Output.Compression) {
		case "SNAPPY", "GZIP", "NONE", "UNCOMPRESSED", "":
		default:
			add("output.compression must be SNAPPY, GZIP or NONE, got '%s'", rb.Output.Compression)
		}
	case FormatCSV:
	default:
		add("output.format must be 'parquet' or 'csv', got '%s'", rb.Output.Format)
	}
	if _, ok := rb.Storage[rb.Output.StorageRef]; !ok {
		add("output.storage_ref '%s' is not defined under storage", rb.Output.StorageRef)
	}
	if rb.Output.SpoolDir == "" {
		add("output.spool_dir must be set")
	}

	switch rb.Cursor.Store {
	case CursorStoreFile:
		if rb.Cursor.Path == "" {
			add("cursor.path must be set for the file cursor store")
		}
	case CursorStoreDatabase:
		if _, ok := rb.Database[rb.Cursor.DatabaseRef]; !ok {
			add("cursor.database_ref '%s' is not defined under database", rb.Cursor.DatabaseRef)
		}
	case CursorStoreNone:
	default:
		add("cursor.store must be 'file', 'database' or 'none', got '%s'", rb.Cursor.Store)
	}

	for name, rc := range map[string]RetryConfig{
		"enumeration": rb.Retry.Enumeration,
		"fetch":       rb.Retry.Fetch,
		"sink":        rb.Retry.Sink,
	} {
		if rc.MaxAttempts < 1 {
			add("retry.%s.max_attempts must be at least 1, got %d", name, rc.MaxAttempts)
		}
		if rc.InitialInterval < 0 || rc.MaxInterval < 0 {
			add("retry.%s intervals must not be negative", name)
		}
	}
	if err := checkErrorTypes(rb.Retry.RetryableErrors, "retry.retryable_errors"); err != nil {
		result = multierror.Append(result, err)
	}

	if rb.Skip.Limit < -1 {
		add("skip.limit must be -1 (unlimited) or a non-negative count, got %d", rb.Skip.Limit)
	}
	if err := checkErrorTypes(rb.Skip.SkippableErrors, "skip.skippable_errors"); err != nil {
		result = multierror.Append(result, err)
	}

	switch rb.Metrics.Backend {
	case "prometheus", "otel", "none", "":
	default:
		add("metrics.backend must be 'prometheus', 'otel' or 'none', got '%s'", rb.Metrics.Backend)
	}

	if _, err := logger.ParseLevel(rb.System.Logging.Level); err != nil {
		add("system.logging.level: %v", err)
	}

	return result.ErrorOrNil()
}

// checkErrorTypes validates that all error type names in the provided list
// are registered in the exception registry.
func checkErrorTypes(names []string, key string) error {
	for _, name := range names {
		if !exception.IsErrorTypeRegistered(name) {
			return exception.NewConfigurationError("%s references unknown error type '%s'", key, name)
		}
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name, so
// recordbatch.pipeline.batch_size is overridden by RECORDBATCH_PIPELINE_BATCH_SIZE.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, bool and comma separated string slices.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
