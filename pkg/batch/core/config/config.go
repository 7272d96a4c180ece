package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelTrace  LogLevel = "TRACE"
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

const (
	SourceKindLocal  = "local"
	SourceKindRemote = "remote"

	OnFailureEmpty = "empty"
	OnFailureSkip  = "skip"

	FormatParquet = "parquet"
	FormatCSV     = "csv"

	CursorStoreFile     = "file"
	CursorStoreDatabase = "database"
	CursorStoreNone     = "none"
)

// LocalSourceConfig configures enumeration of a local directory tree.
type LocalSourceConfig struct {
	// Root is the directory that is walked.
	Root string `yaml:"root"`
	// Extensions filters files by suffix (e.g., ".h5"). Empty accepts every regular file.
	Extensions []string `yaml:"extensions"`
	// Sort buffers the whole listing and sorts it lexically before emitting refs.
	Sort bool `yaml:"sort"`
}

// RemoteSourceConfig configures enumeration of an object-store bucket.
type RemoteSourceConfig struct {
	// StorageRef names the connection under recordbatch.storage.
	StorageRef string `yaml:"storage_ref"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	// PageSize is the maximum number of keys requested per listing page.
	PageSize int `yaml:"page_size"`
}

// SourceConfig selects and configures the record source.
type SourceConfig struct {
	// Kind is "local" or "remote".
	Kind   string             `yaml:"kind"`
	Local  LocalSourceConfig  `yaml:"local"`
	Remote RemoteSourceConfig `yaml:"remote"`
	// PartitionPrefix narrows enumeration to paths or keys below this prefix.
	PartitionPrefix string `yaml:"partition_prefix"`
	// MaxRecords caps the number of records enumerated. 0 means no cap.
	MaxRecords int64 `yaml:"max_records"`
	// BufferSize is the capacity of the channel between the local walker and the consumer.
	BufferSize int `yaml:"buffer_size"`
}

// PipelineConfig holds settings for the driver loop.
type PipelineConfig struct {
	// BatchSize is the number of rows per flushed artifact.
	BatchSize int `yaml:"batch_size"`
	// Workers is the number of concurrent fetch-decode workers. 1 runs the sequential loop.
	Workers int `yaml:"workers"`
	// RunID identifies the run. Generated when empty.
	RunID string `yaml:"run_id"`
	// ResumeFrom forces the start position. -1 uses the stored cursor.
	ResumeFrom int64 `yaml:"resume_from"`
	// StagingDir holds transient copies of remote records. Empty uses the OS temp dir.
	StagingDir string `yaml:"staging_dir"`
	// FetchTimeoutSeconds bounds a single record transfer. 0 disables the timeout.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

// FieldConfig names one scalar field read from each record.
type FieldConfig struct {
	Group string `yaml:"group"`
	Name  string `yaml:"name"`
	// Kind is "float", "int" or "string".
	Kind string `yaml:"kind"`
}

// DecodeConfig configures record decoding.
type DecodeConfig struct {
	// Format selects the format reader ("hdf5").
	Format string `yaml:"format"`
	// OnFailure is "empty" (emit a null row) or "skip" (emit nothing).
	OnFailure string `yaml:"on_failure"`
	// Fields replaces the built-in field catalog when non-empty.
	Fields []FieldConfig `yaml:"fields"`
	// RecordIndex is the row of each table that is read.
	RecordIndex int `yaml:"record_index"`
}

// OutputConfig configures where and how batches are written.
type OutputConfig struct {
	// StorageRef names the connection under recordbatch.storage.
	StorageRef string `yaml:"storage_ref"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	// Format is "parquet" or "csv".
	Format string `yaml:"format"`
	// Compression is the parquet codec: SNAPPY, GZIP or NONE.
	Compression string `yaml:"compression"`
	// SpoolDir holds encoded artifacts before upload.
	SpoolDir string `yaml:"spool_dir"`
	// ParallelWriters is the parquet writer's page-encoding parallelism.
	ParallelWriters int64 `yaml:"parallel_writers"`
}

// CursorConfig configures progress cursor persistence.
type CursorConfig struct {
	// Store is "file", "database" or "none".
	Store string `yaml:"store"`
	// Path is the JSON cursor file (file store).
	Path string `yaml:"path"`
	// DatabaseRef names the connection under recordbatch.database (database store).
	DatabaseRef string `yaml:"database_ref"`
	// Reset discards any stored cursor at startup.
	Reset bool `yaml:"reset"`
}

// RetryConfig holds configuration for one retry policy.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`     // MaxAttempts is the maximum number of attempts, including the first.
	InitialInterval int     `yaml:"initial_interval"` // InitialInterval is the initial backoff interval in milliseconds.
	MaxInterval     int     `yaml:"max_interval"`     // MaxInterval is the maximum backoff interval in milliseconds.
	Factor          float64 `yaml:"factor"`           // Factor is the multiplier applied to the interval after each attempt.
}

// RetryPolicies holds the retry policy of each pipeline stage.
type RetryPolicies struct {
	Enumeration RetryConfig `yaml:"enumeration"`
	Fetch       RetryConfig `yaml:"fetch"`
	Sink        RetryConfig `yaml:"sink"`
	// RetryableErrors lists registered error type names that are always retried.
	RetryableErrors []string `yaml:"retryable_errors"`
}

// SkipConfig holds record skip configuration.
type SkipConfig struct {
	// Limit is the maximum number of skipped records. -1 is unlimited, 0 forbids skipping.
	Limit int `yaml:"limit"`
	// SkippableErrors lists registered error type names that may be skipped.
	SkippableErrors []string `yaml:"skippable_errors"`
}

// OTLPConfig configures an OTLP exporter.
type OTLPConfig struct {
	Endpoint string `yaml:"endpoint"`
	// Protocol is "grpc" or "http".
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

// MetricsConfig configures the metric recorder.
type MetricsConfig struct {
	// Backend is "prometheus", "otel" or "none".
	Backend string `yaml:"backend"`
	// TextfilePath is where the Prometheus registry is written at run end.
	TextfilePath string     `yaml:"textfile_path"`
	OTLP         OTLPConfig `yaml:"otlp"`
	// AsyncBufferSize moves recording off the pipeline goroutines when positive.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig configures the tracer.
type TracingConfig struct {
	Enabled     bool       `yaml:"enabled"`
	ServiceName string     `yaml:"service_name"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG", "TRACE").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// RecordBatchConfig holds all configuration under the "recordbatch" top-level key.
type RecordBatchConfig struct {
	Source   SourceConfig   `yaml:"source"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Decode   DecodeConfig   `yaml:"decode"`
	Output   OutputConfig   `yaml:"output"`
	Cursor   CursorConfig   `yaml:"cursor"`
	Retry    RetryPolicies  `yaml:"retry"`
	Skip     SkipConfig     `yaml:"skip"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	System   SystemConfig   `yaml:"system"`
	// Storage holds named storage connections, decoded by the storage adapters.
	Storage map[string]interface{} `yaml:"storage"`
	// Database holds named database connections, decoded by the database adapters.
	Database map[string]interface{} `yaml:"database"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	RecordBatch RecordBatchConfig `yaml:"recordbatch"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		RecordBatch: RecordBatchConfig{
			Source: SourceConfig{
				Kind:       SourceKindLocal,
				Local:      LocalSourceConfig{Root: ".", Extensions: []string{".h5"}},
				Remote:     RemoteSourceConfig{StorageRef: "remote", PageSize: 1000},
				BufferSize: 64,
			},
			Pipeline: PipelineConfig{
				BatchSize:           10000,
				Workers:             1,
				ResumeFrom:          -1,
				FetchTimeoutSeconds: 300,
			},
			Decode: DecodeConfig{
				Format:    "hdf5",
				OnFailure: OnFailureEmpty,
			},
			Output: OutputConfig{
				StorageRef:      "output",
				Prefix:          "rows",
				Format:          FormatParquet,
				Compression:     "SNAPPY",
				SpoolDir:        "spool",
				ParallelWriters: 4,
			},
			Cursor: CursorConfig{
				Store: CursorStoreFile,
				Path:  "recordbatch-cursor.json",
			},
			Retry: RetryPolicies{
				Enumeration: RetryConfig{MaxAttempts: 5, InitialInterval: 500, MaxInterval: 30000, Factor: 2.0},
				Fetch:       RetryConfig{MaxAttempts: 3, InitialInterval: 1000, MaxInterval: 10000, Factor: 2.0},
				Sink:        RetryConfig{MaxAttempts: 5, InitialInterval: 1000, MaxInterval: 60000, Factor: 2.0},
			},
			Skip: SkipConfig{Limit: -1},
			Metrics: MetricsConfig{
				Backend: "none",
			},
			Tracing: TracingConfig{
				ServiceName: "recordbatch",
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
			Storage:  map[string]interface{}{},
			Database: map[string]interface{}{},
		},
	}
}
