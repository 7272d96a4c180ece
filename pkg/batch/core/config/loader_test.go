package config_test

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

const sampleYAML = `
recordbatch:
  source:
    kind: remote
    remote:
      storage_ref: msd
      bucket: ${TEST_SOURCE_BUCKET}
      prefix: data/
  pipeline:
    batch_size: 500
  output:
    storage_ref: out
    format: csv
  storage:
    msd:
      type: s3
      endpoint: localhost:9000
    out:
      type: local
      base_dir: /tmp/out
  system:
    logging:
      level: DEBUG
`

func TestLoadConfig_LayersDefaultsYAMLAndEnv(t *testing.T) {
	t.Setenv("TEST_SOURCE_BUCKET", "millionsong")
	t.Setenv("RECORDBATCH_PIPELINE_WORKERS", "4")
	t.Setenv("RECORDBATCH_SOURCE_LOCAL_EXTENSIONS", ".h5, .hdf5")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	rb := cfg.RecordBatch
	assert.Equal(t, "remote", rb.Source.Kind)
	assert.Equal(t, "millionsong", rb.Source.Remote.Bucket)
	assert.Equal(t, "data/", rb.Source.Remote.Prefix)
	// page_size is not in the YAML, so the default survives.
	assert.Equal(t, 1000, rb.Source.Remote.PageSize)
	assert.Equal(t, 500, rb.Pipeline.BatchSize)
	assert.Equal(t, 4, rb.Pipeline.Workers)
	assert.Equal(t, int64(-1), rb.Pipeline.ResumeFrom)
	assert.Equal(t, []string{".h5", ".hdf5"}, rb.Source.Local.Extensions)
	assert.Equal(t, "csv", rb.Output.Format)
	assert.Equal(t, "DEBUG", rb.System.Logging.Level)
	assert.Contains(t, rb.Storage, "msd")
	assert.Contains(t, rb.Storage, "out")

	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	t.Setenv("RECORDBATCH_PIPELINE_BATCH_SIZE", "many")

	_, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("recordbatch: [unclosed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func validConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.RecordBatch.Storage["output"] = map[string]interface{}{"type": "local"}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.RecordBatch.Pipeline.BatchSize = 0
	cfg.RecordBatch.Pipeline.Workers = 0
	cfg.RecordBatch.Decode.OnFailure = "ignore"
	cfg.RecordBatch.Output.Format = "avro"
	cfg.RecordBatch.Skip.Limit = -2
	cfg.RecordBatch.Retry.RetryableErrors = []string{"NoSuchErrorType"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 6)
	for _, e := range merr.Errors {
		assert.True(t, exception.IsFatal(e))
	}
}

func TestValidate_Source(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown kind", func(c *config.Config) { c.RecordBatch.Source.Kind = "ftp" }},
		{"remote without bucket", func(c *config.Config) {
			c.RecordBatch.Source.Kind = "remote"
			c.RecordBatch.Storage["remote"] = map[string]interface{}{"type": "s3"}
		}},
		{"remote with undefined storage", func(c *config.Config) {
			c.RecordBatch.Source.Kind = "remote"
			c.RecordBatch.Source.Remote.Bucket = "b"
		}},
		{"negative max records", func(c *config.Config) { c.RecordBatch.Source.MaxRecords = -5 }},
		{"bad field kind", func(c *config.Config) {
			c.RecordBatch.Decode.Fields = []config.FieldConfig{{Group: "metadata/songs", Name: "title", Kind: "complex"}}
		}},
		{"database cursor without connection", func(c *config.Config) {
			c.RecordBatch.Cursor.Store = "database"
			c.RecordBatch.Cursor.DatabaseRef = "cursordb"
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrConfiguration))
		})
	}
}
