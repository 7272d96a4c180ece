package config

import (
	"fmt"

	"github.com/tigerroll/recordbatch/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local", "s3", "gcs").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to credentials file (e.g., service account key for GCS).
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
	Endpoint        string `yaml:"endpoint"`         // Endpoint of an S3-compatible service or a GCS emulator.
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	Region          string `yaml:"region"`
	UseSSL          bool   `yaml:"use_ssl"`
	ProjectID       string `yaml:"project_id"`
}

// DatasourcesConfig holds a map of named storage configurations.
type DatasourcesConfig map[string]StorageConfig

// Decode extracts the named connection from the raw "storage" configuration section.
func Decode(raw map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	namedConfig, ok := raw[name]
	if !ok {
		return cfg, fmt.Errorf("storage configuration for name '%s' not found", name)
	}
	props, ok := namedConfig.(map[string]interface{})
	if !ok {
		return cfg, fmt.Errorf("invalid storage configuration format for '%s': expected a mapping", name)
	}
	if err := configbinder.BindProperties(props, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return cfg, nil
}
