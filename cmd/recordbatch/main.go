package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/recordbatch/internal/app"
	config "github.com/tigerroll/recordbatch/pkg/batch/core/config"
	model "github.com/tigerroll/recordbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// embeddedConfig is the default configuration, used when RECORDBATCH_CONFIG is not set.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// loadConfigBytes returns the file named by RECORDBATCH_CONFIG, or the embedded default.
func loadConfigBytes() (config.EmbeddedConfig, error) {
	path := os.Getenv("RECORDBATCH_CONFIG")
	if path == "" {
		return embeddedConfig, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file '%s': %w", path, err)
	}
	logger.Infof("Using configuration file '%s'.", path)
	return data, nil
}

// main runs one extraction and exits 1 when the run did not reach DONE.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling for graceful shutdown (e.g., Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping after the current record...", sig)
		cancel()
	}()

	// Get the path to the .env file from environment variables. Use ".env" as default if not set.
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	raw, err := loadConfigBytes()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	summary, err := app.RunApplication(ctx, app.Options{
		EnvFilePath:    envFilePath,
		EmbeddedConfig: raw,
		Adapters:       app.AdapterOptions(os.Getenv("DB_ADAPTERS"), os.Getenv("STORAGE_ADAPTERS")),
	})
	if summary != nil {
		fmt.Fprintln(os.Stdout, summary.String())
	}
	if err != nil {
		logger.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
	if summary == nil || summary.FinalState != model.StateDone {
		os.Exit(1)
	}
}
