package cli

import (
	"fmt"
	"os"

	"github.com/gridconnect/gridconnect/internal/api"
	"github.com/gridconnect/gridconnect/internal/config"
	"github.com/gridconnect/gridconnect/internal/progress"
)

// loadConfig reads the config file and applies environment and flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.Merge(config.Overrides{
		Token:       token,
		TokenFile:   tokenFile,
		APIBaseURL:  apiBaseURL,
		WorkspaceID: workspaceID,
		ModelID:     modelID,
		ChunkSizeMB: chunkSizeMB,
		Concurrency: concurrency,
		DatabaseDSN: dsn,
	})
	return cfg, nil
}

// getAPIClient loads configuration, checks that it names a workspace and model,
// and creates an API client.
func getAPIClient() (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateForModel(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, cfg, nil
}

// showProgress reports whether bars should be drawn on stderr.
func showProgress() bool {
	return !noProgress && progress.IsTerminal(os.Stderr)
}
