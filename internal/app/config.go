package app

import (
	"context"

	"github.com/oshokin/http-fetcher/internal/config"
	"github.com/oshokin/http-fetcher/internal/logger"
)

// ExecuteConfigInitCommand writes the default configuration file.
func ExecuteConfigInitCommand(ctx context.Context, configFile string, overwrite bool) {
	if configFile == "" {
		configFile = config.DefaultConfigFilename
	}

	if err := config.WriteDefaultConfig(configFile, overwrite); err != nil {
		logger.Fatalf(ctx, "Failed to write configuration: %v", err)
	}

	logger.Infof(ctx, "Default configuration written to %s", configFile)
}

// ExecuteConfigSetCommand updates a single key in the configuration file.
// The resulting file must still pass validation.
func ExecuteConfigSetCommand(ctx context.Context, configFile, key, value string) {
	if configFile == "" {
		configFile = config.DefaultConfigFilename
	}

	if err := config.SetValue(configFile, key, value); err != nil {
		logger.Fatalf(ctx, "Failed to update configuration: %v", err)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.Fatalf(ctx, "Failed to reload configuration: %v", err)
	}

	if err = config.ValidateConfig(cfg); err != nil {
		logger.Warnf(ctx, "Configuration saved but is invalid: %v", err)

		return
	}

	logger.Infof(ctx, "Set %s in %s", key, configFile)
}
