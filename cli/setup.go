package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/yllada/travel-router/common"
	"github.com/yllada/travel-router/config"
)

// Setup loads the configuration and starts logging. An empty path selects
// the default location for the current user.
func Setup(configPath string, verbose bool) (*config.Config, error) {
	if configPath == "" {
		configPath = common.DefaultConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := common.ParseLogLevel(cfg.Log.Level)
	var console io.Writer
	if verbose {
		level = common.LevelDebug
		console = os.Stderr
	}
	if err := common.InitLogger(common.LogConfig{
		Level:      level,
		EnableFile: true,
		Dir:        cfg.Log.Dir,
		Console:    console,
		MaxSizeMB:  5,
		MaxBackups: 5,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	common.LogDebug("Loaded configuration from %s", configPath)
	return cfg, nil
}
