package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-glasses/internal/config"
	"github.com/teslashibe/go-glasses/internal/log"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "glasses",
	Short: "Voice conversation engine for smart glasses",
	Long: `glasses - the on-device voice dialogue engine.

It streams microphone audio to a dialogue backend over WebSocket, plays the
spoken reply, and dispatches the backend's function calls.

Examples:
  # Run against the backend from system_para.conf in the working directory
  glasses run

  # Develop without a backend or hardware
  glasses backend-sim &
  GLASSES_AUDIO_BACKEND=mock glasses run --server-url ws://localhost:8000/ws

  # Check the microphone and speaker
  glasses audio-test --duration 3s --output /tmp/rec.pcm`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or system_para.conf)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

// loadConfig loads the configuration and initializes logging from it. Flags
// win over the file and environment.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, log.Init(cfg.Log.Level, cfg.Log.Format), nil
}
