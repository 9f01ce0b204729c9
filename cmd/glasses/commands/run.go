package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-glasses/internal/config"
	"github.com/teslashibe/go-glasses/pkg/app"
	"github.com/teslashibe/go-glasses/pkg/audio"
	"github.com/teslashibe/go-glasses/pkg/chatbot"
	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/intent"
	"github.com/teslashibe/go-glasses/pkg/transport"
	"github.com/teslashibe/go-glasses/pkg/web"
)

var (
	runServerURL string
	runNoWeb     bool
	runWebAddr   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the voice dialogue engine",
	Long: `Run the dialogue engine against the configured backend.

The engine is restarted after fatal errors such as exhausted reconnects.
A diagnostics server exposes the state machine on --web-addr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if runServerURL != "" {
			cfg.Server.URL = runServerURL
		}
		if runWebAddr != "" {
			cfg.Web.Addr = runWebAddr
		}
		if runNoWeb {
			cfg.Web.Enabled = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runEngine(ctx, cfg, logger)
	},
}

func init() {
	runCmd.Flags().StringVar(&runServerURL, "server-url", "", "backend WebSocket URL (overrides config)")
	runCmd.Flags().StringVar(&runWebAddr, "web-addr", "", "diagnostics server address")
	runCmd.Flags().BoolVar(&runNoWeb, "no-web", false, "disable the diagnostics server")
	rootCmd.AddCommand(runCmd)
}

// newEngineFactory builds a fresh audio engine, transport and dialogue
// engine for each supervisor generation.
func newEngineFactory(cfg config.Config, logger *slog.Logger) app.Factory {
	router := intent.NewLoggingRouter(logger)

	return func(opts ...chatbot.Option) (app.Engine, error) {
		drv, err := audio.NewDriver(cfg.Audio, logger)
		if err != nil {
			return nil, err
		}
		ae, err := audio.New(cfg.Audio, drv, audio.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		topts := append(cfg.TransportOptions(), transport.WithLogger(logger))
		tr, err := transport.NewWebSocket(topts...)
		if err != nil {
			return nil, err
		}

		opts = append(opts,
			chatbot.WithLogger(logger),
			chatbot.WithDispatcher(router),
			chatbot.WithErrorHandler(func(err error) {
				logger.Warn("dialogue error", "error", err)
			}),
		)
		eng, err := chatbot.New(cfg.ChatbotConfig(), ae, tr, opts...)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}
}

func runEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// srv is assigned before the supervisor runs
	var srv *web.Server
	observe := func(from, to dialogue.State, ev dialogue.Event) {
		if srv != nil {
			srv.ObserveTransition(from, to, ev)
		}
	}

	sup, err := app.NewSupervisor(newEngineFactory(cfg, logger),
		app.WithLogger(logger),
		app.WithObserver(observe),
	)
	if err != nil {
		return err
	}

	if cfg.Web.Enabled {
		srv = web.NewServer(cfg.Web.Addr, sup, logger)
		srv.StartAsync(ctx)
	}

	logger.Info("starting dialogue engine",
		"server", cfg.ServerURL(),
		"device_id", cfg.Server.DeviceID,
		"protocol_version", cfg.Server.ProtocolVersion,
	)
	return sup.Run(ctx)
}
