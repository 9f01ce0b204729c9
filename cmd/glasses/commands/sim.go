package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-glasses/pkg/cloud"
)

var (
	simAddr         string
	simFrames       int
	simTranscript   string
	simFunctionCall string
	simSilence      time.Duration
	simAccessLog    bool
)

var simCmd = &cobra.Command{
	Use:   "backend-sim",
	Short: "Serve a scripted dialogue backend",
	Long: `Serve the device protocol on /ws without a real ASR or TTS backend.

Every utterance of --frames audio frames is answered with an asr message
carrying --transcript, an optional function_call, and the user's own audio
echoed back as the spoken reply. The REST API under /api/sessions lists
devices and injects messages or disconnects to exercise recovery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		cc := cfg.Sim.Cloud
		if cmd.Flags().Changed("frames") {
			cc.UtteranceFrames = simFrames
		}
		if simTranscript != "" {
			cc.Transcript = simTranscript
		}
		if simFunctionCall != "" {
			cc.FunctionCall = simFunctionCall
		}
		if simSilence > 0 {
			cc.SilenceTimeout = simSilence
		}
		if cc.Token == "" {
			cc.Token = cfg.Server.Token
		}
		addr := cfg.Sim.Addr
		if simAddr != "" {
			addr = simAddr
		}

		hub, err := cloud.NewHub(cc, log)
		if err != nil {
			return err
		}

		app := fiber.New(fiber.Config{
			AppName:               "glasses-backend-sim",
			DisableStartupMessage: true,
		})
		app.Use(recover.New())
		app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Content-Type,Authorization",
		}))
		if simAccessLog {
			app.Use(logger.New())
		}

		hub.RegisterRoutes(app)
		hub.RegisterAPIRoutes(app.Group("/api"))
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":   "ok",
				"version":  Version,
				"sessions": hub.SessionCount(),
			})
		})

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = app.ShutdownWithContext(shutdownCtx)
		}()

		log.Info("backend simulator listening",
			"addr", addr,
			"ws", "/ws",
			"utterance_frames", cc.UtteranceFrames,
		)
		return app.Listen(addr)
	},
}

func init() {
	simCmd.Flags().StringVar(&simAddr, "addr", "", "listen address (default from config, :8000)")
	simCmd.Flags().IntVar(&simFrames, "frames", 0, "audio frames per utterance")
	simCmd.Flags().StringVar(&simTranscript, "transcript", "", "asr text for every utterance")
	simCmd.Flags().StringVar(&simFunctionCall, "function-call", "", "function_call name attached to every reply")
	simCmd.Flags().DurationVar(&simSilence, "silence-timeout", 0, "send vad no_speech after this much silence")
	simCmd.Flags().BoolVar(&simAccessLog, "access-log", false, "log every HTTP request")
	rootCmd.AddCommand(simCmd)
}
