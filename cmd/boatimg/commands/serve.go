package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/boatimg/internal/api"
	"github.com/jmylchreest/boatimg/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the image HTTP service",
	Long: `Serve listing images over HTTP.

Endpoints:
  POST /api/image   {"url": "<listing or image URL>"}  ->  {"success": true, "image": "data:..."}
  POST /api         same as /api/image
  GET  /health      liveness and version`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.Duration("request-timeout", 0, "per-request timeout (default from config, 120s)")
	flags.Int("max-sessions", 0, "maximum concurrent browser sessions (default from config, 2)")

	_ = viper.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = viper.BindPFlag("server.request_timeout", flags.Lookup("request-timeout"))
	_ = viper.BindPFlag("render.max_sessions", flags.Lookup("max-sessions"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logError("%v", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	handler := api.NewRouter(buildAcquirer(cfg), api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	logger.Info("boatimg service configured",
		"addr", cfg.Server.Addr,
		"fallback", cfg.Fallback,
		"max_sessions", cfg.Render.MaxSessions)

	if err := api.Serve(ctx, cfg.Server.Addr, handler, cfg.Server.RequestTimeout); err != nil {
		logger.Error("server failed", "error", err)
		return err
	}
	return nil
}
