package commands

import (
	"github.com/spf13/viper"

	"github.com/jmylchreest/boatimg/internal/config"
	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/pkg/acquire"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
	"github.com/jmylchreest/boatimg/pkg/listing"
	"github.com/jmylchreest/boatimg/pkg/render"
)

// loadConfig validates the merged configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Options{
		Debug: cfg.Debug,
		Quiet: cfg.Quiet,
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})
	logger.Debug("config loaded",
		"file", viper.ConfigFileUsed(),
		"fallback", cfg.Fallback,
		"max_bytes", cfg.MaxBytes)
	return cfg, nil
}

// buildAcquirer wires the tiers selected by cfg.
func buildAcquirer(cfg *config.Config) *acquire.Acquirer {
	direct := fetcher.NewDirect(cfg.DirectFetcherConfig())

	var fallback fetcher.Fetcher
	if cfg.Fallback != config.FallbackNone {
		rc := cfg.RenderSessionConfig()
		if rc.ChromePath == "" {
			rc.ChromePath = render.FindChromePath()
		}
		launcher := render.NewLauncher(rc)

		switch cfg.Fallback {
		case config.FallbackScreenshot:
			fallback = render.NewScreenshotFetcher(launcher)
		default:
			fallback = render.NewListingFetcher(launcher, listing.NewResolver(cfg.ListingConfig()))
		}
	}

	logger.Debug("acquisition pipeline built",
		"direct", direct.Type(),
		"fallback", cfg.Fallback)
	return acquire.New(direct, fallback, cfg.AcquireOptions())
}
