// Package config loads and validates boatimg configuration from flags,
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jmylchreest/boatimg/pkg/acquire"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
	"github.com/jmylchreest/boatimg/pkg/listing"
	"github.com/jmylchreest/boatimg/pkg/render"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// BOATIMG_SERVER_ADDR.
const EnvPrefix = "BOATIMG"

// Fallback tiers.
const (
	FallbackRender     = "render"
	FallbackScreenshot = "screenshot"
	FallbackNone       = "none"
)

// Config is the complete application configuration.
type Config struct {
	Debug    bool   `mapstructure:"debug"`
	Quiet    bool   `mapstructure:"quiet"`
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogJSON  bool   `mapstructure:"log_json"`
	Fallback string `mapstructure:"fallback" validate:"oneof=render screenshot none"`
	MaxSize  string `mapstructure:"max_size" validate:"required"`

	Site   SiteConfig   `mapstructure:"site"`
	Direct DirectConfig `mapstructure:"direct"`
	Render RenderConfig `mapstructure:"render"`
	Server ServerConfig `mapstructure:"server"`

	// MaxBytes is MaxSize parsed; set by Load.
	MaxBytes int `mapstructure:"-"`
}

// SiteConfig describes the listing site.
type SiteConfig struct {
	Host               string `mapstructure:"host" validate:"required,hostname"`
	Referer            string `mapstructure:"referer" validate:"omitempty,url"`
	ListingURLTemplate string `mapstructure:"listing_url_template" validate:"required,contains=%s"`
	MinImageWidth      int    `mapstructure:"min_image_width" validate:"gte=0"`
}

// DirectConfig configures the direct tier.
type DirectConfig struct {
	UserAgent string        `mapstructure:"user_agent" validate:"required"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// RenderConfig configures browser sessions.
type RenderConfig struct {
	ChromePath        string        `mapstructure:"chrome_path"`
	Profile           string        `mapstructure:"profile" validate:"oneof=stealth basic"`
	Headless          bool          `mapstructure:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
	ScreenshotQuality int           `mapstructure:"screenshot_quality" validate:"gte=1,lte=100"`
	MaxSessions       int           `mapstructure:"max_sessions" validate:"gte=1"`
	ViewportWidth     int           `mapstructure:"viewport_width" validate:"gte=320"`
	ViewportHeight    int           `mapstructure:"viewport_height" validate:"gte=240"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" validate:"min=1"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log_level", "")
	v.SetDefault("log_json", false)
	v.SetDefault("fallback", FallbackRender)
	v.SetDefault("max_size", "5MiB")

	v.SetDefault("site.host", acquire.DefaultSiteHost)
	v.SetDefault("site.referer", "https://www.boats.com/")
	v.SetDefault("site.listing_url_template", listing.DefaultURLTemplate)
	v.SetDefault("site.min_image_width", listing.DefaultMinWidth)

	v.SetDefault("direct.user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("direct.timeout", "20s")

	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.profile", "stealth")
	v.SetDefault("render.headless", true)
	v.SetDefault("render.navigation_timeout", "30s")
	v.SetDefault("render.screenshot_quality", 92)
	v.SetDefault("render.max_sessions", 2)
	v.SetDefault("render.viewport_width", 1920)
	v.SetDefault("render.viewport_height", 1080)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.allowed_origins", []string{"*"})
}

// Bind registers defaults on v and maps nested keys to BOATIMG_*
// environment variables, e.g. render.max_sessions to
// BOATIMG_RENDER_MAX_SESSIONS.
func Bind(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and resolves MaxBytes.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s %s", configKey(e.Namespace()), formatValidationError(e)))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	size, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return fmt.Errorf("invalid config: max_size: %w", err)
	}
	if size == 0 || size > 64<<20 {
		return fmt.Errorf("invalid config: max_size must be between 1B and 64MiB, got %s", c.MaxSize)
	}
	c.MaxBytes = int(size)
	return nil
}

// DirectFetcherConfig returns the direct tier configuration.
func (c *Config) DirectFetcherConfig() fetcher.DirectConfig {
	return fetcher.DirectConfig{
		UserAgent: c.Direct.UserAgent,
		Referer:   c.Site.Referer,
		Timeout:   c.Direct.Timeout,
		MaxBytes:  c.MaxBytes,
	}
}

// ListingConfig returns the listing resolver configuration.
func (c *Config) ListingConfig() listing.Config {
	return listing.Config{
		URLTemplate: c.Site.ListingURLTemplate,
		MinWidth:    c.Site.MinImageWidth,
		ImageHost:   c.Site.Host,
	}
}

// RenderSessionConfig returns the browser session configuration.
func (c *Config) RenderSessionConfig() render.Config {
	profile, _ := render.ProfileByName(c.Render.Profile)
	return render.Config{
		ChromePath:        c.Render.ChromePath,
		UserAgent:         c.Direct.UserAgent,
		ViewportWidth:     c.Render.ViewportWidth,
		ViewportHeight:    c.Render.ViewportHeight,
		NavigationTimeout: c.Render.NavigationTimeout,
		MaxBytes:          c.MaxBytes,
		ScreenshotQuality: c.Render.ScreenshotQuality,
		MaxSessions:       c.Render.MaxSessions,
		Headless:          c.Render.Headless,
		Profile:           profile,
	}
}

// AcquireOptions returns the orchestrator options.
func (c *Config) AcquireOptions() acquire.Options {
	return acquire.Options{
		SiteHost:                c.Site.Host,
		EnableRenderingFallback: c.Fallback != FallbackNone,
	}
}

// newValidator reports fields by their config key rather than Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// configKey turns a validator namespace such as "Config.render.max_sessions"
// into the config key "render.max_sessions".
func configKey(namespace string) string {
	if _, key, ok := strings.Cut(namespace, "."); ok {
		return key
	}
	return namespace
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "hostname":
		return "must be a valid hostname"
	case "contains":
		return fmt.Sprintf("must contain %q", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
