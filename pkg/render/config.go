// Package render implements the browser-backed acquisition tier.
//
// Every acquisition gets its own headless Chrome driven over the DevTools
// protocol with chromedp. Mode A renders the listing page, picks the main
// image and captures its original bytes. Mode B screenshots the source URL.
package render

import (
	"time"

	"github.com/jmylchreest/boatimg/pkg/fetcher"
)

// Config holds configuration for rendering sessions.
type Config struct {
	ChromePath        string // empty means chromedp's own lookup
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration // bound on each navigation and idle wait
	MaxBytes          int
	ScreenshotQuality int // JPEG quality for Mode B
	MaxSessions       int // concurrent browsers per Launcher
	Headless          bool
	Profile           Profile
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:         fetcher.DefaultUserAgent,
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		NavigationTimeout: 30 * time.Second,
		MaxBytes:          fetcher.DefaultMaxBytes,
		ScreenshotQuality: 92,
		MaxSessions:       2,
		Headless:          true,
		Profile:           StealthProfile(),
	}
}

// withDefaults fills unset numeric and string fields. Headless is left as
// given.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = def.ViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = def.ViewportHeight
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = def.NavigationTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = def.MaxBytes
	}
	if c.ScreenshotQuality <= 0 || c.ScreenshotQuality > 100 {
		c.ScreenshotQuality = def.ScreenshotQuality
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = def.MaxSessions
	}
	if c.Profile.Name == "" {
		c.Profile = def.Profile
	}
	return c
}
