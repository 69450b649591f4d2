// Package acquire sequences the acquisition tiers for a single image
// request: a cheap direct fetch first, then an optional browser fallback.
package acquire

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
)

// DefaultSiteHost is the domain source URLs must belong to.
const DefaultSiteHost = "boats.com"

// Request is a single image acquisition request.
type Request struct {
	URL string `json:"url"`
}

// Options configures tier sequencing.
type Options struct {
	SiteHost                string
	EnableRenderingFallback bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		SiteHost:                DefaultSiteHost,
		EnableRenderingFallback: true,
	}
}

// Acquirer runs the direct tier and, when it fails, the fallback tier.
// It is safe for concurrent use if its fetchers are.
type Acquirer struct {
	direct   fetcher.Fetcher
	fallback fetcher.Fetcher
	opts     Options
}

// New creates an Acquirer. fallback may be nil, which disables the
// fallback tier regardless of opts.
func New(direct, fallback fetcher.Fetcher, opts Options) *Acquirer {
	if opts.SiteHost == "" {
		opts.SiteHost = DefaultSiteHost
	}
	return &Acquirer{direct: direct, fallback: fallback, opts: opts}
}

// Acquire returns the outcome of the first tier that succeeds, or the most
// specific failure. Outcomes produced by the tiers are returned unchanged.
func (a *Acquirer) Acquire(ctx context.Context, req Request) fetcher.Outcome {
	req.URL = strings.TrimSpace(req.URL)
	log := logger.With("acquisition", uuid.NewString(), "url", req.URL)
	start := time.Now()

	if err := a.Validate(req.URL); err != nil {
		log.Info("request rejected", "error", err)
		return fetcher.Failed("", fetcher.KindInvalidRequest, err)
	}

	out := a.direct.Fetch(ctx, req.URL)
	if out.Success {
		log.Info("image acquired",
			"tier", out.Tier,
			"content_type", out.ContentType,
			"size", humanize.IBytes(uint64(out.Size)),
			"elapsed", time.Since(start))
		return out
	}
	log.Warn("direct fetch failed", "kind", out.Kind, "error", out.Err, "elapsed", time.Since(start))

	if !a.opts.EnableRenderingFallback || a.fallback == nil {
		return out
	}

	fallbackStart := time.Now()
	log.Debug("trying fallback tier", "tier", a.fallback.Type())
	out = a.fallback.Fetch(ctx, req.URL)
	if out.Success {
		log.Info("image acquired",
			"tier", out.Tier,
			"content_type", out.ContentType,
			"size", humanize.IBytes(uint64(out.Size)),
			"elapsed", time.Since(start),
			"fallback_elapsed", time.Since(fallbackStart))
		return out
	}

	log.Error("image acquisition failed",
		"tier", a.fallback.Type(),
		"kind", out.Kind,
		"error", out.Err,
		"elapsed", time.Since(start))
	return out
}

// Validate checks that sourceURL is an absolute http(s) URL on the site
// host or one of its subdomains.
func (a *Acquirer) Validate(sourceURL string) error {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return fmt.Errorf("%w: URL is required", fetcher.ErrInvalidRequest)
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return fmt.Errorf("%w: %v", fetcher.ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", fetcher.ErrInvalidRequest, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	site := strings.ToLower(a.opts.SiteHost)
	if host != site && !strings.HasSuffix(host, "."+site) {
		return fmt.Errorf("%w: URL must be on %s", fetcher.ErrInvalidRequest, a.opts.SiteHost)
	}
	return nil
}
