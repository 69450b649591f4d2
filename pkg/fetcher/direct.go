package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/pkg/signature"
)

// DirectConfig holds configuration for the direct fetcher.
type DirectConfig struct {
	UserAgent string
	Referer   string
	Timeout   time.Duration
	MaxBytes  int
	Headers   map[string]string // extra request headers, applied last
}

// DefaultDirectConfig returns sensible defaults.
func DefaultDirectConfig() DirectConfig {
	return DirectConfig{
		UserAgent: DefaultUserAgent,
		Referer:   "https://www.boats.com/",
		Timeout:   20 * time.Second,
		MaxBytes:  DefaultMaxBytes,
	}
}

// browserHeaders mimic what Chrome sends for an image request.
var browserHeaders = map[string]string{
	"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Accept-Encoding": "gzip, deflate, br",
	"Sec-Fetch-Dest":  "image",
	"Sec-Fetch-Mode":  "no-cors",
	"Sec-Fetch-Site":  "same-site",
}

// DirectFetcher issues a single GET with spoofed browser headers using Colly.
// It implements the Fetcher interface.
type DirectFetcher struct {
	config DirectConfig
}

// NewDirect creates a new direct fetcher.
func NewDirect(cfg DirectConfig) *DirectFetcher {
	def := DefaultDirectConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &DirectFetcher{config: cfg}
}

// Fetch performs exactly one request. There is no retry.
func (f *DirectFetcher) Fetch(ctx context.Context, targetURL string) Outcome {
	logger.Debug("direct fetch starting", "url", targetURL)

	// Create a new collector for each request; one byte over the ceiling is
	// enough to detect an oversized body.
	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.MaxBodySize(f.config.MaxBytes+1),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.config.Timeout)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range browserHeaders {
			r.Headers.Set(k, v)
		}
		if f.config.Referer != "" {
			r.Headers.Set("Referer", f.config.Referer)
		}
		for k, v := range f.config.Headers {
			r.Headers.Set(k, v)
		}
	})

	var (
		resp     *colly.Response
		fetchErr error
		status   int
	)

	c.OnResponse(func(r *colly.Response) {
		resp = r
		status = r.StatusCode
		logger.Debug("direct fetch response received",
			"status", r.StatusCode,
			"content_type", r.Headers.Get("Content-Type"),
			"body_size", len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
		logger.Debug("direct fetch error", "status", status, "error", err)
	})

	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = err
	}

	if fetchErr != nil {
		switch {
		case IsTimeout(fetchErr):
			return Failed(TierDirect, KindTimeout, fetchErr)
		case status != 0:
			return Failed(TierDirect, KindHTTPError, fmt.Errorf("HTTP %d", status))
		default:
			return Failed(TierDirect, KindHTTPError, fetchErr)
		}
	}
	if resp == nil {
		return Failed(TierDirect, KindHTTPError, fmt.Errorf("no response"))
	}
	if status < 200 || status > 299 {
		return Failed(TierDirect, KindHTTPError, fmt.Errorf("HTTP %d", status))
	}

	body, err := decodeBody(resp, f.config.MaxBytes)
	if err != nil {
		return Failed(TierDirect, KindOf(err, KindHTTPError), err)
	}

	format, kind, err := CheckBody(body, f.config.MaxBytes)
	if err != nil {
		logger.Debug("direct fetch rejected body", "url", targetURL, "kind", kind, "error", err)
		return Failed(TierDirect, kind, err)
	}

	ct := ContentTypeFor(resp.Headers.Get("Content-Type"), format)
	logger.Debug("direct fetch complete", "url", targetURL, "content_type", ct, "size", len(body))
	return Succeeded(TierDirect, targetURL, body, ct)
}

// Type returns the fetcher type.
func (f *DirectFetcher) Type() string {
	return string(TierDirect)
}

// decodeBody undoes brotli content encoding; gzip is already handled by
// Colly's HTTP backend.
func decodeBody(r *colly.Response, maxBytes int) ([]byte, error) {
	if !strings.EqualFold(strings.TrimSpace(r.Headers.Get("Content-Encoding")), "br") {
		return r.Body, nil
	}
	// Already plain image bytes: the backend decoded it for us.
	if signature.Validate(r.Body) {
		return r.Body, nil
	}
	reader := brotli.NewReader(bytes.NewReader(r.Body))
	decoded, err := io.ReadAll(io.LimitReader(reader, int64(maxBytes)+1))
	if err != nil {
		// The compressed stream was cut at the body ceiling, so a decode
		// failure means the image is over it.
		if len(r.Body) > maxBytes {
			return nil, fmt.Errorf("%w: compressed body exceeds %d bytes", ErrTooLarge, maxBytes)
		}
		return nil, fmt.Errorf("failed to decode brotli body: %w", err)
	}
	logger.Debug("decoded brotli body", "compressed", len(r.Body), "decoded", len(decoded))
	return decoded, nil
}

// ContentTypeFor prefers a declared image/* media type and otherwise falls
// back to the type implied by the detected signature.
func ContentTypeFor(declared string, format signature.Format) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	return format.ContentType()
}
