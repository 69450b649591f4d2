package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
	"github.com/jmylchreest/boatimg/pkg/listing"
)

// ListingFetcher renders the listing page, resolves the main image and
// captures the image's original bytes from the browser. It implements the
// fetcher.Fetcher interface.
type ListingFetcher struct {
	launcher *Launcher
	resolver *listing.Resolver
}

// NewListingFetcher creates a Mode A fetcher.
func NewListingFetcher(launcher *Launcher, resolver *listing.Resolver) *ListingFetcher {
	return &ListingFetcher{launcher: launcher, resolver: resolver}
}

// Fetch runs one browser session for sourceURL, which must be a listing URL.
func (f *ListingFetcher) Fetch(ctx context.Context, sourceURL string) fetcher.Outcome {
	// Fail before paying for a browser.
	if _, err := listing.ExtractID(sourceURL); err != nil {
		return fetcher.Failed(fetcher.TierRender, fetcher.KindMalformedURL, err)
	}

	s, err := f.launcher.Launch(ctx)
	if err != nil {
		return fetcher.Failed(fetcher.TierRender, fetcher.KindOf(err, fetcher.KindBrowserError), err)
	}
	defer s.Close()

	imageURL, err := f.resolver.Resolve(ctx, s, sourceURL)
	if err != nil {
		if errors.Is(err, fetcher.ErrNoImageFound) {
			if challenge := f.challenge(ctx, s); challenge != "" {
				logger.Warn("challenge page detected", "url", sourceURL, "type", challenge)
				err = fmt.Errorf("%w: challenge page detected (%s)", fetcher.ErrBrowser, challenge)
			}
		}
		return fetcher.Failed(fetcher.TierRender, fetcher.KindOf(err, fetcher.KindBrowserError), err)
	}

	doc, err := s.Capture(ctx, imageURL)
	if err != nil {
		return fetcher.Failed(fetcher.TierRender, fetcher.KindOf(err, fetcher.KindBrowserError), err)
	}
	logger.Debug("image document captured",
		"url", imageURL,
		"status", doc.Status,
		"mime", doc.MimeType,
		"size", len(doc.Body))

	return imageOutcome(fetcher.TierRender, imageURL, doc, f.launcher.config.MaxBytes)
}

// Type returns the fetcher type.
func (f *ListingFetcher) Type() string {
	return string(fetcher.TierRender)
}

func (f *ListingFetcher) challenge(ctx context.Context, s *Session) string {
	html, err := s.HTML(ctx)
	if err != nil {
		logger.Debug("could not read page for challenge detection", "error", err)
		return ""
	}
	return DetectChallenge(html)
}

// imageOutcome validates a captured image document.
func imageOutcome(tier fetcher.Tier, sourceURL string, doc *Document, maxBytes int) fetcher.Outcome {
	if doc.Status < 200 || doc.Status > 299 {
		return fetcher.Failed(tier, fetcher.KindHTTPError, fmt.Errorf("HTTP %d", doc.Status))
	}
	format, kind, err := fetcher.CheckBody(doc.Body, maxBytes)
	if err != nil {
		return fetcher.Failed(tier, kind, err)
	}
	return fetcher.Succeeded(tier, sourceURL, doc.Body, fetcher.ContentTypeFor(doc.MimeType, format))
}

// ScreenshotFetcher loads the source URL without its query and fragment
// and returns a full-page JPEG screenshot. It implements the
// fetcher.Fetcher interface.
type ScreenshotFetcher struct {
	launcher *Launcher
}

// NewScreenshotFetcher creates a Mode B fetcher.
func NewScreenshotFetcher(launcher *Launcher) *ScreenshotFetcher {
	return &ScreenshotFetcher{launcher: launcher}
}

// Fetch screenshots sourceURL after the network goes idle.
func (f *ScreenshotFetcher) Fetch(ctx context.Context, sourceURL string) fetcher.Outcome {
	target, err := StripURL(sourceURL)
	if err != nil {
		return fetcher.Failed(fetcher.TierScreenshot, fetcher.KindMalformedURL, err)
	}

	s, err := f.launcher.Launch(ctx)
	if err != nil {
		return fetcher.Failed(fetcher.TierScreenshot, fetcher.KindOf(err, fetcher.KindBrowserError), err)
	}
	defer s.Close()

	doc, err := s.Open(ctx, target)
	if err != nil {
		return fetcher.Failed(fetcher.TierScreenshot, fetcher.KindOf(err, fetcher.KindBrowserError), err)
	}
	if doc.Status >= 400 {
		return fetcher.Failed(fetcher.TierScreenshot, fetcher.KindHTTPError, fmt.Errorf("HTTP %d", doc.Status))
	}

	shot, err := s.Screenshot(ctx)
	if err != nil {
		return fetcher.Failed(fetcher.TierScreenshot, fetcher.KindOf(err, fetcher.KindBrowserError), err)
	}
	logger.Debug("screenshot captured", "url", target, "size", len(shot))

	return imageOutcome(fetcher.TierScreenshot, target, &Document{
		URL:      target,
		Status:   200,
		MimeType: "image/jpeg",
		Body:     shot,
	}, f.launcher.config.MaxBytes)
}

// Type returns the fetcher type.
func (f *ScreenshotFetcher) Type() string {
	return string(fetcher.TierScreenshot)
}

// StripURL removes the query string and fragment from an absolute http(s)
// URL.
func StripURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fetcher.ErrMalformedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not an absolute http(s) URL: %q", fetcher.ErrMalformedURL, raw)
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
