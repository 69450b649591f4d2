// Package listing resolves a boat listing URL to the URL of its main image.
//
// The resolver never fetches image bytes. It renders the canonical listing
// page through a Page, scans the loaded <img> elements and picks the largest.
package listing

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
)

// DefaultURLTemplate is the canonical listing-detail URL; %s is the listing id.
const DefaultURLTemplate = "https://www.boats.com/boats-for-sale/?boat=%s"

// DefaultMinWidth filters icons and thumbnails.
const DefaultMinWidth = 300

// DefaultImageHost is the hostname image sources must belong to.
const DefaultImageHost = "boats.com"

// listingIDPattern matches a trailing /<digits>/<slug> path segment.
var listingIDPattern = regexp.MustCompile(`/(\d+)/[^/]+$`)

// ScanScript runs in the rendered page and returns every loaded image.
// Filtering and ranking happen in Go so they can be tested without a browser.
const ScanScript = `
(() => Array.from(document.querySelectorAll('img'))
    .filter(img => img.complete && img.naturalWidth > 0)
    .map(img => ({
        url: img.currentSrc || img.src || '',
        width: img.naturalWidth,
        height: img.naturalHeight
    })))()
`

// Candidate is an image element discovered on a rendered page.
type Candidate struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Area returns the candidate's pixel area.
func (c Candidate) Area() int {
	return c.Width * c.Height
}

// Page is the page-load primitive provided by the rendering fetcher.
type Page interface {
	// Load navigates to url and waits for the page to settle.
	Load(ctx context.Context, url string) error

	// Evaluate runs script in the loaded page and decodes the result into out.
	Evaluate(ctx context.Context, script string, out any) error
}

// Config holds configuration for the resolver.
type Config struct {
	URLTemplate string
	MinWidth    int
	ImageHost   string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URLTemplate: DefaultURLTemplate,
		MinWidth:    DefaultMinWidth,
		ImageHost:   DefaultImageHost,
	}
}

// Resolver derives canonical listing URLs and picks the listing image.
type Resolver struct {
	config Config
}

// NewResolver creates a resolver, filling unset fields from DefaultConfig.
func NewResolver(cfg Config) *Resolver {
	def := DefaultConfig()
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = def.URLTemplate
	}
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = def.MinWidth
	}
	if cfg.ImageHost == "" {
		cfg.ImageHost = def.ImageHost
	}
	return &Resolver{config: cfg}
}

// ExtractID parses the numeric listing identifier from a listing URL path.
func ExtractID(listingURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(listingURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", fetcher.ErrMalformedURL, err)
	}
	path := strings.TrimRight(u.Path, "/")
	m := listingIDPattern.FindStringSubmatch(path)
	if m == nil {
		return "", fmt.Errorf("%w: no /<id>/<slug> segment in %q", fetcher.ErrMalformedURL, listingURL)
	}
	return m[1], nil
}

// CanonicalURL substitutes the listing id into the URL template.
func (r *Resolver) CanonicalURL(id string) string {
	return fmt.Sprintf(r.config.URLTemplate, url.QueryEscape(id))
}

// Resolve renders the canonical listing page and returns the URL of the
// largest qualifying image.
func (r *Resolver) Resolve(ctx context.Context, page Page, listingURL string) (string, error) {
	id, err := ExtractID(listingURL)
	if err != nil {
		return "", err
	}

	canonical := r.CanonicalURL(id)
	logger.Debug("resolving listing image", "listing_id", id, "url", canonical)

	if err := page.Load(ctx, canonical); err != nil {
		return "", err
	}

	var candidates []Candidate
	if err := page.Evaluate(ctx, ScanScript, &candidates); err != nil {
		return "", fmt.Errorf("%w: image scan failed: %v", fetcher.ErrBrowser, err)
	}

	best, ok := SelectLargest(candidates, r.config.MinWidth, r.config.ImageHost)
	if !ok {
		logger.Debug("no qualifying listing image", "listing_id", id, "scanned", len(candidates))
		return "", fmt.Errorf("%w: listing %s (%d images scanned)", fetcher.ErrNoImageFound, id, len(candidates))
	}

	logger.Debug("listing image selected",
		"listing_id", id,
		"image", best.URL,
		"width", best.Width,
		"height", best.Height,
		"scanned", len(candidates))
	return best.URL, nil
}

// SelectLargest keeps candidates wider than minWidth whose URL belongs to
// imageHost, and returns the one with the largest area. Ties go to the
// candidate encountered first.
func SelectLargest(candidates []Candidate, minWidth int, imageHost string) (Candidate, bool) {
	var kept []Candidate
	for _, c := range candidates {
		if c.Width <= minWidth {
			continue
		}
		if !BelongsTo(c.URL, imageHost) {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return Candidate{}, false
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Area() > kept[j].Area()
	})
	return kept[0], true
}

// BelongsTo reports whether rawURL is an http(s) URL on host or one of its
// subdomains.
func BelongsTo(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	host = strings.ToLower(strings.TrimPrefix(host, "."))
	if h == "" || host == "" {
		return false
	}
	return h == host || strings.HasSuffix(h, "."+host)
}
