// Package fetcher defines the outcome type shared by every acquisition tier
// and the direct (non-browser) image fetcher.
//
// Implement the Fetcher interface to add another tier. A tier never returns
// an error out of band: every failure is captured in the Outcome it returns.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jmylchreest/boatimg/pkg/signature"
)

// DefaultMaxBytes is the image size ceiling (5 MiB).
const DefaultMaxBytes = 5 << 20

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher is one acquisition tier.
type Fetcher interface {
	// Fetch retrieves image bytes for a URL.
	Fetch(ctx context.Context, url string) Outcome

	// Type returns a string identifying the tier (e.g., "direct", "render").
	Type() string
}

// Tier names the stage that produced an outcome.
type Tier string

const (
	TierNone       Tier = ""
	TierDirect     Tier = "direct"
	TierRender     Tier = "render"
	TierScreenshot Tier = "screenshot"
)

// Kind classifies a failed outcome.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindMalformedURL   Kind = "malformed_url"
	KindNoImageFound   Kind = "no_image_found"
	KindHTTPError      Kind = "http_error"
	KindTooLarge       Kind = "too_large"
	KindInvalidFormat  Kind = "invalid_format"
	KindTimeout        Kind = "timeout"
	KindBrowserError   Kind = "browser_error"
)

// Error types for distinguishing failure reasons.
// Check with errors.Is(outcome.Err, fetcher.ErrTooLarge).
var (
	// ErrInvalidRequest indicates a missing, unparseable or off-domain URL.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedURL indicates no listing identifier could be parsed.
	ErrMalformedURL = errors.New("malformed listing URL")
	// ErrNoImageFound indicates the rendered listing had no qualifying image.
	ErrNoImageFound = errors.New("no image found")
	// ErrHTTP indicates a non-success upstream status or transport failure.
	ErrHTTP = errors.New("http error")
	// ErrTooLarge indicates the body exceeded the size ceiling.
	ErrTooLarge = errors.New("image too large")
	// ErrInvalidFormat indicates the body is not a recognised image.
	ErrInvalidFormat = errors.New("invalid image format")
	// ErrTimeout indicates a fetch or navigation exceeded its bound.
	ErrTimeout = errors.New("timeout")
	// ErrBrowser indicates a browser launch or automation failure.
	ErrBrowser = errors.New("browser error")
)

var kindErrors = map[Kind]error{
	KindInvalidRequest: ErrInvalidRequest,
	KindMalformedURL:   ErrMalformedURL,
	KindNoImageFound:   ErrNoImageFound,
	KindHTTPError:      ErrHTTP,
	KindTooLarge:       ErrTooLarge,
	KindInvalidFormat:  ErrInvalidFormat,
	KindTimeout:        ErrTimeout,
	KindBrowserError:   ErrBrowser,
}

// Err returns the sentinel error for the kind.
func (k Kind) Err() error {
	if err, ok := kindErrors[k]; ok {
		return err
	}
	return ErrBrowser
}

// KindOf maps an error back to its kind. Unknown errors classify as
// timeouts when they carry a deadline, otherwise as fallback.
func KindOf(err error, fallback Kind) Kind {
	for k, sentinel := range kindErrors {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	if IsTimeout(err) {
		return KindTimeout
	}
	return fallback
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Outcome is the result of one tier. Exactly one branch is populated:
// Bytes/ContentType/Size on success, Kind/Err on failure.
type Outcome struct {
	Success     bool
	Bytes       []byte
	ContentType string
	Size        int
	Width       int // best effort, 0 if the header could not be decoded
	Height      int
	SourceURL   string
	Tier        Tier
	Kind        Kind
	Err         error
}

// Succeeded builds a successful outcome.
func Succeeded(tier Tier, sourceURL string, body []byte, contentType string) Outcome {
	o := Outcome{
		Success:     true,
		Bytes:       body,
		ContentType: contentType,
		Size:        len(body),
		SourceURL:   sourceURL,
		Tier:        tier,
	}
	if w, h, err := signature.Dimensions(body); err == nil {
		o.Width, o.Height = w, h
	}
	return o
}

// Failed builds a failed outcome. The error is wrapped with the kind's
// sentinel so errors.Is works on Outcome.Err.
func Failed(tier Tier, kind Kind, err error) Outcome {
	sentinel := kind.Err()
	switch {
	case err == nil:
		err = sentinel
	case !errors.Is(err, sentinel):
		err = fmt.Errorf("%w: %v", sentinel, err)
	}
	return Outcome{
		Tier: tier,
		Kind: kind,
		Err:  err,
	}
}

// Message returns a human-readable description of a failed outcome.
func (o Outcome) Message() string {
	if o.Success {
		return ""
	}
	if o.Err == nil {
		return string(o.Kind)
	}
	return o.Err.Error()
}

// CheckBody applies the size ceiling and signature validation to a body and
// returns the detected format.
func CheckBody(body []byte, maxBytes int) (signature.Format, Kind, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(body) == 0 {
		return "", KindInvalidFormat, fmt.Errorf("%w: empty body", ErrInvalidFormat)
	}
	if len(body) > maxBytes {
		return "", KindTooLarge, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	format, ok := signature.Detect(body)
	if !ok {
		return "", KindInvalidFormat, ErrInvalidFormat
	}
	return format, "", nil
}
