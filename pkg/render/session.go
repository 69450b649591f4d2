package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/boatimg/internal/logger"
	"github.com/jmylchreest/boatimg/pkg/fetcher"
)

// Page lifecycle events used as network-quiescence signals.
const (
	// no network connections for 500ms
	lifecycleNetworkIdle = "networkIdle"
	// at most two network connections for 500ms
	lifecycleNetworkAlmostIdle = "networkAlmostIdle"
)

// Document is the main-frame response observed during a navigation.
type Document struct {
	URL      string
	Status   int
	MimeType string
	Body     []byte // only filled by Capture
}

// Session is one browser process with a single tab. It implements
// listing.Page. A session is not safe for concurrent use; Close must be
// called when done.
type Session struct {
	config     Config
	browserCtx context.Context
	frameID    cdp.FrameID
	cancel     context.CancelFunc
	release    func()
	started    bool // the browser was allocated by the first Run
	closeOnce  sync.Once
}

// NewSession launches a browser configured by cfg. The browser is killed
// when ctx is done or Close is called.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	logger.Debug("chromedp starting browser",
		"profile", cfg.Profile.Name,
		"headless", cfg.Headless,
		"chrome", cfg.ChromePath)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, cfg.Profile.AllocatorOptions(cfg)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	s := &Session{
		config:     cfg,
		browserCtx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
	}

	// The first Run allocates the browser and binds it to the context it is
	// given, so it runs without a timeout.
	if err := chromedp.Run(browserCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: failed to start browser: %v", fetcher.ErrBrowser, err)
	}
	s.started = true
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		s.frameID = cdp.FrameID(c.Target.TargetID)
	}

	stepCtx, done := s.step(ctx)
	defer done()
	if err := chromedp.Run(stepCtx,
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		cfg.Profile.Prepare(cfg),
	); err != nil {
		_ = s.Close()
		return nil, classify(stepCtx, "browser setup", err)
	}
	return s, nil
}

// Load navigates to url and waits until the network is almost idle.
func (s *Session) Load(ctx context.Context, url string) error {
	doc, err := s.navigate(ctx, url, lifecycleNetworkAlmostIdle, false)
	if err != nil {
		return err
	}
	logger.Debug("page loaded", "url", url, "status", doc.Status)
	return nil
}

// Evaluate runs script in the current page and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	stepCtx, done := s.step(ctx)
	defer done()
	if err := chromedp.Run(stepCtx, chromedp.Evaluate(script, out)); err != nil {
		return classify(stepCtx, "evaluate", err)
	}
	return nil
}

// Capture navigates to url, waits for network idle and returns the main
// document response including its original body bytes.
func (s *Session) Capture(ctx context.Context, url string) (*Document, error) {
	return s.navigate(ctx, url, lifecycleNetworkIdle, true)
}

// Open navigates to url and waits for network idle without reading the body.
func (s *Session) Open(ctx context.Context, url string) (*Document, error) {
	return s.navigate(ctx, url, lifecycleNetworkIdle, false)
}

// HTML returns the current page's serialized DOM.
func (s *Session) HTML(ctx context.Context) (string, error) {
	stepCtx, done := s.step(ctx)
	defer done()
	var html string
	if err := chromedp.Run(stepCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classify(stepCtx, "read page html", err)
	}
	return html, nil
}

// Screenshot captures the full page as a JPEG at the configured quality.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	stepCtx, done := s.step(ctx)
	defer done()
	var buf []byte
	if err := chromedp.Run(stepCtx, chromedp.FullScreenshot(&buf, s.config.ScreenshotQuality)); err != nil {
		return nil, classify(stepCtx, "screenshot", err)
	}
	return buf, nil
}

// Close shuts the browser down and releases the session's slot. It is safe
// to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// chromedp.Cancel waits on the allocation signal, which a browser
		// that never started only delivers once.
		if s.started {
			err = chromedp.Cancel(s.browserCtx)
		}
		s.cancel()
		if s.release != nil {
			s.release()
		}
		logger.Debug("chromedp browser closed", "error", err)
	})
	return err
}

func (s *Session) navigate(ctx context.Context, url, until string, withBody bool) (*Document, error) {
	stepCtx, done := s.step(ctx)
	defer done()

	var (
		mu        sync.Mutex
		doc       *Document
		requestID network.RequestID
		loaderID  cdp.LoaderID
		idleOnce  sync.Once
	)
	idle := make(chan struct{})

	listenCtx, stopListening := context.WithCancel(stepCtx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if doc != nil || e.Type != network.ResourceTypeDocument || e.Response == nil {
				return
			}
			if s.frameID != "" && e.FrameID != s.frameID {
				return
			}
			doc = &Document{
				URL:      e.Response.URL,
				Status:   int(e.Response.Status),
				MimeType: e.Response.MimeType,
			}
			requestID = e.RequestID
			loaderID = e.LoaderID
		case *page.EventLifecycleEvent:
			if doc != nil && e.LoaderID == loaderID && e.Name == until {
				idleOnce.Do(func() { close(idle) })
			}
		}
	})

	logger.Debug("chromedp navigating", "url", url, "wait_for", until)
	if err := chromedp.Run(stepCtx, chromedp.Navigate(url)); err != nil {
		return nil, classify(stepCtx, "navigation to "+url, err)
	}

	select {
	case <-idle:
	case <-stepCtx.Done():
		return nil, fmt.Errorf("%w: %s did not reach %s within %s",
			fetcher.ErrTimeout, url, until, s.config.NavigationTimeout)
	}

	mu.Lock()
	result := *doc
	id := requestID
	mu.Unlock()

	if withBody {
		err := chromedp.Run(stepCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			body, err := network.GetResponseBody(id).Do(ctx)
			if err != nil {
				return err
			}
			result.Body = body
			return nil
		}))
		if err != nil {
			return nil, classify(stepCtx, "read response body", err)
		}
	}
	return &result, nil
}

// step derives a context bounded by the navigation timeout and by ctx.
func (s *Session) step(ctx context.Context) (context.Context, context.CancelFunc) {
	stepCtx, cancel := context.WithTimeout(s.browserCtx, s.config.NavigationTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return stepCtx, func() {
		stop()
		cancel()
	}
}

// classify maps a chromedp error to a tier failure.
func classify(stepCtx context.Context, what string, err error) error {
	if stepCtx.Err() != nil || fetcher.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %v", fetcher.ErrTimeout, what, err)
	}
	return fmt.Errorf("%w: %s: %v", fetcher.ErrBrowser, what, err)
}

// Launcher starts sessions while bounding how many browsers run at once.
type Launcher struct {
	config Config
	slots  *semaphore.Weighted
}

// NewLauncher creates a launcher, filling unset fields from DefaultConfig.
func NewLauncher(cfg Config) *Launcher {
	cfg = cfg.withDefaults()
	return &Launcher{
		config: cfg,
		slots:  semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}
}

// Launch waits for a free slot and starts a session. The slot is released
// by Session.Close.
func (l *Launcher) Launch(ctx context.Context) (*Session, error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a browser slot: %v", fetcher.ErrTimeout, err)
	}
	s, err := NewSession(ctx, l.config)
	if err != nil {
		l.slots.Release(1)
		return nil, err
	}
	s.release = func() { l.slots.Release(1) }
	return s, nil
}
