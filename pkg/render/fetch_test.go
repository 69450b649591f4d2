package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/boatimg/pkg/fetcher"
	"github.com/jmylchreest/boatimg/pkg/listing"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func fakePNG(size int) []byte {
	body := make([]byte, size)
	copy(body, pngMagic)
	return body
}

func TestStripURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://images.boats.com/resize/1/23/45/photo.jpg?w=800&h=600#x", "https://images.boats.com/resize/1/23/45/photo.jpg"},
		{"https://www.boats.com/boats/12345/name?", "https://www.boats.com/boats/12345/name"},
		{"http://boats.com/a.png", "http://boats.com/a.png"},
	}
	for _, tt := range tests {
		got, err := StripURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStripURL_Rejects(t *testing.T) {
	for _, in := range []string{"", "images.boats.com/a.jpg", "ftp://boats.com/a.jpg", "https://%zz"} {
		_, err := StripURL(in)
		assert.ErrorIs(t, err, fetcher.ErrMalformedURL, in)
	}
}

func TestImageOutcome(t *testing.T) {
	const src = "https://images.boats.com/a.png"

	t.Run("success", func(t *testing.T) {
		body := fakePNG(2048)
		out := imageOutcome(fetcher.TierRender, src, &Document{Status: 200, MimeType: "image/png", Body: body}, fetcher.DefaultMaxBytes)
		require.True(t, out.Success, out.Message())
		assert.Equal(t, "image/png", out.ContentType)
		assert.Equal(t, len(body), out.Size)
		assert.Equal(t, fetcher.TierRender, out.Tier)
		assert.Equal(t, src, out.SourceURL)
	})

	t.Run("content type from signature", func(t *testing.T) {
		body := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)
		out := imageOutcome(fetcher.TierRender, src, &Document{Status: 200, MimeType: "text/html", Body: body}, fetcher.DefaultMaxBytes)
		require.True(t, out.Success, out.Message())
		assert.Equal(t, "image/jpeg", out.ContentType)
	})

	t.Run("http error", func(t *testing.T) {
		out := imageOutcome(fetcher.TierRender, src, &Document{Status: 403, Body: fakePNG(64)}, fetcher.DefaultMaxBytes)
		assert.False(t, out.Success)
		assert.Equal(t, fetcher.KindHTTPError, out.Kind)
		assert.Equal(t, "http error: HTTP 403", out.Message())
	})

	t.Run("one byte over the ceiling", func(t *testing.T) {
		out := imageOutcome(fetcher.TierRender, src, &Document{Status: 200, Body: fakePNG(fetcher.DefaultMaxBytes + 1)}, fetcher.DefaultMaxBytes)
		assert.False(t, out.Success)
		assert.Equal(t, fetcher.KindTooLarge, out.Kind)
		assert.ErrorIs(t, out.Err, fetcher.ErrTooLarge)
		assert.Nil(t, out.Bytes)
	})

	t.Run("challenge html", func(t *testing.T) {
		out := imageOutcome(fetcher.TierRender, src, &Document{Status: 200, Body: []byte("<html><title>Just a moment...</title></html>")}, fetcher.DefaultMaxBytes)
		assert.False(t, out.Success)
		assert.Equal(t, fetcher.KindInvalidFormat, out.Kind)
	})
}

func TestListingFetcher_MalformedURLSkipsBrowser(t *testing.T) {
	l := NewLauncher(Config{ChromePath: "/nonexistent/chrome", MaxSessions: 1})
	f := NewListingFetcher(l, listing.NewResolver(listing.DefaultConfig()))

	out := f.Fetch(context.Background(), "https://images.boats.com/photo.jpg")

	assert.False(t, out.Success)
	assert.Equal(t, fetcher.KindMalformedURL, out.Kind)
	assert.Equal(t, fetcher.TierRender, out.Tier)
	assert.True(t, l.slots.TryAcquire(1), "no browser slot should have been taken")
}

func TestScreenshotFetcher_MalformedURL(t *testing.T) {
	f := NewScreenshotFetcher(NewLauncher(Config{ChromePath: "/nonexistent/chrome"}))

	out := f.Fetch(context.Background(), "ftp://boats.com/a.jpg")

	assert.False(t, out.Success)
	assert.Equal(t, fetcher.KindMalformedURL, out.Kind)
	assert.Equal(t, "screenshot", f.Type())
}

func TestListingFetcher_LaunchFailure(t *testing.T) {
	l := NewLauncher(Config{ChromePath: "/nonexistent/chrome", MaxSessions: 1})
	f := NewListingFetcher(l, listing.NewResolver(listing.DefaultConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan fetcher.Outcome, 1)
	go func() {
		done <- f.Fetch(ctx, "https://www.boats.com/sailing-boats/2019-beneteau-oceanis-46.1/12345/some-boat-name")
	}()

	select {
	case out := <-done:
		assert.False(t, out.Success)
		assert.Equal(t, fetcher.KindBrowserError, out.Kind)
		assert.ErrorIs(t, out.Err, fetcher.ErrBrowser)
		assert.Equal(t, fetcher.TierRender, out.Tier)
	case <-time.After(15 * time.Second):
		t.Fatal("Fetch did not return after the browser failed to start")
	}
	assert.True(t, l.slots.TryAcquire(1), "browser slot should be released")
}

func TestScreenshotFetcher_LaunchFailure(t *testing.T) {
	l := NewLauncher(Config{ChromePath: "/nonexistent/chrome", MaxSessions: 1})
	f := NewScreenshotFetcher(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan fetcher.Outcome, 1)
	go func() {
		done <- f.Fetch(ctx, "https://images.boats.com/resize/1/23/45/photo.jpg?w=800")
	}()

	select {
	case out := <-done:
		assert.False(t, out.Success)
		assert.Equal(t, fetcher.KindBrowserError, out.Kind)
		assert.Equal(t, fetcher.TierScreenshot, out.Tier)
	case <-time.After(15 * time.Second):
		t.Fatal("Fetch did not return after the browser failed to start")
	}
	assert.True(t, l.slots.TryAcquire(1), "browser slot should be released")
}

func TestLauncher_WaitsForSlot(t *testing.T) {
	l := NewLauncher(Config{MaxSessions: 1})
	require.True(t, l.slots.TryAcquire(1))
	defer l.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s, err := l.Launch(ctx)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, fetcher.ErrTimeout), "got %v", err)
}

func TestListingFetcher_Type(t *testing.T) {
	f := NewListingFetcher(NewLauncher(DefaultConfig()), listing.NewResolver(listing.DefaultConfig()))
	assert.Equal(t, "render", f.Type())
}
