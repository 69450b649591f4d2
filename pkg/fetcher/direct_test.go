package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func fakePNG(size int) []byte {
	body := make([]byte, size)
	copy(body, pngMagic)
	return body
}

func TestDirectFetcher_Success(t *testing.T) {
	body := fakePNG(1024)
	var gotUA, gotReferer string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewDirect(DirectConfig{Referer: "https://www.boats.com/"})
	out := f.Fetch(context.Background(), srv.URL+"/img.png")

	if !out.Success {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if !bytes.Equal(out.Bytes, body) {
		t.Error("returned bytes differ from served body")
	}
	if out.Size != len(body) {
		t.Errorf("expected size %d, got %d", len(body), out.Size)
	}
	if out.ContentType != "image/png" {
		t.Errorf("expected content type image/png, got %q", out.ContentType)
	}
	if out.Tier != TierDirect {
		t.Errorf("expected tier direct, got %q", out.Tier)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("expected spoofed user agent, got %q", gotUA)
	}
	if gotReferer != "https://www.boats.com/" {
		t.Errorf("expected referer to be site root, got %q", gotReferer)
	}
}

func TestDirectFetcher_ContentTypeFromSignature(t *testing.T) {
	body := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 64)...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), srv.URL)
	if !out.Success {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if out.ContentType != "image/jpeg" {
		t.Errorf("expected content type from signature, got %q", out.ContentType)
	}
}

func TestDirectFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write(fakePNG(64))
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), srv.URL)
	if out.Success {
		t.Fatal("expected failure on 403")
	}
	if out.Kind != KindHTTPError {
		t.Errorf("expected kind %q, got %q", KindHTTPError, out.Kind)
	}
	if !errors.Is(out.Err, ErrHTTP) {
		t.Errorf("expected ErrHTTP, got %v", out.Err)
	}
	if out.Message() != "http error: HTTP 403" {
		t.Errorf("unexpected message %q", out.Message())
	}
	if out.Bytes != nil {
		t.Error("failed outcome must not carry bytes")
	}
}

func TestDirectFetcher_NonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Claims to be an image but is a challenge page.
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("<html><title>Just a moment...</title></html>"))
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), srv.URL)
	if out.Success {
		t.Fatal("expected failure for non-image body")
	}
	if out.Kind != KindInvalidFormat {
		t.Errorf("expected kind %q, got %q", KindInvalidFormat, out.Kind)
	}
}

func TestDirectFetcher_SizeCeiling(t *testing.T) {
	body := fakePNG(DefaultMaxBytes + 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), srv.URL)
	if out.Success {
		t.Fatal("a body one byte over the ceiling must not succeed")
	}
	if out.Kind != KindTooLarge {
		t.Errorf("expected kind %q, got %q", KindTooLarge, out.Kind)
	}
	if !errors.Is(out.Err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", out.Err)
	}
}

func TestDirectFetcher_ExactlyAtCeiling(t *testing.T) {
	body := fakePNG(4096)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{MaxBytes: len(body)}).Fetch(context.Background(), srv.URL)
	if !out.Success {
		t.Fatalf("a body exactly at the ceiling should succeed, got %v", out.Err)
	}
}

func TestDirectFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	if out.Success {
		t.Fatal("expected timeout failure")
	}
	if out.Kind != KindTimeout {
		t.Errorf("expected kind %q, got %q (%v)", KindTimeout, out.Kind, out.Err)
	}
}

func TestDirectFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), addr)
	if out.Success {
		t.Fatal("expected failure against a closed server")
	}
	if out.Message() == "" {
		t.Error("failed outcome should carry a message")
	}
}

func TestDirectFetcher_Brotli(t *testing.T) {
	body := fakePNG(2048)
	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, _ = bw.Write(body)
	_ = bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), srv.URL)
	if !out.Success {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if !bytes.Equal(out.Bytes, body) {
		t.Error("brotli body was not decoded")
	}
}

func TestDirectFetcher_BrotliOverCeiling(t *testing.T) {
	const maxBytes = 64 << 10

	// Random bytes do not compress, so the encoded body is also over the
	// ceiling and arrives cut short.
	body := make([]byte, 4*maxBytes)
	rand.New(rand.NewSource(1)).Read(body)
	copy(body, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	var compressed bytes.Buffer
	bw := brotli.NewWriter(&compressed)
	_, _ = bw.Write(body)
	_ = bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{MaxBytes: maxBytes}).Fetch(context.Background(), srv.URL)
	if out.Success {
		t.Fatal("an oversized brotli body must not succeed")
	}
	if out.Kind != KindTooLarge {
		t.Errorf("expected kind %q, got %q (%v)", KindTooLarge, out.Kind, out.Err)
	}
	if !errors.Is(out.Err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", out.Err)
	}
}

func TestDirectFetcher_Gzip(t *testing.T) {
	body := fakePNG(2048)
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, _ = gw.Write(body)
	_ = gw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	out := NewDirect(DirectConfig{}).Fetch(context.Background(), srv.URL)
	if !out.Success {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if !bytes.Equal(out.Bytes, body) {
		t.Error("gzip body was not decoded")
	}
}

func TestDirectFetcher_Type(t *testing.T) {
	if got := NewDirect(DirectConfig{}).Type(); got != "direct" {
		t.Errorf("Type() = %q, want direct", got)
	}
}
