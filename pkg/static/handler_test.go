package static

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/niels/ctf-server/pkg/protocol"
)

const indexHTML = "<!doctype html><html><body><div id=\"root\"></div></body></html>"

// newTestRoot builds a small React-style build directory
func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"index.html":           indexHTML,
		"assets/app.js":        "console.log('ctf')",
		"assets/style.CSS":     "body{}",
		"favicon.ico":          "\x00\x00\x01\x00",
		"data.bin":             "\x01\x02\x03",
		"docs/rules.txt":       strings.Repeat("no flag sharing\n", 1000),
		"assets/fonts/a.woff2": "wOF2",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return root
}

type served struct {
	status  string
	headers map[string]string
	body    string
	err     error
}

func serve(t *testing.T, h *Handler, method, target string) served {
	t.Helper()
	var buf bytes.Buffer
	req := protocol.ParseRequest([]byte(method + " " + target + " HTTP/1.1\r\nHost: test\r\n\r\n"))
	err := h.Serve(context.Background(), protocol.NewResponseWriter(&buf), req)

	head, body, _ := strings.Cut(buf.String(), "\r\n\r\n")
	lines := strings.Split(head, "\r\n")
	headers := make(map[string]string)
	for _, line := range lines[1:] {
		name, value, _ := strings.Cut(line, ": ")
		headers[name] = value
	}
	return served{status: lines[0], headers: headers, body: body, err: err}
}

func newTestHandler(t *testing.T, root string, spa bool) *Handler {
	t.Helper()
	h, err := NewHandler(Options{WebRoot: root, ChunkSize: 512, SPAFallback: spa})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return h
}

func TestServeFile(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	res := serve(t, h, "GET", "/assets/app.js")
	if res.err != nil {
		t.Fatalf("Serve failed: %v", res.err)
	}
	if res.status != "HTTP/1.1 200 OK" {
		t.Errorf("Unexpected status '%s'", res.status)
	}
	if res.headers["Content-Type"] != "application/javascript" {
		t.Errorf("Expected application/javascript, got '%s'", res.headers["Content-Type"])
	}
	if res.body != "console.log('ctf')" {
		t.Errorf("Unexpected body '%s'", res.body)
	}
	if res.headers["Connection"] != "close" {
		t.Errorf("Expected Connection: close")
	}
}

func TestLargeFileStreamsInChunks(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	res := serve(t, h, "GET", "/docs/rules.txt")
	want := strings.Repeat("no flag sharing\n", 1000)
	if res.body != want {
		t.Errorf("Streamed body differs: got %d bytes, want %d", len(res.body), len(want))
	}
	if res.headers["Content-Length"] != strconv.Itoa(len(want)) {
		t.Errorf("Content-Length %s does not match %d", res.headers["Content-Length"], len(want))
	}
}

func TestRootAliasesIndex(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	root := serve(t, h, "GET", "/")
	index := serve(t, h, "GET", "/index.html")

	if root.status != index.status || root.body != index.body {
		t.Errorf("'/' and '/index.html' differ: %+v vs %+v", root, index)
	}
	for name, value := range index.headers {
		if root.headers[name] != value {
			t.Errorf("Header %s differs: '%s' vs '%s'", name, root.headers[name], value)
		}
	}
	if root.body != indexHTML {
		t.Errorf("Unexpected index body '%s'", root.body)
	}
}

func TestHeadMatchesGet(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	get := serve(t, h, "GET", "/favicon.ico")
	head := serve(t, h, "HEAD", "/favicon.ico")

	if get.status != head.status {
		t.Errorf("Status differs: '%s' vs '%s'", get.status, head.status)
	}
	if len(get.headers) != len(head.headers) {
		t.Errorf("Header sets differ: %v vs %v", get.headers, head.headers)
	}
	for name, value := range get.headers {
		if head.headers[name] != value {
			t.Errorf("Header %s differs: '%s' vs '%s'", name, value, head.headers[name])
		}
	}
	if head.body != "" {
		t.Errorf("HEAD should have no body, got %q", head.body)
	}
}

func TestTraversalIsForbidden(t *testing.T) {
	root := newTestRoot(t)
	// A real file one level above the web root
	if err := os.WriteFile(filepath.Join(filepath.Dir(root), "secret.txt"), []byte("flag{nope}"), 0644); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}
	h := newTestHandler(t, root, false)

	paths := []string{
		"/../secret.txt",
		"/assets/../index.html",
		"/..",
		"/%2e%2e/secret.txt",
		"/assets/%2E%2E/%2E%2E/secret.txt",
		"/..%2fsecret.txt",
	}
	for _, p := range paths {
		res := serve(t, h, "GET", p)
		if res.status != "HTTP/1.1 403 Forbidden" {
			t.Errorf("%s: expected 403, got '%s'", p, res.status)
		}
		if strings.Contains(res.body, "flag{") {
			t.Errorf("%s: leaked file content", p)
		}
	}
}

func TestMissingFile(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	res := serve(t, h, "GET", "/nonexistent.png")
	if res.status != "HTTP/1.1 404 Not Found" {
		t.Errorf("Expected 404, got '%s'", res.status)
	}
	if res.headers["Content-Type"] != "text/html" {
		t.Errorf("Expected text/html error page, got '%s'", res.headers["Content-Type"])
	}
	if !strings.Contains(res.body, "404") {
		t.Errorf("Expected a minimal HTML error body, got '%s'", res.body)
	}
	if res.headers["Content-Length"] != strconv.Itoa(len(res.body)) {
		t.Errorf("Content-Length %s does not match body", res.headers["Content-Length"])
	}
}

func TestDirectoryIsForbidden(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	res := serve(t, h, "GET", "/assets")
	if res.status != "HTTP/1.1 403 Forbidden" {
		t.Errorf("Expected 403 for a directory, got '%s'", res.status)
	}
}

func TestBadEscapeIsBadRequest(t *testing.T) {
	h := newTestHandler(t, newTestRoot(t), false)

	res := serve(t, h, "GET", "/assets/%zz.js")
	if res.status != "HTTP/1.1 400 Bad Request" {
		t.Errorf("Expected 400, got '%s'", res.status)
	}
}

func TestSPAFallback(t *testing.T) {
	root := newTestRoot(t)

	withFallback := newTestHandler(t, root, true)
	res := serve(t, withFallback, "GET", "/dashboard")
	if res.status != "HTTP/1.1 200 OK" || res.body != indexHTML {
		t.Errorf("Expected index.html for a client route, got '%s' '%s'", res.status, res.body)
	}

	// Asset-looking paths still 404
	res = serve(t, withFallback, "GET", "/missing.js")
	if res.status != "HTTP/1.1 404 Not Found" {
		t.Errorf("Expected 404 for a missing asset, got '%s'", res.status)
	}

	withoutFallback := newTestHandler(t, root, false)
	res = serve(t, withoutFallback, "GET", "/dashboard")
	if res.status != "HTTP/1.1 404 Not Found" {
		t.Errorf("Expected 404 without fallback, got '%s'", res.status)
	}
}

func TestMimeType(t *testing.T) {
	tests := map[string]string{
		"index.html":       "text/html",
		"page.htm":         "text/html",
		"style.css":        "text/css",
		"STYLE.CSS":        "text/css",
		"app.js":           "application/javascript",
		"manifest.json":    "application/json",
		"logo.png":         "image/png",
		"a.jpg":            "image/jpeg",
		"a.jpeg":           "image/jpeg",
		"anim.gif":         "image/gif",
		"vite.svg":         "image/svg+xml",
		"favicon.ico":      "image/x-icon",
		"robots.txt":       "text/plain",
		"rules.pdf":        "application/pdf",
		"f.woff":           "font/woff",
		"f.woff2":          "font/woff2",
		"f.ttf":            "font/ttf",
		"f.otf":            "font/otf",
		"archive.tar.gz":   DefaultMimeType,
		"Makefile":         DefaultMimeType,
		"/assets/data.bin": DefaultMimeType,
	}

	for path, want := range tests {
		if got := MimeType(path); got != want {
			t.Errorf("MimeType(%q) = %q, want %q", path, got, want)
		}
	}
}
