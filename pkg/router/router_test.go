package router

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/niels/ctf-server/pkg/protocol"
)

func named(name string, hits *[]string) Handler {
	return HandlerFunc(func(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error {
		*hits = append(*hits, name)
		return w.WriteResponse(protocol.Text(200, name), req.IsHead())
	})
}

func parse(line string) *protocol.Request {
	return protocol.ParseRequest([]byte(line + "\r\nHost: x\r\n\r\n"))
}

func TestDefaultRouting(t *testing.T) {
	var hits []string
	rt := Default(named("api", &hits), named("static", &hits))

	tests := []struct {
		line string
		want string
	}{
		{"GET /api/challenges HTTP/1.1", "api"},
		{"POST /api/auth/login HTTP/1.1", "api"},
		{"DELETE /api/anything HTTP/1.1", "api"},
		{"OPTIONS /api/auth/login HTTP/1.1", "api"},
		{"GET / HTTP/1.1", "static"},
		{"HEAD /index.html HTTP/1.1", "static"},
		{"GET /apix HTTP/1.1", "static"},
		{"GET /api HTTP/1.1", "static"},
		{"GET * HTTP/1.1", "static"},
		{"HEAD index.html HTTP/1.1", "static"},
		{"POST /index.html HTTP/1.1", ""},
		{"PUT / HTTP/1.1", ""},
		{"GARBAGE", ""},
	}
	for _, tt := range tests {
		if got := rt.Match(parse(tt.line)); got != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.line, tt.want, got)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	var hits []string
	rt := Default(named("api", &hits), named("static", &hits))

	var buf bytes.Buffer
	w := protocol.NewResponseWriter(&buf)
	if err := rt.Serve(context.Background(), w, parse("POST /index.html HTTP/1.1")); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "HTTP/1.1 405 Method Not Allowed\r\n") {
		t.Errorf("Expected a 405 status line, got %q", out)
	}
	if !strings.HasSuffix(out, "405 Method Not Allowed") {
		t.Errorf("Expected a 405 body, got %q", out)
	}
	if len(hits) != 0 {
		t.Errorf("No handler should run, got %v", hits)
	}
}

func TestAsteriskTargetReachesStatic(t *testing.T) {
	var hits []string
	notFound := HandlerFunc(func(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error {
		hits = append(hits, "static")
		return w.WriteResponse(protocol.ErrorPage(404), req.IsHead())
	})
	rt := Default(named("api", &hits), notFound)

	var buf bytes.Buffer
	if err := rt.Serve(context.Background(), protocol.NewResponseWriter(&buf), parse("GET * HTTP/1.1")); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("Expected the static handler's 404, got %q", buf.String())
	}
	if len(hits) != 1 || hits[0] != "static" {
		t.Errorf("Expected the static handler to run once, got %v", hits)
	}
}

func TestServeDispatches(t *testing.T) {
	var hits []string
	rt := Default(named("api", &hits), named("static", &hits))

	var buf bytes.Buffer
	if err := rt.Serve(context.Background(), protocol.NewResponseWriter(&buf), parse("GET /api/profile?userID=1 HTTP/1.1")); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if len(hits) != 1 || hits[0] != "api" {
		t.Errorf("Expected the api handler to run once, got %v", hits)
	}
}
