package protocol

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"
)

// splitResponse separates the serialized head from the body
func splitResponse(t *testing.T, raw string) (string, map[string]string, string) {
	t.Helper()
	head, body, ok := strings.Cut(raw, CRLF+CRLF)
	if !ok {
		t.Fatalf("Response has no header terminator: %q", raw)
	}
	lines := strings.Split(head, CRLF)
	headers := make(map[string]string)
	for _, line := range lines[1:] {
		name, value, _ := strings.Cut(line, ": ")
		headers[name] = value
	}
	return lines[0], headers, body
}

func TestWriteResponseJSON(t *testing.T) {
	var buf bytes.Buffer
	rw := NewResponseWriter(&buf)

	resp := JSON(200, map[string]string{"error": "Not Found"}).
		WithHeader("access-control-allow-origin", "*")
	if err := rw.WriteResponse(resp, false); err != nil {
		t.Fatalf("WriteResponse failed: %v", err)
	}

	statusLine, headers, body := splitResponse(t, buf.String())
	if statusLine != "HTTP/1.1 200 OK" {
		t.Errorf("Unexpected status line '%s'", statusLine)
	}
	if headers["Content-Type"] != "application/json" {
		t.Errorf("Expected JSON content type, got '%s'", headers["Content-Type"])
	}
	if headers["Connection"] != "close" {
		t.Errorf("Expected Connection: close, got '%s'", headers["Connection"])
	}
	if headers["Access-Control-Allow-Origin"] != "*" {
		t.Errorf("Expected canonical CORS header, got %v", headers)
	}
	if headers["Content-Length"] != strconv.Itoa(len(body)) {
		t.Errorf("Content-Length %s does not match body length %d", headers["Content-Length"], len(body))
	}
	if body != `{"error":"Not Found"}` {
		t.Errorf("Unexpected body '%s'", body)
	}
	if rw.Status() != 200 || rw.BytesWritten() != int64(len(body)) {
		t.Errorf("Writer bookkeeping is off: status=%d written=%d", rw.Status(), rw.BytesWritten())
	}
}

func TestContentLengthMatchesBody(t *testing.T) {
	responses := []*Response{
		Text(405, "405 Method Not Allowed"),
		ErrorPage(404),
		ErrorPage(403),
		JSON(200, []int{}),
		JSON(401, map[string]bool{"success": false}),
		NewResponse(204, ContentTypeText, nil),
		Text(200, "héllo wörld"),
	}

	for _, resp := range responses {
		var buf bytes.Buffer
		if err := NewResponseWriter(&buf).WriteResponse(resp, false); err != nil {
			t.Fatalf("WriteResponse failed: %v", err)
		}
		_, headers, body := splitResponse(t, buf.String())
		if headers["Content-Length"] != strconv.Itoa(len(body)) {
			t.Errorf("Status %d: Content-Length %s, body has %d bytes", resp.StatusCode, headers["Content-Length"], len(body))
		}
	}
}

func TestWriteResponseHeadOnly(t *testing.T) {
	var get, head bytes.Buffer
	resp := Text(200, "hello")

	if err := NewResponseWriter(&get).WriteResponse(resp, false); err != nil {
		t.Fatalf("GET write failed: %v", err)
	}
	if err := NewResponseWriter(&head).WriteResponse(resp, true); err != nil {
		t.Fatalf("HEAD write failed: %v", err)
	}

	getHead, _, _ := strings.Cut(get.String(), CRLF+CRLF)
	headHead, headBody, _ := strings.Cut(head.String(), CRLF+CRLF)
	if getHead != headHead {
		t.Errorf("HEAD headers differ from GET:\n%s\n---\n%s", getHead, headHead)
	}
	if headBody != "" {
		t.Errorf("HEAD response should have no body, got '%s'", headBody)
	}
}

func TestErrorPage(t *testing.T) {
	resp := ErrorPage(404)
	if resp.ContentType != "text/html" {
		t.Errorf("Expected text/html, got '%s'", resp.ContentType)
	}
	if !strings.Contains(string(resp.Body), "404 Not Found") {
		t.Errorf("Expected status text in body, got '%s'", resp.Body)
	}
}

func TestWriterGuards(t *testing.T) {
	var buf bytes.Buffer
	rw := NewResponseWriter(&buf)

	if _, err := rw.Write([]byte("early")); !errors.Is(err, ErrHeadersNotCommitted) {
		t.Errorf("Expected ErrHeadersNotCommitted, got %v", err)
	}

	if err := rw.WriteHeader(200, "text/plain", 3, nil); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if err := rw.WriteHeader(500, "text/plain", 0, nil); !errors.Is(err, ErrHeadersCommitted) {
		t.Errorf("Expected ErrHeadersCommitted, got %v", err)
	}

	n, err := rw.Write([]byte("abcdef"))
	if !errors.Is(err, ErrBodyTooLong) {
		t.Errorf("Expected ErrBodyTooLong, got %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 bytes written, got %d", n)
	}
	if !strings.HasSuffix(buf.String(), CRLF+CRLF+"abc") {
		t.Errorf("Body should be cut at Content-Length, got %q", buf.String())
	}
}
