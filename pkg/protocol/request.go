package protocol

import (
	"bytes"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	// CRLF terminates every line of the request head
	CRLF = "\r\n"
	// DefaultBufferSize bounds how much of a request is read from a connection
	DefaultBufferSize = 4096
)

var headerTerminator = []byte(CRLF + CRLF)

// Header maps lower-cased header names to their last value.
// Not map[string][]string, unlike http.Header
type Header map[string]string

// Get returns the value for name, matching case-insensitively
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Request is a parsed HTTP/1.x request.
// A request line with fewer than three tokens leaves Method, Target, Path and
// Protocol empty so that routing falls through to 404/405.
type Request struct {
	Method   string
	Target   string // raw request-target, path plus query
	Path     string // Target without query or fragment, still percent-encoded
	Query    url.Values
	Protocol string
	Header   Header
	Body     []byte

	// Truncated is set when the request filled the read buffer before it was complete
	Truncated bool
}

// IsHead reports whether the request is a HEAD request
func (r *Request) IsHead() bool {
	return r.Method == "HEAD"
}

// ContentLength returns the declared Content-Length or -1 when absent or invalid
func (r *Request) ContentLength() int {
	return parseContentLength(r.Header.Get("content-length"))
}

// ReadRequest reads at most bufSize bytes from r and parses them.
// Reading stops once the head and the declared body are complete, the buffer
// is full, or the reader reports an error. Data beyond bufSize is ignored.
// io.EOF is returned when the peer sent nothing at all.
func ReadRequest(r io.Reader, bufSize int) (*Request, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	buf := make([]byte, bufSize)
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if requestComplete(buf[:n]) {
			break
		}
		if err != nil {
			if n == 0 {
				return nil, err
			}
			// A short or stalled request still gets parsed
			break
		}
	}
	if n == 0 {
		return nil, io.EOF
	}

	req := ParseRequest(buf[:n])
	req.Truncated = n == len(buf) && !requestComplete(buf[:n])
	return req, nil
}

// requestComplete reports whether data holds the full head and Content-Length bytes of body
func requestComplete(data []byte) bool {
	idx := bytes.Index(data, headerTerminator)
	if idx < 0 {
		return false
	}
	body := len(data) - idx - len(headerTerminator)

	cl := -1
	for _, line := range strings.Split(string(data[:idx]), CRLF)[1:] {
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "content-length") {
			cl = parseContentLength(value)
		}
	}
	return cl <= 0 || body >= cl
}

// ParseRequest turns raw bytes into a Request. It never fails; malformed
// input produces a request with empty fields.
func ParseRequest(raw []byte) *Request {
	req := &Request{
		Query:  url.Values{},
		Header: Header{},
	}

	head := raw
	if idx := bytes.Index(raw, headerTerminator); idx >= 0 {
		head = raw[:idx]
		req.Body = raw[idx+len(headerTerminator):]
	}

	lines := strings.Split(string(head), CRLF)

	fields := strings.Fields(lines[0])
	if len(fields) >= 3 {
		req.Method = fields[0]
		req.Target = fields[1]
		req.Protocol = fields[2]
		req.Path, req.Query = splitTarget(req.Target)
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		req.Header[name] = strings.TrimSpace(value)
	}

	return req
}

// splitTarget separates the path from the query string and drops any fragment
func splitTarget(target string) (string, url.Values) {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	path, rawQuery, found := strings.Cut(target, "?")
	if !found {
		return path, url.Values{}
	}
	// ParseQuery keeps every well-formed pair even when it reports an error
	query, _ := url.ParseQuery(rawQuery)
	if query == nil {
		query = url.Values{}
	}
	return path, query
}

func parseContentLength(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return -1
	}
	cl, err := strconv.Atoi(value)
	if err != nil || cl < 0 {
		return -1
	}
	return cl
}
