package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"

	"github.com/niels/ctf-server/pkg/version"
)

var (
	// ErrHeadersCommitted is returned when a second status line is attempted
	ErrHeadersCommitted = errors.New("response headers already sent")
	// ErrHeadersNotCommitted is returned when body bytes are written before the headers
	ErrHeadersNotCommitted = errors.New("response headers not sent")
	// ErrBodyTooLong is returned when the body would exceed the declared Content-Length
	ErrBodyTooLong = errors.New("body exceeds Content-Length")
)

// ResponseWriter serializes exactly one response onto a connection.
// Every response carries Connection: close and an exact Content-Length.
type ResponseWriter struct {
	w             io.Writer
	committed     bool
	status        int
	contentLength int64
	written       int64
}

// NewResponseWriter wraps w
func NewResponseWriter(w io.Writer) *ResponseWriter {
	return &ResponseWriter{w: w}
}

// WriteHeader sends the status line and headers declaring contentLength body bytes.
// It may be called once per connection.
func (rw *ResponseWriter) WriteHeader(status int, contentType string, contentLength int64, headers Header) error {
	return rw.writeHead(status, http.StatusText(status), contentType, contentLength, headers)
}

func (rw *ResponseWriter) writeHead(status int, reason, contentType string, contentLength int64, headers Header) error {
	if rw.committed {
		return ErrHeadersCommitted
	}
	rw.committed = true
	rw.status = status
	rw.contentLength = contentLength

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s%s", status, reason, CRLF)
	fmt.Fprintf(&buf, "Content-Type: %s%s", contentType, CRLF)
	fmt.Fprintf(&buf, "Content-Length: %s%s", strconv.FormatInt(contentLength, 10), CRLF)
	fmt.Fprintf(&buf, "Connection: close%s", CRLF)
	fmt.Fprintf(&buf, "Server: %s%s", version.ServerToken(), CRLF)

	// Sorted so that identical responses serialize identically
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&buf, "%s: %s%s", textproto.CanonicalMIMEHeaderKey(name), headers[name], CRLF)
	}
	buf.WriteString(CRLF)

	_, err := rw.w.Write(buf.Bytes())
	return err
}

// Write sends body bytes. It refuses to write past the declared Content-Length.
func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if !rw.committed {
		return 0, ErrHeadersNotCommitted
	}
	remaining := rw.contentLength - rw.written
	if int64(len(p)) > remaining {
		n, err := rw.w.Write(p[:remaining])
		rw.written += int64(n)
		if err != nil {
			return n, err
		}
		return n, ErrBodyTooLong
	}
	n, err := rw.w.Write(p)
	rw.written += int64(n)
	return n, err
}

// WriteResponse sends a buffered response: headers, then the body unless headOnly is set
func (rw *ResponseWriter) WriteResponse(resp *Response, headOnly bool) error {
	if err := rw.writeHead(resp.StatusCode, resp.ReasonPhrase(), resp.ContentType, int64(len(resp.Body)), resp.Headers); err != nil {
		return err
	}
	if headOnly || len(resp.Body) == 0 {
		return nil
	}
	_, err := rw.Write(resp.Body)
	return err
}

// Committed reports whether the headers have been sent
func (rw *ResponseWriter) Committed() bool {
	return rw.committed
}

// Status returns the status code sent, or 0 before WriteHeader
func (rw *ResponseWriter) Status() int {
	return rw.status
}

// BytesWritten returns the number of body bytes sent
func (rw *ResponseWriter) BytesWritten() int64 {
	return rw.written
}
