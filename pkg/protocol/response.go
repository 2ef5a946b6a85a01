package protocol

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
)

// Content types used by the handlers
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
	ContentTypeHTML = "text/html"
)

// Response is a fully buffered response; Content-Length is always len(Body)
type Response struct {
	StatusCode  int
	Reason      string
	ContentType string
	Headers     Header
	Body        []byte
}

// NewResponse creates a response with the standard reason phrase for status
func NewResponse(status int, contentType string, body []byte) *Response {
	return &Response{
		StatusCode:  status,
		Reason:      http.StatusText(status),
		ContentType: contentType,
		Headers:     Header{},
		Body:        body,
	}
}

// JSON encodes v as the body of an application/json response.
// A value that cannot be encoded yields a 500 with a JSON error body.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte(`{"error":"Internal Server Error"}`)
		status = http.StatusInternalServerError
	}
	return NewResponse(status, ContentTypeJSON, body)
}

// Text creates a text/plain response
func Text(status int, msg string) *Response {
	return NewResponse(status, ContentTypeText, []byte(msg))
}

// ErrorPage creates a minimal text/html error page for status
func ErrorPage(status int) *Response {
	title := html.EscapeString(fmt.Sprintf("%d %s", status, http.StatusText(status)))
	body := fmt.Sprintf("<html><head><title>%s</title></head><body><h1>%s</h1></body></html>", title, title)
	return NewResponse(status, ContentTypeHTML, []byte(body))
}

// WithHeader sets an extra header and returns the response for chaining
func (r *Response) WithHeader(name, value string) *Response {
	if r.Headers == nil {
		r.Headers = Header{}
	}
	r.Headers[name] = value
	return r
}

// ReasonPhrase returns Reason, falling back to the standard text for the status code
func (r *Response) ReasonPhrase() string {
	if r.Reason != "" {
		return r.Reason
	}
	return http.StatusText(r.StatusCode)
}
