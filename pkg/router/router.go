package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/niels/ctf-server/pkg/protocol"
)

// Handler serves one request on a response writer
type Handler interface {
	Serve(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error

// Serve calls f
func (f HandlerFunc) Serve(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error {
	return f(ctx, w, req)
}

// Rule routes requests whose path starts with Prefix and whose method is in
// Methods (any method when Methods is empty) to Handler
type Rule struct {
	Name    string
	Prefix  string
	Methods []string
	Handler Handler
}

func (r Rule) matches(req *protocol.Request) bool {
	if !strings.HasPrefix(req.Path, r.Prefix) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if req.Method == m {
			return true
		}
	}
	return false
}

// Router picks the first matching rule. Requests matching no rule get a 405.
type Router struct {
	rules []Rule
}

// New creates a router from an ordered rule table
func New(rules ...Rule) *Router {
	return &Router{rules: rules}
}

// Default builds the standard table: /api/ to api, every other GET and HEAD
// to static, whatever the target looks like
func Default(api, static Handler) *Router {
	return New(
		Rule{Name: "api", Prefix: "/api/", Handler: api},
		Rule{Name: "static", Methods: []string{"GET", "HEAD"}, Handler: static},
	)
}

// Match returns the name of the rule that would serve req, or "" for none
func (rt *Router) Match(req *protocol.Request) string {
	if rule, ok := rt.find(req); ok {
		return rule.Name
	}
	return ""
}

func (rt *Router) find(req *protocol.Request) (Rule, bool) {
	for _, rule := range rt.rules {
		if rule.matches(req) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Serve dispatches req to the matching handler
func (rt *Router) Serve(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error {
	rule, ok := rt.find(req)
	if !ok {
		resp := protocol.Text(http.StatusMethodNotAllowed, "405 Method Not Allowed").
			WithHeader("Allow", "GET, HEAD")
		return w.WriteResponse(resp, req.IsHead())
	}
	return rule.Handler.Serve(ctx, w, req)
}
