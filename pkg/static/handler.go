package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/niels/ctf-server/pkg/logging"
	"github.com/niels/ctf-server/pkg/protocol"
	"github.com/rs/zerolog"
)

// DefaultChunkSize is the streaming buffer used when Options.ChunkSize is unset
const DefaultChunkSize = 4096

const indexFile = "/index.html"

// Options configures a Handler
type Options struct {
	// WebRoot is the directory files are served from
	WebRoot string
	// ChunkSize is the size of each read while streaming a file
	ChunkSize int
	// SPAFallback serves index.html for missing extension-less paths
	SPAFallback bool
}

// Handler serves files below a web root
type Handler struct {
	webRoot     string
	chunkSize   int
	spaFallback bool
	logger      zerolog.Logger
}

// NewHandler creates a static file handler
func NewHandler(opts Options) (*Handler, error) {
	root, err := filepath.Abs(opts.WebRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve web root: %w", err)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	return &Handler{
		webRoot:     root,
		chunkSize:   opts.ChunkSize,
		spaFallback: opts.SPAFallback,
		logger:      logging.WithComponent("static"),
	}, nil
}

// WebRoot returns the absolute directory served by h
func (h *Handler) WebRoot() string {
	return h.webRoot
}

// Serve answers a GET or HEAD request for a file. The returned error is only
// set when the connection failed; HTTP errors are written as responses.
func (h *Handler) Serve(ctx context.Context, w *protocol.ResponseWriter, req *protocol.Request) error {
	headOnly := req.IsHead()

	filePath, status := h.resolve(req.Path)
	if status != http.StatusOK {
		return w.WriteResponse(protocol.ErrorPage(status), headOnly)
	}

	info, err := os.Stat(filePath)
	if err != nil && h.spaFallback && path.Ext(req.Path) == "" {
		h.logger.Debug().Str("path", req.Path).Msg("Serving index.html for client-side route")
		filePath = filepath.Join(h.webRoot, filepath.FromSlash(indexFile))
		info, err = os.Stat(filePath)
	}
	if err != nil {
		return w.WriteResponse(protocol.ErrorPage(http.StatusNotFound), headOnly)
	}
	if !info.Mode().IsRegular() {
		return w.WriteResponse(protocol.ErrorPage(http.StatusForbidden), headOnly)
	}

	// Opened before the headers go out so an unreadable file can still get a 403
	f, err := os.Open(filePath)
	if err != nil {
		h.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to open file")
		return w.WriteResponse(protocol.ErrorPage(http.StatusForbidden), headOnly)
	}
	defer f.Close()

	size := info.Size()
	if err := w.WriteHeader(http.StatusOK, MimeType(filePath), size, nil); err != nil {
		return err
	}
	if headOnly {
		return nil
	}

	// Headers are committed; a failure from here on can only drop the connection
	buf := make([]byte, h.chunkSize)
	n, err := io.CopyBuffer(w, io.LimitReader(f, size), buf)
	if err != nil {
		return fmt.Errorf("failed to stream %s: %w", filePath, err)
	}
	if n < size {
		return fmt.Errorf("failed to stream %s: %w", filePath, io.ErrUnexpectedEOF)
	}
	return nil
}

// resolve maps a URL path to a file below the web root, or an error status
func (h *Handler) resolve(urlPath string) (string, int) {
	if urlPath == "/" {
		urlPath = indexFile
	}
	if !strings.HasPrefix(urlPath, "/") {
		return "", http.StatusNotFound
	}
	if strings.Contains(urlPath, "..") {
		return "", http.StatusForbidden
	}

	decoded, err := url.PathUnescape(urlPath)
	if err != nil {
		return "", http.StatusBadRequest
	}
	if strings.Contains(decoded, "..") || strings.ContainsRune(decoded, 0) {
		return "", http.StatusForbidden
	}

	filePath := filepath.Join(h.webRoot, filepath.FromSlash(decoded))
	if !h.contains(filePath) {
		return "", http.StatusForbidden
	}
	return filePath, http.StatusOK
}

// contains reports whether filePath is the web root or below it
func (h *Handler) contains(filePath string) bool {
	rel, err := filepath.Rel(h.webRoot, filePath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
