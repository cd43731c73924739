package httpserver

import (
	"embed"
	"fmt"
	"net/http"
	"strconv"
)

//go:embed assets/*.html
var embeddedAssets embed.FS

// pages maps request paths to the embedded documents served for them.
var pages = map[string]string{
	"/":     "assets/index.html",
	"/api":  "assets/api.html",
	"/api/": "assets/api.html",
}

// pageHandler serves the dashboard and the API reference. Documents are read
// once; every other path under the mounted prefixes is a 404.
type pageHandler struct {
	server *Server
	docs   map[string][]byte
}

func newPageHandler(s *Server) (*pageHandler, error) {
	docs := make(map[string][]byte, len(pages))
	for route, name := range pages {
		data, err := embeddedAssets.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read page %s: %w", name, err)
		}
		docs[route] = data
	}
	return &pageHandler{server: s, docs: docs}, nil
}

func (h *pageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.docs[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(doc); err != nil {
		h.server.loggerFromContext(r.Context()).Debug("failed to write page", "path", r.URL.Path, "err", err)
	}
}
