// Package web serves the embedded storefront client assets.
package web

import (
	"embed"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
)

//go:embed dist/*
var content embed.FS

// MetaFunc returns name/content pairs rendered as <meta> tags into
// index.html for a request, e.g. the API base URL the client should call.
type MetaFunc func(r *http.Request) map[string]string

// Handler returns an http.Handler that serves the embedded SPA assets.
// Paths that match no file fall back to index.html so client-side routes
// deep-link correctly.
func Handler(metaFunc MetaFunc) (http.Handler, error) {
	fsys, err := fs.Sub(content, "dist")
	if err != nil {
		return nil, fmt.Errorf("loading embedded web assets: %w", err)
	}
	indexBytes, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, fmt.Errorf("reading embedded index.html: %w", err)
	}
	indexTemplate := string(indexBytes)
	static := http.FileServer(http.FS(fsys))

	serveIndex := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if metaFunc == nil {
			w.Write(indexBytes)
			return
		}
		w.Write([]byte(injectMeta(indexTemplate, metaFunc(r))))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if cleanPath == "." || cleanPath == "" || cleanPath == "index.html" {
			serveIndex(w, r)
			return
		}
		if _, err := fs.Stat(fsys, cleanPath); err == nil {
			static.ServeHTTP(w, r)
			return
		}
		serveIndex(w, r)
	}), nil
}

func injectMeta(page string, meta map[string]string) string {
	if len(meta) == 0 {
		return page
	}
	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "<meta name=\"%s\" content=\"%s\">\n  ", html.EscapeString(name), html.EscapeString(meta[name]))
	}
	return strings.Replace(page, "</head>", b.String()+"</head>", 1)
}
