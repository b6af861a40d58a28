// Package assets serves the embedded control page under /assets/ and at /.
// Everything is minified once at start-up.
package assets

import (
	"embed"
	"io/fs"
	"log"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

//go:embed index.html app.css app.js
var rawFS embed.FS

var minified map[string][]byte

var mediaTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
}

func init() {
	m := minify.New()
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)

	minified = make(map[string][]byte)
	_ = fs.WalkDir(rawFS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := rawFS.ReadFile(p)
		if err != nil {
			return nil
		}
		mt, ok := mediaTypes[strings.ToLower(path.Ext(p))]
		if !ok {
			minified[p] = raw
			return nil
		}
		out, err := m.Bytes(mt, raw)
		if err != nil {
			log.Printf("VIEWER: minify warning: %s: %v (using original)", p, err)
			minified[p] = raw
			return nil
		}
		minified[p] = out
		return nil
	})
}

// File returns the minified content of one embedded asset.
func File(name string) ([]byte, bool) {
	data, ok := minified[name]
	return data, ok
}

// Handler serves the assets. Mount it at /assets/ with a StripPrefix.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		data, ok := minified[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		ct := mime.TypeByExtension(path.Ext(name))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Write(data)
	})
}

// Index serves the control page.
func Index() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(minified["index.html"])
	})
}
