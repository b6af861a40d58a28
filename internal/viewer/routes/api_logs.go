// internal/viewer/routes/api_logs.go

package routes

import (
	"log"
	"net/http"
	"strings"
)

func registerAPILogRoutes(mux *http.ServeMux, d Deps) {
	if d.Logs == nil {
		return
	}
	mux.HandleFunc("/api/logs", d.Logs.ServeLogsJSON)
	mux.HandleFunc("/api/logs/stream", d.Logs.ServeLogsSSE)

	// POST /api/logs/client: browser console lines land in the same buffer
	handlePost(mux, "/api/logs/client", func(w http.ResponseWriter, r *http.Request) {
		var req clientLogRequest
		if decodeJSON(w, r, &req) != nil {
			return
		}
		level := strings.ToUpper(strings.TrimSpace(req.Level))
		if level == "" {
			level = "INFO"
		}
		msg := strings.TrimSpace(req.Message)
		if len(msg) > 1000 {
			msg = msg[:1000]
		}
		if msg != "" {
			log.Printf("CLIENT [%s]: %s", level, msg)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func registerOpenAPIRoute(mux *http.ServeMux, d Deps) {
	if d.OpenAPI == nil {
		return
	}
	handleGet(mux, "/api/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := d.OpenAPI()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(doc))
	})
}
