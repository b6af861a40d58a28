package routes

import (
	"log"
	"net/http"

	"github.com/685Degrees/echo-reader/internal/player"
)

func registerEventRoutes(mux *http.ServeMux, d Deps) {
	if d.Orch == nil {
		return
	}

	// GET /api/events: SSE: a state snapshot, then player and mode events
	handleGet(mux, "/api/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}
		sseHeaders(w)

		var playerCh <-chan player.Event
		if d.PlayerEvents != nil {
			ch, cancel := d.PlayerEvents()
			defer cancel()
			playerCh = ch
		}
		modeCh, cancelMode := d.Orch.Subscribe()
		defer cancelMode()

		if err := writeSSE(w, "state", map[string]any{"player": d.Orch.State(), "mode": d.Orch.Mode()}); err != nil {
			return
		}
		flusher.Flush()

		ctx := r.Context()
		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-playerCh:
				if !ok {
					return
				}
				err = writeSSE(w, "player", ev)
			case ev, ok := <-modeCh:
				if !ok {
					return
				}
				err = writeSSE(w, "mode", ev)
			}
			if err != nil {
				log.Printf("VIEWER: events: %v", err)
				return
			}
			flusher.Flush()
		}
	})
}
