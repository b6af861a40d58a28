package routes

import (
	"net/http"
	"time"
)

func registerPlayerRoutes(mux *http.ServeMux, d Deps) {
	if d.Orch == nil {
		return
	}

	// GET /api/player/state: player snapshot, mode and current book
	handleGet(mux, "/api/player/state", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"player": d.Orch.State(),
			"mode":   d.Orch.Mode(),
		}
		if d.Reader != nil {
			if b, ok := d.Reader.Current(); ok {
				resp["book"] = metaOf(b)
			}
		}
		writeJSON(w, resp)
	})

	// POST /api/player/control: play, pause, seek, forward, back, unload
	handlePost(mux, "/api/player/control", func(w http.ResponseWriter, r *http.Request) {
		if !requireLocal(w, r) {
			return
		}
		var req struct {
			Action  string  `json:"action"`
			Percent float64 `json:"percent"`
			Seconds float64 `json:"seconds"`
		}
		if decodeJSON(w, r, &req) != nil {
			return
		}

		skip := time.Duration(d.SkipSeconds) * time.Second
		if req.Seconds > 0 {
			skip = time.Duration(req.Seconds * float64(time.Second))
		}

		var err error
		switch req.Action {
		case "play":
			err = d.Orch.Play()
		case "pause":
			err = d.Orch.Pause()
		case "seek":
			if req.Percent < 0 || req.Percent > 100 {
				writeError(w, http.StatusBadRequest, "percent must be 0..100")
				return
			}
			err = d.Orch.Seek(req.Percent)
		case "forward":
			err = d.Orch.Skip(skip)
		case "back":
			err = d.Orch.Skip(-skip)
		case "unload":
			if d.Reader != nil {
				d.Reader.Close()
			} else {
				d.Orch.Unload()
			}
		default:
			writeError(w, http.StatusBadRequest, "unknown action: "+req.Action)
			return
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, d.Orch.State())
	})
}
