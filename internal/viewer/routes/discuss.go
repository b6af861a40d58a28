package routes

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/685Degrees/echo-reader/internal/voice"
)

// enterTimeout bounds a whole connection attempt: credential, microphone,
// negotiation.
const enterTimeout = 45 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return isLocalRequest(r) },
}

// discussMessage is one frame on /api/discuss/ws, in either direction.
type discussMessage struct {
	Type    string       `json:"type"`
	Mode    string       `json:"mode,omitempty"`
	Session *voice.Event `json:"session,omitempty"`
	Text    string       `json:"text,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func registerDiscussRoutes(mux *http.ServeMux, d Deps) {
	if d.Orch == nil {
		return
	}

	// POST /api/discuss/enter: pause reading and connect to the AI peer
	handlePost(mux, "/api/discuss/enter", func(w http.ResponseWriter, r *http.Request) {
		if !requireLocal(w, r) {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), enterTimeout)
		defer cancel()
		if err := d.Orch.EnterDiscussion(ctx); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, discussState(d))
	})

	// POST /api/discuss/exit: disconnect and resume reading
	handlePost(mux, "/api/discuss/exit", func(w http.ResponseWriter, r *http.Request) {
		if !requireLocal(w, r) {
			return
		}
		if err := d.Orch.ExitDiscussion(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, discussState(d))
	})

	// POST /api/discuss/instruction: ask the AI peer to respond
	handlePost(mux, "/api/discuss/instruction", func(w http.ResponseWriter, r *http.Request) {
		if !requireLocal(w, r) {
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if decodeJSON(w, r, &req) != nil {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		if err := d.Orch.SendInstruction(req.Text); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "sent"})
	})

	handleGet(mux, "/api/discuss/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, discussState(d))
	})

	// GET /api/discuss/ws: live session relay: mode and session events out,
	// instructions and exit requests in
	mux.HandleFunc("/api/discuss/ws", func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) || !requireLocal(w, r) {
			return
		}
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("DISCUSS: WebSocket upgrade error: %v", err)
			return
		}
		defer conn.Close()
		log.Printf("DISCUSS: WebSocket connected")

		modeCh, cancelMode := d.Orch.Subscribe()
		defer cancelMode()
		var sessCh <-chan voice.Event
		if d.Session != nil {
			ch, cancel := d.Session.Subscribe()
			defer cancel()
			sessCh = ch
		}

		out := make(chan discussMessage, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var msg discussMessage
				if err := conn.ReadJSON(&msg); err != nil {
					return
				}
				reply := handleDiscussMessage(d, msg)
				select {
				case out <- reply:
				default:
				}
			}
		}()

		if err := conn.WriteJSON(discussMessage{Type: "mode", Mode: d.Orch.Mode().String()}); err != nil {
			return
		}
		for {
			var msg discussMessage
			select {
			case <-r.Context().Done():
				return
			case <-done:
				log.Printf("DISCUSS: WebSocket disconnected")
				return
			case ev, ok := <-modeCh:
				if !ok {
					return
				}
				msg = discussMessage{Type: "mode", Mode: ev.Mode.String(), Error: ev.Error}
			case ev, ok := <-sessCh:
				if !ok {
					sessCh = nil
					continue
				}
				msg = discussMessage{Type: "session", Session: &ev}
			case msg = <-out:
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	})
}

func handleDiscussMessage(d Deps, msg discussMessage) discussMessage {
	var err error
	switch msg.Type {
	case "instruction":
		err = d.Orch.SendInstruction(msg.Text)
	case "exit":
		err = d.Orch.ExitDiscussion(context.Background())
	default:
		return discussMessage{Type: "error", Error: "unknown message type: " + msg.Type}
	}
	if err != nil {
		_, text := classify(err)
		return discussMessage{Type: "error", Error: text}
	}
	return discussMessage{Type: "ok", Text: msg.Type}
}

func discussState(d Deps) map[string]any {
	resp := map[string]any{"mode": d.Orch.Mode()}
	if d.Session != nil {
		resp["session"] = d.Session.Status()
	}
	return resp
}
