// internal/viewer/routes/register.go
package routes

import (
	"net/http"

	"github.com/685Degrees/echo-reader/internal/orchestrator"
	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/reader"
	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/textproc"
	"github.com/685Degrees/echo-reader/internal/voice"
)

type Logs interface {
	ServeLogsJSON(w http.ResponseWriter, r *http.Request)
	ServeLogsSSE(w http.ResponseWriter, r *http.Request)
}

// SessionFeed is the observable side of the voice session.
type SessionFeed interface {
	Status() voice.Status
	Subscribe() (<-chan voice.Event, func())
}

type Deps struct {
	Logs       Logs
	DB         *storage.DB
	Reader     *reader.Reader
	Orch       *orchestrator.Orchestrator
	Normalizer textproc.Normalizer

	// PlayerEvents subscribes to the player; nil disables them on /api/events.
	PlayerEvents func() (<-chan player.Event, func())
	Session      SessionFeed

	SkipSeconds int

	// OpenAPI returns the API description document.
	OpenAPI func() (string, error)
}

func Register(mux *http.ServeMux, d Deps) {
	if d.SkipSeconds <= 0 {
		d.SkipSeconds = 30
	}
	if d.Normalizer == nil {
		d.Normalizer = textproc.BasicNormalizer
	}

	registerAPILogRoutes(mux, d)
	registerOpenAPIRoute(mux, d)

	registerBookRoutes(mux, d)
	registerPlayerRoutes(mux, d)
	registerDiscussRoutes(mux, d)
	registerEventRoutes(mux, d)
}
