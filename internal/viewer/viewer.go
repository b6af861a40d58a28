package viewer

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/685Degrees/echo-reader/internal/orchestrator"
	"github.com/685Degrees/echo-reader/internal/player"
	"github.com/685Degrees/echo-reader/internal/reader"
	"github.com/685Degrees/echo-reader/internal/storage"
	"github.com/685Degrees/echo-reader/internal/textproc"
	"github.com/685Degrees/echo-reader/internal/util"
	"github.com/685Degrees/echo-reader/internal/viewer/assets"
	"github.com/685Degrees/echo-reader/internal/viewer/routes"
)

// SessionBroker is the credential and speech proxy mounted next to the API.
type SessionBroker interface {
	Register(mux *http.ServeMux)
}

type Viewer struct {
	Logs       *LogBuffer
	DB         *storage.DB
	Reader     *reader.Reader
	Orch       *orchestrator.Orchestrator
	Normalizer textproc.Normalizer

	PlayerEvents func() (<-chan player.Event, func())
	Session      routes.SessionFeed

	// Broker is optional; nil leaves /session and /api/tts unmounted.
	Broker SessionBroker

	SkipSeconds int
	OpenAPI     func() (string, error)
}

// Handler builds the full HTTP surface.
func (v Viewer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/assets/", http.StripPrefix("/assets/", noCache(assets.Handler())))
	mux.Handle("/", noCache(assets.Index()))

	deps := routes.Deps{
		DB:           v.DB,
		Reader:       v.Reader,
		Orch:         v.Orch,
		Normalizer:   v.Normalizer,
		PlayerEvents: v.PlayerEvents,
		Session:      v.Session,
		SkipSeconds:  v.SkipSeconds,
		OpenAPI:      v.OpenAPI,
	}
	if v.Logs != nil {
		deps.Logs = v.Logs
	}
	routes.Register(mux, deps)

	if v.Broker != nil {
		v.Broker.Register(mux)
	}
	return mux
}

// Start serves the viewer on addr until ctx is cancelled, then shuts down
// gracefully. Streaming handlers (SSE, WebSocket) are cut after the grace
// period.
func Start(ctx context.Context, addr string, v Viewer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, v)
}

func Serve(ctx context.Context, ln net.Listener, v Viewer) error {
	srv := &http.Server{
		Handler:           v.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("VIEWER: listening on http://%s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), util.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("VIEWER: shutdown: %v", err)
		_ = srv.Close()
	}
	log.Printf("VIEWER: stopped")
	return nil
}
