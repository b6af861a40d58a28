package viewer

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestLogBufferLinesAndAreas(t *testing.T) {
	b := NewLogBuffer(3)
	fmt.Fprint(b, "2026/01/02 15:04:05 PLAYER [1]: ready\npartial")
	if n := len(b.Snapshot()); n != 1 {
		t.Fatalf("len = %d, want 1 (partial line held)", n)
	}
	fmt.Fprint(b, " line\n\nVOICE: connected\nORCH: entering\n")

	all := b.Snapshot()
	if len(all) != 3 {
		t.Fatalf("len = %d, want ring capacity 3", len(all))
	}
	if all[0].Msg != "partial line" || all[0].Area != "" {
		t.Fatalf("oldest = %+v", all[0])
	}
	if got := b.Tail(0, "voice"); len(got) != 1 || got[0].Area != "VOICE" {
		t.Fatalf("area filter = %+v", got)
	}
	if got := b.Tail(1, ""); len(got) != 1 || got[0].Area != "ORCH" {
		t.Fatalf("tail = %+v", got)
	}
}

func TestLogBufferSubscribe(t *testing.T) {
	b := NewLogBuffer(10)
	ch, cancel := b.Subscribe()
	l := log.New(b, "", 0)
	l.Printf("INBOX [x]: imported")

	select {
	case e := <-ch:
		if e.Area != "INBOX" {
			t.Fatalf("entry = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no entry")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
}

func TestHandlerServesPageAndLogs(t *testing.T) {
	logs := NewLogBuffer(10)
	fmt.Fprintln(logs, "VIEWER: hello")
	h := Viewer{Logs: logs}.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/assets/app.js") {
		t.Fatalf("index: %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("Cache-Control = %q", cc)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/discuss/ws") {
		t.Fatalf("app.js: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?n=5", nil))
	if !strings.Contains(rec.Body.String(), `"area":"VIEWER"`) {
		t.Fatalf("logs = %s", rec.Body)
	}
}

type recordingBroker struct{ registered atomic.Bool }

func (b *recordingBroker) Register(mux *http.ServeMux) {
	b.registered.Store(true)
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {})
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	br := &recordingBroker{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, Viewer{Broker: br}) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if !br.registered.Load() {
		t.Fatal("broker routes not mounted")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
}
