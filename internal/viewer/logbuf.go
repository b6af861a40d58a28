// internal/viewer/logbuf.go
package viewer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/685Degrees/echo-reader/internal/util"
)

// LogEntry is one line of process output. Area is the leading tag of the
// line ("PLAYER", "VOICE", ...) when the line carries one.
type LogEntry struct {
	TS   time.Time `json:"ts"`
	Area string    `json:"area,omitempty"`
	Msg  string    `json:"msg"`
}

// LogBuffer keeps the most recent log lines and fans new ones out to
// subscribers. It is an io.Writer so it can sit behind log.SetOutput.
type LogBuffer struct {
	mu      sync.Mutex
	entries *util.RingBuffer[LogEntry]
	subs    map[chan LogEntry]struct{}
	partial bytes.Buffer
	now     func() time.Time
}

func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = 500
	}
	return &LogBuffer{
		entries: util.NewRingBuffer[LogEntry](max),
		subs:    make(map[chan LogEntry]struct{}),
		now:     time.Now,
	}
}

// Write splits p into lines. A trailing partial line is held until its
// newline arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)
	for {
		data := b.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i == -1 {
			break
		}
		line := strings.TrimRight(string(data[:i]), "\r")
		b.partial.Next(i + 1)
		if strings.TrimSpace(line) == "" {
			continue
		}

		e := LogEntry{TS: b.now(), Area: areaOf(line), Msg: line}
		b.entries.Push(e)
		for ch := range b.subs {
			select {
			case ch <- e:
			default:
				// slow subscriber
			}
		}
	}
	return len(p), nil
}

// areaOf extracts the upper-case tag that starts a line such as
// "2026/01/02 15:04:05 PLAYER [3]: ready", skipping the std log prefix.
func areaOf(line string) string {
	for _, f := range strings.Fields(line) {
		if f == "" || (f[0] >= '0' && f[0] <= '9') {
			continue
		}
		tag := strings.TrimRight(f, ":")
		if tag == "" || strings.ToUpper(tag) != tag || strings.ContainsAny(tag, "[]/") {
			return ""
		}
		return tag
	}
	return ""
}

func (b *LogBuffer) Snapshot() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Snapshot()
}

// Tail returns at most n of the newest entries, optionally restricted to one
// area. n <= 0 means all.
func (b *LogBuffer) Tail(n int, area string) []LogEntry {
	if area == "" {
		return b.entries.Last(n)
	}
	all := b.Snapshot()
	kept := all[:0]
	for _, e := range all {
		if strings.EqualFold(e.Area, area) {
			kept = append(kept, e)
		}
	}
	all = kept
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

func (b *LogBuffer) Subscribe() (ch chan LogEntry, cancel func()) {
	ch = make(chan LogEntry, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// GET /api/logs?n=100&area=PLAYER
func (b *LogBuffer) ServeLogsJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	entries := b.Tail(n, r.URL.Query().Get("area"))
	if entries == nil {
		entries = []LogEntry{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(entries)
}

// GET /api/logs/stream (Server-Sent Events), tail only
func (b *LogBuffer) ServeLogsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	area := r.URL.Query().Get("area")
	ch, cancel := b.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if area != "" && !strings.EqualFold(e.Area, area) {
				continue
			}
			data, _ := json.Marshal(e)
			_, _ = w.Write([]byte("event: message\ndata: " + string(data) + "\n\n"))
			flusher.Flush()
		}
	}
}
