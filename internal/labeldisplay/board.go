// Package labeldisplay holds the on-screen text of the latest candidate label
// and fans it out to live viewers.
package labeldisplay

import (
	"bytes"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/arlabel/internal/timeutil"
	"tailscale.com/tsweb"
)

//go:embed templates/*
var templateFS embed.FS

var labelTemplate = template.Must(template.ParseFS(templateFS, "templates/label.html.tmpl"))

// Update is one published label.
type Update struct {
	Label     string    `json:"label"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board is the label display. SetLabel never blocks: each subscriber holds at
// most one pending update and a newer label replaces an undelivered one.
type Board struct {
	clock timeutil.Clock

	mu          sync.Mutex
	current     Update
	subscribers map[string]chan Update
	closed      bool
}

// NewBoard creates an empty board. clock may be nil.
func NewBoard(clock timeutil.Clock) *Board {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Board{
		clock:       clock,
		subscribers: make(map[string]chan Update),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value).
// A failing system RNG leaves no way to keep IDs unique, so it panics.
func randomID() string {
	b := make([]byte, 8)
	if _, err := crand.Read(b); err != nil {
		panic(fmt.Sprintf("labeldisplay: reading random subscriber ID: %v", err))
	}
	return hex.EncodeToString(b)
}

// SetLabel shows text. Repeating the current text is a no-op.
func (b *Board) SetLabel(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || (text == b.current.Label && !b.current.UpdatedAt.IsZero()) {
		return
	}
	b.current = Update{Label: text, UpdatedAt: b.clock.Now()}
	for _, ch := range b.subscribers {
		offer(ch, b.current)
	}
}

// offer delivers u, replacing a pending update if the subscriber is behind.
func offer(ch chan Update, u Update) {
	select {
	case ch <- u:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- u:
	default:
	}
}

// Current returns the label on display.
func (b *Board) Current() Update {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers a viewer. The current label, if any, is delivered first.
func (b *Board) Subscribe() (string, <-chan Update) {
	id := randomID()
	ch := make(chan Update, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	if !b.current.UpdatedAt.IsZero() {
		ch <- b.current
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a viewer and closes its channel.
func (b *Board) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Close ends every subscription.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount returns the number of live viewers.
func (b *Board) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// ServeHTTP streams label updates as Server-Sent Events.
func (b *Board) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := b.Subscribe()
	defer b.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case u, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(u)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// AttachAdminRoutes adds a live label page to the debug mux served at /debug/.
func (b *Board) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("label", "current candidate label", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := labelTemplate.Execute(buf, b.Current()); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})
	debug.HandleSilent("label-tail", b)
}
