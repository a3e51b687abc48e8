// Package watcher monitors an inbox directory for batch files and converts
// each one as it arrives.
//
// A batch file (.txt, .csv or .dat) is converted once it has stopped
// changing. The result is saved to the archive and every step is broadcast
// to connected SSE clients.
package watcher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ryan-winkler/cfcalendar/internal/archive"
	"github.com/ryan-winkler/cfcalendar/internal/batch"
)

// batchExtensions are the file types we convert.
var batchExtensions = map[string]bool{
	".txt": true,
	".csv": true,
	".dat": true,
}

// Event is sent to SSE clients.
type Event struct {
	Type      string `json:"type"` // "started", "processing", "converted", "error"
	Filename  string `json:"filename,omitempty"`
	Output    string `json:"output,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Watcher monitors a directory for batch files.
type Watcher struct {
	dir      string
	calendar string
	units    batch.Scanner
	conv     batch.Converter
	archive  *archive.Archive
	logger   *slog.Logger

	// A file is converted once unchanged for settle, checked every tick.
	settle time.Duration
	tick   time.Duration

	mu      sync.Mutex
	clients map[chan Event]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	fsw      *fsnotify.Watcher

	// Files already converted, so rewrites and renames are not redone.
	processed map[string]bool
}

// New creates a Watcher for dir. Jobs without a calendar header use
// calendar. A nil archive converts without saving.
func New(dir, calendar string, sc batch.Scanner, conv batch.Converter, arc *archive.Archive, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:       dir,
		calendar:  calendar,
		units:     sc,
		conv:      conv,
		archive:   arc,
		logger:    logger,
		settle:    time.Second,
		tick:      500 * time.Millisecond,
		clients:   make(map[chan Event]struct{}),
		stopCh:    make(chan struct{}),
		processed: make(map[string]bool),
	}
}

// Start begins watching the directory. Call Stop to clean up.
func (w *Watcher) Start() error {
	if w.dir == "" {
		return fmt.Errorf("watch directory is empty")
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch dir %s: %w", w.dir, err)
	}
	w.fsw = fsw

	w.logger.Info("inbox watcher started", "dir", w.dir)
	w.broadcast(Event{Type: "started", Timestamp: now()})

	go w.loop()
	return nil
}

// Stop shuts down the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			w.fsw.Close()
		}
	})
}

// Subscribe returns a channel that receives watcher events.
func (w *Watcher) Subscribe() chan Event {
	ch := make(chan Event, 16)
	w.mu.Lock()
	w.clients[ch] = struct{}{}
	w.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (w *Watcher) Unsubscribe(ch chan Event) {
	w.mu.Lock()
	delete(w.clients, ch)
	w.mu.Unlock()
	close(ch)
}

func (w *Watcher) broadcast(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.clients {
		select {
		case ch <- ev:
		default:
			// slow client, drop
		}
	}
}

func wanted(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, archive.Suffix) {
		return false
	}
	return batchExtensions[filepath.Ext(name)]
}

func (w *Watcher) loop() {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !wanted(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-ticker.C:
			t := time.Now()
			for path, lastSeen := range pending {
				if t.Sub(lastSeen) < w.settle {
					continue // still being written
				}
				delete(pending, path)

				if w.processed[path] {
					continue
				}
				w.processed[path] = true

				go w.process(path)
			}
		}
	}
}

// process converts one batch file and reports the outcome.
func (w *Watcher) process(path string) {
	filename := filepath.Base(path)
	w.logger.Info("converting batch", "file", filename)
	w.broadcast(Event{Type: "processing", Filename: filename, Timestamp: now()})

	out, rows, err := w.convert(path)
	if err != nil {
		w.logger.Error("batch conversion failed", "file", filename, "error", err)
		w.broadcast(Event{Type: "error", Filename: filename, Error: err.Error(), Timestamp: now()})
		return
	}

	w.logger.Info("batch converted", "file", filename, "rows", rows, "output", out)
	w.broadcast(Event{Type: "converted", Filename: filename, Output: out, Rows: rows, Timestamp: now()})
}

func (w *Watcher) convert(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open batch: %w", err)
	}
	job, err := batch.Parse(f)
	f.Close()
	if err != nil {
		return "", 0, err
	}

	dates, err := batch.Run(job, w.units, w.conv, w.calendar)
	if err != nil {
		return "", 0, err
	}

	out, err := w.archive.Save(path, job, dates)
	if err != nil {
		return "", 0, err
	}
	return out, len(dates), nil
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

// SSEHandler streams watcher events as Server-Sent Events.
func (w *Watcher) SSEHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		flusher, ok := rw.(http.Flusher)
		if !ok {
			http.Error(rw, "streaming not supported", http.StatusInternalServerError)
			return
		}

		rw.Header().Set("Content-Type", "text/event-stream")
		rw.Header().Set("Cache-Control", "no-cache")
		rw.Header().Set("Connection", "keep-alive")

		ch := w.Subscribe()
		defer w.Unsubscribe(ch)

		fmt.Fprintf(rw, "data: {\"type\":\"connected\"}\n\n")
		flusher.Flush()

		for {
			select {
			case ev := <-ch:
				data, _ := json.Marshal(ev)
				fmt.Fprintf(rw, "data: %s\n\n", data)
				flusher.Flush()
			case <-r.Context().Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}
