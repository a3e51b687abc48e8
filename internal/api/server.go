// Package api serves calendar and unit conversions over HTTP.
package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryan-winkler/cfcalendar/internal/calendar"
	"github.com/ryan-winkler/cfcalendar/internal/httputil"
	"github.com/ryan-winkler/cfcalendar/internal/ratelimit"
	"github.com/ryan-winkler/cfcalendar/internal/units"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Options configures a Server. Units and Converter are required.
type Options struct {
	Units     *units.System
	Converter *calendar.Converter
	Logger    *slog.Logger

	// Calendar is used when a request names none.
	Calendar string

	// ResultsDir and HistoryLimit back GET /v1/results.
	ResultsDir   string
	HistoryLimit int

	// Events, when set, is served at GET /v1/events.
	Events http.Handler

	AuthToken string
	Limiter   *ratelimit.Limiter

	// AccessLog logs every request as JSON to stdout.
	AccessLog bool

	Version string
}

// Server holds the API handlers.
type Server struct {
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// New builds a Server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Calendar == "" {
		opts.Calendar = calendar.KindStandard.String()
	}
	s := &Server{opts: opts, logger: opts.Logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/calendar", s.withAuth(s.handleCalendar))
	s.mux.HandleFunc("POST /v1/invcalendar", s.withAuth(s.handleInvCalendar))
	s.mux.HandleFunc("GET /v1/units", s.withAuth(s.handleUnits))
	s.mux.HandleFunc("GET /v1/convert", s.withAuth(s.handleConvert))
	s.mux.HandleFunc("GET /v1/calendars", s.withAuth(s.handleCalendars))
	s.mux.HandleFunc("GET /v1/results", s.withAuth(s.handleResults))
	if opts.Events != nil {
		s.mux.Handle("GET /v1/events", s.withAuth(opts.Events.ServeHTTP))
	}
	return s
}

// Handler returns the routes wrapped in request ids, access logging, rate
// limiting and security headers.
func (s *Server) Handler() http.Handler {
	var h http.Handler = secure(s.mux)
	if s.opts.Limiter != nil {
		h = s.opts.Limiter.Middleware(h)
	}
	if s.opts.AccessLog {
		h = accessLog(h)
	}
	return requestID(h)
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.opts.AuthToken == "" {
		return next
	}
	expected := []byte("Bearer " + s.opts.AuthToken)
	return func(w http.ResponseWriter, r *http.Request) {
		token := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(token, expected) != 1 {
			// Wrong and missing tokens look the same to the client.
			httputil.Error(w, r, s.logger, http.StatusUnauthorized, "unauthorized",
				"Bearer token mismatch or missing Authorization header")
			return
		}
		next(w, r)
	}
}

// requestID propagates X-Request-ID, minting a UUID when the client sent
// none or an unusable one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(httputil.RequestIDHeader)
		if !validID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(httputil.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(httputil.WithRequestID(r.Context(), id)))
	})
}

func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool { return r < '!' || r > '~' }) < 0
}

func secure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"bytes", rw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
			"request_id", httputil.RequestID(r.Context()),
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter records the status and size of a response.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Flush keeps event streams working through the access log.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
