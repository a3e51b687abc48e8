package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ryan-winkler/cfcalendar/internal/archive"
	"github.com/ryan-winkler/cfcalendar/internal/batch"
	"github.com/ryan-winkler/cfcalendar/internal/calendar"
	"github.com/ryan-winkler/cfcalendar/internal/httputil"
	"github.com/ryan-winkler/cfcalendar/internal/ratelimit"
	"github.com/ryan-winkler/cfcalendar/internal/units"
)

func newTestServer(t *testing.T, edit func(*Options)) http.Handler {
	t.Helper()
	sys := units.New()
	if err := sys.Init(""); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{
		Units:     sys,
		Converter: calendar.New(sys, logger),
		Logger:    logger,
		Version:   "test",
	}
	if edit != nil {
		edit(&opts)
	}
	return New(opts).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(hdr); i += 2 {
		r.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestCalendarRows(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/v1/calendar",
		`{"values":[0,146000],"units":"days since 0001-01-01","calendar":"360_day"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[calendarResponse](t, w)
	if resp.ResolvedAs != "360_day" || len(resp.Dates) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if want := (calendar.DateTime{Year: 406, Month: 7, Day: 21}); resp.Dates[1] != want {
		t.Errorf("Dates[1] = %v, want %v", resp.Dates[1], want)
	}
}

func TestCalendarColumnsAndDefault(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.Calendar = "noleap" })
	w := do(t, h, http.MethodPost, "/v1/calendar",
		`{"values":[0,365],"units":"days since 1850-01-01","style":"columns"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[calendarResponse](t, w)
	if resp.Calendar != "noleap" || resp.Columns == nil || resp.Dates != nil {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Columns.Year[1] != 1851 || resp.Columns.Month[1] != 1 || resp.Columns.Day[1] != 1 {
		t.Errorf("columns = %+v", resp.Columns)
	}
}

func TestCalendarFallback(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/v1/calendar",
		`{"values":[1],"units":"days since 2000-01-01","calendar":"all_leap"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeBody[calendarResponse](t, w); resp.ResolvedAs != "standard" {
		t.Errorf("ResolvedAs = %q, want standard", resp.ResolvedAs)
	}
}

func TestCalendarErrors(t *testing.T) {
	h := newTestServer(t, nil)
	tests := []struct {
		body   string
		status int
		code   int
	}{
		{`{"values":[1]}`, http.StatusBadRequest, 0},
		{`{"values":[1],"units":"days since 2000-01-01","style":"grid"}`, http.StatusBadRequest, 0},
		{`{"values":[],"units":"days since 2000-01-01"}`, http.StatusBadRequest, 0},
		{`{"values":[1],"units":"fortnights since 2000-01-01","extra":1}`, http.StatusBadRequest, 0},
		{`not json`, http.StatusBadRequest, 0},
		{`{"values":[1],"units":"furlongs since 2000-01-01"}`, http.StatusBadRequest, units.CodeUnknown},
		{`{"values":[1],"units":"meters"}`, http.StatusUnprocessableEntity, units.CodeNotTime},
		{`{"values":[1e300],"units":"days since 2000-01-01","calendar":"noleap"}`, http.StatusUnprocessableEntity, 0},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodPost, "/v1/calendar", tt.body)
		if w.Code != tt.status {
			t.Errorf("%s: status = %d, want %d (%s)", tt.body, w.Code, tt.status, w.Body.String())
			continue
		}
		body := decodeBody[httputil.ErrorBody](t, w)
		if body.Code != tt.code {
			t.Errorf("%s: code = %d, want %d", tt.body, body.Code, tt.code)
		}
		if body.RequestID == "" {
			t.Errorf("%s: error body has no request id", tt.body)
		}
	}
}

func TestBodyTooLarge(t *testing.T) {
	h := newTestServer(t, nil)
	big := `{"units":"s since 2000-01-01","values":[` + strings.Repeat("1,", maxBody) + `1]}`
	w := do(t, h, http.MethodPost, "/v1/calendar", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestInvCalendar(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/v1/invcalendar",
		`{"dates":[{"year":1970,"month":1,"day":11}],"units":"days since 1970-01-01"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeBody[invCalendarResponse](t, w); len(resp.Values) != 1 || resp.Values[0] != 10 {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, h, http.MethodPost, "/v1/invcalendar",
		`{"dates":[{"year":1970,"month":14,"day":1}],"units":"days since 1970-01-01"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date: status = %d", w.Code)
	}
}

func TestUnits(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodGet, "/v1/units?spec=hours+since+1979-01-01+06:00", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[unitResponse](t, w)
	if resp.Factor != 3600 || !resp.IsTime || !resp.HasOrigin || resp.Dimensions["s"] != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Reference == nil || *resp.Reference != (calendar.DateTime{Year: 1979, Month: 1, Day: 1, Hour: 6}) {
		t.Errorf("Reference = %v", resp.Reference)
	}

	if w := do(t, h, http.MethodGet, "/v1/units", ""); w.Code != http.StatusBadRequest {
		t.Errorf("no spec: status = %d", w.Code)
	}
}

func TestConvert(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodGet, "/v1/convert?from=degC&to=K", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[convertResponse](t, w)
	if resp.Slope != 1 || resp.Intercept != 273.15 {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, h, http.MethodGet, "/v1/convert?from=m&to=s", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("incompatible: status = %d", w.Code)
	}
	if body := decodeBody[httputil.ErrorBody](t, w); body.Code != units.CodeConvert {
		t.Errorf("code = %d", body.Code)
	}
}

func TestCalendars(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodGet, "/v1/calendars", "")
	body := decodeBody[struct {
		Default   string         `json:"default"`
		Calendars []calendarName `json:"calendars"`
	}](t, w)
	if body.Default != "standard" || len(body.Calendars) != len(calendar.Names()) {
		t.Fatalf("body = %+v", body)
	}
	for _, c := range body.Calendars {
		if c.Name == "julian" && c.Implemented {
			t.Error("julian reported as implemented")
		}
		if c.Name == "365_day" && c.ResolvesTo != "noleap" {
			t.Errorf("365_day resolves to %q", c.ResolvesTo)
		}
	}
}

func TestResults(t *testing.T) {
	dir := t.TempDir()
	arc := archive.New(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	job := &batch.Job{Units: "days since 2000-01-01", Values: []float64{1}}
	if _, err := arc.Save("one.txt", job, []units.DateTime{{Year: 2000, Month: 1, Day: 2}}); err != nil {
		t.Fatal(err)
	}

	h := newTestServer(t, func(o *Options) { o.ResultsDir = dir; o.HistoryLimit = 10 })
	w := do(t, h, http.MethodGet, "/v1/results", "")
	body := decodeBody[map[string][]archive.Entry](t, w)
	if len(body["results"]) != 1 || body["results"][0].Rows != 1 {
		t.Errorf("body = %+v", body)
	}

	empty := newTestServer(t, nil)
	if w := do(t, empty, http.MethodGet, "/v1/results", ""); !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("no archive: body = %s", w.Body.String())
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.AuthToken = "s3cret" })
	if w := do(t, h, http.MethodGet, "/v1/calendars", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/v1/calendars", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/v1/calendars", "", "Authorization", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Errorf("good token: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz needs no token: status = %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, nil)
	w := do(t, h, http.MethodGet, "/healthz", "", "X-Request-ID", "trace-42")
	if got := w.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("X-Request-ID = %q, want trace-42", got)
	}
	w = do(t, h, http.MethodGet, "/healthz", "", "X-Request-ID", "has spaces")
	if got := w.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("X-Request-ID = %q, want a fresh UUID", got)
	}
}

func TestRateLimited(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.Limiter = ratelimit.New(1, time.Minute, nil) })
	do(t, h, http.MethodGet, "/healthz", "")
	w := do(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("limited response has no request id")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, nil)
	if w := do(t, h, http.MethodGet, "/v1/calendar", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}
