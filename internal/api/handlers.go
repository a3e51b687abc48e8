package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ryan-winkler/cfcalendar/internal/archive"
	"github.com/ryan-winkler/cfcalendar/internal/calendar"
	"github.com/ryan-winkler/cfcalendar/internal/httputil"
	"github.com/ryan-winkler/cfcalendar/internal/units"
)

type calendarRequest struct {
	Values   []float64 `json:"values"`
	Units    string    `json:"units"`
	Calendar string    `json:"calendar"`
	Style    string    `json:"style"` // "rows" (default) or "columns"
}

type calendarResponse struct {
	Units    string `json:"units"`
	Calendar string `json:"calendar"`

	// ResolvedAs is the calendar actually used; it differs from Calendar
	// for names that fall back to the standard calendar.
	ResolvedAs string `json:"resolved_as"`

	Dates   []calendar.DateTime `json:"dates,omitempty"`
	Columns *calendar.Columns   `json:"columns,omitempty"`
}

type invCalendarRequest struct {
	Dates []calendar.DateTime `json:"dates"`
	Units string              `json:"units"`
}

type invCalendarResponse struct {
	Units  string    `json:"units"`
	Values []float64 `json:"values"`
}

type unitResponse struct {
	Spec       string         `json:"spec"`
	Factor     float64        `json:"factor"`
	Origin     float64        `json:"origin"`
	HasOrigin  bool           `json:"has_origin"`
	IsTime     bool           `json:"is_time"`
	Dimensions map[string]int `json:"dimensions"`
	String     string         `json:"string"`

	// Reference is the date a time unit's origin denotes.
	Reference *calendar.DateTime `json:"reference,omitempty"`
}

type convertResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

type calendarName struct {
	Name        string `json:"name"`
	ResolvesTo  string `json:"resolves_to"`
	Implemented bool   `json:"implemented"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if !s.opts.Units.Initialized() {
		status, code = "units not loaded", http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]string{"status": status, "version": s.opts.Version})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	var req calendarRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Units == "" {
		httputil.Error(w, r, s.logger, http.StatusBadRequest, "units is required",
			"calendar request without units")
		return
	}
	if req.Style != "" && req.Style != "rows" && req.Style != "columns" {
		httputil.Error(w, r, s.logger, http.StatusBadRequest, fmt.Sprintf("unknown style %q, want rows or columns", req.Style),
			"calendar request with unsupported style")
		return
	}
	if req.Calendar == "" {
		req.Calendar = s.opts.Calendar
	}

	u, err := s.opts.Units.Scan(req.Units)
	if err != nil {
		s.fail(w, r, err, "units did not scan")
		return
	}
	dates, err := s.opts.Converter.ConvertAll(req.Values, u, req.Calendar)
	if err != nil {
		s.fail(w, r, err, "batch conversion failed")
		return
	}

	resp := calendarResponse{Units: req.Units, Calendar: req.Calendar, ResolvedAs: resolvedAs(req.Calendar)}
	if req.Style == "columns" {
		cols := calendar.ToColumns(dates)
		resp.Columns = &cols
	} else {
		resp.Dates = dates
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func resolvedAs(name string) string {
	kind := calendar.Resolve(name)
	if !kind.Implemented() {
		kind = calendar.KindStandard
	}
	return kind.String()
}

func (s *Server) handleInvCalendar(w http.ResponseWriter, r *http.Request) {
	var req invCalendarRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Units == "" {
		httputil.Error(w, r, s.logger, http.StatusBadRequest, "units is required",
			"invcalendar request without units")
		return
	}
	u, err := s.opts.Units.Scan(req.Units)
	if err != nil {
		s.fail(w, r, err, "units did not scan")
		return
	}
	values, err := s.opts.Converter.InvertAll(req.Dates, u)
	if err != nil {
		s.fail(w, r, err, "inverse conversion failed")
		return
	}
	httputil.JSON(w, http.StatusOK, invCalendarResponse{Units: req.Units, Values: values})
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	spec := r.URL.Query().Get("spec")
	if spec == "" {
		httputil.Error(w, r, s.logger, http.StatusBadRequest, "spec is required",
			"units request without spec parameter")
		return
	}
	u, err := s.opts.Units.Scan(spec)
	if err != nil {
		s.fail(w, r, err, "units did not scan")
		return
	}
	resp := unitResponse{
		Spec:       spec,
		Factor:     u.Factor,
		Origin:     u.Origin,
		HasOrigin:  units.HasOrigin(u),
		IsTime:     units.IsTime(u),
		Dimensions: u.Dimensions(),
		String:     u.String(),
	}
	if resp.IsTime && resp.HasOrigin {
		if ref, _, err := s.opts.Converter.ReferenceDate(0, u); err == nil {
			resp.Reference = &ref
		}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		httputil.Error(w, r, s.logger, http.StatusBadRequest, "from and to are required",
			"convert request missing a unit")
		return
	}
	fu, err := s.opts.Units.Scan(from)
	if err != nil {
		s.fail(w, r, err, "from units did not scan")
		return
	}
	tu, err := s.opts.Units.Scan(to)
	if err != nil {
		s.fail(w, r, err, "to units did not scan")
		return
	}
	slope, intercept, err := s.opts.Units.Convert(fu, tu)
	if err != nil {
		s.fail(w, r, err, "units not convertible")
		return
	}
	httputil.JSON(w, http.StatusOK, convertResponse{From: from, To: to, Slope: slope, Intercept: intercept})
}

func (s *Server) handleCalendars(w http.ResponseWriter, r *http.Request) {
	names := calendar.Names()
	out := make([]calendarName, len(names))
	for i, n := range names {
		out[i] = calendarName{Name: n.Name, ResolvesTo: n.Kind.String(), Implemented: n.Kind.Implemented()}
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"default": s.opts.Calendar, "calendars": out})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	entries, err := archive.Scan(s.opts.ResultsDir, s.opts.HistoryLimit)
	if err != nil {
		httputil.ServerError(w, r, s.logger, "could not list results", "archive scan failed", err)
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"results": entries})
}

// decode reads a JSON body into v, answering the request itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httputil.Error(w, r, s.logger, http.StatusRequestEntityTooLarge, "request body too large",
				fmt.Sprintf("body exceeds %d bytes", maxBody))
			return false
		}
		httputil.Error(w, r, s.logger, http.StatusBadRequest, "invalid JSON body",
			strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}

// fail answers with the status matching err's kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, why string) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		httputil.ServerError(w, r, s.logger, "conversion failed", why, err)
		return
	}
	code := units.Code(err)
	if code == units.CodeOther {
		code = 0
	}
	httputil.ErrorCode(w, r, s.logger, status, code, err.Error(), why)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, calendar.ErrUninitialized),
		errors.Is(err, units.ErrNotInitialized),
		errors.Is(err, units.ErrNoFile),
		errors.Is(err, units.ErrIO):
		return http.StatusServiceUnavailable
	case errors.Is(err, calendar.ErrEmptyBatch),
		errors.Is(err, units.ErrSyntax),
		errors.Is(err, units.ErrUnknown):
		return http.StatusBadRequest
	case errors.Is(err, calendar.ErrValueRange),
		errors.Is(err, units.ErrInvalid),
		errors.Is(err, units.ErrNotTime),
		errors.Is(err, units.ErrConvert):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
