package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hamed0406/resymon/internal/domain"
	apimw "github.com/hamed0406/resymon/internal/httpapi/middleware"
	"github.com/hamed0406/resymon/internal/metrics"
	"github.com/hamed0406/resymon/internal/probe"
	"github.com/hamed0406/resymon/internal/resy"
)

// Engine is the monitor registry the API drives.
type Engine interface {
	Add(m domain.Monitor)
	Remove(id domain.MonitorID)
	List() []domain.Monitor
	Get(id domain.MonitorID) (domain.Monitor, bool)
	SetActive(id domain.MonitorID, active bool)
	Interval() time.Duration
}

type VenueLookup interface {
	LookupVenue(ctx context.Context, city, slug string) (resy.Venue, error)
}

const (
	DefaultCheckTimeout = 90 * time.Second
	maxBodyBytes        = 64 << 10
)

type Server struct {
	Logger       *zap.Logger
	Engine       Engine
	Venues       VenueLookup
	Checker      probe.Checker
	Gatherer     prometheus.Gatherer // nil disables /metrics
	CheckTimeout time.Duration       // bounds the synchronous first check
	Now          func() time.Time
}

func NewServer(l *zap.Logger, eng Engine, venues VenueLookup, c probe.Checker, g prometheus.Gatherer) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Logger:       l,
		Engine:       eng,
		Venues:       venues,
		Checker:      c,
		Gatherer:     g,
		CheckTimeout: DefaultCheckTimeout,
		Now:          time.Now,
	}
}

// Router wires the routes. An empty allowedOrigins list allows any origin;
// a zero rpm disables the matching rate limiter.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.Gatherer))
	}

	r.Route("/api/monitors", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst), apimw.RequireAny(keys))
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handleGet)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst), apimw.RequireAdmin(keys))
			r.Post("/", s.handleCreate)
			r.Delete("/{id}", s.handleRemove)
			r.Post("/{id}/pause", s.handleSetActive(false))
			r.Post("/{id}/resume", s.handleSetActive(true))
		})
	})
	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}).Handler
}

type createPayload struct {
	URL            string   `json:"url"`
	PartySize      int      `json:"party_size"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	Times          []string `json:"times"`
	OnlyOneWebhook bool     `json:"only_one_webhook"`
	StopOnMatch    *bool    `json:"stop_on_match"` // default true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var p createPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if strings.TrimSpace(p.URL) == "" || len(p.Times) == 0 {
		writeError(w, http.StatusBadRequest, "url and at least one time are required")
		return
	}

	m, err := buildMonitor(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	city, slug, err := resy.ParseVenueURL(m.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := s.Venues.LookupVenue(r.Context(), city, slug)
	if err != nil {
		s.Logger.Warn("venue_lookup_failed", zap.String("url", m.URL), zap.Error(err))
		if resy.IsUpstream(err) {
			writeError(w, http.StatusBadGateway, "Resy API error: "+err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "venue lookup failed")
		return
	}
	m.VenueID = v.ID
	m.VenueName = v.Name
	if m.VenueName == "" {
		m.VenueName = titleSlug(slug)
	}
	m.ID = domain.MonitorID(v.ID + "-" + uuid.NewString())
	m.CreatedAt = s.Now().UTC()

	// one synchronous check so the caller sees a result immediately
	timeout := s.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
	err = s.Checker.Check(checkCtx, &m)
	cancel()
	if err != nil {
		s.Logger.Warn("initial_check_failed", zap.String("monitor_id", string(m.ID)), zap.Error(err))
	}
	s.Engine.Add(m)

	s.Logger.Info("added_monitor",
		zap.String("monitor_id", string(m.ID)),
		zap.String("venue_name", m.VenueName),
		zap.Int("party_size", m.PartySize),
		zap.String("status", string(m.Status)),
	)
	writeJSON(w, http.StatusCreated, s.view(m))
}

func buildMonitor(p createPayload) (domain.Monitor, error) {
	start, err := domain.ParseDate(p.StartDate)
	if err != nil {
		return domain.Monitor{}, errors.New("start_date must be YYYY-MM-DD")
	}
	end, err := domain.ParseDate(p.EndDate)
	if err != nil {
		return domain.Monitor{}, errors.New("end_date must be YYYY-MM-DD")
	}

	seen := make(map[string]bool, len(p.Times))
	times := make([]string, 0, len(p.Times))
	for _, raw := range p.Times {
		t, err := domain.ToHHMM(raw)
		if err != nil {
			return domain.Monitor{}, err
		}
		if !seen[t] {
			seen[t] = true
			times = append(times, t)
		}
	}

	stop := true
	if p.StopOnMatch != nil {
		stop = *p.StopOnMatch
	}
	m := domain.Monitor{
		URL:            strings.TrimSpace(p.URL),
		PartySize:      p.PartySize,
		StartDate:      start,
		EndDate:        end,
		Times:          times,
		Active:         true,
		Status:         domain.StatusPolling,
		StatusMsg:      "Monitoring…",
		FoundSlots:     []domain.Slot{},
		OnlyOneWebhook: p.OnlyOneWebhook,
		StopOnMatch:    stop,
	}
	if err := m.Validate(); err != nil {
		return domain.Monitor{}, err
	}
	return m, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ms := s.Engine.List()
	out := make([]monitorView, 0, len(ms))
	for _, m := range ms {
		out = append(out, s.view(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.Engine.Get(domain.MonitorID(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.Engine.Remove(domain.MonitorID(chi.URLParam(r, "id")))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Engine.SetActive(domain.MonitorID(chi.URLParam(r, "id")), active)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func titleSlug(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
