package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/urisubmit/urisubmit/internal/config"
	"github.com/urisubmit/urisubmit/internal/metrics"
	"github.com/urisubmit/urisubmit/internal/payload"
	"github.com/urisubmit/urisubmit/internal/status"
	"github.com/urisubmit/urisubmit/internal/submit"
	"github.com/urisubmit/urisubmit/internal/webrisk"
)

const logMissing = "'operations' log not found"

type Submitter interface {
	Submit(ctx context.Context, req submit.Request) (submit.Result, error)
}

type Lister interface {
	List(ctx context.Context) ([]status.Row, error)
}

// LogChecker reports whether the durable name log has been created.
type LogChecker interface {
	HasLog() bool
}

type App struct {
	cfg       *config.Config
	submitter Submitter
	lister    Lister
	logs      LogChecker
	metrics   *metrics.Collector
	logger    *slog.Logger

	maxBody int64
	// OperationCount, when set, is exported as a gauge on the metrics page.
	OperationCount func() int
}

func NewApp(cfg *config.Config, submitter Submitter, lister Lister, logs LogChecker, m *metrics.Collector, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxBody, err := config.ParseByteSize(cfg.Server.HTTP.MaxRequestSize)
	if err != nil || maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &App{cfg: cfg, submitter: submitter, lister: lister, logs: logs, metrics: m, logger: logger, maxBody: maxBody}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get(a.cfg.Health.Path, func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ok\n") })
	r.Get(a.cfg.Health.ReadinessPath, func(w http.ResponseWriter, r *http.Request) { writeText(w, http.StatusOK, "ready\n") })
	if a.cfg.Metrics.On() && a.metrics != nil {
		r.Method(http.MethodGet, a.cfg.Metrics.Path, a.metrics.Handler(metrics.HandlerOptions{OperationCount: a.OperationCount}))
	}

	r.Get("/", a.index)
	r.Post("/submit", a.submit)
	r.Get("/operations", a.operationsPage)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/operations", a.listOperations)
	})

	return r
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	a.render(w, "index.html", nil)
}

func (a *App) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBody)
	if err := r.ParseMultipartForm(a.maxBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeText(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		writeText(w, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	req := submit.Request{
		ProjectNumber: r.FormValue("parent"),
		Fields: payload.Fields{
			URI:       r.FormValue("uri"),
			AbuseType: r.FormValue("abuseType"),
			Score:     r.FormValue("score"),
			Level:     r.FormValue("level"),
			Labels:    r.Form["labels"],
			Comments:  r.FormValue("comments"),
			Platform:  r.FormValue("platform"),
			Regions:   r.FormValue("regions"),
		},
		ServiceAccountKey: []byte(r.FormValue("sa_key")),
	}

	res, err := a.submitter.Submit(r.Context(), req)
	if err != nil {
		writeText(w, submitStatus(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Raw)
}

// submitStatus maps submission failures to a response code. Remote failures
// are reported as client errors; the caller's key or project is the usual
// cause.
func submitStatus(err error) int {
	var (
		ve *payload.ValidationError
		ce *webrisk.CredentialError
		re *webrisk.RemoteError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &ce), errors.As(err, &re):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) operationsPage(w http.ResponseWriter, r *http.Request) {
	if !a.logs.HasLog() {
		writeText(w, http.StatusNotFound, logMissing)
		return
	}
	rows, err := a.lister.List(r.Context())
	if err != nil {
		a.logger.Error("list operations", "error", err)
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.render(w, "operations.html", rows)
}

func (a *App) listOperations(w http.ResponseWriter, r *http.Request) {
	if !a.logs.HasLog() {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": logMissing})
		return
	}
	rows, err := a.lister.List(r.Context())
	if err != nil {
		a.logger.Error("list operations", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": rows})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}
