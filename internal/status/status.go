// Package status joins locally recorded operations with their live Web Risk
// state for display.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/urisubmit/urisubmit/internal/metrics"
	"github.com/urisubmit/urisubmit/internal/store"
	"github.com/urisubmit/urisubmit/internal/webrisk"
)

const (
	ClassSuccess = "success"
	ClassRunning = "running"
	ClassClosed  = "closed"

	StateError   = "ERROR"
	StateUnknown = "UNKNOWN"

	UnknownURL = "(unknown)"
	NoTime     = "-"

	// TimeLayout renders e.g. 09 Jul 2025 16:10:21.
	TimeLayout = "02 Jan 2006 15:04:05"

	DefaultConcurrency = 4
)

type Row struct {
	Name       string `json:"name"`
	Time       string `json:"time"`
	URL        string `json:"url"`
	Payload    string `json:"payload"`
	State      string `json:"state"`
	StateClass string `json:"state_class"`
}

type Records interface {
	List(ctx context.Context) ([]store.Record, error)
	Get(ctx context.Context, name string) (store.Record, error)
}

type Remote interface {
	GetOperation(ctx context.Context, token, name string) (webrisk.Operation, error)
}

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Aggregator struct {
	records     Records
	remote      Remote
	tokens      TokenSource
	concurrency int
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// New returns an aggregator. concurrency bounds in-flight status lookups;
// values below 1 use DefaultConcurrency.
func New(records Records, remote Remote, tokens TokenSource, concurrency int, m *metrics.Collector, logger *slog.Logger) *Aggregator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{records: records, remote: remote, tokens: tokens, concurrency: concurrency, metrics: m, logger: logger}
}

// List returns one row per known operation, newest first. A failed status
// lookup yields an ERROR row for that operation only.
func (a *Aggregator) List(ctx context.Context) ([]Row, error) {
	recs, err := a.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	named := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Name != "" {
			named = append(named, rec)
		}
	}
	if len(named) == 0 {
		return []Row{}, nil
	}

	token, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, len(named))
	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, rec := range named {
		g.Go(func() error {
			rows[i] = a.row(ctx, token, rec)
			return nil
		})
	}
	_ = g.Wait()

	a.metrics.AddListed(len(rows))
	return rows, nil
}

func (a *Aggregator) row(ctx context.Context, token string, rec store.Record) Row {
	op, err := a.remote.GetOperation(ctx, token, rec.Name)
	if err != nil {
		a.metrics.IncStatusError()
		a.logger.Warn("operation status lookup failed", "operation", rec.Name, "error", err)
		return ErrorRow(rec.Name, err)
	}

	if rec.URL == "" && rec.Payload == nil {
		if full, err := a.records.Get(ctx, rec.Name); err == nil {
			rec = full
		} else if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("operation record lookup failed", "operation", rec.Name, "error", err)
		}
	}
	url := rec.URL
	if url == "" {
		url = UnknownURL
	}

	state := op.Metadata.State
	if state == "" {
		state = StateUnknown
	}
	return Row{
		Name:       rec.Name,
		Time:       FormatTime(op.Metadata.CreateTime),
		URL:        url,
		Payload:    PrettyPayload(rec.Payload),
		State:      state,
		StateClass: ClassFor(state),
	}
}

// ErrorRow is the row shown for an operation whose status could not be read.
func ErrorRow(name string, err error) Row {
	return Row{
		Name:       name,
		Time:       NoTime,
		URL:        name,
		Payload:    "ERROR: " + err.Error(),
		State:      StateError,
		StateClass: ClassClosed,
	}
}

// ClassFor maps a remote state to its display class.
func ClassFor(state string) string {
	switch state {
	case "SUCCEEDED":
		return ClassSuccess
	case "RUNNING":
		return ClassRunning
	default:
		return ClassClosed
	}
}

// FormatTime renders an RFC 3339 timestamp in TimeLayout, keeping its own
// offset. Empty or unparseable input renders as NoTime.
func FormatTime(iso string) string {
	if iso == "" {
		return NoTime
	}
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return NoTime
	}
	return t.Format(TimeLayout)
}

// PrettyPayload indents stored payload JSON with two spaces. A missing
// payload renders as an empty object.
func PrettyPayload(p json.RawMessage) string {
	if len(bytes.TrimSpace(p)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, p, "", "  "); err != nil {
		return string(p)
	}
	return buf.String()
}
