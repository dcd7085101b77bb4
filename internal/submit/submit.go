// Package submit sends a suspicious URI to Web Risk and records the returned
// operation locally.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/urisubmit/urisubmit/internal/metrics"
	"github.com/urisubmit/urisubmit/internal/payload"
	"github.com/urisubmit/urisubmit/internal/webrisk"
)

// Remote is the uris:submit RPC.
type Remote interface {
	Submit(ctx context.Context, token, projectNumber string, body json.RawMessage) (json.RawMessage, error)
}

// Recorder persists an accepted operation.
type Recorder interface {
	Record(ctx context.Context, name, url string, payload json.RawMessage) error
}

type Request struct {
	ProjectNumber     string
	Fields            payload.Fields
	ServiceAccountKey []byte
}

// Result is the remote response. Raw is returned to callers unchanged.
type Result struct {
	Name string
	Raw  json.RawMessage
}

type Service struct {
	remote   Remote
	tokens   webrisk.TokenProvider
	recorder Recorder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewService wires the orchestrator. recorder, m and logger may be nil.
func NewService(remote Remote, tokens webrisk.TokenProvider, recorder Recorder, m *metrics.Collector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{remote: remote, tokens: tokens, recorder: recorder, metrics: m, logger: logger}
}

// Submit validates the request, builds the payload, exchanges the key for a
// token and calls Web Risk. Once the remote call succeeds the result is
// returned even if recording it locally fails.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	res, err := s.submit(ctx, req)
	if err != nil {
		s.metrics.IncSubmissionFailure(failureKind(err))
		return Result{}, err
	}
	s.metrics.IncSubmission()
	return res, nil
}

func (s *Service) submit(ctx context.Context, req Request) (Result, error) {
	project := strings.TrimSpace(req.ProjectNumber)
	uri := strings.TrimSpace(req.Fields.URI)
	if project == "" || uri == "" {
		return Result{}, &payload.ValidationError{Msg: "project number and uri are required"}
	}

	p, err := payload.Build(req.Fields)
	if err != nil {
		return Result{}, err
	}
	body, err := p.JSON()
	if err != nil {
		return Result{}, err
	}
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		var pretty bytes.Buffer
		_ = json.Indent(&pretty, body, "", "  ")
		s.logger.Debug("payload sent to web risk", "parent", "projects/"+project, "payload", pretty.String())
	}

	token, err := s.tokens.Token(ctx, bytes.TrimSpace(req.ServiceAccountKey))
	if err != nil {
		return Result{}, err
	}

	raw, err := s.remote.Submit(ctx, token, project, body)
	if err != nil {
		s.logger.Warn("web risk submission failed", "parent", "projects/"+project, "error", err)
		return Result{}, err
	}

	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		err = &webrisk.RemoteError{Op: "submit uri", Status: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
		s.logger.Warn("web risk response is not an operation", "parent", "projects/"+project, "error", err)
		return Result{}, err
	}
	if resp.Name == "" {
		s.logger.Warn("web risk response has no operation name", "parent", "projects/"+project)
		return Result{Raw: raw}, nil
	}

	s.logger.Info("uri submitted", "operation", resp.Name, "uri", p.Submission.URI)
	if s.recorder != nil {
		// The operation already exists remotely; a cancelled request must not
		// lose the local breadcrumb.
		if err := s.recorder.Record(context.WithoutCancel(ctx), resp.Name, p.Submission.URI, body); err != nil {
			s.metrics.IncPersistFailure()
			s.logger.Error("record operation failed", "operation", resp.Name, "error", err)
		}
	}
	return Result{Name: resp.Name, Raw: raw}, nil
}

func failureKind(err error) string {
	var (
		ve *payload.ValidationError
		ce *webrisk.CredentialError
		re *webrisk.RemoteError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ce):
		return "credential"
	case errors.As(err, &re):
		return "remote"
	default:
		return "internal"
	}
}
