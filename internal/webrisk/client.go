package webrisk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://webrisk.googleapis.com"
	DefaultTimeout = 20 * time.Second

	maxResponseSize = 10 * 1024 * 1024 // 10 MB
	tracerName      = "urisubmit/webrisk"
)

// Client calls the Web Risk submission and long-running operation endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// NewClient returns a client for baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer(tracerName),
	}
}

// Operation is the subset of google.longrunning.Operation the status view
// reads. Raw keeps the full response.
type Operation struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Metadata OperationMetadata `json:"metadata"`
	Raw      json.RawMessage   `json:"-"`
}

type OperationMetadata struct {
	State      string `json:"state"`
	CreateTime string `json:"createTime"`
	UpdateTime string `json:"updateTime"`
}

// Submit posts body to projects/{projectNumber}/uris:submit and returns the
// response JSON unchanged.
func (c *Client) Submit(ctx context.Context, token, projectNumber string, body json.RawMessage) (json.RawMessage, error) {
	parent := "projects/" + url.PathEscape(projectNumber)
	ctx, span := c.tracer.Start(ctx, "webrisk.SubmitUri",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("webrisk.parent", parent)))
	defer span.End()

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/"+parent+"/uris:submit", token, body, "submit uri")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, err
	}
	return raw, nil
}

// GetOperation fetches the long-running operation called name, e.g.
// projects/123/operations/abc.
func (c *Client) GetOperation(ctx context.Context, token, name string) (Operation, error) {
	ctx, span := c.tracer.Start(ctx, "webrisk.GetOperation",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("webrisk.operation", name)))
	defer span.End()

	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/"+strings.TrimLeft(name, "/"), token, nil, "get operation")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get operation failed")
		return Operation{}, err
	}
	var op Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		err = &RemoteError{Op: "get operation", Err: fmt.Errorf("decode operation: %w", err)}
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return Operation{}, err
	}
	op.Raw = raw
	span.SetAttributes(attribute.String("webrisk.state", op.Metadata.State))
	return op, nil
}

func (c *Client) do(ctx context.Context, method, target, token string, body json.RawMessage, op string) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if !json.Valid(b) {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("response is not json")}
	}
	return json.RawMessage(b), nil
}
