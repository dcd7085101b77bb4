package webrisk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitSendsPayloadAndToken(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"projects/123/operations/op1","metadata":{}}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", time.Second)
	raw, err := c.Submit(context.Background(), "tok", "123", json.RawMessage(`{"submission":{"uri":"x"}}`))
	require.NoError(t, err)

	assert.Equal(t, "/v1/projects/123/uris:submit", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.JSONEq(t, `{"submission":{"uri":"x"}}`, gotBody)
	assert.JSONEq(t, `{"name":"projects/123/operations/op1","metadata":{}}`, string(raw))
}

func TestSubmitNon2xxIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, time.Second).Submit(context.Background(), "tok", "123", json.RawMessage(`{}`))
	var re *RemoteError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, http.StatusForbidden, re.Status)
	assert.Contains(t, re.Body, "denied")
	assert.Contains(t, re.Error(), "HTTP 403")
}

func TestTimeoutIsRemoteError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	_, err := NewClient(srv.URL, 50*time.Millisecond).GetOperation(context.Background(), "tok", "projects/1/operations/slow")
	var re *RemoteError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Zero(t, re.Status)
	assert.Error(t, re.Err)
}

func TestGetOperationDecodesMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/1/operations/abc", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"name":"projects/1/operations/abc","metadata":{"state":"RUNNING","createTime":"2025-07-09T16:10:21.123Z"}}`))
	}))
	t.Cleanup(srv.Close)

	op, err := NewClient(srv.URL, time.Second).GetOperation(context.Background(), "tok", "projects/1/operations/abc")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", op.Metadata.State)
	assert.Equal(t, "2025-07-09T16:10:21.123Z", op.Metadata.CreateTime)
	assert.NotEmpty(t, op.Raw)
}

func TestNonJSONSuccessIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>proxy login</html>"))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, time.Second).GetOperation(context.Background(), "tok", "projects/1/operations/x")
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusOK, re.Status)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", 0)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}
