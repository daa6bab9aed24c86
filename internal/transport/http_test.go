package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/opendocs/chatstream/internal/config"
	"github.com/opendocs/chatstream/internal/stream"
)

func TestHTTPOpenStreamsBody(t *testing.T) {
	var gotBody string
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"delta":{"content":"ok"}}` + "\n"))
	}))
	defer server.Close()

	transport := NewHTTP(config.ServerConfig{
		Endpoint: server.URL,
		Headers:  map[string]string{"Authorization": "Bearer test-token"},
	})
	body, err := transport.Open(context.Background(), stream.Request{
		Message:            "hello",
		PreviousResponseID: "resp_1",
		Filters:            map[string]string{"team": "docs"},
		Limit:              5,
		ScoreThreshold:     0.4,
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":"ok"`)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "application/x-ndjson", gotHeaders.Get("Accept"))
	assert.Equal(t, "Bearer test-token", gotHeaders.Get("Authorization"))

	assert.Equal(t, "hello", gjson.Get(gotBody, "message").String())
	assert.True(t, gjson.Get(gotBody, "stream").Bool())
	assert.Equal(t, "resp_1", gjson.Get(gotBody, "previous_response_id").String())
	assert.Equal(t, "docs", gjson.Get(gotBody, "filters.team").String())
	assert.Equal(t, int64(5), gjson.Get(gotBody, "limit").Int())
	assert.InDelta(t, 0.4, gjson.Get(gotBody, "score_threshold").Float(), 1e-9)
}

func TestHTTPOpenOmitsOptionalFields(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte("\n"))
	}))
	defer server.Close()

	transport := NewHTTP(config.ServerConfig{Endpoint: server.URL})
	body, err := transport.Open(context.Background(), stream.Request{Message: "hi"})
	require.NoError(t, err)
	body.Close()

	assert.False(t, gjson.Get(gotBody, "previous_response_id").Exists())
	assert.False(t, gjson.Get(gotBody, "filters").Exists())
	assert.False(t, gjson.Get(gotBody, "limit").Exists())
	assert.False(t, gjson.Get(gotBody, "score_threshold").Exists())
}

func TestHTTPOpenRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport := NewHTTP(config.ServerConfig{Endpoint: server.URL})
	_, err := transport.Open(context.Background(), stream.Request{Message: "hi"})
	require.Error(t, err)

	se, ok := stream.AsStreamError(err)
	require.True(t, ok)
	assert.Equal(t, stream.ErrorKindTransport, se.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestHTTPOpenConnectionRefused(t *testing.T) {
	transport := NewHTTP(config.ServerConfig{Endpoint: "http://127.0.0.1:1/chat"})
	_, err := transport.Open(context.Background(), stream.Request{Message: "hi"})
	require.Error(t, err)

	se, ok := stream.AsStreamError(err)
	require.True(t, ok)
	assert.Equal(t, stream.ErrorKindTransport, se.Kind)
	assert.Zero(t, se.StatusCode)
}
