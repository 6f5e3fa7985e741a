package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetsUserAgent(t *testing.T) {
	t.Parallel()

	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
	}))
	t.Cleanup(server.Close)

	client := New(nil)
	t.Cleanup(client.Close)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "coursepulse-telemetryd", userAgent.Load())
}

func TestPostMarshalsStructsAsJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Metric string  `json:"metric"`
		Value  float64 `json:"value"`
	}

	var received payload
	var contentType atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType.Store(r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
	}))
	t.Cleanup(server.Close)

	client := New(nil)
	t.Cleanup(client.Close)

	resp, err := client.Post(context.Background(), server.URL, "", payload{Metric: "errorRate", Value: 7.5})
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "application/json", contentType.Load())
	assert.Equal(t, "errorRate", received.Metric)
	assert.Equal(t, 7.5, received.Value)
}

func TestDoAppliesDefaultTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	client := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	t.Cleanup(client.Close)

	_, err := client.Get(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestHooksInvoked(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(server.Close)

	client := New(nil)
	t.Cleanup(client.Close)

	var beforeCalls, afterCalls atomic.Int32
	var status atomic.Int32
	client.SetBeforeRequestHook(func(*http.Request) { beforeCalls.Add(1) })
	client.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		afterCalls.Add(1)
		if resp != nil {
			status.Store(int32(resp.StatusCode))
		}
	})

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, int32(1), beforeCalls.Load())
	assert.Equal(t, int32(1), afterCalls.Load())
	assert.Equal(t, int32(http.StatusTeapot), status.Load())
}

func TestDoNilRequest(t *testing.T) {
	t.Parallel()

	client := New(nil)
	t.Cleanup(client.Close)

	_, err := client.Do(context.Background(), nil)
	assert.Error(t, err)
}
