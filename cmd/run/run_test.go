package run

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursepulse/telemetry/internal/httpclient"
	"github.com/coursepulse/telemetry/internal/telemetry"
)

type recordingSink struct {
	mu     sync.Mutex
	values map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{values: make(map[string]float64)}
}

func (s *recordingSink) UpdateMetric(name string, value float64) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

func (s *recordingSink) TrackFeatureUsage(string) {}

func (s *recordingSink) value(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// Failed deliveries to any collector endpoint must never feed back into the
// instrumented metrics: a dead collector would otherwise drive errorRate to
// 100 and fire alerts whose delivery fails and feeds back again.
func TestInstrumentOutboundSkipsCollectorEndpoints(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	logsURL := server.URL + "/api/logs"
	alertsURL := server.URL + "/api/monitoring/alerts"
	eventsURL := server.URL + "/api/monitoring/logs"

	sink := newRecordingSink()
	instrument := telemetry.NewInstrumentor(nil, nil, sink)

	client := httpclient.New(nil)
	t.Cleanup(client.Close)
	instrumentOutbound(client, instrument, logsURL, alertsURL, eventsURL)

	ctx := context.Background()
	for _, url := range []string{logsURL, alertsURL, eventsURL} {
		resp, err := client.Post(ctx, url, "application/json", []byte(`{}`))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	assert.Zero(t, sink.value("errorRate"), "delivery failures are not application traffic")
	assert.Zero(t, sink.value("apiResponseTime"))
}

func TestInstrumentOutboundRecordsApplicationTraffic(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	sink := newRecordingSink()
	instrument := telemetry.NewInstrumentor(nil, nil, sink)

	client := httpclient.New(nil)
	t.Cleanup(client.Close)
	instrumentOutbound(client, instrument, server.URL+"/api/logs")

	resp, err := client.Get(context.Background(), server.URL+"/api/courses")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Eventually(t, func() bool {
		return sink.value("apiResponseTime") > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, sink.value("errorRate"))
}
