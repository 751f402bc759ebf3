package netsink

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/behavelog/internal/logging"
	"github.com/coffersTech/behavelog/internal/model"
)

type collector struct {
	mu       sync.Mutex
	status   int
	requests []*http.Request
	payloads []Payload
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p Payload
	_ = json.NewDecoder(r.Body).Decode(&p)
	c.mu.Lock()
	c.requests = append(c.requests, r)
	c.payloads = append(c.payloads, p)
	status := c.status
	c.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func newSink(t *testing.T, endpoint string, batch int) (*Sink, string) {
	t.Helper()
	fallback := filepath.Join(t.TempDir(), "logs", "NetworkLogs_Fallback.txt")
	s := New(Options{
		Endpoint:      endpoint,
		BatchSize:     batch,
		FlushInterval: time.Hour,
		Timeout:       2 * time.Second,
		FallbackPath:  fallback,
		DeviceID:      "dev-1",
		AppVersion:    "1.0.0",
		Platform:      "linux",
		Logger:        logging.Discard(),
	})
	return s, fallback
}

func warnings(n int) []model.Record {
	out := make([]model.Record, n)
	for i := range out {
		out[i] = model.NewRecord("disk almost full", model.LevelWarning, "IO")
	}
	return out
}

func TestSendsBatchPayload(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s, fallback := newSink(t, srv.URL, 50)
	for _, r := range warnings(3) {
		require.NoError(t, s.Write(r))
	}
	require.NoError(t, s.Flush())
	require.Eventually(t, func() bool { return c.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Close())

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, http.MethodPost, c.requests[0].Method)
	assert.Equal(t, "application/json", c.requests[0].Header.Get("Content-Type"))
	p := c.payloads[0]
	assert.Equal(t, "dev-1", p.DeviceID)
	assert.Equal(t, "1.0.0", p.AppVersion)
	assert.Equal(t, "linux", p.Platform)
	require.Len(t, p.Logs, 3)
	assert.Equal(t, model.LevelWarning, p.Logs[0].Level)

	assert.Equal(t, int64(3), s.Stats().Sent)
	_, err := os.Stat(fallback)
	assert.True(t, os.IsNotExist(err))
}

func TestFailureWritesOneFallbackLinePerRecord(t *testing.T) {
	c := &collector{status: http.StatusInternalServerError}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s, fallback := newSink(t, srv.URL, 50)
	recs := warnings(4)
	for _, r := range recs {
		require.NoError(t, s.Write(r))
	}
	require.NoError(t, s.Close())

	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	for i, line := range lines {
		assert.Equal(t, "[NETWORK_FALLBACK] "+recs[i].String(), line)
	}
	assert.Equal(t, 1, c.count(), "no retry")
	assert.Equal(t, int64(4), s.Stats().Fallback)
}

func TestUnreachableEndpointFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, fallback := newSink(t, url, 50)
	require.NoError(t, s.Write(warnings(1)[0]))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "[NETWORK_FALLBACK]"))
}

func TestEmptyQueueSendsNothing(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s, _ := newSink(t, srv.URL, 50)
	require.NoError(t, s.Flush())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Close())
	assert.Equal(t, 0, c.count())
}

func TestBelowWarningIsDropped(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s, _ := newSink(t, srv.URL, 50)
	require.NoError(t, s.Write(model.NewRecord("fps 60", model.LevelInfo, "Perf")))
	require.NoError(t, s.Write(model.NewRecord("tick", model.LevelDebug, "Perf")))
	assert.Equal(t, 0, s.Stats().Queued)
	require.NoError(t, s.Close())
	assert.Equal(t, 0, c.count())
}

func TestCloseDrainsInBatches(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	s, _ := newSink(t, srv.URL, 2)
	for _, r := range warnings(5) {
		require.NoError(t, s.Write(r))
	}
	require.NoError(t, s.Close())

	assert.Equal(t, 3, c.count())
	assert.Equal(t, int64(5), s.Stats().Sent)
	assert.Error(t, s.Write(warnings(1)[0]))
}

func TestDisabledWithoutEndpoint(t *testing.T) {
	s, fallback := newSink(t, "", 50)
	assert.True(t, s.Disabled())
	require.NoError(t, s.Write(warnings(1)[0]))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())
	assert.Equal(t, Stats{}, s.Stats())
	_, err := os.Stat(fallback)
	assert.True(t, os.IsNotExist(err))
}
