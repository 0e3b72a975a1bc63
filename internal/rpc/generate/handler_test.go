package generate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/IAMD3/ykgen/internal/observability"
	"github.com/IAMD3/ykgen/internal/rpc"
)

func TestHandlerStreamsEvents(t *testing.T) {
	handler := NewHandler(EchoRunner{}, observability.NewMetrics())
	body := bytes.NewBufferString(`{"session_id":"test","prompt":"a fox finds a lantern"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []rpc.GenerateEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var evt rpc.GenerateEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
		events = append(events, evt)
	}

	require.Len(t, events, 2)
	require.Equal(t, "echo", events[0].Stage)
	require.Equal(t, "test", events[0].SessionID)
	require.True(t, events[1].Done)
}

func TestHandlerRejectsGet(t *testing.T) {
	handler := NewHandler(EchoRunner{}, observability.NewMetrics())
	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandlerRejectsEmptyPrompt(t *testing.T) {
	handler := NewHandler(EchoRunner{}, observability.NewMetrics())
	body := bytes.NewBufferString(`{"session_id":"test"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerAssignsSessionID(t *testing.T) {
	handler := NewHandler(EchoRunner{}, observability.NewMetrics())
	body := bytes.NewBufferString(`{"prompt":"a fox"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	scanner := bufio.NewScanner(rr.Result().Body)
	require.True(t, scanner.Scan())
	var evt rpc.GenerateEvent
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &evt))
	require.NotEmpty(t, evt.SessionID)
	require.NotEmpty(t, evt.CorrelationID)
}

// brokenStreamWriter fails every body write, standing in for a client that
// dropped the connection mid-stream.
type brokenStreamWriter struct {
	header http.Header
	status int
	writes int
}

func (w *brokenStreamWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenStreamWriter) WriteHeader(code int) { w.status = code }

func (w *brokenStreamWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("broken pipe")
}

func (w *brokenStreamWriter) Flush() {}

func TestHandlerStopsWhenClientGone(t *testing.T) {
	metrics := observability.NewMetrics()
	handler := NewHandler(EchoRunner{}, metrics)

	body := bytes.NewBufferString(`{"session_id":"test","prompt":"a fox finds a lantern"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	w := &brokenStreamWriter{}

	handler.ServeHTTP(w, req)

	// EchoRunner emits two events, but the first failed flush must end the
	// stream: exactly one write attempt, and the disconnect is counted.
	require.Equal(t, http.StatusOK, w.status)
	require.Equal(t, 1, w.writes)
	require.Equal(t, float64(1),
		testutil.ToFloat64(metrics.TransportErrs.WithLabelValues("ndjson", "client_gone")))
}
