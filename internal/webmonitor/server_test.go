package webmonitor

import (
	"bufio"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/internal/sampling"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/frame-sampler/pkg/types"
)

func testEvent(session string, frame int, reason sampling.Reason, at time.Time) pipeline.Event {
	d := sampling.Decision{FrameIndex: frame, ShouldProcess: true, Interval: 1, Reason: reason}
	m := sampling.Metrics{
		FramesProcessed: 3,
		FramesSkipped:   1,
		TotalFrames:     4,
		CurrentInterval: 1,
		AvgMotionScore:  0.123456,
		DetectionCount:  6,
		LastReason:      reason,
	}
	return pipeline.Event{
		Session:  session,
		Decision: d,
		Payload:  sampling.NewPayload(d, m),
		Metrics:  m,
		Telemetry: sampling.TelemetryEvent{
			Timestamp:  at,
			FrameIndex: frame,
			Reason:     reason,
			Interval:   1,
			Processed:  true,
		},
		Tracks:  []types.Track{{Frame: frame}, {Frame: frame}},
		Latency: 42 * time.Microsecond,
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(Config{Keepalive: time.Hour})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestStatusBeforeFirstEvent(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]any
	code := getJSON(t, ts.URL+"/api/sampling/status", &body)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "error")
}

func TestStatusJSON(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Observe(testEvent("abc", 7, sampling.ReasonMotionSpike, time.Now()))

	var status Status
	code := getJSON(t, ts.URL+"/api/sampling/status", &status)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "abc", status.Session)
	assert.Equal(t, 7, status.Decision.FrameIndex)
	assert.Equal(t, "motion_spike (interval=1)", status.Decision.Reason)
	assert.Equal(t, 75.0, status.Metrics.ProcessingRatio)
	assert.Equal(t, 0.1235, status.Metrics.AvgMotionScore)
	assert.Equal(t, 2.0, status.Metrics.EfficiencyScore)
	assert.Equal(t, "motion_spike", status.Metrics.LastReason)
	assert.Equal(t, 2, status.Tracks)
	assert.EqualValues(t, 42, status.LatencyUs)
}

func TestStatusProtobuf(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Observe(testEvent("abc", 3, sampling.ReasonIDSwitch, time.Now()))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sampling/status", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, contentTypeProtobuf, resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))
	fields := st.AsMap()
	assert.Equal(t, "abc", fields["session"])
	decision, ok := fields["decision"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.0, decision["frame_idx"])
	assert.Equal(t, "id_switch (interval=1)", decision["reason"])
}

func TestTelemetrySince(t *testing.T) {
	srv, ts := newTestServer(t)
	base := time.Unix(1_700_000_000, 0)
	for i := range 5 {
		srv.Observe(testEvent("s1", i, sampling.ReasonDefault, base.Add(time.Duration(i)*time.Second)))
	}

	var all TelemetryResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sampling/telemetry", &all))
	assert.Equal(t, "s1", all.Session)
	assert.Equal(t, 5, all.Count)

	var recent TelemetryResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/sampling/telemetry?since=1700000003", &recent))
	require.Equal(t, 2, recent.Count)
	assert.Equal(t, 3, recent.Events[0].FrameIndex)
	assert.Equal(t, 4, recent.Events[1].FrameIndex)

	var bad map[string]any
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/sampling/telemetry?since=yesterday", &bad))
}

func TestTelemetryResetsOnNewSession(t *testing.T) {
	srv, ts := newTestServer(t)
	now := time.Now()
	srv.Observe(testEvent("first", 0, sampling.ReasonDefault, now))
	srv.Observe(testEvent("first", 1, sampling.ReasonDefault, now))
	srv.Observe(testEvent("second", 0, sampling.ReasonUserSeek, now))

	var resp TelemetryResponse
	getJSON(t, ts.URL+"/api/sampling/telemetry", &resp)
	assert.Equal(t, "second", resp.Session)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, sampling.ReasonUserSeek, resp.Events[0].Reason)
}

func TestTelemetryEmptyIsArray(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sampling/telemetry")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"events":[]`)
}

func TestHealthAndIndex(t *testing.T) {
	srv, ts := newTestServer(t)
	srv.Observe(testEvent("abc", 0, sampling.ReasonDefault, time.Now()))

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 1.0, health["events"])

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "/api/sampling/stream")

	missing, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func readSSEData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return strings.TrimSpace(data)
		}
	}
}

func TestStatusStreamJSON(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sampling/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", resp.Header.Get("X-Content-Format"))

	require.Eventually(t, func() bool { return srv.broadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	srv.Observe(testEvent("live", 9, sampling.ReasonLockOnActive, time.Now()))

	var status Status
	require.NoError(t, json.Unmarshal([]byte(readSSEData(t, bufio.NewReader(resp.Body))), &status))
	assert.Equal(t, "live", status.Session)
	assert.Equal(t, 9, status.Decision.FrameIndex)
}

func TestStatusStreamProtobuf(t *testing.T) {
	srv, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sampling/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/protobuf")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/protobuf", resp.Header.Get("X-Content-Format"))

	require.Eventually(t, func() bool { return srv.broadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	srv.Observe(testEvent("pb", 1, sampling.ReasonCrowdChange, time.Now()))

	raw, err := base64.StdEncoding.DecodeString(readSSEData(t, bufio.NewReader(resp.Body)))
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))
	assert.Equal(t, "pb", st.AsMap()["session"])
}

func TestStreamEndsOnClose(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sampling/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return srv.broadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	srv.Close()

	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 0, srv.broadcaster.ClientCount())
}

func TestBroadcasterDropsForSlowClients(t *testing.T) {
	sb := NewStatusBroadcaster(1)
	id, ch := sb.Subscribe()

	sb.Publish(map[string]any{"n": 1})
	sb.Publish(map[string]any{"n": 2})
	assert.EqualValues(t, 1, sb.Dropped())

	ev := <-ch
	assert.JSONEq(t, `{"n":1}`, string(ev.JSONData))

	sb.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	sb.Unsubscribe(id)
}

func TestBroadcasterSubscribeAfterClose(t *testing.T) {
	sb := NewStatusBroadcaster(4)
	sb.Close()
	sb.Close()

	_, ch := sb.Subscribe()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, sb.ClientCount())
}

func TestRecordingEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/recording/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no recorder configured")

	rec := recorder.NewRecorder(t.TempDir(), 16, nil)
	t.Cleanup(func() { _ = rec.Close() })
	srv.SetRecorder(rec)
	srv.Observe(testEvent("rec", 0, sampling.ReasonDefault, time.Now()))

	resp, err = http.Post(ts.URL+"/api/recording/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, rec.IsRecording())
	assert.Equal(t, "rec", rec.GetStatus().Session)

	resp, err = http.Post(ts.URL+"/api/recording/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "already recording")

	var status recorder.RecordingStatus
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/recording/status", &status))
	assert.True(t, status.Recording)

	resp, err = http.Post(ts.URL+"/api/recording/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, rec.IsRecording())

	get, err := http.Get(ts.URL + "/api/recording/stop")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}
