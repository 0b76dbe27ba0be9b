package monitorcompat

import (
	"net/http"
	"os"
	"testing"
)

func TestMonitorRecordingLifecycle(t *testing.T) {
	if os.Getenv("MONITOR_RECORDING") == "" {
		t.Skip("set MONITOR_RECORDING=1 to enable the recording lifecycle check")
	}
	client := newContractClient(t)

	resp, body := client.get(t, "/api/recording/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/recording/status status = %d", resp.StatusCode)
	}
	if requireBool(t, decodeJSONMap(t, body)["recording"], "recording") {
		t.Skip("a recording is already running")
	}

	resp, body = client.post(t, "/api/recording/start")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/recording/start status = %d", resp.StatusCode)
	}
	startPayload := decodeJSONMap(t, body)
	if status := requireString(t, startPayload["status"], "status"); status != "recording" {
		t.Fatalf("start status = %q", status)
	}
	requireString(t, startPayload["file"], "file")
	requireNumber(t, startPayload["started_at"], "started_at")

	resp, body = client.get(t, "/api/recording/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/recording/status status = %d", resp.StatusCode)
	}
	statusPayload := decodeJSONMap(t, body)
	if !requireBool(t, statusPayload["recording"], "recording") {
		t.Fatalf("recording status expected true")
	}
	requireNumber(t, statusPayload["events_written"], "events_written")
	requireNumber(t, statusPayload["events_dropped"], "events_dropped")

	resp, _ = client.post(t, "/api/recording/start")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second start status = %d", resp.StatusCode)
	}

	resp, body = client.post(t, "/api/recording/stop")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/recording/stop status = %d", resp.StatusCode)
	}
	stopPayload := decodeJSONMap(t, body)
	if status := requireString(t, stopPayload["status"], "status"); status != "stopped" {
		t.Fatalf("stop status = %q", status)
	}
	requireString(t, stopPayload["file"], "file")
	requireNumber(t, stopPayload["stopped_at"], "stopped_at")
	requireMap(t, stopPayload["stats"], "stats")
}
