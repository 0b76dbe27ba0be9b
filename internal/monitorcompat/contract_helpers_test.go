// Package monitorcompat checks a running sampler monitor against the HTTP
// contract the UI relies on. The suite is skipped unless a monitor is
// reachable at MONITOR_BASE_URL (default http://localhost:8080).
package monitorcompat

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

const (
	defaultBaseURL        = "http://localhost:8080"
	defaultRequestTimeout = 2 * time.Second
)

type contractClient struct {
	baseURL string
	client  *http.Client
}

func newContractClient(t *testing.T) *contractClient {
	t.Helper()
	baseURL := os.Getenv("MONITOR_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+"/health") {
		t.Skipf("monitor not reachable at %s (set MONITOR_BASE_URL to run)", baseURL)
	}

	return &contractClient{baseURL: baseURL, client: client}
}

func isReachable(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *contractClient) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func (c *contractClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return c.do(t, req)
}

func (c *contractClient) post(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader([]byte("{}")))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(t, req)
}

// readSSEEvent returns the first complete event of the stream at url.
func readSSEEvent(url string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var event strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if strings.Contains(event.String(), "data:") {
				return event.String(), resp.Header, nil
			}
			// keepalive comment
			event.Reset()
			continue
		}
		event.WriteString(line)
		event.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("read sse: %w", err)
	}
	return "", nil, fmt.Errorf("sse stream closed before event")
}

func parseSSEData(t *testing.T, event string) map[string]any {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			payload = strings.TrimSpace(payload)
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return decodeJSONMap(t, []byte(payload))
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return nil
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireBool(t *testing.T, value any, field string) bool {
	t.Helper()
	b, ok := value.(bool)
	if !ok {
		t.Fatalf("expected %s to be bool, got %T", field, value)
	}
	return b
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	s, ok := value.([]any)
	if !ok {
		t.Fatalf("expected %s to be array, got %T", field, value)
	}
	return s
}

func assertDecisionPayload(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	requireNumber(t, payload["frame_idx"], field+".frame_idx")
	requireBool(t, payload["should_process"], field+".should_process")
	reason := requireString(t, payload["reason"], field+".reason")
	if !strings.Contains(reason, "(interval=") {
		t.Fatalf("%s.reason = %q, want label with interval", field, reason)
	}
	interval := requireNumber(t, payload["current_interval"], field+".current_interval")
	if interval < 1 {
		t.Fatalf("%s.current_interval = %v", field, interval)
	}
	ratio := requireNumber(t, payload["processing_ratio"], field+".processing_ratio")
	if ratio < 0 || ratio > 100 {
		t.Fatalf("%s.processing_ratio = %v", field, ratio)
	}
	requireNumber(t, payload["frames_processed"], field+".frames_processed")
	requireNumber(t, payload["frames_skipped"], field+".frames_skipped")
	requireNumber(t, payload["avg_motion_score"], field+".avg_motion_score")
	requireNumber(t, payload["efficiency_score"], field+".efficiency_score")
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	requireString(t, payload["session"], "session")
	assertDecisionPayload(t, requireMap(t, payload["decision"], "decision"), "decision")

	metrics := requireMap(t, payload["metrics"], "metrics")
	processed := requireNumber(t, metrics["frames_processed"], "metrics.frames_processed")
	skipped := requireNumber(t, metrics["frames_skipped"], "metrics.frames_skipped")
	total := requireNumber(t, metrics["total_frames"], "metrics.total_frames")
	if processed+skipped > total && total > 0 {
		t.Logf("non-monotonic frame indices: processed+skipped=%v total=%v", processed+skipped, total)
	}
	requireNumber(t, metrics["id_switches"], "metrics.id_switches")
	requireNumber(t, metrics["lock_events"], "metrics.lock_events")
	requireString(t, metrics["last_reason"], "metrics.last_reason")

	requireNumber(t, payload["tracks"], "tracks")
	requireNumber(t, payload["latency_us"], "latency_us")
	requireNumber(t, payload["timestamp"], "timestamp")
}
