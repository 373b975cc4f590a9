package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServerStartAndStopChannel(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	sock := listenDiscard(t)
	srv := NewServer(m, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	startBody, _ := json.Marshal(startChannelRequest{
		ChannelID:         "http-chan-1",
		PlanHandle:        "plan-a",
		UdsPath:           sock,
		ProgramFormatJSON: json.RawMessage(testFormat),
	})
	resp, err := http.Post(ts.URL+"/control/start", "application/json", bytes.NewReader(startBody))
	if err != nil {
		t.Fatalf("POST /control/start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	var startResp resultResponse
	if err := json.NewDecoder(resp.Body).Decode(&startResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if startResp.Result != "OK" {
		t.Fatalf("start result = %q, want OK", startResp.Result)
	}

	stopBody, _ := json.Marshal(channelIDRequest{ChannelID: "http-chan-1"})
	resp2, err := http.Post(ts.URL+"/control/stop", "application/json", bytes.NewReader(stopBody))
	if err != nil {
		t.Fatalf("POST /control/stop: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp2.StatusCode)
	}
}

func TestServerStartChannelDuplicateReturnsConflict(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	sock := listenDiscard(t)
	srv := NewServer(m, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(startChannelRequest{
		ChannelID:         "http-chan-2",
		PlanHandle:        "plan-a",
		UdsPath:           sock,
		ProgramFormatJSON: json.RawMessage(testFormat),
	})
	if _, err := http.Post(ts.URL+"/control/start", "application/json", bytes.NewReader(body)); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer func() {
		stopBody, _ := json.Marshal(channelIDRequest{ChannelID: "http-chan-2"})
		http.Post(ts.URL+"/control/stop", "application/json", bytes.NewReader(stopBody))
	}()

	resp, err := http.Post(ts.URL+"/control/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate start status = %d, want 409", resp.StatusCode)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	srv := NewServer(m, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}
}
