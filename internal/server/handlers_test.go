package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"fwrelease/internal/config"
	"fwrelease/internal/history"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestServer(t *testing.T, withHistory bool) (*Server, *history.History) {
	t.Helper()

	cfg := config.Default(t.TempDir())
	cfg.Builds = []config.BuildConfig{
		{Mode: 0, Identifier: "KSNDMC_TRG", Output: "KSNDMC_TRG"},
		{Mode: 1, Identifier: "KSNDMC_TWS", Output: "KSNDMC_TWS"},
	}

	var hist *history.History
	if withHistory {
		var err error
		hist, err = history.NewHistory(filepath.Join(t.TempDir(), "test.db"))
		if err != nil {
			t.Fatalf("Failed to create history: %v", err)
		}
		t.Cleanup(func() { hist.Close() })
	}

	server := NewServer(cfg, hist, testLogger())
	server.TestMode = true
	return server, hist
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var body map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	return rr, body
}

func recordRun(t *testing.T, hist *history.History, output string, status string) string {
	t.Helper()
	ctx := context.Background()

	run := &history.RunRecord{}
	if err := hist.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	version := "v5.37"
	if _, err := hist.RecordBuild(ctx, &history.BuildRecord{
		RunID:      run.ID,
		OutputName: output,
		Status:     status,
		Version:    &version,
		LogPath:    "/tmp/build.log",
	}); err != nil {
		t.Fatalf("RecordBuild() error = %v", err)
	}
	run.Status = history.RunSucceeded
	run.Version = version
	run.Succeeded = 1
	if err := hist.CompleteRun(ctx, run); err != nil {
		t.Fatalf("CompleteRun() error = %v", err)
	}
	return run.ID
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, false)

	rr, response := get(t, server, "/health")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", response["status"])
	}

	outputs, ok := response["outputs"].([]interface{})
	if !ok || len(outputs) != 2 {
		t.Errorf("Expected 2 outputs, got %v", response["outputs"])
	}
	if response["output_count"] != float64(2) {
		t.Errorf("Expected output_count 2, got %v", response["output_count"])
	}
	if response["history"] != false {
		t.Errorf("Expected history false, got %v", response["history"])
	}
}

func TestHandleStatus_Errors(t *testing.T) {
	tests := []struct {
		name        string
		withHistory bool
		path        string
		wantCode    int
	}{
		{"invalid name", true, "/status/bad%20name", http.StatusBadRequest},
		{"unknown output", true, "/status/SPATIKA_ADDON", http.StatusNotFound},
		{"no history", false, "/status/KSNDMC_TRG", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestServer(t, tt.withHistory)
			rr, response := get(t, server, tt.path)
			if rr.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rr.Code)
			}
			if response["error"] == nil {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestHandleStatus_Success(t *testing.T) {
	server, hist := setupTestServer(t, true)
	recordRun(t, hist, "KSNDMC_TRG", "failed")
	recordRun(t, hist, "KSNDMC_TRG", "success")

	rr, response := get(t, server, "/status/KSNDMC_TRG")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if response["output"] != "KSNDMC_TRG" {
		t.Errorf("Expected output 'KSNDMC_TRG', got %v", response["output"])
	}

	latest, ok := response["latest_build"].(map[string]interface{})
	if !ok || latest["status"] != "success" {
		t.Errorf("Expected latest build to be the success, got %v", response["latest_build"])
	}
	recent, ok := response["recent_history"].([]interface{})
	if !ok || len(recent) != 2 {
		t.Errorf("Expected 2 recent builds, got %v", response["recent_history"])
	}
}

func TestHandleStatus_NeverBuilt(t *testing.T) {
	server, _ := setupTestServer(t, true)

	rr, response := get(t, server, "/status/KSNDMC_TWS")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if response["latest_build"] != nil {
		t.Errorf("Expected no latest build, got %v", response["latest_build"])
	}
}

func TestHandleRuns(t *testing.T) {
	server, hist := setupTestServer(t, true)
	for i := 0; i < 3; i++ {
		recordRun(t, hist, "KSNDMC_TRG", "success")
	}

	rr, response := get(t, server, "/runs?limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	runs, ok := response["runs"].([]interface{})
	if !ok || len(runs) != 2 {
		t.Errorf("Expected 2 runs, got %v", response["runs"])
	}

	for _, bad := range []string{"0", "abc", "1000"} {
		rr, _ := get(t, server, "/runs?limit="+bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", bad, rr.Code)
		}
	}
}

func TestHandleRun(t *testing.T) {
	server, hist := setupTestServer(t, true)
	id := recordRun(t, hist, "KSNDMC_TWS", "success")

	rr, response := get(t, server, "/runs/"+id)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	run, _ := response["run"].(map[string]interface{})
	if run["id"] != id || run["status"] != "success" {
		t.Errorf("unexpected run: %v", run)
	}
	builds, _ := response["builds"].([]interface{})
	if len(builds) != 1 {
		t.Errorf("Expected 1 build, got %v", response["builds"])
	}

	rr, _ = get(t, server, "/runs/not-a-uuid")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed ID, got %d", rr.Code)
	}
	rr, _ = get(t, server, "/runs/00000000-0000-0000-0000-000000000000")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown run, got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	server, _ := setupTestServer(t, false)
	server.TestMode = false
	server.RateLimit = 0.001
	server.RateBurst = 2

	router := server.Router()
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst should be allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", codes[2])
	}
}
