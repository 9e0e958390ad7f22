package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/db"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/mmwave"
	"github.com/MSRAM-NEC/MISTRAL-VISUALIZER/internal/serialio"
)

func setupTestServer(t *testing.T) (*Server, *serialio.TestableSerialPort) {
	t.Helper()

	port := serialio.NewTestableSerialPort()
	collector := mmwave.NewCollector(mmwave.CollectorConfig{
		PortPath: "/dev/ttyTEST0",
		Factory:  serialio.NewMockSerialPortFactory(port),
	})
	pipeline := mmwave.NewPipeline(mmwave.PipelineConfig{
		Collector: collector,
		Params:    mmwave.DefaultParams(),
		Interval:  5 * time.Millisecond,
	})
	t.Cleanup(pipeline.Stop)

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewServer(pipeline, database, "mps"), port
}

func doRequest(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rr, req)
	return rr
}

func TestShowStatus(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodGet, "/api/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var stats mmwave.PipelineStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if stats.Running {
		t.Error("pipeline reports running before start")
	}
}

func TestStartStopCapture(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodPost, "/api/start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rr.Code, rr.Body.String())
	}

	var started map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &started); err != nil {
		t.Fatalf("invalid start JSON: %v", err)
	}
	if started["run_id"] == "" {
		t.Error("start response has no run_id")
	}

	rr = doRequest(t, s, http.MethodGet, "/api/status", nil)
	var stats mmwave.PipelineStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if !stats.Running {
		t.Error("pipeline not running after /api/start")
	}

	rr = doRequest(t, s, http.MethodPost, "/api/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rr.Code)
	}

	rr = doRequest(t, s, http.MethodGet, "/api/status", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if stats.Running {
		t.Error("pipeline still running after /api/stop")
	}
}

func TestStartRequiresPost(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodGet, "/api/start", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/start status = %d, want 405", rr.Code)
	}
}

func TestListPoints_EmptyIsJSONArray(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodGet, "/api/points", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != "[]\n" {
		t.Errorf("empty points body = %q, want []", got)
	}
}

func TestListPoints_InvalidLimit(t *testing.T) {
	s, _ := setupTestServer(t)

	for _, target := range []string{"/api/points?limit=zero", "/api/points?limit=0", "/api/points?limit=-3"} {
		rr := doRequest(t, s, http.MethodGet, target, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, rr.Code)
		}
	}
}

func TestListHumans_EmptyIsJSONArray(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodGet, "/api/humans", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != "[]\n" {
		t.Errorf("empty humans body = %q, want []", got)
	}
}

func TestListHumanHistory(t *testing.T) {
	s, _ := setupTestServer(t)

	err := s.db.RecordHumanSummaries("run-1", time.Now(), []mmwave.HumanSummary{
		{ClusterID: 0, CentroidX: 1, CentroidY: 2, CentroidZ: 1, Points: 12},
	})
	if err != nil {
		t.Fatalf("failed to seed history: %v", err)
	}

	rr := doRequest(t, s, http.MethodGet, "/api/humans/history?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var records []db.HumanRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("invalid history JSON: %v", err)
	}
	if len(records) != 1 || records[0].Points != 12 {
		t.Errorf("unexpected history: %+v", records)
	}
}

func TestListHumanHistory_WithoutDatabase(t *testing.T) {
	s, _ := setupTestServer(t)
	s.db = nil

	for _, target := range []string{"/api/humans/history", "/api/batches/history"} {
		rr := doRequest(t, s, http.MethodGet, target, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", target, rr.Code)
		}
	}
}

func TestListBatchHistory(t *testing.T) {
	s, _ := setupTestServer(t)

	counts := mmwave.BatchCounts{Total: 20, Human: 12, Static: 8}
	if err := s.db.RecordBatch("run-1", time.Now(), counts); err != nil {
		t.Fatalf("failed to seed batch history: %v", err)
	}

	rr := doRequest(t, s, http.MethodGet, "/api/batches/history?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var records []db.BatchRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("invalid batch history JSON: %v", err)
	}
	if len(records) != 1 || records[0].Counts != counts {
		t.Errorf("unexpected batch history: %+v", records)
	}
}

func TestGetParams(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodGet, "/api/params", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var got map[string]float64
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid params JSON: %v", err)
	}
	if got["eps"] != mmwave.DefaultEps {
		t.Errorf("eps = %v, want %v", got["eps"], mmwave.DefaultEps)
	}
	if int(got["min_points_human"]) != mmwave.DefaultMinPointsHuman {
		t.Errorf("min_points_human = %v, want %v", got["min_points_human"], mmwave.DefaultMinPointsHuman)
	}
}

func TestPostParams_PartialUpdate(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodPost, "/api/params", []byte(`{"eps": 0.8}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	params := s.pipeline.Params()
	if params.Eps != 0.8 {
		t.Errorf("Eps = %v after update, want 0.8", params.Eps)
	}
	// Fields absent from the patch keep their values.
	if params.MinSamples != mmwave.DefaultMinSamples {
		t.Errorf("MinSamples = %v, want untouched default %v", params.MinSamples, mmwave.DefaultMinSamples)
	}
}

func TestPostParams_RejectsInvalid(t *testing.T) {
	s, _ := setupTestServer(t)

	rr := doRequest(t, s, http.MethodPost, "/api/params", []byte(`{"eps": -1}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid eps status = %d, want 400", rr.Code)
	}

	rr = doRequest(t, s, http.MethodPost, "/api/params", []byte(`{"eps": `))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d, want 400", rr.Code)
	}

	// The pipeline keeps its previous parameters.
	if got := s.pipeline.Params().Eps; got != mmwave.DefaultEps {
		t.Errorf("Eps changed to %v after rejected update", got)
	}
}
