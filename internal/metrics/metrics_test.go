package metrics_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zynqcloud/filegate/internal/metrics"
)

func TestHandlerReportsCounterSnapshot(t *testing.T) {
	m := &metrics.Metrics{}
	m.UploadsTotal.Add(3)
	m.UploadsFailed.Add(1)
	m.BytesWritten.Add(1024)
	m.SessionsCreated.Add(2)
	m.SessionsComplete.Add(1)
	m.ScanActions.Add(5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	var got map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	want := map[string]int64{
		"uploads_total":     3,
		"uploads_failed":    1,
		"bytes_written":     1024,
		"sessions_created":  2,
		"sessions_complete": 1,
		"scan_actions":      5,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
}

func TestHandlerZeroValueCounters(t *testing.T) {
	m := &metrics.Metrics{}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler()(rec, req)

	var got map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["uploads_total"] != 0 {
		t.Errorf("uploads_total = %d, want 0", got["uploads_total"])
	}
}
