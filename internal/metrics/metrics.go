// Package metrics holds process-lifetime atomic counters exposed at
// GET /metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-lifetime atomic counters. All writes use atomic
// operations so there is no lock contention on hot paths.
type Metrics struct {
	UploadsTotal     atomic.Int64 // single-file uploads attempted
	UploadsFailed    atomic.Int64 // single-file uploads that returned an error
	BytesWritten     atomic.Int64 // bytes committed to final storage (uploads + assemblies)
	SessionsCreated  atomic.Int64 // chunked upload sessions initiated
	SessionsComplete atomic.Int64 // chunked upload sessions assembled successfully
	ScanActions      atomic.Int64 // index entries added, moved, or removed across all scans
}

// Handler serialises the current counter snapshot as a flat JSON object.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{ //nolint:errcheck
			"uploads_total":     m.UploadsTotal.Load(),
			"uploads_failed":    m.UploadsFailed.Load(),
			"bytes_written":     m.BytesWritten.Load(),
			"sessions_created":  m.SessionsCreated.Load(),
			"sessions_complete": m.SessionsComplete.Load(),
			"scan_actions":      m.ScanActions.Load(),
		})
	}
}
