package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/safehome/safehome/internal/storage"
)

// streamPollInterval is how often the log stream looks for new records.
const streamPollInterval = 500 * time.Millisecond

// handleLogStream streams log records via Server-Sent Events. The level
// filter of /api/logs applies.
func (s *HTTPServer) handleLogStream(w http.ResponseWriter, r *http.Request) {
	q, bad := parseLogQuery(r)
	if bad != "" {
		respondError(w, http.StatusBadRequest, bad)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	logs := s.sys.Store()

	// Send the most recent records first, oldest to newest.
	var lastID int64
	initial := q
	initial.Limit = 50
	recs, err := logs.QueryLogs(r.Context(), initial)
	if err == nil {
		for i := len(recs) - 1; i >= 0; i-- {
			s.sendSSEEvent(w, recs[i])
			lastID = max(lastID, recs[i].ID)
		}
	}
	if lastID == 0 {
		// Nothing matched yet, so follow on from the newest stored record.
		if newest, err := logs.QueryLogs(r.Context(), storage.LogQuery{Limit: 1}); err == nil && len(newest) > 0 {
			lastID = newest[0].ID
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// Records arrive in storage order, so a record logged with an
			// earlier timestamp than one already sent is still delivered.
			for {
				recs, err := s.logsAfter(r, q, lastID)
				if err != nil {
					slog.Debug("sse query error", "error", err)
					break
				}
				for _, rec := range recs {
					s.sendSSEEvent(w, rec)
					lastID = rec.ID
				}
				if len(recs) > 0 {
					flusher.Flush()
				}
				if len(recs) < maxLogLimit {
					break
				}
			}
		}
	}
}

// logsAfter returns the records matching q stored after lastID, oldest first.
func (s *HTTPServer) logsAfter(r *http.Request, q storage.LogQuery, lastID int64) ([]storage.LogRecord, error) {
	q.Limit = maxLogLimit
	if lastID > 0 {
		q.AfterID = lastID
		return s.sys.Store().QueryLogs(r.Context(), q)
	}
	// The table was empty when the stream opened.
	recs, err := s.sys.Store().QueryLogs(r.Context(), q)
	if err != nil {
		return nil, err
	}
	slices.Reverse(recs)
	return recs, nil
}

// sendSSEEvent sends a single log record as an SSE event.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, rec storage.LogRecord) {
	data, err := json.Marshal(logToJSON(rec))
	if err != nil {
		slog.Debug("sse marshal error", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
