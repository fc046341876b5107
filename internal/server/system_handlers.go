package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/safehome/safehome/internal/alarm"
	"github.com/safehome/safehome/internal/controlpanel"
	"github.com/safehome/safehome/internal/storage"
)

// logJSON is the JSON representation of a log record for the API.
type logJSON struct {
	ID           int64  `json:"id"`
	Timestamp    string `json:"timestamp"`
	Level        string `json:"level"`
	Filename     string `json:"filename,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
	LineNumber   int    `json:"lineNumber,omitempty"`
	Message      string `json:"message"`
}

func logToJSON(rec storage.LogRecord) logJSON {
	return logJSON{
		ID:           rec.ID,
		Timestamp:    rec.Timestamp.Format(time.RFC3339Nano),
		Level:        rec.Level.String(),
		Filename:     rec.Filename,
		FunctionName: rec.FunctionName,
		LineNumber:   rec.LineNumber,
		Message:      rec.Message,
	}
}

// maxLogLimit caps the limit query parameter.
const maxLogLimit = 1000

// parseLogQuery extracts level, limit, since and until from the request.
func parseLogQuery(r *http.Request) (storage.LogQuery, string) {
	var q storage.LogQuery
	params := r.URL.Query()

	if v := params.Get("level"); v != "" {
		q.Level = storage.ParseLevel(v)
		if q.Level == storage.LevelUnknown {
			return q, "invalid level"
		}
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxLogLimit {
			return q, "invalid limit"
		}
		q.Limit = n
	}
	if v := params.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, "invalid since"
		}
		q.Since = t
	}
	if v := params.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, "invalid until"
		}
		q.Until = t
	}
	return q, ""
}

// handleQueryLogs returns log records matching the query parameters,
// newest first.
func (s *HTTPServer) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	q, bad := parseLogQuery(r)
	if bad != "" {
		respondError(w, http.StatusBadRequest, bad)
		return
	}

	recs, err := s.sys.Store().QueryLogs(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]logJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, logToJSON(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

type monitorJSON struct {
	TotalPolls      int64  `json:"totalPolls"`
	TotalIntrusions int64  `json:"totalIntrusions"`
	LastPollTime    string `json:"lastPollTime,omitempty"`
}

type retentionJSON struct {
	TotalRuns            int64  `json:"totalRuns"`
	TotalDeleted         int64  `json:"totalDeleted"`
	TotalSessionsDeleted int64  `json:"totalSessionsDeleted"`
	LastRunTime          string `json:"lastRunTime,omitempty"`
	LastRunError         string `json:"lastRunError,omitempty"`
}

// statsResponse is the JSON response for stats.
type statsResponse struct {
	Users         int64          `json:"users"`
	Logs          int64          `json:"logs"`
	Sensors       int64          `json:"sensors"`
	Cameras       int64          `json:"cameras"`
	Zones         int64          `json:"zones"`
	Modes         int64          `json:"modes"`
	DiskSizeBytes int64          `json:"diskSizeBytes"`
	OldestLog     string         `json:"oldestLog,omitempty"`
	NewestLog     string         `json:"newestLog,omitempty"`
	SystemOn      bool           `json:"systemOn"`
	Alarm         alarm.Status   `json:"alarm"`
	CallCountdown float64        `json:"callCountdownSeconds,omitempty"`
	Monitor       *monitorJSON   `json:"monitor,omitempty"`
	Retention     *retentionJSON `json:"retention,omitempty"`
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// handleStats returns storage and runtime statistics.
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sys.Store().Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statsResponse{
		Users:         stats.Users,
		Logs:          stats.Logs,
		Sensors:       stats.Sensors,
		Cameras:       stats.Cameras,
		Zones:         stats.Zones,
		Modes:         stats.Modes,
		DiskSizeBytes: stats.DiskSizeBytes,
		OldestLog:     formatOptional(stats.OldestLog),
		NewestLog:     formatOptional(stats.NewestLog),
		SystemOn:      s.sys.IsOn(),
		Alarm:         s.sys.Alarm().Status(),
		CallCountdown: s.sys.CallCountdown().Seconds(),
	}
	if ms, ok := s.sys.MonitorStats(); ok {
		resp.Monitor = &monitorJSON{
			TotalPolls:      ms.TotalPolls,
			TotalIntrusions: ms.TotalIntrusions,
			LastPollTime:    formatOptional(ms.LastPollTime),
		}
	}
	if s.retention != nil {
		rs := s.retention.Stats()
		resp.Retention = &retentionJSON{
			TotalRuns:            rs.TotalRuns,
			TotalDeleted:         rs.TotalDeleted,
			TotalSessionsDeleted: rs.TotalSessionsDeleted,
			LastRunTime:          formatOptional(rs.LastRunTime),
		}
		if rs.LastRunError != nil {
			resp.Retention.LastRunError = rs.LastRunError.Error()
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleStopAlarm(w http.ResponseWriter, r *http.Request) {
	s.sys.StopAlarm()
	respondJSON(w, http.StatusOK, s.sys.Alarm().Status())
}

func (s *HTTPServer) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	if err := s.sys.TurnOff(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReset restores the initial database. Every session is dropped with
// it, so the caller has to log in again.
func (s *HTTPServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.sys.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	s.auth.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handlePanel(w http.ResponseWriter, r *http.Request) {
	if s.panel == nil {
		respondError(w, http.StatusNotFound, "no control panel")
		return
	}
	s.panel.Tick(r.Context())
	respondJSON(w, http.StatusOK, s.panel.Display())
}

type pressRequest struct {
	Key string `json:"key"`
}

func (s *HTTPServer) handlePanelPress(w http.ResponseWriter, r *http.Request) {
	if s.panel == nil {
		respondError(w, http.StatusNotFound, "no control panel")
		return
	}
	var req pressRequest
	if !decode(w, r, &req) {
		return
	}
	if !controlpanel.ValidKey(req.Key) {
		respondError(w, http.StatusBadRequest, "invalid key")
		return
	}
	s.panel.Press(r.Context(), req.Key)
	d := s.panel.Display()
	slog.Debug("panel key pressed", "state", d.State)
	respondJSON(w, http.StatusOK, d)
}
