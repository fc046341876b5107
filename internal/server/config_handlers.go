package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safehome/safehome/internal/storage"
)

// zoneJSON is the JSON representation of a safety zone.
type zoneJSON struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	X2        float64 `json:"x2"`
	Y2        float64 `json:"y2"`
	Armed     bool    `json:"armed"`
	SensorIDs []int64 `json:"sensorIds"`
}

func zoneToJSON(z storage.SafetyZone) zoneJSON {
	ids := z.SensorIDs
	if ids == nil {
		ids = []int64{}
	}
	return zoneJSON{
		ID:        z.ID,
		Name:      z.Name,
		X1:        z.X1,
		Y1:        z.Y1,
		X2:        z.X2,
		Y2:        z.Y2,
		Armed:     z.Armed,
		SensorIDs: ids,
	}
}

func (z zoneJSON) record() storage.SafetyZone {
	return storage.SafetyZone{
		ID:        z.ID,
		Name:      z.Name,
		X1:        z.X1,
		Y1:        z.Y1,
		X2:        z.X2,
		Y2:        z.Y2,
		SensorIDs: z.SensorIDs,
	}
}

func (s *HTTPServer) handleListZones(w http.ResponseWriter, r *http.Request) {
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	zones := cfg.Zones()
	out := make([]zoneJSON, 0, len(zones))
	for _, z := range zones {
		out = append(out, zoneToJSON(z))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleAddZone creates a zone. Without sensorIds the sensors inside the
// rectangle become its members.
func (s *HTTPServer) handleAddZone(w http.ResponseWriter, r *http.Request) {
	var req zoneJSON
	if !decode(w, r, &req) {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	req.ID = 0
	z, err := cfg.AddZone(r.Context(), req.record())
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, zoneToJSON(z))
}

// handleUpdateZone replaces name and rectangle of a zone. Membership only
// changes when sensorIds is present.
func (s *HTTPServer) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req zoneJSON
	if !decode(w, r, &req) {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	req.ID = id
	if err := cfg.UpdateZone(r.Context(), req.record()); err != nil {
		writeError(w, err)
		return
	}
	s.respondZone(w, id)
}

func (s *HTTPServer) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	if err := cfg.DeleteZone(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleArmZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	if err := cfg.ArmZone(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.respondZone(w, id)
}

func (s *HTTPServer) handleDisarmZone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	if err := cfg.DisarmZone(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.respondZone(w, id)
}

func (s *HTTPServer) respondZone(w http.ResponseWriter, id int64) {
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	z, found := cfg.Zone(id)
	if !found {
		respondError(w, http.StatusNotFound, "zone not found")
		return
	}
	respondJSON(w, http.StatusOK, zoneToJSON(z))
}

// modeJSON is the JSON representation of a SafeHome mode.
type modeJSON struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	SensorIDs []int64 `json:"sensorIds"`
}

func modeToJSON(m storage.SafeHomeMode) modeJSON {
	ids := m.SensorIDs
	if ids == nil {
		ids = []int64{}
	}
	return modeJSON{ID: m.ID, Name: m.Name, SensorIDs: ids}
}

func (s *HTTPServer) handleListModes(w http.ResponseWriter, r *http.Request) {
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	modes := cfg.Modes()
	out := make([]modeJSON, 0, len(modes))
	for _, m := range modes {
		out = append(out, modeToJSON(m))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleAddMode(w http.ResponseWriter, r *http.Request) {
	var req modeJSON
	if !decode(w, r, &req) {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	m, err := cfg.AddMode(r.Context(), req.Name, req.SensorIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, modeToJSON(m))
}

func (s *HTTPServer) handleUpdateMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req modeJSON
	if !decode(w, r, &req) {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	current, found := cfg.Mode(id)
	if !found {
		respondError(w, http.StatusNotFound, "mode not found")
		return
	}
	if req.Name == "" {
		req.Name = current.Name
	}
	err := cfg.UpdateMode(r.Context(), storage.SafeHomeMode{ID: id, Name: req.Name, SensorIDs: req.SensorIDs})
	if err != nil {
		writeError(w, err)
		return
	}
	m, _ := cfg.Mode(id)
	respondJSON(w, http.StatusOK, modeToJSON(m))
}

func (s *HTTPServer) handleDeleteMode(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	if err := cfg.DeleteMode(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateMode arms exactly the sensors of the named mode.
func (s *HTTPServer) handleActivateMode(w http.ResponseWriter, r *http.Request) {
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if err := cfg.ChangeToMode(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	m, _ := cfg.ModeByName(name)
	respondJSON(w, http.StatusOK, modeToJSON(m))
}

// settingsJSON is the JSON representation of the system settings.
type settingsJSON struct {
	PanicPhoneNumber     string    `json:"panicPhoneNumber"`
	HomeownerPhoneNumber string    `json:"homeownerPhoneNumber"`
	SystemLockTime       *int      `json:"systemLockTime"`
	AlarmDelayTime       *int      `json:"alarmDelayTime"`
	UpdatedAt            time.Time `json:"updatedAt,omitzero"`
}

func settingsToJSON(set storage.SystemSettings) settingsJSON {
	return settingsJSON{
		PanicPhoneNumber:     set.PanicPhoneNumber,
		HomeownerPhoneNumber: set.HomeownerPhoneNumber,
		SystemLockTime:       set.SystemLockTime,
		AlarmDelayTime:       set.AlarmDelayTime,
		UpdatedAt:            set.UpdatedAt,
	}
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, settingsToJSON(cfg.Settings()))
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsJSON
	if !decode(w, r, &req) {
		return
	}
	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	err := cfg.UpdateSystemSettings(r.Context(), storage.SystemSettings{
		ID:                   storage.DefaultSettingsID,
		PanicPhoneNumber:     req.PanicPhoneNumber,
		HomeownerPhoneNumber: req.HomeownerPhoneNumber,
		SystemLockTime:       req.SystemLockTime,
		AlarmDelayTime:       req.AlarmDelayTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settingsToJSON(cfg.Settings()))
}
