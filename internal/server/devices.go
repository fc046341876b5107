package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safehome/safehome/internal/camera"
	"github.com/safehome/safehome/internal/sensor"
)

// sensorJSON is the JSON representation of a sensor.
type sensorJSON struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	X2       *int   `json:"x2,omitempty"`
	Y2       *int   `json:"y2,omitempty"`
	Armed    bool   `json:"armed"`
	Detected bool   `json:"detected"`
}

func sensorToJSON(sn sensor.Sensor) sensorJSON {
	return sensorJSON{
		ID:       sn.ID,
		Type:     sn.Type.String(),
		X:        sn.X,
		Y:        sn.Y,
		X2:       sn.X2,
		Y2:       sn.Y2,
		Armed:    sn.Armed,
		Detected: sn.Detected,
	}
}

func (s *HTTPServer) handleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors, ok := running(w, s.sys.Sensors())
	if !ok {
		return
	}
	list := sensors.List()
	out := make([]sensorJSON, 0, len(list))
	for _, sn := range list {
		out = append(out, sensorToJSON(sn))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleSensorAction arms, disarms, intrudes or releases one sensor.
// Intrude and release simulate the physical device.
func (s *HTTPServer) handleSensorAction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sensors, ok := running(w, s.sys.Sensors())
	if !ok {
		return
	}

	var apply func(int64) bool
	switch chi.URLParam(r, "action") {
	case "arm":
		apply = sensors.Arm
	case "disarm":
		apply = sensors.Disarm
	case "intrude":
		apply = sensors.Intrude
	case "release":
		apply = sensors.Release
	default:
		respondError(w, http.StatusNotFound, "unknown sensor action")
		return
	}
	if !apply(id) {
		respondError(w, http.StatusNotFound, "sensor not found")
		return
	}

	cfg, ok := running(w, s.sys.Configuration())
	if !ok {
		return
	}
	if err := cfg.SaveState(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	sn, _ := sensors.Get(id)
	respondJSON(w, http.StatusOK, sensorToJSON(sn))
}

// cameraJSON is the JSON representation of a camera. The password itself
// is never returned.
type cameraJSON struct {
	ID          int64 `json:"id"`
	X           int   `json:"x"`
	Y           int   `json:"y"`
	Pan         int   `json:"pan"`
	Zoom        int   `json:"zoom"`
	Enabled     bool  `json:"enabled"`
	Locked      bool  `json:"locked"`
	HasPassword bool  `json:"hasPassword"`
}

func cameraToJSON(c camera.Camera) cameraJSON {
	return cameraJSON{
		ID:          c.ID,
		X:           c.X,
		Y:           c.Y,
		Pan:         c.Pan,
		Zoom:        c.Zoom,
		Enabled:     c.Enabled,
		Locked:      c.Locked,
		HasPassword: c.HasPassword(),
	}
}

func (s *HTTPServer) respondCamera(w http.ResponseWriter, cams *camera.Manager, id int64) {
	c, ok := cams.Get(id)
	if !ok {
		writeError(w, camera.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, cameraToJSON(c))
}

func (s *HTTPServer) handleListCameras(w http.ResponseWriter, r *http.Request) {
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	list := cams.List()
	out := make([]cameraJSON, 0, len(list))
	for _, c := range list {
		out = append(out, cameraToJSON(c))
	}
	respondJSON(w, http.StatusOK, out)
}

type addCameraRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *HTTPServer) handleAddCamera(w http.ResponseWriter, r *http.Request) {
	var req addCameraRequest
	if !decode(w, r, &req) {
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	c, err := cams.Add(r.Context(), req.X, req.Y)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cameraToJSON(c))
}

func (s *HTTPServer) handleDeleteCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	if err := cams.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type controlRequest struct {
	Control string `json:"control"`
}

func (s *HTTPServer) handleCameraControl(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req controlRequest
	if !decode(w, r, &req) {
		return
	}
	ctl, ok := camera.ParseControl(req.Control)
	if !ok {
		writeError(w, camera.ErrInvalidControl)
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	if err := cams.Control(r.Context(), id, ctl); err != nil {
		writeError(w, err)
		return
	}
	s.respondCamera(w, cams, id)
}

func (s *HTTPServer) handleEnableCamera(w http.ResponseWriter, r *http.Request) {
	s.setCameraEnabled(w, r, true)
}

func (s *HTTPServer) handleDisableCamera(w http.ResponseWriter, r *http.Request) {
	s.setCameraEnabled(w, r, false)
}

func (s *HTTPServer) setCameraEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	var err error
	if enabled {
		err = cams.Enable(r.Context(), id)
	} else {
		err = cams.Disable(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.respondCamera(w, cams, id)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// handleCameraPassword sets the camera password; an empty one removes it.
func (s *HTTPServer) handleCameraPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	var err error
	if req.Password == "" {
		err = cams.DeletePassword(r.Context(), id)
	} else {
		err = cams.SetPassword(r.Context(), id, req.Password)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.respondCamera(w, cams, id)
}

type unlockResponse struct {
	Result string `json:"result"`
}

func (s *HTTPServer) handleUnlockCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}

	res := cams.Unlock(id, req.Password)
	status := http.StatusOK
	switch res {
	case camera.InvalidID:
		status = http.StatusNotFound
	case camera.Incorrect:
		status = http.StatusForbidden
	}
	respondJSON(w, status, unlockResponse{Result: res.String()})
}

func (s *HTTPServer) handleCameraView(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	cams, ok := running(w, s.sys.Cameras())
	if !ok {
		return
	}
	view, err := cams.View(id, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
