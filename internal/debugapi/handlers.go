// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package debugapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// maxConfigurationBody caps PUT /api/v1/configuration bodies.
const maxConfigurationBody = 16 << 10

// HealthStatus is the /healthz body.
type HealthStatus struct {
	Status     string `json:"status"`
	Running    bool   `json:"running"`
	Generation string `json:"generation,omitempty"`
}

// ServiceAction is the body returned by the start and stop routes.
type ServiceAction struct {
	Service string `json:"service"`
	Action  string `json:"action"`
}

// Health reports liveness. The process is alive either way; a stopped
// platform is reported as 503 so a watchdog can tell the two apart.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:     "healthy",
		Running:    s.platform.Running(),
		Generation: s.platform.Generation(),
	}
	status := http.StatusOK
	if !health.Running {
		health.Status = "stopped"
		status = http.StatusServiceUnavailable
	}
	s.respondData(w, status, health)
}

// Services returns the latest run status snapshot.
func (s *Server) Services(w http.ResponseWriter, r *http.Request) {
	groups := s.platform.Status()
	if groups == nil {
		groups = []platform.RunStatusGroup{}
	}
	s.respondData(w, http.StatusOK, groups)
}

// StartService starts the named service of the running graph.
func (s *Server) StartService(w http.ResponseWriter, r *http.Request) {
	s.serviceAction(w, r, "start", s.platform.StartService)
}

// StopService stops the named service of the running graph.
func (s *Server) StopService(w http.ResponseWriter, r *http.Request) {
	s.serviceAction(w, r, "stop", s.platform.StopService)
}

func (s *Server) serviceAction(w http.ResponseWriter, r *http.Request, action string, do func(string) error) {
	name := chi.URLParam(r, "name")

	if err := do(name); err != nil {
		switch {
		case errors.Is(err, platform.ErrServiceNotFound):
			s.respondError(w, r, http.StatusNotFound, "SERVICE_NOT_FOUND", "No service named "+sanitizeLogValue(name), nil)
		case errors.Is(err, platform.ErrPlatformStopped), errors.Is(err, platform.ErrRunnerClosed):
			s.respondError(w, r, http.StatusServiceUnavailable, "PLATFORM_STOPPED", "The platform is not running", nil)
		default:
			s.respondError(w, r, http.StatusInternalServerError, "SERVICE_ACTION_FAILED", "Failed to "+action+" service", err)
		}
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("service", sanitizeLogValue(name)).
		Str("action", action).
		Msg("Service action requested over debug API")
	s.respondData(w, http.StatusAccepted, ServiceAction{Service: name, Action: action})
}

// Configuration returns the device configuration of the running graph.
func (s *Server) Configuration(w http.ResponseWriter, r *http.Request) {
	device, ok := s.platform.Configuration()
	if !ok {
		s.respondError(w, r, http.StatusServiceUnavailable, "NO_CONFIGURATION", "No configuration has been applied yet", nil)
		return
	}
	s.respondData(w, http.StatusOK, device)
}

// Reconfigure validates a device configuration and hands it to the host.
// The rebuild happens asynchronously; poll GET /api/v1/configuration or the
// status stream to see it applied.
func (s *Server) Reconfigure(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigurationBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", nil)
			return
		}
		s.respondError(w, r, http.StatusBadRequest, "INVALID_BODY", "Failed to read request body", err)
		return
	}

	var device config.DeviceConfiguration
	if err := json.Unmarshal(body, &device); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body is not a device configuration", err)
		return
	}
	if err := device.Validate(); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	logging.Ctx(r.Context()).Info().Str("device", device.String()).Msg("Reconfiguration requested over debug API")
	s.host.Reconfigure(device)
	s.respondData(w, http.StatusAccepted, device)
}

// Track returns the metadata of the current Bluetooth track.
func (s *Server) Track(w http.ResponseWriter, r *http.Request) {
	info, ok := s.tracks.Current()
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "NO_TRACK", "No track has been reported yet", nil)
		return
	}
	s.respondData(w, http.StatusOK, info)
}
