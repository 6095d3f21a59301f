// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package debugapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/ibusplatform/internal/bluetooth"
	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/middleware"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// Platform is the part of *platform.ConfigurablePlatform the API reads and
// drives.
type Platform interface {
	Status() []platform.RunStatusGroup
	StatusStream() *stream.State[[]platform.RunStatusGroup]
	Configuration() (config.DeviceConfiguration, bool)
	Running() bool
	Generation() string
	StartService(name string) error
	StopService(name string) error
}

var _ Platform = (*platform.ConfigurablePlatform)(nil)

// Reconfigurer accepts reconfiguration requests. It is normally the
// supervisor's platform host, which applies them one at a time.
type Reconfigurer interface {
	Reconfigure(device config.DeviceConfiguration)
}

// TrackSource reports the current Bluetooth track.
type TrackSource interface {
	Current() (bluetooth.TrackInfo, bool)
}

// Options configures a Server. Host and Tracks are optional; their routes
// are not mounted when nil.
type Options struct {
	Platform Platform
	Host     Reconfigurer
	Tracks   TrackSource

	// Metrics serves /metrics. Defaults to promhttp.Handler().
	Metrics http.Handler
}

// Server holds the debug API handlers.
type Server struct {
	platform Platform
	host     Reconfigurer
	tracks   TrackSource
	metrics  http.Handler
	now      func() time.Time
	streams  streamSet
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		platform: opts.Platform,
		host:     opts.Host,
		tracks:   opts.Tracks,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.Services)
			r.Get("/ws", s.ServicesStream)
			r.Post("/{name}/start", s.StartService)
			r.Post("/{name}/stop", s.StopService)
		})

		r.Get("/configuration", s.Configuration)
		if s.host != nil {
			r.Put("/configuration", s.Reconfigure)
		}
		if s.tracks != nil {
			r.Get("/track", s.Track)
		}
	})

	return r
}

// NewHTTPServer wraps handler in an http.Server using the debug settings.
func NewHTTPServer(cfg config.DebugConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
}
