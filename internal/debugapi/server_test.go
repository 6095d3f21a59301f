// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package debugapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ibusplatform/internal/bluetooth"
	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type fakePlatform struct {
	status *stream.State[[]platform.RunStatusGroup]

	mu        sync.Mutex
	running   bool
	device    config.DeviceConfiguration
	hasDevice bool
	services  map[string]bool
	actionErr error
	actions   []string
}

func newFakePlatform() *fakePlatform {
	p := &fakePlatform{
		status:    stream.NewState[[]platform.RunStatusGroup](),
		running:   true,
		device:    config.LaptopDeviceConfiguration(),
		hasDevice: true,
		services:  map[string]bool{"ibus-listener": true, "bluetooth": true},
	}
	p.status.Set(snapshot(platform.Running))
	return p
}

func snapshot(status platform.RunStatus) []platform.RunStatusGroup {
	return []platform.RunStatusGroup{{
		Name: "ibus",
		Services: []platform.RunStatusRecord{
			{Group: "ibus", Name: "ibus-listener", Status: status},
		},
	}}
}

func (p *fakePlatform) Status() []platform.RunStatusGroup {
	v, _ := p.status.Value()
	return v
}

func (p *fakePlatform) StatusStream() *stream.State[[]platform.RunStatusGroup] { return p.status }

func (p *fakePlatform) Configuration() (config.DeviceConfiguration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device, p.hasDevice
}

func (p *fakePlatform) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *fakePlatform) Generation() string {
	if !p.Running() {
		return ""
	}
	return "gen-1234"
}

func (p *fakePlatform) StartService(name string) error { return p.act("start", name) }
func (p *fakePlatform) StopService(name string) error  { return p.act("stop", name) }

func (p *fakePlatform) act(action, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return platform.ErrPlatformStopped
	}
	if !p.services[name] {
		return fmt.Errorf("%w: %s", platform.ErrServiceNotFound, name)
	}
	if p.actionErr != nil {
		return p.actionErr
	}
	p.actions = append(p.actions, action+":"+name)
	return nil
}

type recordingHost struct {
	mu      sync.Mutex
	devices []config.DeviceConfiguration
}

func (h *recordingHost) Reconfigure(device config.DeviceConfiguration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices = append(h.devices, device)
}

type fixedTracks struct {
	info bluetooth.TrackInfo
	ok   bool
}

func (f fixedTracks) Current() (bluetooth.TrackInfo, bool) { return f.info, f.ok }

// envelope mirrors Response with the data left raw.
type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
	Error    *APIError       `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, reader))

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, env
}

func newTestServer(p *fakePlatform, host Reconfigurer, tracks TrackSource) *Server {
	s := New(Options{Platform: p, Host: host, Tracks: tracks})
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		running    bool
		wantCode   int
		wantStatus string
	}{
		{"running", true, http.StatusOK, "healthy"},
		{"stopped", false, http.StatusServiceUnavailable, "stopped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlatform()
			p.running = tt.running
			rec, env := do(t, newTestServer(p, nil, nil).Handler(), http.MethodGet, "/healthz", "")

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var health HealthStatus
			if err := json.Unmarshal(env.Data, &health); err != nil {
				t.Fatal(err)
			}
			if health.Status != tt.wantStatus || health.Running != tt.running {
				t.Errorf("health = %+v", health)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestServices(t *testing.T) {
	rec, env := do(t, newTestServer(newFakePlatform(), nil, nil).Handler(), http.MethodGet, "/api/v1/services", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if env.Metadata.Generation != "gen-1234" {
		t.Errorf("generation = %q", env.Metadata.Generation)
	}
	if !strings.Contains(string(env.Data), `"status":"running"`) || !strings.Contains(string(env.Data), `"name":"ibus-listener"`) {
		t.Errorf("data = %s", env.Data)
	}

	t.Run("stopped platform returns empty list", func(t *testing.T) {
		p := newFakePlatform()
		p.status = stream.NewState[[]platform.RunStatusGroup]()
		_, env := do(t, newTestServer(p, nil, nil).Handler(), http.MethodGet, "/api/v1/services", "")
		if string(env.Data) != "[]" {
			t.Errorf("data = %s, want []", env.Data)
		}
	})
}

func TestServiceActions(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		running   bool
		actionErr error
		wantCode  int
		wantErr   string
	}{
		{"start", "/api/v1/services/bluetooth/start", true, nil, http.StatusAccepted, ""},
		{"stop", "/api/v1/services/ibus-listener/stop", true, nil, http.StatusAccepted, ""},
		{"unknown service", "/api/v1/services/toaster/stop", true, nil, http.StatusNotFound, "SERVICE_NOT_FOUND"},
		{"platform stopped", "/api/v1/services/bluetooth/start", false, nil, http.StatusServiceUnavailable, "PLATFORM_STOPPED"},
		{"runner closed", "/api/v1/services/bluetooth/start", true, platform.ErrRunnerClosed, http.StatusServiceUnavailable, "PLATFORM_STOPPED"},
		{"setup failure", "/api/v1/services/bluetooth/start", true, errors.New("bus gone"), http.StatusInternalServerError, "SERVICE_ACTION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlatform()
			p.running = tt.running
			p.actionErr = tt.actionErr

			rec, env := do(t, newTestServer(p, nil, nil).Handler(), http.MethodPost, tt.path, "")
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantErr == "" {
				if env.Status != "success" || len(p.actions) != 1 {
					t.Errorf("status = %q, actions = %v", env.Status, p.actions)
				}
				return
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantErr)
			}
		})
	}

	t.Run("wrong method", func(t *testing.T) {
		rec, _ := do(t, newTestServer(newFakePlatform(), nil, nil).Handler(), http.MethodGet, "/api/v1/services/bluetooth/stop", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("code = %d, want 405", rec.Code)
		}
	})
}

func TestConfiguration(t *testing.T) {
	t.Run("current", func(t *testing.T) {
		rec, env := do(t, newTestServer(newFakePlatform(), nil, nil).Handler(), http.MethodGet, "/api/v1/configuration", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
		var device config.DeviceConfiguration
		if err := json.Unmarshal(env.Data, &device); err != nil {
			t.Fatal(err)
		}
		if !device.Equal(config.LaptopDeviceConfiguration()) {
			t.Errorf("device = %+v", device)
		}
	})

	t.Run("none yet", func(t *testing.T) {
		p := newFakePlatform()
		p.hasDevice = false
		rec, env := do(t, newTestServer(p, nil, nil).Handler(), http.MethodGet, "/api/v1/configuration", "")
		if rec.Code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "NO_CONFIGURATION" {
			t.Errorf("code = %d, error = %+v", rec.Code, env.Error)
		}
	})
}

func TestReconfigure(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "valid",
			body:     `{"display_driver":"mk4_nav","target":"pi","paired_phone":{"name":"Pixel","mac":"AA:BB:CC:DD:EE:FF"},"pairing_enabled":true}`,
			wantCode: http.StatusAccepted,
		},
		{"malformed", `{"target":`, http.StatusBadRequest, "INVALID_JSON"},
		{"unknown driver", `{"display_driver":"crt","target":"pi"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"pairing on laptop", `{"display_driver":"mk4_nav","target":"laptop","pairing_enabled":true}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"too large", `{"target":"` + strings.Repeat("x", maxConfigurationBody) + `"}`, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &recordingHost{}
			rec, env := do(t, newTestServer(newFakePlatform(), host, nil).Handler(), http.MethodPut, "/api/v1/configuration", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantErr != "" {
				if env.Error == nil || env.Error.Code != tt.wantErr {
					t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
				}
				if len(host.devices) != 0 {
					t.Error("invalid configuration must not reach the host")
				}
				return
			}
			if len(host.devices) != 1 || host.devices[0].DisplayDriver != config.DisplayDriverMk4 || !host.devices[0].PairingEnabled {
				t.Errorf("host received %+v", host.devices)
			}
		})
	}

	t.Run("not mounted without host", func(t *testing.T) {
		rec, _ := do(t, newTestServer(newFakePlatform(), nil, nil).Handler(), http.MethodPut, "/api/v1/configuration", `{}`)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("code = %d, want 405", rec.Code)
		}
	})
}

func TestTrack(t *testing.T) {
	t.Run("current track", func(t *testing.T) {
		tracks := fixedTracks{info: bluetooth.TrackInfo{Title: "Song", Artist: "Band", Album: "Record"}, ok: true}
		rec, env := do(t, newTestServer(newFakePlatform(), nil, tracks).Handler(), http.MethodGet, "/api/v1/track", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
		var info bluetooth.TrackInfo
		if err := json.Unmarshal(env.Data, &info); err != nil {
			t.Fatal(err)
		}
		if info != tracks.info {
			t.Errorf("track = %+v", info)
		}
	})

	t.Run("no track yet", func(t *testing.T) {
		rec, env := do(t, newTestServer(newFakePlatform(), nil, fixedTracks{}).Handler(), http.MethodGet, "/api/v1/track", "")
		if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NO_TRACK" {
			t.Errorf("code = %d, error = %+v", rec.Code, env.Error)
		}
	})

	t.Run("not mounted without source", func(t *testing.T) {
		rec, _ := do(t, newTestServer(newFakePlatform(), nil, nil).Handler(), http.MethodGet, "/api/v1/track", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %d, want 404", rec.Code)
		}
	})
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(newFakePlatform(), nil, nil).Handler()
	do(t, h, http.MethodGet, "/healthz", "")
	rec, _ := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Error("metrics output missing api_requests_total")
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct{ in, want string }{
		{"bluetooth", "bluetooth"},
		{"a\nb", `a\x0ab`},
		{"tab\there", `tab\x09here`},
	}
	for _, tt := range tests {
		if got := sanitizeLogValue(tt.in); got != tt.want {
			t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
