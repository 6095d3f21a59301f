// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tomtom215/ibusplatform/internal/logging"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generates new ID", ""},
		{"preserves upstream ID", "existing-request-id-12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			responseID := rec.Header().Get(RequestIDHeader)
			if captured != responseID {
				t.Errorf("context ID %q != response ID %q", captured, responseID)
			}
			if tt.incoming != "" {
				if responseID != tt.incoming {
					t.Errorf("response ID = %q, want %q", responseID, tt.incoming)
				}
				return
			}
			if _, err := uuid.Parse(responseID); err != nil {
				t.Errorf("generated ID %q is not a UUID: %v", responseID, err)
			}
		})
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		id := rec.Header().Get(RequestIDHeader)
		if seen[id] {
			t.Fatalf("duplicate request ID %q", id)
		}
		seen[id] = true
	}
}

func TestRequestID_TagsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewTestLogger(&buf)

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Ctx(r.Context()).Info().Msg("handled")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	req = req.WithContext(logging.ContextWithLogger(req.Context(), base))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("log line missing request_id: %s", buf.String())
	}
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"with ID", context.WithValue(context.Background(), RequestIDKey, "abc"), "abc"},
		{"without ID", context.Background(), ""},
		{"wrong type", context.WithValue(context.Background(), RequestIDKey, 42), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRequestID(tt.ctx); got != tt.want {
				t.Errorf("GetRequestID() = %q, want %q", got, tt.want)
			}
		})
	}
}
