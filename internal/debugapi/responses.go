// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package debugapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ibusplatform/internal/logging"
)

// Response is the envelope of every JSON body.
type Response struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp  time.Time `json:"timestamp"`
	Generation string    `json:"generation,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sanitizeLogValue escapes control characters so request input cannot
// forge log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, status int, response *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func (s *Server) respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &Response{
		Status:   "success",
		Data:     data,
		Metadata: s.metadata(),
	})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("code", code).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("Debug API error")
	}
	respondJSON(w, status, &Response{
		Status:   "error",
		Metadata: s.metadata(),
		Error:    &APIError{Code: code, Message: message},
	})
}

func (s *Server) metadata() Metadata {
	return Metadata{
		Timestamp:  s.now(),
		Generation: s.platform.Generation(),
	}
}
