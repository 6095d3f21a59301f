// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package debugapi

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// StatusMessage is one frame of the status stream.
type StatusMessage struct {
	Type       string                    `json:"type"`
	Generation string                    `json:"generation,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
	Groups     []platform.RunStatusGroup `json:"groups"`
}

const messageTypeStatus = "status"

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      checkOrigin,
}

// checkOrigin admits clients without an Origin header (curl, websocat) and
// browsers on the same host. Anything else is a cross-site page poking at
// the car.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host != r.Host {
		logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from foreign origin")
		return false
	}
	return true
}

// ServicesStream upgrades to a WebSocket and pushes every run status
// snapshot until the client goes away.
func (s *Server) ServicesStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	release := s.streams.add(cancel)
	defer release()

	go readPump(conn, cancel)
	s.writePump(ctx, conn)
}

// CloseStreams ends every open status stream. http.Server.Shutdown does not
// track hijacked connections, so register it with RegisterOnShutdown.
func (s *Server) CloseStreams() {
	s.streams.closeAll()
}

// streamSet tracks the cancel funcs of open streams.
type streamSet struct {
	mu      sync.Mutex
	nextID  uint64
	cancels map[uint64]context.CancelFunc
}

func (ss *streamSet) add(cancel context.CancelFunc) (release func()) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.cancels == nil {
		ss.cancels = make(map[uint64]context.CancelFunc)
	}
	ss.nextID++
	id := ss.nextID
	ss.cancels[id] = cancel
	return func() {
		ss.mu.Lock()
		defer ss.mu.Unlock()
		delete(ss.cancels, id)
	}
}

func (ss *streamSet) closeAll() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, cancel := range ss.cancels {
		cancel()
	}
}

func (ss *streamSet) len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.cancels)
}

// readPump discards client frames and answers pongs; it cancels the stream
// when the connection drops.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("Unexpected WebSocket close")
			}
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn) {
	log := logging.Ctx(ctx)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	snapshots := s.platform.StatusStream().Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case groups, ok := <-snapshots:
			if !ok {
				return
			}
			if groups == nil {
				groups = []platform.RunStatusGroup{}
			}
			msg := StatusMessage{
				Type:       messageTypeStatus,
				Generation: s.platform.Generation(),
				Timestamp:  s.now(),
				Groups:     groups,
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Msg("Failed to set write deadline")
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("Failed to write status snapshot")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
