// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/ibusplatform/internal/ibus"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// DefaultSettleDelay lets the phone finish its own track change before the
// metadata is read. Reading immediately returns the previous track.
const DefaultSettleDelay = time.Second

// TrackInfo is the metadata shown for the current track. Fields the phone
// did not report are empty.
type TrackInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// IsEmpty reports whether no field is set.
func (t TrackInfo) IsEmpty() bool {
	return t == TrackInfo{}
}

// TrackInfoFromMap picks the fields out of a BlueZ Track property.
func TrackInfoFromMap(m map[string]string) TrackInfo {
	return TrackInfo{
		Title:  m["Title"],
		Artist: m["Artist"],
		Album:  m["Album"],
	}
}

// TrackInfoSink receives new track metadata.
type TrackInfoSink interface {
	OnNewTrackInfo(ctx context.Context, info TrackInfo)
}

// TrackInfoState keeps the latest track for late subscribers such as the
// debug API.
type TrackInfoState struct {
	state *stream.State[TrackInfo]
}

// NewTrackInfoState creates an empty state.
func NewTrackInfoState() *TrackInfoState {
	return &TrackInfoState{state: stream.NewState[TrackInfo]()}
}

// OnNewTrackInfo implements TrackInfoSink.
func (s *TrackInfoState) OnNewTrackInfo(_ context.Context, info TrackInfo) {
	s.state.Set(info)
}

// Current returns the last track published.
func (s *TrackInfoState) Current() (TrackInfo, bool) {
	return s.state.Value()
}

// Subscribe streams the current track and every later change.
func (s *TrackInfoState) Subscribe(ctx context.Context) <-chan TrackInfo {
	return s.state.Subscribe(ctx)
}

// LogSink writes each track to the log.
type LogSink struct{}

// OnNewTrackInfo implements TrackInfoSink.
func (LogSink) OnNewTrackInfo(ctx context.Context, info TrackInfo) {
	logging.Ctx(ctx).Info().
		Str("title", info.Title).
		Str("artist", info.Artist).
		Str("album", info.Album).
		Msg("Now playing")
}

// TrackInfoFetcher reads the new track's metadata after every previous/next
// input event.
type TrackInfoFetcher struct {
	events      *mailbox.Dispatcher[ibus.InputEvent]
	reconnector *Reconnector
	settle      time.Duration
	sinks       []TrackInfoSink
}

// NewTrackInfoFetcher creates a fetcher publishing to sinks.
func NewTrackInfoFetcher(events *mailbox.Dispatcher[ibus.InputEvent], r *Reconnector, settle time.Duration, sinks ...TrackInfoSink) *TrackInfoFetcher {
	if settle < 0 {
		settle = 0
	}
	return &TrackInfoFetcher{events: events, reconnector: r, settle: settle, sinks: sinks}
}

// Definition returns the platform service definition.
func (f *TrackInfoFetcher) Definition() platform.Definition {
	return mailbox.ListenerDefinition(
		"bt-track-info-fetcher",
		"Fetches track metadata after track changes",
		f.events,
		f.handle,
	)
}

func (f *TrackInfoFetcher) handle(ctx context.Context, ev ibus.InputEvent) error {
	if !ev.IsTrackChange() {
		return nil
	}
	if err := sleep(ctx, f.settle); err != nil {
		return err
	}

	info, err := f.Fetch(ctx)
	if err != nil {
		if platform.IsShutdown(ctx, err) {
			return err
		}
		log := logging.Ctx(ctx)
		log.Warn().Err(err).Stringer("event", ev).Msg("Could not fetch track info")
		if !errors.Is(err, ErrNoPairedPhone) {
			f.reconnector.Invalidate()
			if _, rerr := f.reconnector.Reconnect(ctx); rerr != nil {
				if platform.IsShutdown(ctx, rerr) {
					return rerr
				}
				log.Warn().Err(rerr).Msg("Reconnect after failed track fetch failed")
			}
		}
	}

	for _, sink := range f.sinks {
		sink.OnNewTrackInfo(ctx, info)
	}
	return nil
}

// Fetch reads the current track through the reconnect policy. On failure
// the returned TrackInfo is empty.
func (f *TrackInfoFetcher) Fetch(ctx context.Context) (TrackInfo, error) {
	var raw map[string]string
	err := f.reconnector.Do(ctx, func(ctx context.Context, p MediaPlayer) error {
		m, err := p.Track(ctx)
		raw = m
		return err
	})
	metrics.RecordTrackFetch(err)
	if err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfoFromMap(raw)
	if info.Artist == "" || info.Title == "" || info.Album == "" {
		logging.Ctx(ctx).Debug().Interface("track", raw).Msg("Track metadata incomplete")
	}
	return info, nil
}
