// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import "testing"

func TestParseInputEvent(t *testing.T) {
	tests := []struct {
		name   string
		msg    Message
		want   InputEvent
		wantOK bool
	}{
		{
			name:   "next track",
			msg:    Message{Source: AddrMFL, Destination: AddrRadio, Data: []byte{0x3B, 0x01}},
			want:   InputEvent{Kind: EventNextTrack},
			wantOK: true,
		},
		{
			name:   "previous track",
			msg:    Message{Source: AddrMFL, Destination: AddrRadio, Data: []byte{0x3B, 0x08}},
			want:   InputEvent{Kind: EventPrevTrack},
			wantOK: true,
		},
		{
			name:   "next track released",
			msg:    Message{Source: AddrMFL, Destination: AddrRadio, Data: []byte{0x3B, 0x21}},
			wantOK: false,
		},
		{
			name:   "push to talk",
			msg:    Message{Source: AddrMFL, Destination: AddrTelephone, Data: []byte{0x3B, 0x80}},
			want:   InputEvent{Kind: EventPushToTalk},
			wantOK: true,
		},
		{
			name:   "R/T",
			msg:    Message{Source: AddrMFL, Destination: AddrTelephone, Data: []byte{0x01}},
			want:   InputEvent{Kind: EventRT},
			wantOK: true,
		},
		{
			name:   "knob press",
			msg:    Message{Source: AddrBMBT, Destination: AddrNavigation, Data: []byte{0x48, 0x05}},
			want:   InputEvent{Kind: EventKnobPress},
			wantOK: true,
		},
		{
			name:   "knob release",
			msg:    Message{Source: AddrBMBT, Destination: AddrNavigation, Data: []byte{0x48, 0x85}},
			wantOK: false,
		},
		{
			name:   "knob turn right three",
			msg:    Message{Source: AddrBMBT, Destination: AddrNavigation, Data: []byte{0x49, 0x83}},
			want:   InputEvent{Kind: EventKnobTurn, Direction: DirectionRight, Clicks: 3},
			wantOK: true,
		},
		{
			name:   "knob turn left one",
			msg:    Message{Source: AddrBMBT, Destination: AddrNavigation, Data: []byte{0x49, 0x01}},
			want:   InputEvent{Kind: EventKnobTurn, Direction: DirectionLeft, Clicks: 1},
			wantOK: true,
		},
		{
			name:   "knob turn zero clicks",
			msg:    Message{Source: AddrBMBT, Destination: AddrNavigation, Data: []byte{0x49, 0x80}},
			wantOK: false,
		},
		{
			name:   "unrelated source",
			msg:    Message{Source: AddrIKE, Destination: AddrBroadcast, Data: []byte{0x18, 0x00, 0x00}},
			wantOK: false,
		},
		{
			name:   "empty data",
			msg:    Message{Source: AddrMFL, Destination: AddrRadio},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInputEvent(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ParseInputEvent() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseInputEvent() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInputEvent_String(t *testing.T) {
	if got := (InputEvent{Kind: EventKnobTurn, Direction: DirectionLeft, Clicks: 2}).String(); got != "knob_turn(left x2)" {
		t.Errorf("String() = %q", got)
	}
	if got := (InputEvent{Kind: EventNextTrack}).String(); got != "next_track" {
		t.Errorf("String() = %q", got)
	}
	if !(InputEvent{Kind: EventPrevTrack}).IsTrackChange() {
		t.Error("prev track should be a track change")
	}
	if (InputEvent{Kind: EventKnobPress}).IsTrackChange() {
		t.Error("knob press is not a track change")
	}
}
