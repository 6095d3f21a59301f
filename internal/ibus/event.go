// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import "fmt"

// EventKind identifies an input event.
type EventKind int

const (
	EventPrevTrack EventKind = iota
	EventNextTrack
	EventKnobTurn
	EventKnobPress
	EventPushToTalk
	EventRT
)

var eventKindNames = [...]string{
	EventPrevTrack:  "prev_track",
	EventNextTrack:  "next_track",
	EventKnobTurn:   "knob_turn",
	EventKnobPress:  "knob_press",
	EventPushToTalk: "push_to_talk",
	EventRT:         "rt",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Direction of a knob turn.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return "none"
	}
}

// InputEvent is a user input decoded from the bus. Direction and Clicks are
// only set for EventKnobTurn.
type InputEvent struct {
	Kind      EventKind
	Direction Direction
	Clicks    int
}

func (e InputEvent) String() string {
	if e.Kind == EventKnobTurn {
		return fmt.Sprintf("%s(%s x%d)", e.Kind, e.Direction, e.Clicks)
	}
	return e.Kind.String()
}

// IsTrackChange reports whether the event skips to another track.
func (e InputEvent) IsTrackChange() bool {
	return e.Kind == EventPrevTrack || e.Kind == EventNextTrack
}

// Command bytes.
const (
	cmdMFLMedia      = 0x3B // MFL -> RAD media buttons
	cmdMFLRT         = 0x01 // MFL -> TEL R/T button
	cmdBMBTButton    = 0x48 // BMBT button press/release
	cmdBMBTKnobTurn  = 0x49
	mflNextPressed   = 0x01
	mflPrevPressed   = 0x08
	mflTalkPressed   = 0x80
	bmbtKnobPressed  = 0x05
	knobClockwiseBit = 0x80
	knobClicksMask   = 0x0F
)

// ParseInputEvent decodes the steering wheel and board monitor frames the
// head unit reacts to. Releases and unrelated frames return false.
func ParseInputEvent(msg Message) (InputEvent, bool) {
	if len(msg.Data) == 0 {
		return InputEvent{}, false
	}

	switch msg.Source {
	case AddrMFL:
		return parseMFL(msg)
	case AddrBMBT:
		return parseBMBT(msg)
	}
	return InputEvent{}, false
}

func parseMFL(msg Message) (InputEvent, bool) {
	switch {
	case msg.Destination == AddrRadio && msg.Data[0] == cmdMFLMedia && len(msg.Data) >= 2:
		switch msg.Data[1] {
		case mflNextPressed:
			return InputEvent{Kind: EventNextTrack}, true
		case mflPrevPressed:
			return InputEvent{Kind: EventPrevTrack}, true
		}
	case msg.Destination == AddrTelephone && msg.Data[0] == cmdMFLMedia && len(msg.Data) >= 2:
		if msg.Data[1] == mflTalkPressed {
			return InputEvent{Kind: EventPushToTalk}, true
		}
	case msg.Data[0] == cmdMFLRT && len(msg.Data) == 1:
		return InputEvent{Kind: EventRT}, true
	}
	return InputEvent{}, false
}

func parseBMBT(msg Message) (InputEvent, bool) {
	if len(msg.Data) < 2 {
		return InputEvent{}, false
	}
	switch msg.Data[0] {
	case cmdBMBTButton:
		if msg.Data[1] == bmbtKnobPressed {
			return InputEvent{Kind: EventKnobPress}, true
		}
	case cmdBMBTKnobTurn:
		clicks := int(msg.Data[1] & knobClicksMask)
		if clicks == 0 {
			return InputEvent{}, false
		}
		dir := DirectionLeft
		if msg.Data[1]&knobClockwiseBit != 0 {
			dir = DirectionRight
		}
		return InputEvent{Kind: EventKnobTurn, Direction: dir, Clicks: clicks}, true
	}
	return InputEvent{}, false
}
