// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import (
	"github.com/tomtom215/ibusplatform/internal/metrics"
)

// Decoder extracts frames from the raw byte stream read off the bus.
//
// The bus has no start-of-frame marker, so the decoder assumes a frame starts
// at the head of its buffer. When the length byte is out of range or the
// checksum does not match, one byte is discarded and the next position is
// tried. This resynchronises after line noise or a mid-frame start.
type Decoder struct {
	buf     []byte
	skipped int
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 2*MaxFrameLength)}
}

// Feed appends raw bytes.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, or false when more bytes are needed.
func (d *Decoder) Next() (Message, bool) {
	for len(d.buf) >= 2 {
		length := int(d.buf[1])
		total := length + 2
		if total < MinFrameLength || total > MaxFrameLength {
			d.discard("length")
			continue
		}
		if len(d.buf) < total {
			// A corrupt length byte can make the head look like the start
			// of a long frame. Skip it if a complete frame is already
			// buffered further on.
			if d.frameAhead() {
				d.discard("length")
				continue
			}
			return Message{}, false
		}

		frame := d.buf[:total]
		if Checksum(frame[:total-1]) != frame[total-1] {
			d.discard("checksum")
			continue
		}

		data := make([]byte, total-4)
		copy(data, frame[3:total-1])
		msg := Message{
			Source:      Address(frame[0]),
			Destination: Address(frame[2]),
			Data:        data,
		}
		d.consume(total)
		return msg, true
	}
	return Message{}, false
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Skipped returns how many bytes were discarded while resynchronising.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) frameAhead() bool {
	for i := 1; i+MinFrameLength <= len(d.buf); i++ {
		total := int(d.buf[i+1]) + 2
		if total < MinFrameLength || total > MaxFrameLength || i+total > len(d.buf) {
			continue
		}
		if Checksum(d.buf[i:i+total-1]) == d.buf[i+total-1] {
			return true
		}
	}
	return false
}

func (d *Decoder) discard(reason string) {
	d.skipped++
	metrics.RecordIBusFrameError(reason)
	d.consume(1)
}

func (d *Decoder) consume(n int) {
	remaining := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}
