// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Address is an IBus device address.
type Address byte

// Device addresses seen by the head unit.
const (
	AddrCDChanger   Address = 0x18
	AddrNavigation  Address = 0x3B // GT, graphics stage / Mk4 nav computer
	AddrMFL         Address = 0x50 // steering wheel buttons
	AddrRadio       Address = 0x68
	AddrIKE         Address = 0x80 // instrument cluster
	AddrTelephone   Address = 0xC8
	AddrBMBT        Address = 0xF0 // board monitor buttons and knob
	AddrVideoModule Address = 0xED // TV module
	AddrBroadcast   Address = 0xFF
	AddrGlobalBcast Address = 0xBF
)

var addressNames = map[Address]string{
	AddrCDChanger:   "CDC",
	AddrNavigation:  "GT",
	AddrMFL:         "MFL",
	AddrRadio:       "RAD",
	AddrIKE:         "IKE",
	AddrTelephone:   "TEL",
	AddrBMBT:        "BMBT",
	AddrVideoModule: "VM",
	AddrBroadcast:   "LOC",
	AddrGlobalBcast: "GLO",
}

func (a Address) String() string {
	if name, ok := addressNames[a]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(a))
}

const (
	// MinFrameLength is source, length, destination, one data byte, checksum.
	MinFrameLength = 5
	// MaxFrameLength caps the length byte accepted by the decoder.
	MaxFrameLength = 64
	// MaxDataLength is the largest payload that fits in MaxFrameLength.
	MaxDataLength = MaxFrameLength - 4
)

var (
	// ErrEmptyData is returned when encoding a message without payload.
	ErrEmptyData = errors.New("ibus: message has no data")
	// ErrDataTooLong is returned when a payload exceeds MaxDataLength.
	ErrDataTooLong = errors.New("ibus: message data too long")
)

// Message is one IBus frame.
type Message struct {
	Source      Address
	Destination Address
	Data        []byte
}

// Validate checks the payload size.
func (m Message) Validate() error {
	if len(m.Data) == 0 {
		return ErrEmptyData
	}
	if len(m.Data) > MaxDataLength {
		return fmt.Errorf("%w: %d bytes", ErrDataTooLong, len(m.Data))
	}
	return nil
}

// Encode renders the frame: source, length, destination, data, checksum.
// The length byte counts destination, data and checksum.
func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(m.Data)+4)
	frame = append(frame, byte(m.Source), byte(len(m.Data)+2), byte(m.Destination))
	frame = append(frame, m.Data...)
	return append(frame, Checksum(frame)), nil
}

// Equal reports whether two messages carry the same frame.
func (m Message) Equal(other Message) bool {
	if m.Source != other.Source || m.Destination != other.Destination || len(m.Data) != len(other.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

func (m Message) String() string {
	return fmt.Sprintf("%s -> %s [%s]", m.Source, m.Destination, hex.EncodeToString(m.Data))
}

// Checksum is the XOR of every byte in b.
func Checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum ^= c
	}
	return sum
}
