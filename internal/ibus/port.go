// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tomtom215/ibusplatform/internal/stream"
)

// Port is the byte link to the bus. Read returns (0, nil) when its read
// timeout elapses with no data, so readers can check for cancellation.
type Port interface {
	io.ReadWriteCloser
}

// SerialOptions configures the serial link to the IBus interface.
type SerialOptions struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// OpenSerialPort opens the IBus interface: 9600 baud, 8 data bits, even
// parity, one stop bit unless BaudRate overrides the speed.
func OpenSerialPort(opts SerialOptions) (Port, error) {
	if opts.BaudRate == 0 {
		opts.BaudRate = 9600
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 250 * time.Millisecond
	}

	port, err := serial.Open(opts.Device, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", opts.Device, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", opts.Device, err)
	}
	return port, nil
}

// ErrPortClosed is returned by writes to a closed LoopbackPort.
var ErrPortClosed = errors.New("ibus: port closed")

// LoopbackPort stands in for the serial port on development hosts: every
// frame written can be read back, so published messages flow through the
// listener as if the car had sent them.
type LoopbackPort struct {
	readTimeout time.Duration
	data        *stream.Queue[[]byte]

	mu      sync.Mutex
	pending []byte
}

// NewLoopbackPort creates a loopback port.
func NewLoopbackPort(readTimeout time.Duration) *LoopbackPort {
	if readTimeout <= 0 {
		readTimeout = 250 * time.Millisecond
	}
	return &LoopbackPort{readTimeout: readTimeout, data: stream.NewQueue[[]byte]()}
}

// Write queues p to be read back.
func (p *LoopbackPort) Write(b []byte) (int, error) {
	chunk := make([]byte, len(b))
	copy(chunk, b)
	if !p.data.Send(chunk) {
		return 0, ErrPortClosed
	}
	return len(b), nil
}

// Inject queues raw bytes as if they were received from the bus.
func (p *LoopbackPort) Inject(b []byte) error {
	_, err := p.Write(b)
	return err
}

// Read returns queued bytes, or (0, nil) after the read timeout.
func (p *LoopbackPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		timer := time.NewTimer(p.readTimeout)
		defer timer.Stop()
		select {
		case chunk, ok := <-p.data.Out():
			if !ok {
				return 0, io.EOF
			}
			p.pending = chunk
		case <-timer.C:
			return 0, nil
		}
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Close stops the port. Pending reads return io.EOF once drained.
func (p *LoopbackPort) Close() error {
	p.data.Close()
	return nil
}
