// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// DefaultWriteInterval spaces frames written to the bus.
const DefaultWriteInterval = 20 * time.Millisecond

// Publisher writes the process-wide outbound queue to the bus. The queue is
// shared by every graph the platform builds; the publisher never closes it.
//
// A frame taken off the queue is always written, even when the publisher is
// shut down while waiting for its write slot. The wait is at most one
// interval.
type Publisher struct {
	port     Port
	outbound *stream.Queue[Message]
	limiter  *rate.Limiter
}

// NewPublisher creates a publisher writing at most one frame per interval.
func NewPublisher(port Port, outbound *stream.Queue[Message], interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultWriteInterval
	}
	return &Publisher{
		port:     port,
		outbound: outbound,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Definition returns the platform service definition.
func (p *Publisher) Definition() platform.Definition {
	return platform.Definition{
		Name:        "ibus-publisher",
		Description: "Writes outbound IBus frames to the serial port",
		Kind:        platform.KindOneShot,
		Work:        p.run,
	}
}

func (p *Publisher) run(ctx context.Context) error {
	log := logging.Ctx(ctx)
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case msg, ok := <-p.outbound.Out():
			if !ok {
				return nil
			}
			metrics.IBusOutboundQueueDepth.Set(float64(p.outbound.Len()))

			p.pace()

			frame, err := msg.Encode()
			if err != nil {
				metrics.RecordIBusFrameError("encode")
				log.Warn().Err(err).Stringer("message", msg).Msg("Dropping unencodable frame")
				continue
			}
			if _, err := p.port.Write(frame); err != nil {
				metrics.RecordIBusFrameError("write")
				log.Warn().Err(err).Stringer("message", msg).Msg("Failed to write frame")
				continue
			}
			metrics.RecordIBusFrame("out")
		}
	}
}

// pace blocks until the next write slot. It ignores cancellation so the
// frame already dequeued is not lost.
func (p *Publisher) pace() {
	if d := p.limiter.Reserve().Delay(); d > 0 {
		time.Sleep(d)
	}
}
