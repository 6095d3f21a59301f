// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package platform runs the head unit's background services.

# Services

A Service is built from a Definition whose Kind selects how its Work runs:

  - KindPlain: setup and teardown only (e.g. exporting a D-Bus object)
  - KindOneShot: Work runs once in a task; it usually loops internally over
    a mailbox until cancelled
  - KindLooping: Work is called repeatedly, yielding between calls

OnCreate runs Setup and launches the task. OnShutdown cancels the task with
ErrPlatformShutdown as the cause, waits for it and runs Teardown. Work must
treat that cause as a normal stop; IsShutdown tells the two apart:

	Work: func(ctx context.Context) error {
	    for {
	        select {
	        case <-ctx.Done():
	            return context.Cause(ctx)
	        case ev := <-mailbox.Out():
	            handle(ev)
	        }
	    }
	}

A task that returns an error or panics is marked Failed and is not
restarted; calling OnCreate again (StartByName) relaunches it.

# Runner

A Runner owns a ServiceList of named groups. Each group is hosted by a suture
child supervisor under a runner root. RunAll creates every service in order
without blocking, Join waits for all tasks, StopAll shuts them down in the
same order they were started. Platform.Run combines the three for callers
that dedicate a goroutine to supervision.

# ConfigurablePlatform

ConfigurablePlatform holds at most one service graph. OnNewDeviceConfiguration
stops the current graph completely before the GraphFactory builds the next
one. The last configuration and a consolidated RunStatusGroup snapshot are
published on replayable streams for observers.
*/
package platform
