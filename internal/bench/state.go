/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RunState is a one-way flag: it starts running and, once stopped, stays
// stopped.
type RunState struct {
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewRunState returns a running state.
func NewRunState() *RunState {
	return &RunState{done: make(chan struct{})}
}

// Running reports whether Stop has not yet been called.
func (s *RunState) Running() bool {
	return !s.stopped.Load()
}

// Stop flips the state. Later calls are no-ops.
func (s *RunState) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
	})
}

// Done is closed once the state is stopped.
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

// StopAfter stops s after d or when ctx ends, whichever comes first. The
// returned function cancels both triggers.
func (s *RunState) StopAfter(ctx context.Context, d time.Duration) (cancel func()) {
	timer := time.AfterFunc(d, s.Stop)
	unhook := context.AfterFunc(ctx, s.Stop)
	return func() {
		timer.Stop()
		unhook()
	}
}

// WorkerState is the observable phase of a producer.
type WorkerState int32

const (
	WorkerSending WorkerState = iota
	WorkerBackoff
	WorkerStopping
	WorkerDone
)

func (s WorkerState) String() string {
	switch s {
	case WorkerSending:
		return "sending"
	case WorkerBackoff:
		return "backoff"
	case WorkerStopping:
		return "stopping"
	case WorkerDone:
		return "done"
	default:
		return "unknown"
	}
}

// Counters are one worker's submission and completion counts. Send only
// moves on the worker; Recv moves on whichever goroutine handles the
// completion.
type Counters struct {
	Send atomic.Uint64
	Recv atomic.Uint64
}

// Outstanding returns Send - Recv, or zero if completions have caught up.
func (c *Counters) Outstanding() uint64 {
	recv := c.Recv.Load()
	send := c.Send.Load()
	if send <= recv {
		return 0
	}
	return send - recv
}
