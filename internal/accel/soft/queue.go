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

package soft

import (
	"sync"
	"sync/atomic"
	"time"

	"zipbench/internal/accel"
)

type job struct {
	req    *accel.Request
	codec  codec
	stream bool
}

// queue is one hardware queue. Async queues run an engine goroutine that
// executes pending jobs and parks them on the done ring until polled.
type queue struct {
	id      int
	ctx     *softContext
	op      accel.OpType
	mode    accel.CtxMode
	depth   int
	latency time.Duration

	inflight atomic.Int64
	pending  chan job
	done     chan *accel.Request

	stats *Stats
}

func newQueue(id int, entry accel.CtxEntry, ctx *softContext, depth int, latency time.Duration, stats *Stats) *queue {
	q := &queue{
		id:      id,
		ctx:     ctx,
		op:      entry.Op,
		mode:    entry.Mode,
		depth:   depth,
		latency: latency,
		stats:   stats,
	}
	if entry.Mode == accel.CtxAsync {
		q.pending = make(chan job, depth)
		q.done = make(chan *accel.Request, depth)
	}
	return q
}

// submit enqueues without blocking. Requests count as in flight from
// submission until their callback has run.
func (q *queue) submit(j job) error {
	if q.inflight.Add(1) > int64(q.depth) {
		q.inflight.Add(-1)
		q.stats.Busy.Add(1)
		return accel.ErrBusy
	}
	select {
	case q.pending <- j:
		q.stats.Submitted.Add(1)
		return nil
	default:
		q.inflight.Add(-1)
		q.stats.Busy.Add(1)
		return accel.ErrBusy
	}
}

func (q *queue) run(stopCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case j := <-q.pending:
			if q.latency > 0 {
				time.Sleep(q.latency)
			}
			execute(j.codec, j.req, j.stream)
			// Cannot block: done holds at most depth entries and depth
			// bounds everything in flight.
			q.done <- j.req
		}
	}
}

// poll delivers up to expected completions and runs their callbacks.
func (q *queue) poll(expected uint32) uint32 {
	var n uint32
	for n < expected {
		select {
		case req := <-q.done:
			if req.Callback != nil {
				req.Callback(req)
			}
			q.inflight.Add(-1)
			q.stats.Completed.Add(1)
			n++
		default:
			return n
		}
	}
	return n
}
