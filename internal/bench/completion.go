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
	"zipbench/internal/accel"
	"zipbench/internal/fallback"
)

// CompletionTag identifies where an async completion belongs. It is copied
// into the handler closure, so it stays valid however long the request
// sits in the accelerator.
type CompletionTag struct {
	WorkerID    int
	BufferIndex int
	// ExpectedLen is the destination budget of the slot.
	ExpectedLen uint32
	counters    *Counters
}

// handler builds the completion callback for one submission.
func (w *worker) handler(tag CompletionTag) func(*accel.Request) {
	return func(req *accel.Request) {
		w.complete(tag, req)
	}
}

// complete records the output length of a finished request in its pool
// slot and counts it. Recv moves last so a drained count implies the slot
// is written.
func (w *worker) complete(tag CompletionTag, req *accel.Request) {
	d := w.pool.At(tag.BufferIndex)
	n := req.DstLen
	if req.Status != accel.StatusOK {
		w.logger.Debug("completion with bad status", "slot", tag.BufferIndex, "status", req.Status.String())
	} else if w.lz77() {
		m, err := w.fb.Transform(req.Priv, req.Src[:req.SrcLen], d.Dst[:tag.ExpectedLen], fallback.EndFrame)
		if err != nil {
			w.logger.Warn("lz77 finalize failed", "slot", tag.BufferIndex, "error", err)
			m = 0
		}
		n = uint32(m)
	}
	d.SetDstLen(n)
	w.releaseSlot(tag.BufferIndex)
	tag.counters.Recv.Add(1)
}
