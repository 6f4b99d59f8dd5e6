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
	"fmt"
	"sync"
	"sync/atomic"

	"zipbench/internal/accel"
)

type regionKey struct {
	numa int
	op   accel.OpType
	mode accel.CtxMode
}

type region struct {
	begin int
	end   int
	next  atomic.Uint32
}

// rrScheduler spreads requests over the context range bound for each
// (numa, op, mode) key.
type rrScheduler struct {
	opTypes   int
	numaNodes int

	mu       sync.RWMutex
	regions  map[regionKey]*region
	released atomic.Bool
}

func newRRScheduler(opTypes, numaNodes int) *rrScheduler {
	return &rrScheduler{
		opTypes:   opTypes,
		numaNodes: numaNodes,
		regions:   make(map[regionKey]*region),
	}
}

// Instance binds a context range for one operation type and mode.
func (s *rrScheduler) Instance(p accel.SchedParams) error {
	if s.released.Load() {
		return fmt.Errorf("%w: scheduler released", accel.ErrInvalidParam)
	}
	if int(p.Op) >= s.opTypes || p.NUMA < 0 || p.NUMA >= s.numaNodes || p.Mode >= accel.CtxModeCount {
		return fmt.Errorf("%w: sched params %+v", accel.ErrInvalidParam, p)
	}
	if p.Begin < 0 || p.End < p.Begin {
		return fmt.Errorf("%w: context range [%d, %d]", accel.ErrInvalidParam, p.Begin, p.End)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[regionKey{numa: p.NUMA, op: p.Op, mode: p.Mode}] = &region{begin: p.Begin, end: p.End}
	return nil
}

// Release drops every bound range.
func (s *rrScheduler) Release() {
	if s.released.Swap(true) {
		return
	}
	s.mu.Lock()
	s.regions = make(map[regionKey]*region)
	s.mu.Unlock()
}

// pick returns the next context index for the key. A key without a range on
// the requested node falls back to any node serving the same op and mode.
func (s *rrScheduler) pick(numa int, op accel.OpType, mode accel.CtxMode) (int, error) {
	s.mu.RLock()
	r, ok := s.regions[regionKey{numa: numa, op: op, mode: mode}]
	if !ok {
		for n := 0; n < s.numaNodes && !ok; n++ {
			r, ok = s.regions[regionKey{numa: n, op: op, mode: mode}]
		}
	}
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: no %s %s contexts scheduled", accel.ErrNoContext, mode, op)
	}

	span := uint32(r.end - r.begin + 1)
	return r.begin + int((r.next.Add(1)-1)%span), nil
}
