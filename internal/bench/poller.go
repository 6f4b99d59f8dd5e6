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
	"errors"
	"runtime"

	"zipbench/internal/accel"
	"zipbench/internal/logging"
)

// PollerResult is what one poller reports when it exits.
type PollerResult struct {
	ID      int
	Drained uint64
	Err     error
}

type poller struct {
	id       int
	provider accel.Provider
	// shared pollers drain every async context through Provider.Poll.
	shared   bool
	expected uint32
	pktLen   uint32
	polling  *RunState
	rec      Recorder
	logger   *logging.Logger
}

// run drains completions until the poll state stops. Completions still
// queued after that point are dropped.
func (p *poller) run() PollerResult {
	res := PollerResult{ID: p.id}
	for p.polling.Running() {
		var (
			n   uint32
			err error
		)
		if p.shared {
			n, err = p.provider.Poll(p.expected)
		} else {
			n, err = p.provider.PollContext(p.id, p.expected)
		}
		res.Drained += uint64(n)
		if errors.Is(err, accel.ErrAgain) {
			runtime.Gosched()
			continue
		}
		if err != nil {
			p.logger.Error("poll failed", "error", err)
			res.Err = err
			break
		}
	}
	p.rec.AddRecvData(res.Drained, p.pktLen)
	return res
}
