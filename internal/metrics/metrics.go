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

/*
Package metrics accounts benchmark throughput, latency and CPU time.

ACCOUNTING:
===========
- Completions: packet and byte counts reported by workers and pollers
- Latency: each sync worker reports its iteration count once; its average
  latency is the send phase length over that count
- CPU: process user and system time across the send phase

PROMETHEUS ENDPOINT:
====================
While a run is in progress the counters can be scraped at /metrics in
Prometheus text format.

EXAMPLE METRICS:
================

	zipbench_packets_total 183022
	zipbench_bytes_total 749658112
	zipbench_latency_avg_microseconds 16.39
	zipbench_cpu_usage_percent 98.70
*/
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const mib = 1 << 20

// Collector receives accounting calls from a run. It is safe for
// concurrent use.
type Collector struct {
	Packets       atomic.Uint64
	Bytes         atomic.Uint64
	SendsComplete atomic.Uint64

	// Sum of per-worker average latencies, in nanoseconds.
	latencySum     atomic.Uint64
	latencyWorkers atomic.Uint64

	mu       sync.Mutex
	start    time.Time
	end      time.Time
	cpuStart cpuTimes
	cpuEnd   cpuTimes
	now      func() time.Time
}

// NewCollector returns an idle collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// Begin marks the start of the send phase.
func (c *Collector) Begin() {
	cpu := readCPU()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.now()
	c.end = time.Time{}
	c.cpuStart = cpu
}

// End marks the end of the send phase.
func (c *Collector) End() {
	cpu := readCPU()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.end = c.now()
	c.cpuEnd = cpu
}

// AddRecvData records count completed packets of pktLen bytes each.
func (c *Collector) AddRecvData(count uint64, pktLen uint32) {
	c.Packets.Add(count)
	c.Bytes.Add(count * uint64(pktLen))
}

// AddSendComplete records one async worker that finished submitting.
func (c *Collector) AddSendComplete() {
	c.SendsComplete.Add(1)
}

// CalAvgLatency records one sync worker that completed count iterations
// since Begin.
func (c *Collector) CalAvgLatency(count uint64) {
	if count == 0 {
		return
	}
	elapsed := c.elapsed()
	c.latencySum.Add(uint64(elapsed) / count)
	c.latencyWorkers.Add(1)
}

func (c *Collector) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Collector) elapsedLocked() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	if c.end.IsZero() {
		return c.now().Sub(c.start)
	}
	return c.end.Sub(c.start)
}

// AverageLatency is the mean of the per-worker average latencies.
func (c *Collector) AverageLatency() time.Duration {
	n := c.latencyWorkers.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(c.latencySum.Load() / n)
}

// Snapshot is a point-in-time view of a Collector.
type Snapshot struct {
	Elapsed    time.Duration
	Packets    uint64
	Bytes      uint64
	OpsPerSec  float64
	MiBPerSec  float64
	AvgLatency time.Duration
	CPUUser    time.Duration
	CPUSystem  time.Duration
	// CPUUsage is CPU time over wall time, in percent of one core.
	CPUUsage float64
}

// Snapshot returns the current figures. Before End it measures up to now.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	elapsed := c.elapsedLocked()
	cpuStart, cpuEnd := c.cpuStart, c.cpuEnd
	ended := !c.end.IsZero()
	c.mu.Unlock()
	if !ended {
		cpuEnd = readCPU()
	}

	s := Snapshot{
		Elapsed:    elapsed,
		Packets:    c.Packets.Load(),
		Bytes:      c.Bytes.Load(),
		AvgLatency: c.AverageLatency(),
		CPUUser:    cpuEnd.user - cpuStart.user,
		CPUSystem:  cpuEnd.system - cpuStart.system,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.OpsPerSec = float64(s.Packets) / secs
		s.MiBPerSec = float64(s.Bytes) / mib / secs
		s.CPUUsage = (s.CPUUser + s.CPUSystem).Seconds() / secs * 100
	}
	return s
}
