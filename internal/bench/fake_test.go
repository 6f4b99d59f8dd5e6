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
	"fmt"
	"sync"
	"sync/atomic"

	"zipbench/internal/accel"
)

type fakeCtx struct {
	dev string
	id  int
}

func (c *fakeCtx) Device() string { return c.dev }

type fakeScheduler struct {
	p      *fakeProvider
	params []accel.SchedParams
}

func (s *fakeScheduler) Instance(params accel.SchedParams) error {
	s.params = append(s.params, params)
	return nil
}

func (s *fakeScheduler) Release() {
	s.p.mu.Lock()
	s.p.schedReleased++
	s.p.mu.Unlock()
}

// fakeProvider hands out contexts from a fixed inventory and sessions built
// by newSession.
type fakeProvider struct {
	mu            sync.Mutex
	devices       []accel.Device
	free          map[string]int
	failRequestAt int
	requests      int
	nextID        int
	released      []int
	inits         int
	init2Nums     []accel.CtxNums
	uninits       int
	schedReleased int
	sched         *fakeScheduler

	sessions   atomic.Int32
	newSession func() accel.Session
	poll       func(expected uint32) (uint32, error)
}

func newFakeProvider(freePerDevice ...int) *fakeProvider {
	p := &fakeProvider{free: make(map[string]int)}
	for i, n := range freePerDevice {
		name := fmt.Sprintf("fake-%d", i)
		p.devices = append(p.devices, accel.Device{Name: name})
		p.free[name] = n
	}
	return p
}

func (p *fakeProvider) Devices(accel.Algorithm) ([]accel.Device, error) {
	return append([]accel.Device(nil), p.devices...), nil
}

func (p *fakeProvider) DefaultDevice(accel.Algorithm) (accel.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		if p.free[d.Name] > 0 {
			return d, nil
		}
	}
	return accel.Device{}, accel.ErrNoDevice
}

func (p *fakeProvider) AvailableContexts(dev accel.Device) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free[dev.Name], nil
}

func (p *fakeProvider) RequestContext(dev accel.Device) (accel.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.failRequestAt > 0 && p.requests == p.failRequestAt {
		return nil, accel.ErrNoContext
	}
	if p.free[dev.Name] == 0 {
		return nil, accel.ErrNoContext
	}
	p.free[dev.Name]--
	c := &fakeCtx{dev: dev.Name, id: p.nextID}
	p.nextID++
	return c, nil
}

func (p *fakeProvider) ReleaseContext(c accel.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fc := c.(*fakeCtx)
	p.released = append(p.released, fc.id)
	p.free[fc.dev]++
}

func (p *fakeProvider) AllocScheduler(accel.SchedPolicy, int, int) (accel.Scheduler, error) {
	p.sched = &fakeScheduler{p: p}
	return p.sched, nil
}

func (p *fakeProvider) NUMANodes() int { return 1 }

func (p *fakeProvider) Init(accel.CtxConfig, accel.Scheduler) error {
	p.inits++
	return nil
}

func (p *fakeProvider) Init2(_ accel.Algorithm, _ accel.SchedPolicy, nums []accel.CtxNums) error {
	p.init2Nums = nums
	p.inits++
	return nil
}

func (p *fakeProvider) Uninit() {
	p.uninits++
}

func (p *fakeProvider) AllocSession(accel.SessionSetup) (accel.Session, error) {
	p.sessions.Add(1)
	if p.newSession == nil {
		return nil, errors.New("fake: no sessions")
	}
	return p.newSession(), nil
}

func (p *fakeProvider) PollContext(_ int, expected uint32) (uint32, error) {
	return p.Poll(expected)
}

func (p *fakeProvider) Poll(expected uint32) (uint32, error) {
	if p.poll == nil {
		return 0, accel.ErrAgain
	}
	return p.poll(expected)
}

type fakeSession struct {
	sync  func(*accel.Request) error
	async func(*accel.Request) error
	freed atomic.Bool
}

func (s *fakeSession) SubmitSync(req *accel.Request) error {
	return s.sync(req)
}

func (s *fakeSession) SubmitStream(req *accel.Request) error {
	return s.sync(req)
}

func (s *fakeSession) SubmitAsync(req *accel.Request) error {
	return s.async(req)
}

func (s *fakeSession) Free() {
	s.freed.Store(true)
}

// countingAllocator fails the Nth allocation and tracks what is live.
type countingAllocator struct {
	failAt int
	allocs int
	live   int
}

func (a *countingAllocator) Alloc(size int) ([]byte, error) {
	a.allocs++
	if a.failAt > 0 && a.allocs == a.failAt {
		return nil, errors.New("fake: no memory")
	}
	a.live++
	return make([]byte, size), nil
}

func (a *countingAllocator) Free(buf []byte) {
	if buf != nil {
		a.live--
	}
}

// countingRecorder collects Recorder calls.
type countingRecorder struct {
	mu      sync.Mutex
	begins  int
	ends    int
	recv    uint64
	sends   int
	latency uint64
}

func (r *countingRecorder) Begin() {
	r.mu.Lock()
	r.begins++
	r.mu.Unlock()
}

func (r *countingRecorder) End() {
	r.mu.Lock()
	r.ends++
	r.mu.Unlock()
}

func (r *countingRecorder) AddRecvData(count uint64, _ uint32) {
	r.mu.Lock()
	r.recv += count
	r.mu.Unlock()
}

func (r *countingRecorder) AddSendComplete() {
	r.mu.Lock()
	r.sends++
	r.mu.Unlock()
}

func (r *countingRecorder) CalAvgLatency(count uint64) {
	r.mu.Lock()
	r.latency += count
	r.mu.Unlock()
}
