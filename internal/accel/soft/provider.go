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
Package soft is a software-emulated accelerator implementing
accel.Provider.

EMULATION:
==========
Each configured device owns a number of queue contexts. Sync requests run
inline on the caller's goroutine. Async requests are queued on a bounded
per-context ring (QueueDepth) and executed by one engine goroutine per
context; completions wait on a done ring until polled, so a full ring
produces accel.ErrBusy exactly as a saturated hardware queue would.

Codecs come from github.com/klauspost/compress (zlib, gzip, deflate) and
github.com/pierrec/lz4/v4 (lz4). The lz77_zstd algorithm emits a
literal-only intermediate form and fills an accel.SequenceTuple for the
software finalizer.

PLACEMENT:
==========
DefaultDevice prefers the device with the most free contexts, ties going to
the earlier device, mirroring a least-loaded default placement.
*/
package soft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"zipbench/internal/accel"
	"zipbench/internal/logging"
)

// DeviceSpec describes one emulated device.
type DeviceSpec struct {
	Name   string
	NUMA   int
	Queues int
}

// Options configures the emulated provider.
type Options struct {
	Devices    []DeviceSpec
	QueueDepth int
	// Latency is added to every async request before it completes.
	Latency   time.Duration
	NUMANodes int
}

// DefaultOptions returns two devices with 16 contexts each.
func DefaultOptions() Options {
	return Options{
		Devices: []DeviceSpec{
			{Name: "hisi_zip-0", NUMA: 0, Queues: 16},
			{Name: "hisi_zip-1", NUMA: 0, Queues: 16},
		},
		QueueDepth: 1024,
		NUMANodes:  1,
	}
}

// Stats counts queue activity across all contexts.
type Stats struct {
	Submitted atomic.Uint64
	Completed atomic.Uint64
	Busy      atomic.Uint64
}

type device struct {
	cfg DeviceSpec
	used int
}

type softContext struct {
	dev      *device
	id       uint64
	released bool
}

func (c *softContext) Device() string {
	return c.dev.cfg.Name
}

// installed holds the queues set up by Init or Init2.
type installed struct {
	queues []*queue
	sched  *rrScheduler
	owned  []*softContext
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Provider is the software accelerator.
type Provider struct {
	opts   Options
	logger *logging.Logger

	mu      sync.Mutex
	devices []*device
	nextID  uint64

	rt    atomic.Pointer[installed]
	stats Stats
}

// New creates a provider from opts, filling unset fields from
// DefaultOptions.
func New(opts Options) *Provider {
	def := DefaultOptions()
	if len(opts.Devices) == 0 {
		opts.Devices = def.Devices
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = def.QueueDepth
	}
	if opts.NUMANodes <= 0 {
		opts.NUMANodes = def.NUMANodes
	}
	p := &Provider{opts: opts, logger: logging.NewLogger("soft-accel")}
	for _, ds := range opts.Devices {
		p.devices = append(p.devices, &device{cfg: ds})
	}
	return p
}

// Stats returns the provider's live counters.
func (p *Provider) Stats() *Stats {
	return &p.stats
}

func (p *Provider) NUMANodes() int {
	return p.opts.NUMANodes
}

func (p *Provider) Devices(alg accel.Algorithm) ([]accel.Device, error) {
	if _, ok := algorithmSupported(alg); !ok {
		return nil, fmt.Errorf("%w: %s", accel.ErrUnknownAlg, alg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]accel.Device, 0, len(p.devices))
	for _, d := range p.devices {
		out = append(out, accel.Device{Name: d.cfg.Name, NUMA: d.cfg.NUMA})
	}
	return out, nil
}

func algorithmSupported(alg accel.Algorithm) (string, bool) {
	switch alg {
	case accel.Zlib, accel.Gzip, accel.Deflate, accel.LZ77Zstd, accel.LZ4:
		return alg.String(), true
	default:
		return "", false
	}
}

func (p *Provider) DefaultDevice(alg accel.Algorithm) (accel.Device, error) {
	if _, ok := algorithmSupported(alg); !ok {
		return accel.Device{}, fmt.Errorf("%w: %s", accel.ErrUnknownAlg, alg)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var best *device
	for _, d := range p.devices {
		free := d.cfg.Queues - d.used
		if free <= 0 {
			continue
		}
		if best == nil || free > best.cfg.Queues-best.used {
			best = d
		}
	}
	if best == nil {
		return accel.Device{}, fmt.Errorf("%w: no %s device with free contexts", accel.ErrNoDevice, alg)
	}
	return accel.Device{Name: best.cfg.Name, NUMA: best.cfg.NUMA}, nil
}

func (p *Provider) findLocked(name string) (*device, error) {
	for _, d := range p.devices {
		if d.cfg.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", accel.ErrNoDevice, name)
}

func (p *Provider) AvailableContexts(dev accel.Device) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, err := p.findLocked(dev.Name)
	if err != nil {
		return 0, err
	}
	return d.cfg.Queues - d.used, nil
}

func (p *Provider) RequestContext(dev accel.Device) (accel.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, err := p.findLocked(dev.Name)
	if err != nil {
		return nil, err
	}
	if d.used >= d.cfg.Queues {
		return nil, fmt.Errorf("%w: %s", accel.ErrNoContext, dev.Name)
	}
	d.used++
	p.nextID++
	return &softContext{dev: d, id: p.nextID}, nil
}

func (p *Provider) ReleaseContext(c accel.Context) {
	sc, ok := c.(*softContext)
	if !ok || sc == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sc.released {
		return
	}
	sc.released = true
	sc.dev.used--
}

func (p *Provider) AllocScheduler(policy accel.SchedPolicy, opTypes, numaNodes int) (accel.Scheduler, error) {
	if policy != accel.SchedRR {
		return nil, fmt.Errorf("%w: sched policy %d", accel.ErrInvalidParam, policy)
	}
	if opTypes <= 0 || numaNodes <= 0 {
		return nil, fmt.Errorf("%w: %d op types over %d nodes", accel.ErrInvalidParam, opTypes, numaNodes)
	}
	return newRRScheduler(opTypes, numaNodes), nil
}

func (p *Provider) Init(cfg accel.CtxConfig, sched accel.Scheduler) error {
	rr, ok := sched.(*rrScheduler)
	if !ok || rr == nil {
		return fmt.Errorf("%w: foreign scheduler", accel.ErrInvalidParam)
	}
	if len(cfg.Entries) == 0 {
		return fmt.Errorf("%w: empty context config", accel.ErrInvalidParam)
	}
	rt := &installed{sched: rr, stopCh: make(chan struct{})}
	for i, e := range cfg.Entries {
		sc, ok := e.Ctx.(*softContext)
		if !ok || sc == nil {
			return fmt.Errorf("%w: context %d is not a soft context", accel.ErrInvalidParam, i)
		}
		rt.queues = append(rt.queues, newQueue(i, e, sc, p.opts.QueueDepth, p.opts.Latency, &p.stats))
	}
	return p.install(rt)
}

func (p *Provider) install(rt *installed) error {
	if !p.rt.CompareAndSwap(nil, rt) {
		return fmt.Errorf("%w: already initialized", accel.ErrInvalidParam)
	}
	for _, q := range rt.queues {
		if q.mode == accel.CtxAsync {
			rt.wg.Add(1)
			go q.run(rt.stopCh, &rt.wg)
		}
	}
	p.logger.Debug("accelerator initialized", "contexts", len(rt.queues))
	return nil
}

// Init2 allocates contexts through default placement and schedules them
// itself. nums is indexed by operation type.
func (p *Provider) Init2(alg accel.Algorithm, policy accel.SchedPolicy, nums []accel.CtxNums) error {
	if len(nums) == 0 || len(nums) > int(accel.OpTypeCount) {
		return fmt.Errorf("%w: %d op type entries", accel.ErrInvalidParam, len(nums))
	}
	s, err := p.AllocScheduler(policy, int(accel.OpTypeCount), p.opts.NUMANodes)
	if err != nil {
		return err
	}
	rr := s.(*rrScheduler)
	rt := &installed{sched: rr, stopCh: make(chan struct{})}

	unwind := func() {
		for i := len(rt.owned) - 1; i >= 0; i-- {
			p.ReleaseContext(rt.owned[i])
		}
		rr.Release()
	}

	for op, n := range nums {
		for _, group := range []struct {
			mode  accel.CtxMode
			count int
		}{{accel.CtxSync, n.Sync}, {accel.CtxAsync, n.Async}} {
			if group.count <= 0 {
				continue
			}
			begin := len(rt.queues)
			for i := 0; i < group.count; i++ {
				dev, err := p.DefaultDevice(alg)
				if err != nil {
					unwind()
					return err
				}
				c, err := p.RequestContext(dev)
				if err != nil {
					unwind()
					return err
				}
				sc := c.(*softContext)
				rt.owned = append(rt.owned, sc)
				entry := accel.CtxEntry{Ctx: sc, Op: accel.OpType(op), Mode: group.mode}
				rt.queues = append(rt.queues, newQueue(len(rt.queues), entry, sc, p.opts.QueueDepth, p.opts.Latency, &p.stats))
			}
			params := accel.SchedParams{Op: accel.OpType(op), Mode: group.mode, Begin: begin, End: len(rt.queues) - 1}
			if err := rr.Instance(params); err != nil {
				unwind()
				return err
			}
		}
	}
	if len(rt.queues) == 0 {
		rr.Release()
		return fmt.Errorf("%w: no contexts requested", accel.ErrInvalidParam)
	}
	if err := p.install(rt); err != nil {
		unwind()
		return err
	}
	return nil
}

// Uninit stops every engine. Completions not yet polled are discarded.
func (p *Provider) Uninit() {
	rt := p.rt.Swap(nil)
	if rt == nil {
		return
	}
	close(rt.stopCh)
	rt.wg.Wait()
	for i := len(rt.owned) - 1; i >= 0; i-- {
		p.ReleaseContext(rt.owned[i])
	}
	if len(rt.owned) > 0 {
		rt.sched.Release()
	}
	p.logger.Debug("accelerator uninitialized")
}

func (p *Provider) AllocSession(setup accel.SessionSetup) (accel.Session, error) {
	if p.rt.Load() == nil {
		return nil, accel.ErrNotInitialized
	}
	if setup.Alg.CompressOnly() && setup.Op == accel.Decompress {
		return nil, fmt.Errorf("%w: %s cannot decompress", accel.ErrInvalidParam, setup.Alg)
	}
	if setup.Op >= accel.OpTypeCount {
		return nil, fmt.Errorf("%w: op type %d", accel.ErrInvalidParam, setup.Op)
	}
	if setup.Window.Bytes() == 0 {
		return nil, fmt.Errorf("%w: window code %d", accel.ErrInvalidParam, setup.Window)
	}
	c, err := newCodec(setup)
	if err != nil {
		return nil, err
	}
	numa := 0
	if setup.Sched != nil {
		numa = setup.Sched.NUMA
	}
	return &session{p: p, setup: setup, codec: c, numa: numa}, nil
}

func (p *Provider) PollContext(id int, expected uint32) (uint32, error) {
	rt := p.rt.Load()
	if rt == nil {
		return 0, accel.ErrNotInitialized
	}
	if id < 0 || id >= len(rt.queues) || rt.queues[id].mode != accel.CtxAsync {
		return 0, fmt.Errorf("%w: context %d is not an async context", accel.ErrInvalidParam, id)
	}
	n := rt.queues[id].poll(expected)
	if n == 0 {
		return 0, accel.ErrAgain
	}
	return n, nil
}

func (p *Provider) Poll(expected uint32) (uint32, error) {
	rt := p.rt.Load()
	if rt == nil {
		return 0, accel.ErrNotInitialized
	}
	var total uint32
	for _, q := range rt.queues {
		if q.mode != accel.CtxAsync || total >= expected {
			continue
		}
		total += q.poll(expected - total)
	}
	if total == 0 {
		return 0, accel.ErrAgain
	}
	return total, nil
}

type session struct {
	p     *Provider
	setup accel.SessionSetup
	codec codec
	numa  int
	freed atomic.Bool
}

func (s *session) route(mode accel.CtxMode, req *accel.Request) (*queue, error) {
	if s.freed.Load() {
		return nil, fmt.Errorf("%w: session freed", accel.ErrInvalidParam)
	}
	if req == nil || req.SrcLen > uint32(len(req.Src)) || req.DstLen > uint32(len(req.Dst)) {
		return nil, fmt.Errorf("%w: request lengths exceed buffers", accel.ErrInvalidParam)
	}
	if req.Op != s.setup.Op {
		return nil, fmt.Errorf("%w: %s request on %s session", accel.ErrInvalidParam, req.Op, s.setup.Op)
	}
	rt := s.p.rt.Load()
	if rt == nil {
		return nil, accel.ErrNotInitialized
	}
	idx, err := rt.sched.pick(s.numa, s.setup.Op, mode)
	if err != nil {
		return nil, err
	}
	if idx >= len(rt.queues) {
		return nil, fmt.Errorf("%w: scheduled context %d out of range", accel.ErrNoContext, idx)
	}
	return rt.queues[idx], nil
}

func (s *session) SubmitSync(req *accel.Request) error {
	if _, err := s.route(accel.CtxSync, req); err != nil {
		return err
	}
	execute(s.codec, req, false)
	return nil
}

func (s *session) SubmitStream(req *accel.Request) error {
	if _, err := s.route(accel.CtxSync, req); err != nil {
		return err
	}
	execute(s.codec, req, true)
	return nil
}

func (s *session) SubmitAsync(req *accel.Request) error {
	q, err := s.route(accel.CtxAsync, req)
	if err != nil {
		return err
	}
	return q.submit(job{req: req, codec: s.codec, stream: s.setup.Mode == accel.ModeStream})
}

func (s *session) Free() {
	s.freed.Store(true)
}
