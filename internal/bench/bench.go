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
Package bench drives a compression accelerator at full speed for a fixed
duration and reports what it completed.

RUN LIFECYCLE:
==============

	New(opts) -> Run(ctx):
	  1. resolve the op type (stream bit, compress-only coercion)
	  2. acquire contexts and install them in the provider
	  3. allocate one BufferPool per worker
	  4. decompress runs: load the corpus into pool 0, copy it to the rest
	  5. start the send timer, producers and (async) pollers
	  6. join producers, drain, stop and join pollers
	  7. tear down contexts
	  8. compress runs: save pool 0 as the corpus, then free pools

Every setup step unwinds the ones before it on failure.

PRODUCERS:
==========

Each worker owns one session and one BufferPool and cycles through the pool
by iteration index. Sync workers submit, record the output length, then
check the send state. Async workers check the send state first, submit with
a completion callback, and back off on ErrBusy with a linearly growing sleep.
The retry count starts over once it passes MaxTryCount, so a permanently
busy accelerator keeps the worker retrying until the run is stopped.

SHUTDOWN:
=========

Two run states are kept. The send state stops producers when the timer
fires, the context ends or Stop is called. The poll state is stopped only
after every producer has returned and every worker has at most DrainSlack
completions outstanding, so pollers outlive the last submission.

BUFFER REUSE:
=============

An async worker moves on to the next slot as soon as a submission is
accepted. A slot is therefore resubmitted while its previous request may
still be in flight unless the pool is larger than the in-flight depth or
the accelerator completes in order per context. StrictReuse makes a worker
wait for the slot's completion instead, counting the wait as backoff.
*/
package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"zipbench/internal/accel"
	"zipbench/internal/corpus"
	"zipbench/internal/fallback"
	"zipbench/internal/logging"
)

// ErrAlreadyRun is returned by a second call to Run.
var ErrAlreadyRun = errors.New("bench: benchmark already run")

// Recorder receives throughput and latency accounting from workers and
// pollers.
type Recorder interface {
	// Begin marks the start of the send phase and End its finish.
	Begin()
	End()
	AddRecvData(count uint64, pktLen uint32)
	AddSendComplete()
	CalAvgLatency(count uint64)
}

type nopRecorder struct{}

func (nopRecorder) Begin()                     {}
func (nopRecorder) End()                       {}
func (nopRecorder) AddRecvData(uint64, uint32) {}
func (nopRecorder) AddSendComplete()           {}
func (nopRecorder) CalAvgLatency(uint64)       {}

// Result summarizes a finished run.
type Result struct {
	Alg     accel.Algorithm
	Op      accel.OpType
	Mode    accel.Mode
	CtxMode accel.CtxMode
	// Coerced is set when a decompress request was run as compress.
	Coerced bool
	Threads int
	CtxNum  int
	PktLen  uint32

	Elapsed time.Duration
	Workers []WorkerResult
	Pollers []PollerResult

	// Output holds copies of worker 0's destination blocks.
	Output [][]byte
	Corpus *corpus.SaveResult
	// DrainErr is set when the drain wait gave up. Completions still in
	// flight at that point were dropped.
	DrainErr error
}

// Iterations sums the completed iterations of every worker.
func (r *Result) Iterations() uint64 {
	var n uint64
	for _, w := range r.Workers {
		n += w.Iterations
	}
	return n
}

// Received sums recorded completions of every worker.
func (r *Result) Received() uint64 {
	var n uint64
	for _, w := range r.Workers {
		n += w.Received
	}
	return n
}

// Benchmark is a single configured run.
type Benchmark struct {
	opts     Options
	plan     plan
	provider accel.Provider
	rec      Recorder
	logger   *logging.Logger

	fb      *fallback.Codec
	pools   *Pools
	sending *RunState
	polling *RunState

	mu      sync.Mutex
	workers []*worker
	ran     atomic.Bool
}

// New validates opts and prepares a run against provider. rec may be nil.
func New(opts Options, provider accel.Provider, rec Recorder) (*Benchmark, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInvalidOption)
	}
	opts.fillDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Benchmark{
		opts:     opts,
		plan:     opts.resolve(),
		provider: provider,
		rec:      rec,
		logger:   logging.NewLogger("bench"),
		sending:  NewRunState(),
		polling:  NewRunState(),
	}, nil
}

// Options returns the effective options.
func (b *Benchmark) Options() Options {
	return b.opts
}

// Stop ends the send phase early. Run still drains and tears down.
func (b *Benchmark) Stop() {
	b.sending.Stop()
}

// WorkerStates returns the phase of every started worker.
func (b *Benchmark) WorkerStates() []WorkerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]WorkerState, len(b.workers))
	for i, w := range b.workers {
		out[i] = w.State()
	}
	return out
}

// CorpusPath is the corpus file this run reads or writes.
func (b *Benchmark) CorpusPath() string {
	dir := b.opts.CorpusDir
	if dir == "" {
		dir = "."
	}
	return corpus.Path(dir, b.opts.PktLen, b.opts.Alg.String())
}

// Run executes the benchmark. It may be called once.
func (b *Benchmark) Run(ctx context.Context) (*Result, error) {
	if !b.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	if b.plan.coerced {
		b.logger.Warn("algorithm is compress only, running compress", "alg", b.opts.Alg.String())
	}

	stage := b.logger.Stage("setup contexts", "init", int(b.opts.InitType), "ctxnum", b.opts.CtxNum)
	cp, err := setupContexts(b.provider, b.logger, &b.opts, b.plan)
	stage.Done(err)
	if err != nil {
		if isNoResource(err) {
			b.logger.Error("not enough accelerator resources", "alg", b.opts.Alg.String(), "device", b.opts.Device)
		}
		return nil, err
	}
	defer cp.teardown()

	if b.opts.Alg == accel.LZ77Zstd {
		if b.fb, err = fallback.New(fallback.DefaultLevel); err != nil {
			return nil, err
		}
		defer b.fb.Close()
	}

	stage = b.logger.Stage("alloc pools", "threads", b.opts.Threads, "pool", b.opts.PoolSize)
	b.pools, err = AllocPools(b.opts.Threads, b.opts.PoolSize, b.opts.PktLen, b.opts.Prefetch, b.opts.Allocator, b.opts.Seed)
	stage.Done(err)
	if err != nil {
		return nil, err
	}
	defer b.pools.Free()

	if b.plan.op == accel.Decompress {
		blocks, err := corpus.Load(b.CorpusPath(), b.opts.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
		if err := b.pools.LoadBlocks(blocks); err != nil {
			return nil, fmt.Errorf("load corpus: %w", err)
		}
	}

	res := &Result{
		Alg:     b.opts.Alg,
		Op:      b.plan.op,
		Mode:    b.plan.mode,
		CtxMode: b.plan.ctxMode,
		Coerced: b.plan.coerced,
		Threads: b.opts.Threads,
		CtxNum:  b.opts.CtxNum,
		PktLen:  b.opts.PktLen,
	}
	gerr := b.execute(ctx, cp, res)
	// Stops the engines so no dropped request still writes into the pools.
	cp.teardown()

	res.Output = b.pools.OutputBlocks(0)
	if gerr != nil {
		return res, gerr
	}

	if b.plan.op == accel.Compress {
		saved, err := corpus.Save(b.CorpusPath(), res.Output, b.opts.PktLen)
		if err != nil {
			return res, fmt.Errorf("save corpus: %w", err)
		}
		res.Corpus = &saved
		if saved.Skipped {
			b.logger.Warn("corpus file exists, not overwritten", "path", saved.Path)
		} else {
			b.logger.Info("corpus saved", "path", saved.Path, "size", saved.TotalSize,
				"rate", fmt.Sprintf("%.2f%%", saved.Rate*100))
		}
	}
	return res, nil
}

// execute runs producers and pollers and fills res. The returned error is
// a session setup failure; submission failures stay in WorkerResult.
func (b *Benchmark) execute(ctx context.Context, cp *ctxPool, res *Result) error {
	b.mu.Lock()
	for i := 0; i < b.opts.Threads; i++ {
		b.workers = append(b.workers, newWorker(i, b, b.pools.Worker(i)))
	}
	workers := b.workers
	b.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	b.rec.Begin()
	start := time.Now()
	cancelTimer := b.sending.StopAfter(gctx, b.opts.Duration)
	defer cancelTimer()

	var (
		pwg     sync.WaitGroup
		pollers []PollerResult
	)
	if b.plan.ctxMode == accel.CtxAsync {
		pollers = make([]PollerResult, cp.contexts())
		for i := range pollers {
			p := &poller{
				id:       i,
				provider: b.provider,
				shared:   b.opts.InitType == InitProvider,
				expected: b.opts.QueueSize * uint32(b.opts.Threads),
				pktLen:   b.opts.PktLen,
				polling:  b.polling,
				rec:      b.rec,
				logger:   b.logger.With("poller", i),
			}
			pwg.Add(1)
			go func(i int) {
				defer pwg.Done()
				pollers[i] = p.run()
			}(i)
		}
	}

	res.Workers = make([]WorkerResult, len(workers))
	setup := accel.SessionSetup{
		Alg:    b.opts.Alg,
		Op:     b.plan.op,
		Mode:   b.plan.mode,
		Window: b.opts.Window,
		Level:  b.opts.Level,
		Sched:  &cp.params,
	}
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			sess, err := b.provider.AllocSession(setup)
			if err != nil {
				w.setState(WorkerDone)
				res.Workers[i] = WorkerResult{ID: i, Err: err}
				return fmt.Errorf("worker %d: alloc session: %w", i, err)
			}
			res.Workers[i] = w.run(sess)
			return nil
		})
	}
	gerr := g.Wait()
	b.sending.Stop()
	res.Elapsed = time.Since(start)
	b.rec.End()

	if b.plan.ctxMode == accel.CtxAsync {
		if err := drain(ctx, workers, b.opts.DrainSlack, b.opts.DrainInterval, b.opts.DrainTimeout); err != nil {
			b.logger.Warn("drain incomplete", "error", err)
			res.DrainErr = err
		}
	}
	b.polling.Stop()
	pwg.Wait()
	res.Pollers = pollers

	// Counts may have moved during the drain.
	for i, w := range workers {
		res.Workers[i].Received = w.counters.Recv.Load()
	}
	return gerr
}
