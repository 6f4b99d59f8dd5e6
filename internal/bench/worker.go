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
	"sync/atomic"
	"time"

	"zipbench/internal/accel"
	"zipbench/internal/fallback"
	"zipbench/internal/logging"
)

// ErrSubmit wraps an accelerator error or bad status that ended a worker.
var ErrSubmit = errors.New("bench: submission failed")

// WorkerResult is what one producer reports when it exits.
type WorkerResult struct {
	ID         int
	Iterations uint64
	Sent       uint64
	Received   uint64
	// FirstLen is the output length of the first completed sync block.
	FirstLen    uint32
	BusyRetries uint64
	RetryResets uint64
	Err         error
}

type worker struct {
	id      int
	opts    *Options
	plan    plan
	pool    *BufferPool
	outSize uint32
	sess    accel.Session
	fb      *fallback.Codec
	sending *RunState
	rec     Recorder
	logger  *logging.Logger

	counters Counters
	state    atomic.Int32

	iterations uint64
	firstLen   uint32
	busy       uint64
	resets     uint64

	// lz77 only: hardware output lands in scratch and the sequence tuple
	// for slot i is tuples[i].
	scratch [][]byte
	tuples  []accel.SequenceTuple
	// inflight guards slots when StrictReuse is set.
	inflight []atomic.Bool
}

func newWorker(id int, b *Benchmark, pool *BufferPool) *worker {
	w := &worker{
		id:      id,
		opts:    &b.opts,
		plan:    b.plan,
		pool:    pool,
		outSize: b.pools.OutSize(),
		fb:      b.fb,
		sending: b.sending,
		rec:     b.rec,
		logger:  b.logger.With("worker", id),
	}
	if b.opts.StrictReuse {
		w.inflight = make([]atomic.Bool, pool.Len())
	}
	return w
}

func (w *worker) lz77() bool {
	return w.opts.Alg == accel.LZ77Zstd
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// State returns the current phase.
func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// run drives one producer until the send state stops or a submission fails.
func (w *worker) run(sess accel.Session) (res WorkerResult) {
	w.sess = sess
	w.setState(WorkerSending)
	defer func() {
		w.sess.Free()
		w.scratch, w.tuples = nil, nil
		w.setState(WorkerDone)
		res.ID = w.id
		res.Iterations = w.iterations
		res.Sent = w.counters.Send.Load()
		res.Received = w.counters.Recv.Load()
		res.FirstLen = w.firstLen
		res.BusyRetries = w.busy
		res.RetryResets = w.resets
	}()

	if w.opts.PinCPU {
		if err := pinThread(w.id); err != nil {
			w.logger.Warn("cpu pinning failed", "error", err)
		} else {
			defer unpinThread()
		}
	}
	if w.lz77() {
		w.scratch = make([][]byte, w.pool.Len())
		w.tuples = make([]accel.SequenceTuple, w.pool.Len())
		for i := range w.scratch {
			w.scratch[i] = make([]byte, w.outSize)
		}
	}

	var err error
	switch {
	case w.plan.ctxMode == accel.CtxAsync && w.plan.mode == accel.ModeStream:
		w.logger.Warn("stream mode has no async path, worker idle")
	case w.plan.ctxMode == accel.CtxAsync:
		err = w.runAsync()
	case w.plan.mode == accel.ModeStream:
		err = w.runStream()
	default:
		err = w.runSync()
	}
	res.Err = err
	return res
}

// recordLen is the per-iteration byte count reported for sync runs.
func (w *worker) recordLen() uint32 {
	if w.plan.op == accel.Decompress && w.firstLen > 0 {
		return w.firstLen
	}
	return w.opts.PktLen
}

func (w *worker) runSync() error {
	var (
		count uint64
		err   error
	)
	for {
		idx := int(count % uint64(w.pool.Len()))
		d := w.pool.At(idx)
		req := accel.Request{
			Op:     w.plan.op,
			Src:    d.Src,
			SrcLen: d.SrcLen,
			Dst:    d.Dst,
			DstLen: w.outSize,
		}
		if w.lz77() {
			req.Dst = w.scratch[idx]
			req.Priv = &w.tuples[idx]
		}
		if serr := w.sess.SubmitSync(&req); serr != nil || req.Status != accel.StatusOK {
			err = w.submitErr(serr, req.Status)
			break
		}
		n := req.DstLen
		if w.lz77() {
			m, ferr := w.fb.Transform(req.Priv, d.Src[:d.SrcLen], d.Dst, fallback.EndFrame)
			if ferr != nil {
				err = fmt.Errorf("%w: finalize block %d: %v", ErrSubmit, idx, ferr)
				break
			}
			n = uint32(m)
		}
		d.SetDstLen(n)
		if count == 0 {
			w.firstLen = n
		}
		count++
		w.counters.Send.Add(1)
		w.counters.Recv.Add(1)

		if !w.sending.Running() {
			break
		}
	}
	w.setState(WorkerStopping)
	w.iterations = count
	w.rec.CalAvgLatency(count)
	w.rec.AddRecvData(count, w.recordLen())
	return err
}

func (w *worker) runStream() error {
	var (
		count uint64
		err   error
	)
outer:
	for {
		idx := int(count % uint64(w.pool.Len()))
		d := w.pool.At(idx)
		src := d.Src[:d.SrcLen]
		dst := d.Dst[:w.outSize]
		var produced uint32
		for len(src) > 0 {
			if len(dst) == 0 {
				err = fmt.Errorf("%w: block %d output budget exhausted", ErrSubmit, idx)
				break outer
			}
			in := min(len(src), ChunkSize)
			out := min(len(dst), ExpansionRatio*ChunkSize)
			req := accel.Request{
				Op:     w.plan.op,
				Src:    src[:in],
				SrcLen: uint32(in),
				Dst:    dst[:out],
				DstLen: uint32(out),
			}
			if w.lz77() {
				req.Priv = &w.tuples[idx]
			}
			serr := w.sess.SubmitStream(&req)
			if serr != nil || req.Status == accel.StatusInvalidParam {
				err = w.submitErr(serr, req.Status)
				break outer
			}
			produced += req.DstLen
			src = src[in:]
			dst = dst[out:]
		}
		d.SetDstLen(produced)
		count++
		w.counters.Send.Add(1)
		w.counters.Recv.Add(1)

		if !w.sending.Running() {
			break
		}
	}
	w.setState(WorkerStopping)
	w.iterations = count
	w.rec.CalAvgLatency(count)
	w.rec.AddRecvData(count, w.opts.PktLen)
	return err
}

func (w *worker) runAsync() error {
	var (
		count uint64
		try   int
		err   error
	)
	for w.sending.Running() {
		idx := int(count % uint64(w.pool.Len()))
		if w.inflight != nil && !w.inflight[idx].CompareAndSwap(false, true) {
			w.backoff(&try)
			continue
		}
		d := w.pool.At(idx)
		tag := CompletionTag{
			WorkerID:    w.id,
			BufferIndex: idx,
			ExpectedLen: w.outSize,
			counters:    &w.counters,
		}
		req := &accel.Request{
			Op:       w.plan.op,
			Src:      d.Src,
			SrcLen:   d.SrcLen,
			Dst:      d.Dst,
			DstLen:   w.outSize,
			Callback: w.handler(tag),
		}
		if w.lz77() {
			req.Dst = w.scratch[idx]
			req.Priv = &w.tuples[idx]
		}

		// Send leads Recv: it is counted before the completion can run.
		w.counters.Send.Add(1)
		serr := w.sess.SubmitAsync(req)
		if serr != nil {
			w.counters.Send.Add(^uint64(0))
			w.releaseSlot(idx)
		}
		if errors.Is(serr, accel.ErrBusy) {
			w.backoff(&try)
			continue
		}
		if serr != nil {
			err = w.submitErr(serr, accel.StatusOK)
			break
		}
		w.setState(WorkerSending)
		try = 0
		count++
	}
	w.setState(WorkerStopping)
	w.iterations = count
	w.rec.AddSendComplete()
	return err
}

// backoff sleeps SendBackoff times the current retry count. Past
// MaxTryCount the count starts over and the worker keeps trying.
func (w *worker) backoff(try *int) {
	w.setState(WorkerBackoff)
	w.busy++
	time.Sleep(w.opts.SendBackoff * time.Duration(*try))
	*try++
	if *try > w.opts.MaxTryCount {
		w.logger.Warn("accelerator busy, retry count reset", "tries", *try)
		w.resets++
		*try = 0
	}
}

func (w *worker) releaseSlot(idx int) {
	if w.inflight != nil {
		w.inflight[idx].Store(false)
	}
}

func (w *worker) submitErr(err error, status accel.Status) error {
	if err == nil {
		err = fmt.Errorf("%w: status %s", ErrSubmit, status)
	} else {
		err = fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	w.logger.Error("invalid or incomplete data", "error", err)
	return err
}
