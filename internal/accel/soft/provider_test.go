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
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"zipbench/internal/accel"
)

func testData(n int) []byte {
	data := make([]byte, n)
	rng := rand.New(rand.NewSource(7))
	rng.Read(data[:n*7/10])
	return data
}

// initProvider binds ctxNum contexts of one op type and mode.
func initProvider(t *testing.T, opts Options, op accel.OpType, mode accel.CtxMode, ctxNum int) *Provider {
	t.Helper()
	p := New(opts)
	cfg := accel.CtxConfig{}
	for i := 0; i < ctxNum; i++ {
		dev, err := p.DefaultDevice(accel.Zlib)
		if err != nil {
			t.Fatalf("DefaultDevice failed: %v", err)
		}
		c, err := p.RequestContext(dev)
		if err != nil {
			t.Fatalf("RequestContext failed: %v", err)
		}
		cfg.Entries = append(cfg.Entries, accel.CtxEntry{Ctx: c, Op: op, Mode: mode})
	}
	sched, err := p.AllocScheduler(accel.SchedRR, 2, 1)
	if err != nil {
		t.Fatalf("AllocScheduler failed: %v", err)
	}
	if err := sched.Instance(accel.SchedParams{Op: op, Mode: mode, Begin: 0, End: ctxNum - 1}); err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	if err := p.Init(cfg, sched); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		p.Uninit()
		for _, e := range cfg.Entries {
			p.ReleaseContext(e.Ctx)
		}
		sched.Release()
	})
	return p
}

func newSession(t *testing.T, p *Provider, alg accel.Algorithm, op accel.OpType, mode accel.Mode) accel.Session {
	t.Helper()
	s, err := p.AllocSession(accel.SessionSetup{Alg: alg, Op: op, Mode: mode, Window: accel.Window32K, Level: 6})
	if err != nil {
		t.Fatalf("AllocSession failed: %v", err)
	}
	t.Cleanup(s.Free)
	return s
}

func TestSyncRoundTrip(t *testing.T) {
	algs := []accel.Algorithm{accel.Zlib, accel.Gzip, accel.Deflate, accel.LZ4}
	src := testData(64 << 10)

	for _, alg := range algs {
		t.Run(alg.String(), func(t *testing.T) {
			cp := initProvider(t, Options{}, accel.Compress, accel.CtxSync, 1)
			comp := make([]byte, 2*len(src))
			req := &accel.Request{Op: accel.Compress, Src: src, SrcLen: uint32(len(src)), Dst: comp, DstLen: uint32(len(comp))}
			if err := newSession(t, cp, alg, accel.Compress, accel.ModeBlock).SubmitSync(req); err != nil {
				t.Fatalf("SubmitSync failed: %v", err)
			}
			if req.Status != accel.StatusOK {
				t.Fatalf("Compress status = %s, want ok", req.Status)
			}
			if req.DstLen == 0 || int(req.DstLen) >= len(src) {
				t.Errorf("Compressed length %d not in (0, %d)", req.DstLen, len(src))
			}

			dp := initProvider(t, Options{}, accel.Decompress, accel.CtxSync, 1)
			out := make([]byte, 2*len(src))
			dreq := &accel.Request{Op: accel.Decompress, Src: comp, SrcLen: req.DstLen, Dst: out, DstLen: uint32(len(out))}
			if err := newSession(t, dp, alg, accel.Decompress, accel.ModeBlock).SubmitSync(dreq); err != nil {
				t.Fatalf("SubmitSync failed: %v", err)
			}
			if dreq.Status != accel.StatusOK {
				t.Fatalf("Decompress status = %s, want ok", dreq.Status)
			}
			if !bytes.Equal(out[:dreq.DstLen], src) {
				t.Errorf("Round trip mismatch: got %d bytes, want %d", dreq.DstLen, len(src))
			}
		})
	}
}

func TestSyncOverflow(t *testing.T) {
	p := initProvider(t, Options{}, accel.Compress, accel.CtxSync, 1)
	src := testData(16 << 10)
	dst := make([]byte, 64)
	req := &accel.Request{Op: accel.Compress, Src: src, SrcLen: uint32(len(src)), Dst: dst, DstLen: uint32(len(dst))}

	if err := newSession(t, p, accel.Zlib, accel.Compress, accel.ModeBlock).SubmitSync(req); err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if req.Status != accel.StatusOverflow {
		t.Errorf("Status = %s, want overflow", req.Status)
	}
}

func TestDecompressCorruptInput(t *testing.T) {
	p := initProvider(t, Options{}, accel.Decompress, accel.CtxSync, 1)
	src := testData(4096)
	dst := make([]byte, 8192)
	req := &accel.Request{Op: accel.Decompress, Src: src, SrcLen: 4096, Dst: dst, DstLen: 8192}

	if err := newSession(t, p, accel.Zlib, accel.Decompress, accel.ModeBlock).SubmitSync(req); err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if req.Status != accel.StatusInvalidParam {
		t.Errorf("Status = %s, want invalid-param", req.Status)
	}
}

func TestDecompressEmptyBlock(t *testing.T) {
	p := initProvider(t, Options{}, accel.Decompress, accel.CtxSync, 1)
	dst := make([]byte, 128)
	req := &accel.Request{Op: accel.Decompress, Src: make([]byte, 64), SrcLen: 0, Dst: dst, DstLen: 128}

	if err := newSession(t, p, accel.Gzip, accel.Decompress, accel.ModeBlock).SubmitSync(req); err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if req.Status != accel.StatusOK || req.DstLen != 0 {
		t.Errorf("Got status %s len %d, want ok and 0", req.Status, req.DstLen)
	}
}

func TestStreamPartialDecompress(t *testing.T) {
	src := testData(256 << 10)
	cp := initProvider(t, Options{}, accel.Compress, accel.CtxSync, 1)
	comp := make([]byte, 2*len(src))
	req := &accel.Request{Op: accel.Compress, Src: src, SrcLen: uint32(len(src)), Dst: comp, DstLen: uint32(len(comp))}
	if err := newSession(t, cp, accel.Deflate, accel.Compress, accel.ModeStream).SubmitStream(req); err != nil {
		t.Fatalf("SubmitStream failed: %v", err)
	}

	dp := initProvider(t, Options{}, accel.Decompress, accel.CtxSync, 1)
	half := req.DstLen / 2
	out := make([]byte, 2*len(src))
	dreq := &accel.Request{Op: accel.Decompress, Src: comp, SrcLen: half, Dst: out, DstLen: uint32(len(out))}
	if err := newSession(t, dp, accel.Deflate, accel.Decompress, accel.ModeStream).SubmitStream(dreq); err != nil {
		t.Fatalf("SubmitStream failed: %v", err)
	}
	if dreq.Status != accel.StatusOK {
		t.Fatalf("Partial stream status = %s, want ok", dreq.Status)
	}
	if !bytes.Equal(out[:dreq.DstLen], src[:dreq.DstLen]) {
		t.Error("Partial output is not a prefix of the source")
	}
}

func TestLZ77NeedsTuple(t *testing.T) {
	p := initProvider(t, Options{}, accel.Compress, accel.CtxSync, 1)
	s := newSession(t, p, accel.LZ77Zstd, accel.Compress, accel.ModeBlock)
	src := testData(4096)
	dst := make([]byte, 8192)

	req := &accel.Request{Op: accel.Compress, Src: src, SrcLen: 4096, Dst: dst, DstLen: 8192}
	if err := s.SubmitSync(req); err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if req.Status != accel.StatusInvalidParam {
		t.Errorf("Status without tuple = %s, want invalid-param", req.Status)
	}

	tuple := &accel.SequenceTuple{}
	req = &accel.Request{Op: accel.Compress, Src: src, SrcLen: 4096, Dst: dst, DstLen: 8192, Priv: tuple}
	if err := s.SubmitSync(req); err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if req.Status != accel.StatusOK || tuple.LiteralsLen != 4096 {
		t.Errorf("Got status %s literals %d, want ok and 4096", req.Status, tuple.LiteralsLen)
	}
}

func TestLZ77DecompressSessionRejected(t *testing.T) {
	p := initProvider(t, Options{}, accel.Decompress, accel.CtxSync, 1)
	_, err := p.AllocSession(accel.SessionSetup{Alg: accel.LZ77Zstd, Op: accel.Decompress, Window: accel.Window32K})
	if !errors.Is(err, accel.ErrInvalidParam) {
		t.Errorf("AllocSession error = %v, want ErrInvalidParam", err)
	}
}

func TestAllocSessionBeforeInit(t *testing.T) {
	p := New(Options{})
	if _, err := p.AllocSession(accel.SessionSetup{Alg: accel.Zlib}); !errors.Is(err, accel.ErrNotInitialized) {
		t.Errorf("AllocSession error = %v, want ErrNotInitialized", err)
	}
}

func TestDefaultPlacement(t *testing.T) {
	p := New(Options{Devices: []DeviceSpec{{Name: "a", Queues: 2}, {Name: "b", Queues: 1}}})

	var names []string
	for i := 0; i < 3; i++ {
		dev, err := p.DefaultDevice(accel.Zlib)
		if err != nil {
			t.Fatalf("DefaultDevice failed: %v", err)
		}
		if _, err := p.RequestContext(dev); err != nil {
			t.Fatalf("RequestContext failed: %v", err)
		}
		names = append(names, dev.Name)
	}
	want := []string{"a", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Placement[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if _, err := p.DefaultDevice(accel.Zlib); !errors.Is(err, accel.ErrNoDevice) {
		t.Errorf("DefaultDevice error = %v, want ErrNoDevice", err)
	}
}

func TestRequestAndReleaseContext(t *testing.T) {
	p := New(Options{Devices: []DeviceSpec{{Name: "a", Queues: 1}}})
	dev := accel.Device{Name: "a"}

	c, err := p.RequestContext(dev)
	if err != nil {
		t.Fatalf("RequestContext failed: %v", err)
	}
	if _, err := p.RequestContext(dev); !errors.Is(err, accel.ErrNoContext) {
		t.Errorf("Second RequestContext error = %v, want ErrNoContext", err)
	}
	p.ReleaseContext(c)
	p.ReleaseContext(c)
	if n, _ := p.AvailableContexts(dev); n != 1 {
		t.Errorf("AvailableContexts = %d, want 1", n)
	}
	if _, err := p.RequestContext(accel.Device{Name: "missing"}); !errors.Is(err, accel.ErrNoDevice) {
		t.Errorf("RequestContext error = %v, want ErrNoDevice", err)
	}
}

func TestRRSchedulerCycles(t *testing.T) {
	s := newRRScheduler(2, 1)
	if err := s.Instance(accel.SchedParams{Op: accel.Compress, Mode: accel.CtxAsync, Begin: 2, End: 4}); err != nil {
		t.Fatalf("Instance failed: %v", err)
	}

	want := []int{2, 3, 4, 2, 3}
	for i, w := range want {
		got, err := s.pick(0, accel.Compress, accel.CtxAsync)
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if got != w {
			t.Errorf("pick #%d = %d, want %d", i, got, w)
		}
	}
	if _, err := s.pick(0, accel.Decompress, accel.CtxAsync); !errors.Is(err, accel.ErrNoContext) {
		t.Errorf("pick error = %v, want ErrNoContext", err)
	}
	if err := s.Instance(accel.SchedParams{Op: accel.Compress, Begin: 3, End: 1}); !errors.Is(err, accel.ErrInvalidParam) {
		t.Errorf("Instance error = %v, want ErrInvalidParam", err)
	}
}

func TestAsyncBusyAndPoll(t *testing.T) {
	p := initProvider(t, Options{QueueDepth: 2}, accel.Compress, accel.CtxAsync, 1)
	s := newSession(t, p, accel.Zlib, accel.Compress, accel.ModeBlock)
	src := testData(4096)

	completed := make(chan uint32, 4)
	submit := func() error {
		dst := make([]byte, 8192)
		req := &accel.Request{Op: accel.Compress, Src: src, SrcLen: 4096, Dst: dst, DstLen: 8192,
			Callback: func(r *accel.Request) { completed <- r.DstLen }}
		return s.SubmitAsync(req)
	}

	if _, err := p.PollContext(0, 8); !errors.Is(err, accel.ErrAgain) {
		t.Errorf("Poll on empty queue error = %v, want ErrAgain", err)
	}
	for i := 0; i < 2; i++ {
		if err := submit(); err != nil {
			t.Fatalf("SubmitAsync #%d failed: %v", i, err)
		}
	}
	if err := submit(); !errors.Is(err, accel.ErrBusy) {
		t.Fatalf("Third SubmitAsync error = %v, want ErrBusy", err)
	}

	var drained uint32
	deadline := time.Now().Add(5 * time.Second)
	for drained < 2 && time.Now().Before(deadline) {
		n, err := p.PollContext(0, 8)
		if err != nil && !errors.Is(err, accel.ErrAgain) {
			t.Fatalf("PollContext failed: %v", err)
		}
		drained += n
	}
	if drained != 2 {
		t.Fatalf("Drained %d completions, want 2", drained)
	}
	for i := 0; i < 2; i++ {
		if n := <-completed; n == 0 {
			t.Error("Expected callback with non-zero output length")
		}
	}
	if err := submit(); err != nil {
		t.Errorf("SubmitAsync after drain failed: %v", err)
	}
	if p.Stats().Busy.Load() != 1 {
		t.Errorf("Busy = %d, want 1", p.Stats().Busy.Load())
	}
}

func TestPollSyncContextRejected(t *testing.T) {
	p := initProvider(t, Options{}, accel.Compress, accel.CtxSync, 1)
	if _, err := p.PollContext(0, 1); !errors.Is(err, accel.ErrInvalidParam) {
		t.Errorf("PollContext error = %v, want ErrInvalidParam", err)
	}
}

func TestInit2SharedPoll(t *testing.T) {
	p := New(Options{Devices: []DeviceSpec{{Name: "a", Queues: 4}}})
	nums := []accel.CtxNums{{Async: 2}, {Async: 2}}
	if err := p.Init2(accel.Zlib, accel.SchedRR, nums); err != nil {
		t.Fatalf("Init2 failed: %v", err)
	}
	if n, _ := p.AvailableContexts(accel.Device{Name: "a"}); n != 0 {
		t.Errorf("AvailableContexts after Init2 = %d, want 0", n)
	}

	s := newSession(t, p, accel.Zlib, accel.Compress, accel.ModeBlock)
	src := testData(4096)
	for i := 0; i < 3; i++ {
		req := &accel.Request{Op: accel.Compress, Src: src, SrcLen: 4096, Dst: make([]byte, 8192), DstLen: 8192}
		if err := s.SubmitAsync(req); err != nil {
			t.Fatalf("SubmitAsync failed: %v", err)
		}
	}

	var drained uint32
	deadline := time.Now().Add(5 * time.Second)
	for drained < 3 && time.Now().Before(deadline) {
		n, _ := p.Poll(16)
		drained += n
	}
	if drained != 3 {
		t.Errorf("Drained %d, want 3", drained)
	}

	p.Uninit()
	if n, _ := p.AvailableContexts(accel.Device{Name: "a"}); n != 4 {
		t.Errorf("AvailableContexts after Uninit = %d, want 4", n)
	}
}

func TestInit2NotEnoughContexts(t *testing.T) {
	p := New(Options{Devices: []DeviceSpec{{Name: "a", Queues: 3}}})
	err := p.Init2(accel.Zlib, accel.SchedRR, []accel.CtxNums{{Sync: 2}, {Sync: 2}})
	if !errors.Is(err, accel.ErrNoDevice) {
		t.Fatalf("Init2 error = %v, want ErrNoDevice", err)
	}
	if n, _ := p.AvailableContexts(accel.Device{Name: "a"}); n != 3 {
		t.Errorf("AvailableContexts after failed Init2 = %d, want 3", n)
	}
}
