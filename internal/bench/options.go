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
	"time"

	"zipbench/internal/accel"
)

const (
	// ChunkSize is the input length of one stream-mode request. The output
	// budget per chunk is ExpansionRatio times larger.
	ChunkSize = 128 << 10
	// ExpansionRatio sizes destination buffers relative to sources.
	ExpansionRatio = 2
	// CompressibilityFactor is the share of each source buffer filled with
	// random bytes. The rest stays zero.
	CompressibilityFactor = 0.7

	DefaultPoolSize    = 1
	DefaultQueueSize   = 1024
	DefaultSendBackoff = 100 * time.Microsecond
	DefaultMaxTryCount = 5000
	// DefaultDrainSlack is how many completions per worker may still be
	// outstanding when the pollers are told to stop.
	DefaultDrainSlack    = 2
	DefaultDrainInterval = 50 * time.Microsecond

	MaxThreads = 64
	MaxCtxNum  = 64

	// streamBit is set in the raw op type to select stream mode.
	streamBit = 2
)

var (
	ErrInvalidOption = errors.New("bench: invalid option")
	ErrNoMemory      = errors.New("bench: out of memory")
)

// InitType selects how accelerator contexts are set up.
type InitType int

const (
	// InitExplicit requests contexts and builds the scheduler here.
	InitExplicit InitType = 1
	// InitProvider lets the provider own contexts and scheduling, with a
	// shared poll over every async context.
	InitProvider InitType = 2
)

// Options configures one benchmark run.
type Options struct {
	Alg accel.Algorithm
	// OpType is the raw operation: 0 compress, 1 decompress, 2 and 3 the
	// same in stream mode.
	OpType   uint32
	Async    bool
	Threads  int
	CtxNum   int
	PktLen   uint32
	Device   string
	Prefetch bool
	InitType InitType
	Duration time.Duration
	Level    int
	Window   accel.WindowSize
	PoolSize int

	// CorpusDir holds zip_<pktlen>.<alg> files. Empty means the working
	// directory.
	CorpusDir string
	// StrictReuse keeps an async worker from resubmitting a buffer slot
	// until the slot's previous completion has been handled.
	StrictReuse bool
	// PinCPU locks each producer to CPU (worker id mod NumCPU).
	PinCPU bool

	QueueSize     uint32
	SendBackoff   time.Duration
	MaxTryCount   int
	DrainSlack    uint64
	DrainInterval time.Duration
	// DrainTimeout bounds the drain wait. Zero waits forever.
	DrainTimeout time.Duration

	Seed      int64
	Allocator Allocator
}

// DefaultOptions returns a one-thread, one-context sync compress run.
func DefaultOptions() Options {
	return Options{
		Alg:           accel.Zlib,
		Threads:       1,
		CtxNum:        1,
		PktLen:        1024,
		InitType:      InitExplicit,
		Duration:      3 * time.Second,
		Level:         1,
		Window:        accel.Window32K,
		PoolSize:      DefaultPoolSize,
		QueueSize:     DefaultQueueSize,
		SendBackoff:   DefaultSendBackoff,
		MaxTryCount:   DefaultMaxTryCount,
		DrainSlack:    DefaultDrainSlack,
		DrainInterval: DefaultDrainInterval,
		Seed:          1,
	}
}

// plan is Options resolved into what the run actually does.
type plan struct {
	op      accel.OpType
	mode    accel.Mode
	ctxMode accel.CtxMode
	// coerced is set when a compress-only algorithm was asked to
	// decompress.
	coerced bool
}

func (o *Options) fillDefaults() {
	def := DefaultOptions()
	if o.PoolSize <= 0 {
		o.PoolSize = def.PoolSize
	}
	if o.QueueSize == 0 {
		o.QueueSize = def.QueueSize
	}
	if o.SendBackoff <= 0 {
		o.SendBackoff = def.SendBackoff
	}
	if o.MaxTryCount <= 0 {
		o.MaxTryCount = def.MaxTryCount
	}
	if o.DrainSlack == 0 {
		o.DrainSlack = def.DrainSlack
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = def.DrainInterval
	}
	if o.InitType == 0 {
		o.InitType = def.InitType
	}
	if o.Allocator == nil {
		o.Allocator = HeapAllocator{}
	}
}

func (o *Options) validate() error {
	if o.OpType >= 2*streamBit {
		return fmt.Errorf("%w: op type %d", ErrInvalidOption, o.OpType)
	}
	if o.Threads < 1 || o.Threads > MaxThreads {
		return fmt.Errorf("%w: threads %d not in [1, %d]", ErrInvalidOption, o.Threads, MaxThreads)
	}
	if o.CtxNum < 1 || o.CtxNum > MaxCtxNum {
		return fmt.Errorf("%w: ctxnum %d not in [1, %d]", ErrInvalidOption, o.CtxNum, MaxCtxNum)
	}
	if o.PktLen == 0 {
		return fmt.Errorf("%w: pktlen must be positive", ErrInvalidOption)
	}
	if o.InitType != InitExplicit && o.InitType != InitProvider {
		return fmt.Errorf("%w: init type %d", ErrInvalidOption, o.InitType)
	}
	if o.Window.Bytes() == 0 {
		return fmt.Errorf("%w: window code %d", ErrInvalidOption, o.Window)
	}
	return nil
}

func (o *Options) resolve() plan {
	p := plan{op: accel.OpType(o.OpType % streamBit), mode: accel.ModeBlock}
	if o.OpType >= streamBit {
		p.mode = accel.ModeStream
	}
	if o.Alg.CompressOnly() && p.op == accel.Decompress {
		p.op = accel.Compress
		p.coerced = true
	}
	if o.Async {
		p.ctxMode = accel.CtxAsync
	}
	return p
}
