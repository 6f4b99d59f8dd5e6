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
Package accel defines the narrow surface zipbench consumes from a
hardware (de)compression accelerator.

RESOURCE MODEL:
===============
A Provider exposes devices. Each device offers a fixed number of queue
contexts. Contexts are requested one at a time, tagged with an operation type
and a sync/async mode, and handed to the provider in a CtxConfig together
with a round-robin Scheduler. Sessions created afterwards route their
requests to a context selected by the scheduler.

	Provider ──RequestContext──▶ Context ×N ──Init(cfg, sched)──▶ Session
	                                                               │
	          SubmitSync / SubmitStream (inline)  ◀─────────────────┤
	          SubmitAsync ──▶ queue ──PollContext/Poll──▶ Callback ◀┘

An alternative initialization (Init2) lets the provider own context
allocation and scheduling entirely; only per-operation context counts are
supplied.

ASYNC CONTRACT:
===============
SubmitAsync never blocks. A full queue returns ErrBusy, which callers treat
as backpressure. Completed requests are delivered by polling: Poll and
PollContext invoke each completed request's Callback on the polling
goroutine and return the number drained, or ErrAgain when nothing was ready.
*/
package accel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBusy           = errors.New("accel: queue busy")
	ErrAgain          = errors.New("accel: no completion ready")
	ErrNoDevice       = errors.New("accel: no such device")
	ErrNoContext      = errors.New("accel: no context available")
	ErrNotInitialized = errors.New("accel: provider not initialized")
	ErrInvalidParam   = errors.New("accel: invalid parameter")
	ErrUnknownAlg     = errors.New("accel: unknown algorithm")
)

// OpType is the direction of a request.
type OpType uint8

const (
	Compress OpType = iota
	Decompress

	// OpTypeCount is the number of real operation types.
	OpTypeCount
)

func (o OpType) String() string {
	switch o {
	case Compress:
		return "compress"
	case Decompress:
		return "decompress"
	default:
		return fmt.Sprintf("optype(%d)", uint8(o))
	}
}

// Mode selects whole-buffer or chunked submission.
type Mode uint8

const (
	ModeBlock Mode = iota
	ModeStream
)

func (m Mode) String() string {
	if m == ModeStream {
		return "stream"
	}
	return "block"
}

// CtxMode is the completion model of a context.
type CtxMode uint8

const (
	CtxSync CtxMode = iota
	CtxAsync

	CtxModeCount
)

func (m CtxMode) String() string {
	if m == CtxAsync {
		return "async"
	}
	return "sync"
}

// Algorithm identifies a compression format.
type Algorithm uint8

const (
	Zlib Algorithm = iota
	Gzip
	Deflate
	// LZ77Zstd emits an LZ77 intermediate form plus sequence tuples that a
	// software codec finalizes into a zstd frame. Compress only.
	LZ77Zstd
	LZ4
)

var algorithmNames = map[Algorithm]string{
	Zlib:     "zlib",
	Gzip:     "gzip",
	Deflate:  "deflate",
	LZ77Zstd: "lz77_zstd",
	LZ4:      "lz4",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("alg(%d)", uint8(a))
}

// CompressOnly reports whether the algorithm cannot decompress.
func (a Algorithm) CompressOnly() bool {
	return a == LZ77Zstd
}

// ParseAlgorithm parses an algorithm name, case-insensitively.
func ParseAlgorithm(s string) (Algorithm, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for alg, n := range algorithmNames {
		if n == name {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlg, s)
}

// WindowSize is the history window code used by deflate-family sessions.
type WindowSize uint8

const (
	Window4K WindowSize = iota
	Window8K
	Window16K
	Window24K
	Window32K
)

// Bytes returns the window length in bytes, or 0 for an unknown code.
func (w WindowSize) Bytes() int {
	switch w {
	case Window4K:
		return 4 << 10
	case Window8K:
		return 8 << 10
	case Window16K:
		return 16 << 10
	case Window24K:
		return 24 << 10
	case Window32K:
		return 32 << 10
	default:
		return 0
	}
}

// Status is the per-request result reported by the accelerator.
type Status uint8

const (
	StatusOK Status = iota
	// StatusInvalidParam covers invalid or incomplete input.
	StatusInvalidParam
	// StatusOverflow means the output did not fit the destination budget.
	StatusOverflow
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidParam:
		return "invalid-param"
	case StatusOverflow:
		return "overflow"
	default:
		return "error"
	}
}

// SequenceTuple is filled by the accelerator for LZ77Zstd requests and
// consumed by the software finalizer.
type SequenceTuple struct {
	Literals    []byte
	LiteralsLen uint32
	Sequences   uint32
}

// Request is one submission. It is built fresh for every iteration.
type Request struct {
	Op     OpType
	Src    []byte
	Dst    []byte
	SrcLen uint32
	DstLen uint32
	Status Status
	// Priv carries algorithm-specific state between the accelerator and
	// the caller, such as a *SequenceTuple.
	Priv any
	// Callback runs on the polling goroutine when an async request
	// completes. Unused for sync submissions.
	Callback func(*Request)
}

// Device is one accelerator instance.
type Device struct {
	Name string
	NUMA int
}

// Context is an opaque queue handle owned by a Provider.
type Context interface {
	Device() string
}

// CtxEntry tags one context with the work it serves.
type CtxEntry struct {
	Ctx  Context
	Op   OpType
	Mode CtxMode
}

// CtxConfig is the set of contexts handed to Provider.Init. Context ids used
// by PollContext are indexes into Entries.
type CtxConfig struct {
	Entries []CtxEntry
}

// SchedPolicy selects a context scheduling policy.
type SchedPolicy uint8

const (
	SchedRR SchedPolicy = iota
)

// SchedParams binds a context range to one operation type and mode.
type SchedParams struct {
	NUMA  int
	Op    OpType
	Mode  CtxMode
	Begin int
	End   int
}

// Scheduler routes session requests to contexts.
type Scheduler interface {
	Instance(params SchedParams) error
	Release()
}

// CtxNums are per-operation context counts for Init2.
type CtxNums struct {
	Sync  int
	Async int
}

// SessionSetup describes a session.
type SessionSetup struct {
	Alg    Algorithm
	Op     OpType
	Mode   Mode
	Window WindowSize
	Level  int
	Sched  *SchedParams
}

// Session issues requests. A session is owned by one goroutine.
type Session interface {
	SubmitSync(req *Request) error
	SubmitStream(req *Request) error
	// SubmitAsync enqueues req and returns immediately. ErrBusy means the
	// queue is full and the caller may retry.
	SubmitAsync(req *Request) error
	Free()
}

// Provider is the accelerator resource provider.
type Provider interface {
	Devices(alg Algorithm) ([]Device, error)
	// DefaultDevice returns the provider's preferred device that still
	// has free contexts, or ErrNoDevice.
	DefaultDevice(alg Algorithm) (Device, error)
	AvailableContexts(dev Device) (int, error)
	RequestContext(dev Device) (Context, error)
	ReleaseContext(c Context)
	AllocScheduler(policy SchedPolicy, opTypes, numaNodes int) (Scheduler, error)
	NUMANodes() int

	Init(cfg CtxConfig, sched Scheduler) error
	Init2(alg Algorithm, policy SchedPolicy, nums []CtxNums) error
	Uninit()

	AllocSession(setup SessionSetup) (Session, error)
	// PollContext drains up to expected completions from one context.
	PollContext(id int, expected uint32) (uint32, error)
	// Poll drains completions from every async context.
	Poll(expected uint32) (uint32, error)
}
