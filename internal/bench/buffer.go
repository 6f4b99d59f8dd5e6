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
	"fmt"
	"math/rand"
	"sync/atomic"
)

// Allocator provides buffer memory for the pools.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (HeapAllocator) Free([]byte) {}

// NewAllocator returns the allocator registered under kind: "heap" or
// "mmap".
func NewAllocator(kind string) (Allocator, error) {
	switch kind {
	case "", "heap":
		return HeapAllocator{}, nil
	case "mmap":
		return newMmapAllocator()
	default:
		return nil, fmt.Errorf("%w: allocator %q", ErrInvalidOption, kind)
	}
}

// BufferDescriptor is one source/destination pair. Only its owning worker
// submits it; the destination length may also be written by a completion
// handler on a poller goroutine.
type BufferDescriptor struct {
	Src    []byte
	SrcLen uint32
	Dst    []byte
	dstLen atomic.Uint32
}

// DstLen returns the recorded output length.
func (d *BufferDescriptor) DstLen() uint32 {
	return d.dstLen.Load()
}

// SetDstLen records an output length.
func (d *BufferDescriptor) SetDstLen(n uint32) {
	d.dstLen.Store(n)
}

// Output returns the recorded output bytes.
func (d *BufferDescriptor) Output() []byte {
	n := d.DstLen()
	if int(n) > len(d.Dst) {
		n = uint32(len(d.Dst))
	}
	return d.Dst[:n]
}

// BufferPool is one worker's ring of descriptors.
type BufferPool struct {
	descs []BufferDescriptor
}

// Len returns the pool size.
func (p *BufferPool) Len() int {
	return len(p.descs)
}

// At returns descriptor i.
func (p *BufferPool) At(i int) *BufferDescriptor {
	return &p.descs[i]
}

// Pools holds every worker's BufferPool.
type Pools struct {
	workers []*BufferPool
	alloc   Allocator
	inSize  uint32
	outSize uint32
}

// AllocPools allocates threads pools of poolSize descriptors. Sources are
// pktLen bytes, CompressibilityFactor of them random; destinations are
// ExpansionRatio times larger and pre-faulted with random bytes when
// prefetch is set. On any failure everything already allocated is freed
// and the error wraps ErrNoMemory.
func AllocPools(threads, poolSize int, pktLen uint32, prefetch bool, alloc Allocator, seed int64) (*Pools, error) {
	if alloc == nil {
		alloc = HeapAllocator{}
	}
	p := &Pools{
		alloc:   alloc,
		inSize:  pktLen,
		outSize: pktLen * ExpansionRatio,
	}
	rng := rand.New(rand.NewSource(seed))
	fill := int(float64(pktLen) * CompressibilityFactor)

	for i := 0; i < threads; i++ {
		bp := &BufferPool{descs: make([]BufferDescriptor, 0, poolSize)}
		p.workers = append(p.workers, bp)
		for j := 0; j < poolSize; j++ {
			src, err := alloc.Alloc(int(p.inSize))
			if err != nil {
				p.Free()
				return nil, fmt.Errorf("%w: worker %d src %d: %v", ErrNoMemory, i, j, err)
			}
			dst, err := alloc.Alloc(int(p.outSize))
			if err != nil {
				alloc.Free(src)
				p.Free()
				return nil, fmt.Errorf("%w: worker %d dst %d: %v", ErrNoMemory, i, j, err)
			}
			rng.Read(src[:fill])
			clear(src[fill:])
			if prefetch {
				rng.Read(dst)
			}
			bp.descs = append(bp.descs, BufferDescriptor{Src: src, SrcLen: p.inSize, Dst: dst})
			bp.descs[j].SetDstLen(p.outSize)
		}
	}
	return p, nil
}

// Free releases every buffer, last allocated first. It is safe to call
// more than once.
func (p *Pools) Free() {
	for i := len(p.workers) - 1; i >= 0; i-- {
		bp := p.workers[i]
		for j := len(bp.descs) - 1; j >= 0; j-- {
			d := &bp.descs[j]
			p.alloc.Free(d.Dst)
			p.alloc.Free(d.Src)
			d.Src, d.Dst = nil, nil
		}
		bp.descs = nil
	}
	p.workers = nil
}

// Threads returns the number of worker pools.
func (p *Pools) Threads() int {
	return len(p.workers)
}

// Worker returns worker i's pool.
func (p *Pools) Worker(i int) *BufferPool {
	return p.workers[i]
}

// OutSize is the destination capacity of every descriptor.
func (p *Pools) OutSize() uint32 {
	return p.outSize
}

// LoadBlocks places corpus blocks in worker 0's sources and replicates them
// into every other worker.
func (p *Pools) LoadBlocks(blocks [][]byte) error {
	if len(p.workers) == 0 {
		return fmt.Errorf("%w: no pools", ErrInvalidOption)
	}
	first := p.workers[0]
	if len(blocks) != first.Len() {
		return fmt.Errorf("%w: %d blocks for pool of %d", ErrInvalidOption, len(blocks), first.Len())
	}
	for j, b := range blocks {
		d := first.At(j)
		if len(b) > len(d.Src) {
			return fmt.Errorf("%w: block %d is %d bytes, buffer holds %d", ErrInvalidOption, j, len(b), len(d.Src))
		}
		clear(d.Src)
		copy(d.Src, b)
		d.SrcLen = uint32(len(b))
	}
	for i := 1; i < len(p.workers); i++ {
		for j := range blocks {
			src, dst := first.At(j), p.workers[i].At(j)
			copy(dst.Src, src.Src[:src.SrcLen])
			dst.SrcLen = src.SrcLen
		}
	}
	return nil
}

// OutputBlocks copies worker i's recorded outputs.
func (p *Pools) OutputBlocks(i int) [][]byte {
	bp := p.workers[i]
	out := make([][]byte, bp.Len())
	for j := range out {
		out[j] = append([]byte(nil), bp.At(j).Output()...)
	}
	return out
}
