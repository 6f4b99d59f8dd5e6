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
Package fallback finalizes LZ77 intermediate output into zstd frames in
software.

The lz77_zstd accelerator path emits literals plus a sequence tuple rather
than a standard stream. Transform turns the original input, described by
that tuple, into a zstd frame using github.com/klauspost/compress/zstd.

A Codec is safe for concurrent use; completion handlers running on
different poller goroutines may share one.
*/
package fallback

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"zipbench/internal/accel"
)

var (
	ErrNoTuple     = errors.New("fallback: missing sequence tuple")
	ErrShortBuffer = errors.New("fallback: output buffer too small")
	ErrClosed      = errors.New("fallback: codec closed")
)

// EndMode controls how Transform terminates its output.
type EndMode uint8

const (
	// EndFrame writes a complete, closed frame.
	EndFrame EndMode = iota
	// EndFlush writes every block of the input but leaves the frame open.
	EndFlush
)

// DefaultLevel matches the level the finalizer has always used.
const DefaultLevel = 15

// Codec is the software finalizer state.
type Codec struct {
	level   zstd.EncoderLevel
	enc     *zstd.Encoder
	streams sync.Pool
	closed  bool
	mu      sync.RWMutex
}

// New creates a codec for a zstd-style numeric level (1-22).
func New(level int) (*Codec, error) {
	lvl := zstd.EncoderLevelFromZstd(level)
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl), zstd.WithEncoderCRC(false))
	if err != nil {
		return nil, fmt.Errorf("fallback: create encoder: %w", err)
	}
	c := &Codec{level: lvl, enc: enc}
	c.streams.New = func() any {
		w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil
		}
		return w
	}
	return c, nil
}

// Level returns the encoder level in use.
func (c *Codec) Level() zstd.EncoderLevel {
	return c.level
}

// Transform encodes in into out and returns the number of bytes produced.
// priv must be the *accel.SequenceTuple the accelerator filled for in.
func (c *Codec) Transform(priv any, in, out []byte, mode EndMode) (int, error) {
	tuple, ok := priv.(*accel.SequenceTuple)
	if !ok || tuple == nil {
		return 0, ErrNoTuple
	}
	if int(tuple.LiteralsLen) > len(in) {
		return 0, fmt.Errorf("%w: tuple describes %d bytes, input has %d", ErrNoTuple, tuple.LiteralsLen, len(in))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, ErrClosed
	}

	var encoded []byte
	switch mode {
	case EndFrame:
		encoded = c.enc.EncodeAll(in, make([]byte, 0, len(out)))
	case EndFlush:
		var err error
		if encoded, err = c.flush(in, len(out)); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("fallback: unknown end mode %d", mode)
	}

	if len(encoded) > len(out) {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, len(encoded), len(out))
	}
	return copy(out, encoded), nil
}

func (c *Codec) flush(in []byte, hint int) ([]byte, error) {
	w, _ := c.streams.Get().(*zstd.Encoder)
	if w == nil {
		return nil, errors.New("fallback: create stream encoder")
	}
	defer func() {
		w.Reset(nil)
		c.streams.Put(w)
	}()

	buf := bytes.NewBuffer(make([]byte, 0, hint))
	w.Reset(buf)
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases encoder resources. Transform fails afterwards.
func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.enc.Close()
}
