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
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"

	"zipbench/internal/accel"
)

var (
	errOverflow = errors.New("soft: output exceeds destination budget")
	errCorrupt  = errors.New("soft: invalid input")
)

// codec is one algorithm/level pairing. Implementations are safe for
// concurrent use because async requests of many sessions share queue
// goroutines.
type codec interface {
	compress(req *accel.Request) (int, error)
	// decompress decodes req.Src into req.Dst. With partial set, input
	// that ends mid-stream is not an error.
	decompress(req *accel.Request, partial bool) (int, error)
}

func newCodec(setup accel.SessionSetup) (codec, error) {
	switch setup.Alg {
	case accel.Zlib, accel.Gzip, accel.Deflate:
		return newDeflateCodec(setup.Alg, setup.Level)
	case accel.LZ4:
		return lz4Codec{}, nil
	case accel.LZ77Zstd:
		return lz77Codec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", accel.ErrUnknownAlg, setup.Alg)
	}
}

// boundedWriter writes into a fixed slice and fails once it is full.
type boundedWriter struct {
	buf []byte
	n   int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	room := len(w.buf) - w.n
	if len(p) > room {
		copy(w.buf[w.n:], p[:room])
		w.n += room
		return room, errOverflow
	}
	copy(w.buf[w.n:], p)
	w.n += len(p)
	return len(p), nil
}

// resetWriter is satisfied by the flate, zlib and gzip writers.
type resetWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

type deflateCodec struct {
	alg     accel.Algorithm
	level   int
	writers sync.Pool
}

func clampLevel(level int) int {
	if level < flate.BestSpeed {
		return flate.DefaultCompression
	}
	if level > flate.BestCompression {
		return flate.BestCompression
	}
	return level
}

func newDeflateCodec(alg accel.Algorithm, level int) (*deflateCodec, error) {
	c := &deflateCodec{alg: alg, level: clampLevel(level)}
	first, err := c.newWriter(io.Discard)
	if err != nil {
		return nil, err
	}
	c.writers.Put(first)
	c.writers.New = func() any {
		w, err := c.newWriter(io.Discard)
		if err != nil {
			return nil
		}
		return w
	}
	return c, nil
}

func (c *deflateCodec) newWriter(dst io.Writer) (resetWriter, error) {
	switch c.alg {
	case accel.Zlib:
		return zlib.NewWriterLevel(dst, c.level)
	case accel.Gzip:
		return gzip.NewWriterLevel(dst, c.level)
	default:
		return flate.NewWriter(dst, c.level)
	}
}

func (c *deflateCodec) compress(req *accel.Request) (int, error) {
	out := &boundedWriter{buf: req.Dst[:req.DstLen]}
	w, _ := c.writers.Get().(resetWriter)
	if w == nil {
		var err error
		if w, err = c.newWriter(out); err != nil {
			return 0, err
		}
	} else {
		w.Reset(out)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(req.Src[:req.SrcLen]); err != nil {
		return out.n, err
	}
	if err := w.Close(); err != nil {
		return out.n, err
	}
	return out.n, nil
}

func (c *deflateCodec) newReader(src io.Reader) (io.ReadCloser, error) {
	switch c.alg {
	case accel.Zlib:
		return zlib.NewReader(src)
	case accel.Gzip:
		return gzip.NewReader(src)
	default:
		return flate.NewReader(src), nil
	}
}

func (c *deflateCodec) decompress(req *accel.Request, partial bool) (int, error) {
	if req.SrcLen == 0 {
		return 0, nil
	}
	r, err := c.newReader(bytes.NewReader(req.Src[:req.SrcLen]))
	if err != nil {
		if partial && errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	defer r.Close()

	n, err := readInto(r, req.Dst[:req.DstLen])
	if err != nil {
		if partial && errors.Is(err, io.ErrUnexpectedEOF) {
			return n, nil
		}
		if errors.Is(err, errOverflow) {
			return n, err
		}
		return n, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return n, nil
}

// readInto fills dst from r until EOF. More data than dst holds is an
// overflow.
func readInto(r io.Reader, dst []byte) (int, error) {
	n := 0
	for {
		if n == len(dst) {
			var probe [1]byte
			m, err := r.Read(probe[:])
			if m > 0 {
				return n, errOverflow
			}
			if err == io.EOF {
				return n, nil
			}
			if err != nil {
				return n, err
			}
			continue
		}
		m, err := r.Read(dst[n:])
		n += m
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}

type lz4Codec struct{}

func (lz4Codec) compress(req *accel.Request) (int, error) {
	src := req.Src[:req.SrcLen]
	dst := req.Dst[:req.DstLen]
	if len(src) == 0 {
		return 0, nil
	}
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil || n == 0 {
		if len(dst) < lz4.CompressBlockBound(len(src)) {
			return 0, errOverflow
		}
		return 0, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return n, nil
}

func (lz4Codec) decompress(req *accel.Request, partial bool) (int, error) {
	if req.SrcLen == 0 {
		return 0, nil
	}
	n, err := lz4.UncompressBlock(req.Src[:req.SrcLen], req.Dst[:req.DstLen])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	return n, nil
}

// lz77Codec emits the literal-only intermediate form: the source bytes,
// described by a SequenceTuple the caller supplies through req.Priv.
type lz77Codec struct{}

func (lz77Codec) compress(req *accel.Request) (int, error) {
	tuple, ok := req.Priv.(*accel.SequenceTuple)
	if !ok || tuple == nil {
		return 0, fmt.Errorf("%w: lz77_zstd needs a sequence tuple", errCorrupt)
	}
	src := req.Src[:req.SrcLen]
	if len(src) > int(req.DstLen) {
		return 0, errOverflow
	}
	n := copy(req.Dst, src)
	tuple.Literals = req.Dst[:n]
	tuple.LiteralsLen = uint32(n)
	tuple.Sequences = 0
	return n, nil
}

func (lz77Codec) decompress(*accel.Request, bool) (int, error) {
	return 0, fmt.Errorf("%w: lz77_zstd is compress only", errCorrupt)
}

// execute runs one request to completion and records its status.
func execute(c codec, req *accel.Request, stream bool) {
	var (
		n   int
		err error
	)
	if req.Op == accel.Compress {
		n, err = c.compress(req)
	} else {
		n, err = c.decompress(req, stream)
	}
	switch {
	case err == nil:
		req.DstLen = uint32(n)
		req.Status = accel.StatusOK
	case errors.Is(err, errOverflow):
		req.DstLen = uint32(n)
		req.Status = accel.StatusOverflow
	default:
		req.DstLen = 0
		req.Status = accel.StatusInvalidParam
	}
}
