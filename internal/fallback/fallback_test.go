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

package fallback

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"

	"zipbench/internal/accel"
)

func sample(n int) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(3)).Read(data[:n/2])
	return data
}

func decode(t *testing.T, frame []byte) []byte {
	t.Helper()
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(frame, nil)
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	return out
}

func TestTransformFrame(t *testing.T) {
	c, err := New(DefaultLevel)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	in := sample(32 << 10)
	out := make([]byte, 2*len(in))
	tuple := &accel.SequenceTuple{LiteralsLen: uint32(len(in))}

	n, err := c.Transform(tuple, in, out, EndFrame)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if n == 0 || n >= len(in) {
		t.Errorf("Transform produced %d bytes, want (0, %d)", n, len(in))
	}
	if got := decode(t, out[:n]); !bytes.Equal(got, in) {
		t.Error("Decoded frame does not match input")
	}
}

func TestTransformFlush(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	in := sample(8 << 10)
	out := make([]byte, 2*len(in))
	n, err := c.Transform(&accel.SequenceTuple{}, in, out, EndFlush)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if n == 0 {
		t.Error("Expected flushed output")
	}
}

func TestTransformErrors(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	in := sample(16 << 10)

	tests := []struct {
		name    string
		priv    any
		out     []byte
		mode    EndMode
		wantErr error
	}{
		{"nil tuple", nil, make([]byte, len(in)*2), EndFrame, ErrNoTuple},
		{"wrong type", "tuple", make([]byte, len(in)*2), EndFrame, ErrNoTuple},
		{"tuple too long", &accel.SequenceTuple{LiteralsLen: uint32(len(in) + 1)}, make([]byte, len(in)*2), EndFrame, ErrNoTuple},
		{"short output", &accel.SequenceTuple{}, make([]byte, 16), EndFrame, ErrShortBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Transform(tt.priv, in, tt.out, tt.mode); !errors.Is(err, tt.wantErr) {
				t.Errorf("Transform error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	c.Close()
	if _, err := c.Transform(&accel.SequenceTuple{}, in, make([]byte, len(in)*2), EndFrame); !errors.Is(err, ErrClosed) {
		t.Errorf("Transform after Close error = %v, want ErrClosed", err)
	}
}

func TestTransformConcurrent(t *testing.T) {
	c, err := New(DefaultLevel)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	in := sample(4096)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := make([]byte, 8192)
			if _, err := c.Transform(&accel.SequenceTuple{}, in, out, EndFrame); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent Transform failed: %v", err)
	}
}
