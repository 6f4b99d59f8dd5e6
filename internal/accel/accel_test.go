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

package accel

import (
	"errors"
	"testing"
)

func TestAlgorithmString(t *testing.T) {
	tests := []struct {
		alg      Algorithm
		expected string
	}{
		{Zlib, "zlib"},
		{Gzip, "gzip"},
		{Deflate, "deflate"},
		{LZ77Zstd, "lz77_zstd"},
		{LZ4, "lz4"},
		{Algorithm(77), "alg(77)"},
	}

	for _, tt := range tests {
		if got := tt.alg.String(); got != tt.expected {
			t.Errorf("Algorithm(%d).String() = %s, want %s", tt.alg, got, tt.expected)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"zlib", Zlib, false},
		{"GZIP", Gzip, false},
		{" deflate ", Deflate, false},
		{"lz77_zstd", LZ77Zstd, false},
		{"lz4", LZ4, false},
		{"brotli", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.input)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownAlg) {
				t.Errorf("ParseAlgorithm(%q) error = %v, want ErrUnknownAlg", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAlgorithm(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestCompressOnly(t *testing.T) {
	if !LZ77Zstd.CompressOnly() {
		t.Error("Expected lz77_zstd to be compress only")
	}
	if Zlib.CompressOnly() {
		t.Error("Expected zlib to support decompress")
	}
}

func TestWindowSizeBytes(t *testing.T) {
	tests := []struct {
		w    WindowSize
		want int
	}{
		{Window4K, 4096},
		{Window8K, 8192},
		{Window16K, 16384},
		{Window24K, 24576},
		{Window32K, 32768},
		{WindowSize(9), 0},
	}

	for _, tt := range tests {
		if got := tt.w.Bytes(); got != tt.want {
			t.Errorf("WindowSize(%d).Bytes() = %d, want %d", tt.w, got, tt.want)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	if Compress.String() != "compress" || Decompress.String() != "decompress" {
		t.Errorf("Unexpected OpType strings: %s %s", Compress, Decompress)
	}
	if ModeStream.String() != "stream" || ModeBlock.String() != "block" {
		t.Errorf("Unexpected Mode strings: %s %s", ModeBlock, ModeStream)
	}
	if CtxAsync.String() != "async" || CtxSync.String() != "sync" {
		t.Errorf("Unexpected CtxMode strings: %s %s", CtxSync, CtxAsync)
	}
	if StatusOverflow.String() != "overflow" {
		t.Errorf("StatusOverflow.String() = %s, want overflow", StatusOverflow)
	}
}
