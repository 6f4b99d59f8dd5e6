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

package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2/ocf"

	"zipbench/internal/accel"
	"zipbench/internal/bench"
	"zipbench/internal/corpus"
	"zipbench/internal/metrics"
)

func sampleResult() (*bench.Result, metrics.Snapshot) {
	res := &bench.Result{
		Alg:     accel.Gzip,
		Op:      accel.Decompress,
		Mode:    accel.ModeBlock,
		CtxMode: accel.CtxAsync,
		Threads: 2,
		CtxNum:  2,
		PktLen:  4096,
		Workers: []bench.WorkerResult{
			{ID: 0, Iterations: 10, Sent: 10, Received: 9, BusyRetries: 3},
			{ID: 1, Iterations: 4, Sent: 4, Received: 4, Err: errors.New("hardware fault")},
		},
		Output: [][]byte{[]byte("block-a"), []byte("block-b")},
		Corpus: &corpus.SaveResult{Path: "zip_4096.gzip", Rate: 0.5},
	}
	snap := metrics.Snapshot{
		Elapsed:    2 * time.Second,
		Packets:    13,
		Bytes:      13 * 4096,
		OpsPerSec:  6.5,
		MiBPerSec:  0.025,
		AvgLatency: 1500 * time.Nanosecond,
		CPUUsage:   42,
	}
	return res, snap
}

func TestBuild(t *testing.T) {
	res, snap := sampleResult()
	now := time.UnixMilli(1700000000000)
	r := Build(res, snap, now)

	if _, err := uuid.Parse(r.RunID); err != nil {
		t.Errorf("RunID %q is not a uuid: %v", r.RunID, err)
	}
	if r.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", r.Timestamp, now.UnixMilli())
	}
	if r.Alg != "gzip" || r.SyncMode != res.CtxMode.String() {
		t.Errorf("Alg/SyncMode = %s/%s", r.Alg, r.SyncMode)
	}
	if r.AvgLatencyUs != 1.5 {
		t.Errorf("AvgLatencyUs = %f, want 1.5", r.AvgLatencyUs)
	}
	if len(r.Workers) != 2 || r.Workers[1].Error != "hardware fault" || r.Workers[0].BusyRetries != 3 {
		t.Errorf("Workers = %+v", r.Workers)
	}
	if r.CorpusPath != "zip_4096.gzip" || r.CorpusRate != 0.5 {
		t.Errorf("corpus = %s/%f", r.CorpusPath, r.CorpusRate)
	}
	if r.OutputDigest != Digest(res.Output) {
		t.Error("OutputDigest does not match Digest(Output)")
	}
}

func TestDigest(t *testing.T) {
	a := Digest([][]byte{[]byte("ab"), []byte("c")})
	b := Digest([][]byte{[]byte("a"), []byte("bc")})
	if a == b {
		t.Error("digest ignores block boundaries")
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a))
	}
	if Digest(nil) != Digest([][]byte{}) {
		t.Error("nil and empty block lists differ")
	}
}

func TestEncodeJSON(t *testing.T) {
	res, snap := sampleResult()
	r := Build(res, snap, time.Now())

	var buf bytes.Buffer
	if err := Encode(&buf, "json", r); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var got Result
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.RunID != r.RunID || got.Packets != 13 || len(got.Workers) != 2 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestEncodeAvro(t *testing.T) {
	res, snap := sampleResult()
	r := Build(res, snap, time.Now())

	var buf bytes.Buffer
	if err := Encode(&buf, "avro", r); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	dec, err := ocf.NewDecoder(&buf)
	if err != nil {
		t.Fatalf("NewDecoder failed: %v", err)
	}
	if !dec.HasNext() {
		t.Fatalf("no record in container: %v", dec.Error())
	}
	var got Result
	if err := dec.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.RunID != r.RunID || got.MiBPerSec != r.MiBPerSec || got.OutputDigest != r.OutputDigest {
		t.Errorf("decoded = %+v, want %+v", got, *r)
	}
	if len(got.Workers) != 2 || got.Workers[1].Error != "hardware fault" {
		t.Errorf("decoded workers = %+v", got.Workers)
	}
}

func TestEncodeUnknownFormat(t *testing.T) {
	if err := Encode(&bytes.Buffer{}, "xml", &Result{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Encode(xml) err = %v, want ErrUnknownFormat", err)
	}
}

func TestWrite(t *testing.T) {
	res, snap := sampleResult()
	r := Build(res, snap, time.Now())
	path := filepath.Join(t.TempDir(), "run.json")
	if err := Write(path, "json", r); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), r.RunID) {
		t.Error("report file does not contain the run id")
	}

	if err := Write(filepath.Join(t.TempDir(), "missing", "run.json"), "json", r); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestSummary(t *testing.T) {
	res, snap := sampleResult()
	s := Build(res, snap, time.Now()).Summary()
	for _, want := range []string{"algname: gzip", "threads: 2", "cpu: 42.00%"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary() = %q, missing %q", s, want)
		}
	}
}
