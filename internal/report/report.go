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
Package report turns a finished run into a portable record.

FORMATS:
========
- json: one indented JSON document
- avro: an Avro object container file holding one record, schema embedded

The output digest is BLAKE2b-256 over worker 0's destination blocks, each
prefixed with its little-endian u32 length, so two runs over the same
corpus can be compared without keeping the data.
*/
package report

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2/ocf"
	"golang.org/x/crypto/blake2b"

	"zipbench/internal/bench"
	"zipbench/internal/metrics"
)

var ErrUnknownFormat = errors.New("report: unknown format")

// Schema is the Avro schema of Result.
const Schema = `{
  "type": "record",
  "name": "Result",
  "namespace": "zipbench",
  "fields": [
    {"name": "run_id", "type": "string"},
    {"name": "timestamp", "type": "long"},
    {"name": "alg", "type": "string"},
    {"name": "op", "type": "string"},
    {"name": "mode", "type": "string"},
    {"name": "sync_mode", "type": "string"},
    {"name": "coerced", "type": "boolean"},
    {"name": "threads", "type": "int"},
    {"name": "ctx_num", "type": "int"},
    {"name": "pkt_len", "type": "long"},
    {"name": "elapsed_seconds", "type": "double"},
    {"name": "packets", "type": "long"},
    {"name": "bytes", "type": "long"},
    {"name": "ops_per_sec", "type": "double"},
    {"name": "mib_per_sec", "type": "double"},
    {"name": "avg_latency_us", "type": "double"},
    {"name": "cpu_usage_percent", "type": "double"},
    {"name": "output_digest", "type": "string"},
    {"name": "corpus_path", "type": "string"},
    {"name": "corpus_rate", "type": "double"},
    {"name": "drain_error", "type": "string"},
    {"name": "workers", "type": {"type": "array", "items": {
      "type": "record",
      "name": "Worker",
      "fields": [
        {"name": "id", "type": "int"},
        {"name": "iterations", "type": "long"},
        {"name": "sent", "type": "long"},
        {"name": "received", "type": "long"},
        {"name": "first_len", "type": "long"},
        {"name": "busy_retries", "type": "long"},
        {"name": "retry_resets", "type": "long"},
        {"name": "error", "type": "string"}
      ]
    }}}
  ]
}`

// Worker is one producer's line in a Result.
type Worker struct {
	ID          int    `json:"id" avro:"id"`
	Iterations  int64  `json:"iterations" avro:"iterations"`
	Sent        int64  `json:"sent" avro:"sent"`
	Received    int64  `json:"received" avro:"received"`
	FirstLen    int64  `json:"first_len" avro:"first_len"`
	BusyRetries int64  `json:"busy_retries" avro:"busy_retries"`
	RetryResets int64  `json:"retry_resets" avro:"retry_resets"`
	Error       string `json:"error,omitempty" avro:"error"`
}

// Result is the exported record of one run.
type Result struct {
	RunID     string `json:"run_id" avro:"run_id"`
	Timestamp int64  `json:"timestamp" avro:"timestamp"`
	Alg       string `json:"alg" avro:"alg"`
	Op        string `json:"op" avro:"op"`
	Mode      string `json:"mode" avro:"mode"`
	SyncMode  string `json:"sync_mode" avro:"sync_mode"`
	Coerced   bool   `json:"coerced" avro:"coerced"`
	Threads   int    `json:"threads" avro:"threads"`
	CtxNum    int    `json:"ctx_num" avro:"ctx_num"`
	PktLen    int64  `json:"pkt_len" avro:"pkt_len"`

	ElapsedSeconds float64 `json:"elapsed_seconds" avro:"elapsed_seconds"`
	Packets        int64   `json:"packets" avro:"packets"`
	Bytes          int64   `json:"bytes" avro:"bytes"`
	OpsPerSec      float64 `json:"ops_per_sec" avro:"ops_per_sec"`
	MiBPerSec      float64 `json:"mib_per_sec" avro:"mib_per_sec"`
	AvgLatencyUs   float64 `json:"avg_latency_us" avro:"avg_latency_us"`
	CPUUsage       float64 `json:"cpu_usage_percent" avro:"cpu_usage_percent"`

	OutputDigest string  `json:"output_digest" avro:"output_digest"`
	CorpusPath   string  `json:"corpus_path,omitempty" avro:"corpus_path"`
	CorpusRate   float64 `json:"corpus_rate,omitempty" avro:"corpus_rate"`
	DrainError   string  `json:"drain_error,omitempty" avro:"drain_error"`

	Workers []Worker `json:"workers" avro:"workers"`
}

// Build assembles a Result from a run and its metrics.
func Build(res *bench.Result, snap metrics.Snapshot, now time.Time) *Result {
	r := &Result{
		RunID:          uuid.New().String(),
		Timestamp:      now.UnixMilli(),
		Alg:            res.Alg.String(),
		Op:             res.Op.String(),
		Mode:           res.Mode.String(),
		SyncMode:       res.CtxMode.String(),
		Coerced:        res.Coerced,
		Threads:        res.Threads,
		CtxNum:         res.CtxNum,
		PktLen:         int64(res.PktLen),
		ElapsedSeconds: snap.Elapsed.Seconds(),
		Packets:        int64(snap.Packets),
		Bytes:          int64(snap.Bytes),
		OpsPerSec:      snap.OpsPerSec,
		MiBPerSec:      snap.MiBPerSec,
		AvgLatencyUs:   float64(snap.AvgLatency) / float64(time.Microsecond),
		CPUUsage:       snap.CPUUsage,
		OutputDigest:   Digest(res.Output),
	}
	if res.Corpus != nil {
		r.CorpusPath = res.Corpus.Path
		r.CorpusRate = res.Corpus.Rate
	}
	if res.DrainErr != nil {
		r.DrainError = res.DrainErr.Error()
	}
	for _, w := range res.Workers {
		rw := Worker{
			ID:          w.ID,
			Iterations:  int64(w.Iterations),
			Sent:        int64(w.Sent),
			Received:    int64(w.Received),
			FirstLen:    int64(w.FirstLen),
			BusyRetries: int64(w.BusyRetries),
			RetryResets: int64(w.RetryResets),
		}
		if w.Err != nil {
			rw.Error = w.Err.Error()
		}
		r.Workers = append(r.Workers, rw)
	}
	return r
}

// Digest returns the hex BLAKE2b-256 of blocks.
func Digest(blocks [][]byte) string {
	h, _ := blake2b.New256(nil)
	var size [4]byte
	for _, b := range blocks {
		binary.LittleEndian.PutUint32(size[:], uint32(len(b)))
		h.Write(size[:])
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode writes r to w in format.
func Encode(w io.Writer, format string, r *Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "avro":
		enc, err := ocf.NewEncoder(Schema, w)
		if err != nil {
			return fmt.Errorf("report: avro encoder: %w", err)
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: avro encode: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Write creates path and encodes r into it.
func Write(path, format string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := Encode(f, format, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Summary renders the headline figures on one line.
func (r *Result) Summary() string {
	return fmt.Sprintf("algname: %s  op: %s/%s/%s  threads: %d  ctxnum: %d  pktlen: %d  "+
		"speed: %.3f MiB/s  ops: %.1f/s  latency: %.3f us  cpu: %.2f%%",
		r.Alg, r.Op, r.Mode, r.SyncMode, r.Threads, r.CtxNum, r.PktLen,
		r.MiBPerSec, r.OpsPerSec, r.AvgLatencyUs, r.CPUUsage)
}
