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
Package config provides configuration management for zipbench.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Command-line flags (highest priority)
2. Environment variables (ZIPBENCH_* prefix)
3. Configuration file (JSON format)
4. Default values (lowest priority)

CONFIGURATION CATEGORIES:
=========================
- Run: alg, optype, sync_mode, threads, ctx_num, pkt_len, seconds
- Accelerator: device, init_type, level, win_size, soft emulation
- Buffers: pool_size, prefetch, allocator, strict_reuse
- Output: corpus_dir, report, metrics, log_level, log_json

EXAMPLE CONFIGURATION FILE:
===========================

	{
	  "alg": "gzip",
	  "optype": 1,
	  "sync_mode": 1,
	  "threads": 8,
	  "ctx_num": 4,
	  "pkt_len": 65536,
	  "report": {"path": "run.avro", "format": "avro"}
	}
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"zipbench/internal/accel"
	"zipbench/internal/accel/soft"
	"zipbench/internal/bench"
)

// Environment variable names
const (
	EnvAlg          = "ZIPBENCH_ALG"
	EnvOpType       = "ZIPBENCH_OPTYPE"
	EnvSyncMode     = "ZIPBENCH_SYNC_MODE"
	EnvThreads      = "ZIPBENCH_THREADS"
	EnvCtxNum       = "ZIPBENCH_CTX_NUM"
	EnvPktLen       = "ZIPBENCH_PKT_LEN"
	EnvDevice       = "ZIPBENCH_DEVICE"
	EnvPrefetch     = "ZIPBENCH_PREFETCH"
	EnvInitType     = "ZIPBENCH_INIT_TYPE"
	EnvSeconds      = "ZIPBENCH_SECONDS"
	EnvLevel        = "ZIPBENCH_LEVEL"
	EnvWinSize      = "ZIPBENCH_WIN_SIZE"
	EnvPoolSize     = "ZIPBENCH_POOL_SIZE"
	EnvCorpusDir    = "ZIPBENCH_CORPUS_DIR"
	EnvAllocator    = "ZIPBENCH_ALLOCATOR"
	EnvLogLevel     = "ZIPBENCH_LOG_LEVEL"
	EnvLogJSON      = "ZIPBENCH_LOG_JSON"
	EnvMetricsAddr  = "ZIPBENCH_METRICS_ADDR"
	EnvReportPath   = "ZIPBENCH_REPORT_PATH"
	EnvReportFormat = "ZIPBENCH_REPORT_FORMAT"
)

// Sync modes.
const (
	SyncModeSync  = 0
	SyncModeAsync = 1
)

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"` // Serve /metrics during the run
	Addr    string `json:"addr"`    // Metrics HTTP server address
}

// ReportConfig selects where the run report goes.
type ReportConfig struct {
	Path   string `json:"path"`   // Empty disables the report file
	Format string `json:"format"` // json or avro
}

// SoftConfig sizes the software accelerator.
type SoftConfig struct {
	Devices         int `json:"devices"`
	QueuesPerDevice int `json:"queues_per_device"`
	QueueDepth      int `json:"queue_depth"`
	LatencyUs       int `json:"latency_us"`
	NUMANodes       int `json:"numa_nodes"`
}

// Config holds a complete benchmark configuration.
type Config struct {
	Alg      string `json:"alg"`
	OpType   uint32 `json:"optype"`
	SyncMode int    `json:"sync_mode"`
	Threads  int    `json:"threads"`
	CtxNum   int    `json:"ctx_num"`
	PktLen   uint32 `json:"pkt_len"`
	Device   string `json:"device"`
	Prefetch bool   `json:"prefetch"`
	InitType int    `json:"init_type"`
	Seconds  int    `json:"seconds"`
	Level    int    `json:"level"`
	WinSize  int    `json:"win_size"`

	PoolSize    int    `json:"pool_size"`
	Allocator   string `json:"allocator"`
	StrictReuse bool   `json:"strict_reuse"`
	PinCPU      bool   `json:"pin_cpu"`
	Seed        int64  `json:"seed"`
	CorpusDir   string `json:"corpus_dir"`

	QueueSize      uint32 `json:"queue_size"`
	SendBackoffUs  int    `json:"send_backoff_us"`
	MaxTryCount    int    `json:"max_try_count"`
	DrainTimeoutMs int    `json:"drain_timeout_ms"`

	LogLevel string `json:"log_level"`
	LogJSON  bool   `json:"log_json"`

	Metrics MetricsConfig `json:"metrics"`
	Report  ReportConfig  `json:"report"`
	Soft    SoftConfig    `json:"soft"`

	ConfigFile string `json:"-"`
}

// DefaultConfig returns a one-thread sync zlib compress run of 3 seconds.
func DefaultConfig() *Config {
	return &Config{
		Alg:         "zlib",
		SyncMode:    SyncModeSync,
		Threads:     1,
		CtxNum:      1,
		PktLen:      1024,
		InitType:    int(bench.InitExplicit),
		Seconds:     3,
		Level:       1,
		WinSize:     int(accel.Window32K),
		PoolSize:    bench.DefaultPoolSize,
		Allocator:   "heap",
		Seed:        1,
		CorpusDir:   ".",
		QueueSize:   bench.DefaultQueueSize,
		MaxTryCount: bench.DefaultMaxTryCount,

		SendBackoffUs: int(bench.DefaultSendBackoff / time.Microsecond),
		LogLevel:      "info",

		Metrics: MetricsConfig{Addr: ":9469"},
		Report:  ReportConfig{Format: "json"},
		Soft: SoftConfig{
			Devices:         2,
			QueuesPerDevice: 16,
			QueueDepth:      1024,
			NUMANodes:       1,
		},
	}
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = &Manager{
	config: DefaultConfig(),
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a JSON file over the defaults.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// LoadFromEnv applies ZIPBENCH_* variables. Unparseable numbers are ignored.
func (m *Manager) LoadFromEnv() {
	cfg := m.Get()

	if v := os.Getenv(EnvAlg); v != "" {
		cfg.Alg = v
	}
	envUint32(EnvOpType, &cfg.OpType)
	envInt(EnvSyncMode, &cfg.SyncMode)
	envInt(EnvThreads, &cfg.Threads)
	envInt(EnvCtxNum, &cfg.CtxNum)
	envUint32(EnvPktLen, &cfg.PktLen)
	if v, ok := os.LookupEnv(EnvDevice); ok {
		cfg.Device = v
	}
	envBool(EnvPrefetch, &cfg.Prefetch)
	envInt(EnvInitType, &cfg.InitType)
	envInt(EnvSeconds, &cfg.Seconds)
	envInt(EnvLevel, &cfg.Level)
	envInt(EnvWinSize, &cfg.WinSize)
	envInt(EnvPoolSize, &cfg.PoolSize)
	if v := os.Getenv(EnvCorpusDir); v != "" {
		cfg.CorpusDir = v
	}
	if v := os.Getenv(EnvAllocator); v != "" {
		cfg.Allocator = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	envBool(EnvLogJSON, &cfg.LogJSON)
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv(EnvReportPath); v != "" {
		cfg.Report.Path = v
	}
	if v := os.Getenv(EnvReportFormat); v != "" {
		cfg.Report.Format = v
	}

	m.Set(cfg)
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envUint32(name string, dst *uint32) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(i)
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if _, err := accel.ParseAlgorithm(c.Alg); err != nil {
		return fmt.Errorf("alg: %w", err)
	}
	if c.OpType >= 4 {
		return fmt.Errorf("optype must be 0..3, got %d", c.OpType)
	}
	if c.SyncMode != SyncModeSync && c.SyncMode != SyncModeAsync {
		return fmt.Errorf("sync_mode must be 0 (sync) or 1 (async), got %d", c.SyncMode)
	}
	if c.Threads < 1 || c.Threads > bench.MaxThreads {
		return fmt.Errorf("threads must be 1..%d, got %d", bench.MaxThreads, c.Threads)
	}
	if c.CtxNum < 1 || c.CtxNum > bench.MaxCtxNum {
		return fmt.Errorf("ctx_num must be 1..%d, got %d", bench.MaxCtxNum, c.CtxNum)
	}
	if c.PktLen == 0 {
		return fmt.Errorf("pkt_len must be positive")
	}
	if c.InitType != int(bench.InitExplicit) && c.InitType != int(bench.InitProvider) {
		return fmt.Errorf("init_type must be 1 or 2, got %d", c.InitType)
	}
	if c.Seconds < 1 {
		return fmt.Errorf("seconds must be positive, got %d", c.Seconds)
	}
	if c.WinSize < int(accel.Window4K) || c.WinSize > int(accel.Window32K) {
		return fmt.Errorf("win_size must be 0..4, got %d", c.WinSize)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", c.PoolSize)
	}
	if c.Allocator != "heap" && c.Allocator != "mmap" {
		return fmt.Errorf("allocator must be heap or mmap, got %q", c.Allocator)
	}
	switch c.Report.Format {
	case "json", "avro":
	default:
		return fmt.Errorf("report.format must be json or avro, got %q", c.Report.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	if c.Soft.Devices < 1 || c.Soft.QueuesPerDevice < 1 || c.Soft.QueueDepth < 1 {
		return fmt.Errorf("soft accelerator sizes must be positive")
	}
	return nil
}

// ToOptions converts a validated config into benchmark options.
func (c *Config) ToOptions() (bench.Options, error) {
	alg, err := accel.ParseAlgorithm(c.Alg)
	if err != nil {
		return bench.Options{}, err
	}
	alloc, err := bench.NewAllocator(c.Allocator)
	if err != nil {
		return bench.Options{}, err
	}
	o := bench.DefaultOptions()
	o.Alg = alg
	o.OpType = c.OpType
	o.Async = c.SyncMode == SyncModeAsync
	o.Threads = c.Threads
	o.CtxNum = c.CtxNum
	o.PktLen = c.PktLen
	o.Device = c.Device
	o.Prefetch = c.Prefetch
	o.InitType = bench.InitType(c.InitType)
	o.Duration = time.Duration(c.Seconds) * time.Second
	o.Level = c.Level
	o.Window = accel.WindowSize(c.WinSize)
	o.PoolSize = c.PoolSize
	o.CorpusDir = c.CorpusDir
	o.StrictReuse = c.StrictReuse
	o.PinCPU = c.PinCPU
	o.Seed = c.Seed
	o.Allocator = alloc
	if c.QueueSize > 0 {
		o.QueueSize = c.QueueSize
	}
	if c.SendBackoffUs > 0 {
		o.SendBackoff = time.Duration(c.SendBackoffUs) * time.Microsecond
	}
	if c.MaxTryCount > 0 {
		o.MaxTryCount = c.MaxTryCount
	}
	o.DrainTimeout = time.Duration(c.DrainTimeoutMs) * time.Millisecond
	return o, nil
}

// SoftOptions builds the software accelerator layout.
func (c *Config) SoftOptions() soft.Options {
	o := soft.Options{
		QueueDepth: c.Soft.QueueDepth,
		Latency:    time.Duration(c.Soft.LatencyUs) * time.Microsecond,
		NUMANodes:  max(c.Soft.NUMANodes, 1),
	}
	for i := 0; i < c.Soft.Devices; i++ {
		o.Devices = append(o.Devices, soft.DeviceSpec{
			Name:   fmt.Sprintf("hisi_zip-%d", i),
			NUMA:   i % o.NUMANodes,
			Queues: c.Soft.QueuesPerDevice,
		})
	}
	return o
}
