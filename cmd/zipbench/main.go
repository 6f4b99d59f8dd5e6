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
zipbench - Compression Accelerator Benchmark.

USAGE:
======

	zipbench [options]

OPTIONS:
========

	-alg string       zlib, gzip, deflate, lz77_zstd or lz4
	-optype int       0 compress, 1 decompress, 2/3 the same in stream mode
	-sync int         0 sync, 1 async
	-config string    Path to configuration file (JSON format)

RUN SEQUENCE:
=============
1. Load config file, environment, then flags
2. Initialize logging
3. Build the software accelerator
4. Start the metrics endpoint if enabled
5. Run the benchmark until the timer or SIGINT
6. Print the summary and write the report
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zipbench/internal/accel/soft"
	"zipbench/internal/banner"
	"zipbench/internal/bench"
	"zipbench/internal/config"
	"zipbench/internal/logging"
	"zipbench/internal/metrics"
	"zipbench/internal/report"
)

func printHelp() {
	banner.PrintTo(os.Stdout)
	fmt.Println("\033[1;36mUsage:\033[0m")
	fmt.Println("  zipbench [options]")
	fmt.Println()
	fmt.Println("\033[1;36mOptions:\033[0m")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("\033[1;36mEnvironment Variables:\033[0m")
	fmt.Println("  ZIPBENCH_ALG             Algorithm name")
	fmt.Println("  ZIPBENCH_OPTYPE          Operation type 0..3")
	fmt.Println("  ZIPBENCH_SYNC_MODE       0 sync, 1 async")
	fmt.Println("  ZIPBENCH_THREADS         Producer threads (1..64)")
	fmt.Println("  ZIPBENCH_CTX_NUM         Accelerator contexts (1..64)")
	fmt.Println("  ZIPBENCH_PKT_LEN         Packet length in bytes")
	fmt.Println("  ZIPBENCH_METRICS_ADDR    Serve /metrics on this address")
	fmt.Println("  ZIPBENCH_REPORT_PATH     Write the run report here")
	fmt.Println()
	fmt.Println("\033[1;36mExamples:\033[0m")
	fmt.Println("  # Compress 64 KiB packets on 8 threads for 10 seconds, saving the corpus")
	fmt.Println("  zipbench -alg gzip -optype 0 -threads 8 -pktlen 65536 -seconds 10")
	fmt.Println()
	fmt.Println("  # Replay that corpus asynchronously")
	fmt.Println("  zipbench -alg gzip -optype 1 -sync 1 -threads 8 -ctxnum 4 -pktlen 65536")
	fmt.Println()
}

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	alg := flag.String("alg", "", "Algorithm: zlib, gzip, deflate, lz77_zstd, lz4")
	opType := flag.Uint("optype", 0, "0 compress, 1 decompress, 2 stream compress, 3 stream decompress")
	syncMode := flag.Int("sync", 0, "0 sync, 1 async")
	threads := flag.Int("threads", 0, "Producer threads")
	ctxNum := flag.Int("ctxnum", 0, "Accelerator contexts")
	pktLen := flag.Uint("pktlen", 0, "Packet length in bytes")
	device := flag.String("device", "", "Accelerator device name (default: provider placement)")
	prefetch := flag.Bool("prefetch", false, "Touch destination buffers before the run")
	initType := flag.Int("init", 0, "1 explicit contexts, 2 provider managed")
	seconds := flag.Int("seconds", 0, "Run time in seconds")
	level := flag.Int("complevel", 0, "Compression level")
	winSize := flag.Int("winsize", 0, "Window code 0..4 (4K..32K)")
	reportPath := flag.String("report", "", "Write the run report to this path")
	reportFormat := flag.String("format", "", "Report format: json or avro")
	corpusDir := flag.String("corpus-dir", "", "Directory for zip_<pktlen>.<alg> files")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	quietMode := flag.Bool("quiet", false, "Skip banner and config display")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		banner.PrintTo(os.Stdout)
		return
	}

	cfgMgr := config.Global()
	if *configPath != "" {
		if err := cfgMgr.LoadFromFile(*configPath); err != nil {
			fmt.Printf("Error loading config file: %v\n", err)
			os.Exit(1)
		}
	}
	cfgMgr.LoadFromEnv()
	cfg := cfgMgr.Get()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "alg":
			cfg.Alg = *alg
		case "optype":
			cfg.OpType = uint32(*opType)
		case "sync":
			cfg.SyncMode = *syncMode
		case "threads":
			cfg.Threads = *threads
		case "ctxnum":
			cfg.CtxNum = *ctxNum
		case "pktlen":
			cfg.PktLen = uint32(*pktLen)
		case "device":
			cfg.Device = *device
		case "prefetch":
			cfg.Prefetch = *prefetch
		case "init":
			cfg.InitType = *initType
		case "seconds":
			cfg.Seconds = *seconds
		case "complevel":
			cfg.Level = *level
		case "winsize":
			cfg.WinSize = *winSize
		case "report":
			cfg.Report.Path = *reportPath
		case "format":
			cfg.Report.Format = *reportFormat
		case "corpus-dir":
			cfg.CorpusDir = *corpusDir
		case "metrics-addr":
			cfg.Metrics.Enabled = true
			cfg.Metrics.Addr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !*quietMode {
		banner.PrintRunTo(os.Stdout, cfg)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.ParseLevel(cfg.LogLevel)
	logCfg.JSONMode = cfg.LogJSON
	logging.Configure(logCfg)
	logger := logging.NewLogger("main")

	if err := run(cfg, logger); err != nil {
		logger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	opts, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	provider := soft.New(cfg.SoftOptions())
	collector := metrics.NewCollector()

	b, err := bench.New(opts, provider, collector)
	if err != nil {
		return err
	}

	metricsServer := metrics.NewServer(&cfg.Metrics, collector, opts.Alg.String(), fmt.Sprint(opts.OpType))
	if err := metricsServer.Start(); err != nil {
		logger.Error("failed to start metrics server", "error", err)
	}
	defer metricsServer.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("benchmark starting", "alg", opts.Alg.String(), "optype", opts.OpType,
		"threads", opts.Threads, "ctxnum", opts.CtxNum, "pktlen", opts.PktLen)
	res, err := b.Run(ctx)
	if err != nil {
		return err
	}
	for _, w := range res.Workers {
		if w.Err != nil {
			logger.Warn("worker ended early", "worker", w.ID, "iterations", w.Iterations, "error", w.Err)
		}
	}

	rep := report.Build(res, collector.Snapshot(), time.Now())
	fmt.Println(rep.Summary())
	if cfg.Report.Path != "" {
		if err := report.Write(cfg.Report.Path, cfg.Report.Format, rep); err != nil {
			return err
		}
		logger.Info("report written", "path", cfg.Report.Path, "format", cfg.Report.Format, "run_id", rep.RunID)
	}
	return nil
}
