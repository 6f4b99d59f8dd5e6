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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"zipbench/internal/config"
	"zipbench/internal/logging"
)

// Server exposes a Collector over HTTP for Prometheus.
type Server struct {
	config    *config.MetricsConfig
	collector *Collector
	labels    string
	server    *http.Server
	listener  net.Listener
	logger    *logging.Logger
}

// NewServer creates a metrics server for c. alg and op label every sample.
func NewServer(cfg *config.MetricsConfig, c *Collector, alg, op string) *Server {
	return &Server{
		config:    cfg,
		collector: c,
		labels:    fmt.Sprintf("{alg=%q,op=%q}", alg, op),
		logger:    logging.NewLogger("metrics"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Debug("metrics server disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", s.config.Addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("starting metrics server", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Debug("stopping metrics server")
	return s.server.Shutdown(ctx)
}

// Handler serves the collector in Prometheus text format.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleMetrics)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := s.collector.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP zipbench_packets_total Completed packets\n")
	fmt.Fprintf(w, "# TYPE zipbench_packets_total counter\n")
	fmt.Fprintf(w, "zipbench_packets_total%s %d\n", s.labels, snap.Packets)

	fmt.Fprintf(w, "# HELP zipbench_bytes_total Completed payload bytes\n")
	fmt.Fprintf(w, "# TYPE zipbench_bytes_total counter\n")
	fmt.Fprintf(w, "zipbench_bytes_total%s %d\n", s.labels, snap.Bytes)

	fmt.Fprintf(w, "# HELP zipbench_sends_complete_total Async workers finished submitting\n")
	fmt.Fprintf(w, "# TYPE zipbench_sends_complete_total counter\n")
	fmt.Fprintf(w, "zipbench_sends_complete_total%s %d\n", s.labels, s.collector.SendsComplete.Load())

	fmt.Fprintf(w, "# HELP zipbench_throughput_mib_per_second Payload throughput\n")
	fmt.Fprintf(w, "# TYPE zipbench_throughput_mib_per_second gauge\n")
	fmt.Fprintf(w, "zipbench_throughput_mib_per_second%s %.2f\n", s.labels, snap.MiBPerSec)

	fmt.Fprintf(w, "# HELP zipbench_ops_per_second Packet rate\n")
	fmt.Fprintf(w, "# TYPE zipbench_ops_per_second gauge\n")
	fmt.Fprintf(w, "zipbench_ops_per_second%s %.2f\n", s.labels, snap.OpsPerSec)

	fmt.Fprintf(w, "# HELP zipbench_latency_avg_microseconds Average sync latency\n")
	fmt.Fprintf(w, "# TYPE zipbench_latency_avg_microseconds gauge\n")
	fmt.Fprintf(w, "zipbench_latency_avg_microseconds%s %.2f\n", s.labels, float64(snap.AvgLatency)/float64(time.Microsecond))

	fmt.Fprintf(w, "# HELP zipbench_cpu_usage_percent CPU time over wall time\n")
	fmt.Fprintf(w, "# TYPE zipbench_cpu_usage_percent gauge\n")
	fmt.Fprintf(w, "zipbench_cpu_usage_percent%s %.2f\n", s.labels, snap.CPUUsage)
}
