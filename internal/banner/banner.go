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
Package banner prints the zipbench startup banner.

USAGE:
======

	banner.PrintTo(w)          // banner and version
	banner.PrintRunTo(w, cfg)  // banner plus the run configuration

The banner text is embedded at compile time from banner.txt.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"zipbench/internal/config"
)

//go:embed banner.txt
var bannerText string

// ANSI escape codes for terminal text formatting.
const (
	AnsiGreen  = "\033[32m"
	AnsiYellow = "\033[33m"
	AnsiCyan   = "\033[36m"
	AnsiReset  = "\033[0m"
	AnsiBold   = "\033[1m"
	AnsiDim    = "\033[2m"
)

// Version information
const (
	Version   = "0.3.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

func printHead(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiCyan+AnsiBold)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w, AnsiReset)
	fmt.Fprintln(w, AnsiGreen+AnsiBold+"  zipbench"+AnsiReset+" "+AnsiDim+"v"+Version+AnsiReset)
	fmt.Fprintln(w, AnsiDim+"  Compression Accelerator Benchmark"+AnsiReset)
	fmt.Fprintln(w)
}

// PrintTo writes the banner to the specified writer.
func PrintTo(w io.Writer) {
	printHead(w)
	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
}

// PrintRunTo writes the banner followed by the run configuration.
func PrintRunTo(w io.Writer, cfg *config.Config) {
	printHead(w)

	fmt.Fprint(w, "  "+AnsiDim+"Config: "+AnsiReset)
	if cfg.ConfigFile != "" {
		fmt.Fprintln(w, AnsiYellow+cfg.ConfigFile+AnsiReset)
	} else {
		fmt.Fprintln(w, AnsiDim+"defaults + environment"+AnsiReset)
	}

	mode := "sync"
	if cfg.SyncMode == config.SyncModeAsync {
		mode = "async"
	}
	device := cfg.Device
	if device == "" {
		device = "auto"
	}
	row(w, "Algorithm", fmt.Sprintf("%s  optype %d  %s", cfg.Alg, cfg.OpType, mode))
	row(w, "Workers", fmt.Sprintf("%d threads  %d contexts  init %d", cfg.Threads, cfg.CtxNum, cfg.InitType))
	row(w, "Packets", fmt.Sprintf("%d bytes  pool %d  %s", cfg.PktLen, cfg.PoolSize, cfg.Allocator))
	row(w, "Device", device)
	row(w, "Duration", fmt.Sprintf("%ds", cfg.Seconds))
	if cfg.Metrics.Enabled {
		row(w, "Metrics", cfg.Metrics.Addr)
	}
	if cfg.Report.Path != "" {
		row(w, "Report", cfg.Report.Path+" ("+cfg.Report.Format+")")
	}
	fmt.Fprintln(w)
	printLogSeparator(w)
}

func row(w io.Writer, name, value string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", AnsiDim, name+":", AnsiReset, value)
}

func printLogSeparator(w io.Writer) {
	const lineWidth = 78
	text := " LOGS START HERE "
	padding := max((lineWidth-len(text)-4)/2, 0)
	line := strings.Repeat("-", padding)
	fmt.Fprintf(w, "  %svv%s %s%s%s %svv%s\n",
		AnsiYellow, line, AnsiBold, text, AnsiReset+AnsiYellow, line, AnsiReset)
	fmt.Fprintln(w)
}
