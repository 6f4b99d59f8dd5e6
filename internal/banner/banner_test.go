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

package banner

import (
	"bytes"
	"strings"
	"testing"

	"zipbench/internal/config"
)

func TestGetBannerLines(t *testing.T) {
	lines := GetBannerLines()
	if len(lines) < 2 {
		t.Errorf("banner has %d lines, want several", len(lines))
	}
}

func TestPrintTo(t *testing.T) {
	var buf bytes.Buffer
	PrintTo(&buf)

	output := buf.String()
	if !strings.Contains(output, Version) {
		t.Errorf("Expected output to contain version %s", Version)
	}
	if !strings.Contains(output, "Copyright") {
		t.Error("Expected output to contain copyright")
	}
}

func TestPrintRunTo(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		want   []string
		absent []string
	}{
		{
			name:   "defaults",
			modify: func(c *config.Config) {},
			want:   []string{"defaults + environment", "zlib  optype 0  sync", "Device:", "auto", "LOGS START HERE"},
			absent: []string{"Metrics:", "Report:"},
		},
		{
			name: "async with outputs",
			modify: func(c *config.Config) {
				c.ConfigFile = "/etc/zipbench.json"
				c.SyncMode = config.SyncModeAsync
				c.Device = "hisi_zip-1"
				c.Metrics.Enabled = true
				c.Report.Path = "run.avro"
				c.Report.Format = "avro"
			},
			want: []string{"/etc/zipbench.json", "async", "hisi_zip-1", "Metrics:", "run.avro (avro)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			var buf bytes.Buffer
			PrintRunTo(&buf, cfg)
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q", s)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(out, s) {
					t.Errorf("output unexpectedly contains %q", s)
				}
			}
		})
	}
}

func TestLicenseConstant(t *testing.T) {
	if !strings.Contains(License, "Apache") {
		t.Error("Expected license to contain 'Apache'")
	}
}
