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

package logging

import "time"

// StageTimer brackets one setup or teardown stage of a run.
type StageTimer struct {
	logger *Logger
	name   string
	start  time.Time
}

// Stage logs the beginning of a named stage at DEBUG level and returns a
// timer whose Done logs the outcome.
func (l *Logger) Stage(name string, args ...interface{}) *StageTimer {
	lg := l
	if len(args) > 0 {
		lg = l.With(args...)
	}
	lg.Debug("stage started", "stage", name)
	return &StageTimer{logger: lg, name: name, start: time.Now()}
}

// Done logs the stage duration. A non-nil err is logged at ERROR level.
func (s *StageTimer) Done(err error) {
	elapsed := time.Since(s.start)
	if err != nil {
		s.logger.Error("stage failed", "stage", s.name, "duration", elapsed, "error", err)
		return
	}
	s.logger.Debug("stage finished", "stage", s.name, "duration", elapsed)
}
