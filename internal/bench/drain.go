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

package bench

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDrainTimeout means completions were still outstanding when the drain
// wait gave up.
var ErrDrainTimeout = errors.New("bench: drain timed out")

// drain waits until every worker has at most slack completions outstanding.
func drain(ctx context.Context, workers []*worker, slack uint64, interval, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, w := range workers {
		for w.counters.Outstanding() > slack {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: worker %d has %d outstanding: %v",
					ErrDrainTimeout, w.id, w.counters.Outstanding(), ctx.Err())
			case <-ticker.C:
			}
		}
	}
	return nil
}
