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
	"errors"
	"fmt"

	"zipbench/internal/accel"
	"zipbench/internal/logging"
)

// ctxPool owns the accelerator resources for one run.
type ctxPool struct {
	provider accel.Provider
	logger   *logging.Logger
	initType InitType

	entries []accel.CtxEntry
	sched   accel.Scheduler
	params  accel.SchedParams
	inited  bool
}

// setupContexts acquires ctxNum contexts for p and installs them in the
// provider. Anything acquired before a failure is released.
func setupContexts(provider accel.Provider, logger *logging.Logger, opts *Options, p plan) (*ctxPool, error) {
	cp := &ctxPool{provider: provider, logger: logger, initType: opts.InitType}
	if opts.InitType == InitProvider {
		return cp, cp.initProvider(opts, p)
	}
	if err := cp.initExplicit(opts, p); err != nil {
		cp.teardown()
		return nil, err
	}
	return cp, nil
}

func (cp *ctxPool) initProvider(opts *Options, p plan) error {
	nums := make([]accel.CtxNums, accel.OpTypeCount)
	for i := range nums {
		if p.ctxMode == accel.CtxAsync {
			nums[i].Async = opts.CtxNum
		} else {
			nums[i].Sync = opts.CtxNum
		}
	}
	if err := cp.provider.Init2(opts.Alg, accel.SchedRR, nums); err != nil {
		return fmt.Errorf("init2 %s: %w", opts.Alg, err)
	}
	cp.inited = true
	cp.params = accel.SchedParams{Op: p.op, Mode: p.ctxMode, Begin: 0, End: opts.CtxNum - 1}
	cp.logger.Info("provider initialized contexts", "alg", opts.Alg.String(), "ctxnum", opts.CtxNum, "mode", p.ctxMode.String())
	return nil
}

func (cp *ctxPool) initExplicit(opts *Options, p plan) error {
	var err error
	if opts.Device != "" {
		err = cp.requestOnDevice(opts)
	} else {
		err = cp.requestDefault(opts)
	}
	if err != nil {
		return err
	}
	for i := range cp.entries {
		cp.entries[i].Op = p.op
		cp.entries[i].Mode = p.ctxMode
	}

	sched, err := cp.provider.AllocScheduler(accel.SchedRR, 2, cp.provider.NUMANodes())
	if err != nil {
		return fmt.Errorf("alloc scheduler: %w", err)
	}
	cp.sched = sched
	cp.params = accel.SchedParams{NUMA: 0, Op: p.op, Mode: p.ctxMode, Begin: 0, End: opts.CtxNum - 1}
	if err := sched.Instance(cp.params); err != nil {
		return fmt.Errorf("scheduler instance: %w", err)
	}
	if err := cp.provider.Init(accel.CtxConfig{Entries: cp.entries}, sched); err != nil {
		return fmt.Errorf("init contexts: %w", err)
	}
	cp.inited = true
	return nil
}

func (cp *ctxPool) requestOnDevice(opts *Options) error {
	devs, err := cp.provider.Devices(opts.Alg)
	if err != nil {
		return fmt.Errorf("list %s devices: %w", opts.Alg, err)
	}
	var dev *accel.Device
	for i := range devs {
		if devs[i].Name == opts.Device {
			dev = &devs[i]
			break
		}
	}
	if dev == nil {
		return fmt.Errorf("%w: %q", accel.ErrNoDevice, opts.Device)
	}
	avail, err := cp.provider.AvailableContexts(*dev)
	if err != nil {
		return fmt.Errorf("available contexts on %s: %w", dev.Name, err)
	}
	if avail < opts.CtxNum {
		return fmt.Errorf("%w: %s has %d free contexts, need %d", accel.ErrNoDevice, dev.Name, avail, opts.CtxNum)
	}
	for i := 0; i < opts.CtxNum; i++ {
		c, err := cp.provider.RequestContext(*dev)
		if err != nil {
			return fmt.Errorf("request context %d on %s: %w", i, dev.Name, err)
		}
		cp.entries = append(cp.entries, accel.CtxEntry{Ctx: c})
	}
	cp.logger.Info("contexts requested", "device", dev.Name, "ctxnum", opts.CtxNum)
	return nil
}

func (cp *ctxPool) requestDefault(opts *Options) error {
	for i := 0; i < opts.CtxNum; i++ {
		dev, err := cp.provider.DefaultDevice(opts.Alg)
		if err != nil {
			return fmt.Errorf("default device for context %d: %w", i, err)
		}
		c, err := cp.provider.RequestContext(dev)
		if err != nil {
			return fmt.Errorf("request context %d on %s: %w", i, dev.Name, err)
		}
		cp.entries = append(cp.entries, accel.CtxEntry{Ctx: c})
		cp.logger.Debug("context requested", "index", i, "device", dev.Name)
	}
	return nil
}

// contexts returns the number of contexts pollers should cover.
func (cp *ctxPool) contexts() int {
	return cp.params.End - cp.params.Begin + 1
}

// teardown undoes setupContexts in reverse. It is safe on a partial pool.
func (cp *ctxPool) teardown() {
	if cp.inited {
		cp.provider.Uninit()
		cp.inited = false
	}
	for i := len(cp.entries) - 1; i >= 0; i-- {
		cp.provider.ReleaseContext(cp.entries[i].Ctx)
	}
	cp.entries = nil
	if cp.sched != nil {
		cp.sched.Release()
		cp.sched = nil
	}
}

// isNoResource reports whether err came from running out of devices or
// contexts.
func isNoResource(err error) bool {
	return errors.Is(err, accel.ErrNoDevice) || errors.Is(err, accel.ErrNoContext)
}
