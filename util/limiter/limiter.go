// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type (
	// Limiter throttles the filesystem work of a scan. A zero rate means
	// unlimited.
	Limiter interface {
		// WaitReadDir blocks until one more directory may be read.
		WaitReadDir(ctx context.Context) error
		// WaitEntries blocks until n more directory entries may be synced.
		WaitEntries(ctx context.Context, n int) error
		SetReadDirRate(perSecond int)
		SetEntryRate(perSecond int)
		GetConfig() LimitConfig
		Status() Status
	}
	LimitConfig struct {
		ReadDirPerSecond int `json:"read_dir_per_second"`
		EntriesPerSecond int `json:"entries_per_second"`
	}
	Status struct {
		Config LimitConfig
		// milliseconds a caller would wait right now
		ReadDirWait int
		EntryWait   int
	}
	limiter struct {
		lock    sync.RWMutex
		config  LimitConfig
		readDir *rate.Limiter
		entries *rate.Limiter
	}
)

func NewLimiter(cfg LimitConfig) Limiter {
	return &limiter{
		config:  cfg,
		readDir: rate.NewLimiter(limitOf(cfg.ReadDirPerSecond), burstOf(cfg.ReadDirPerSecond)),
		entries: rate.NewLimiter(limitOf(cfg.EntriesPerSecond), burstOf(cfg.EntriesPerSecond)),
	}
}

func (lim *limiter) WaitReadDir(ctx context.Context) error {
	return lim.readDir.Wait(ctx)
}

func (lim *limiter) WaitEntries(ctx context.Context, n int) error {
	if burst := lim.entries.Burst(); n > burst && lim.entries.Limit() != rate.Inf {
		// larger batches are paid for in burst sized steps
		for ; n > burst; n -= burst {
			if err := lim.entries.WaitN(ctx, burst); err != nil {
				return err
			}
		}
	}
	return lim.entries.WaitN(ctx, n)
}

func (lim *limiter) SetReadDirRate(perSecond int) {
	lim.lock.Lock()
	lim.readDir.SetLimit(limitOf(perSecond))
	lim.readDir.SetBurst(burstOf(perSecond))
	lim.config.ReadDirPerSecond = perSecond
	lim.lock.Unlock()
}

func (lim *limiter) SetEntryRate(perSecond int) {
	lim.lock.Lock()
	lim.entries.SetLimit(limitOf(perSecond))
	lim.entries.SetBurst(burstOf(perSecond))
	lim.config.EntriesPerSecond = perSecond
	lim.lock.Unlock()
}

func (lim *limiter) GetConfig() LimitConfig {
	lim.lock.RLock()
	defer lim.lock.RUnlock()
	return lim.config
}

func (lim *limiter) Status() Status {
	return Status{
		Config:      lim.GetConfig(),
		ReadDirWait: rateWait(lim.readDir),
		EntryWait:   rateWait(lim.entries),
	}
}

func limitOf(perSecond int) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func burstOf(perSecond int) int {
	if perSecond <= 0 {
		return 1
	}
	return perSecond
}

func rateWait(r *rate.Limiter) int {
	if r.Limit() == rate.Inf {
		return 0
	}
	now := time.Now()
	reserve := r.ReserveN(now, int(r.Limit())/2)
	duration := reserve.DelayFrom(now)
	reserve.Cancel()
	return int(duration.Milliseconds())
}
