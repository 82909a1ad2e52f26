// Copyright 2025 StreamNative, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/streamnative/shardalloc/common"
	"github.com/streamnative/shardalloc/common/channel"
	"github.com/streamnative/shardalloc/common/process"
	"github.com/streamnative/shardalloc/coordinator/action"
	"github.com/streamnative/shardalloc/coordinator/allocation"
	"github.com/streamnative/shardalloc/coordinator/cluster"
)

const (
	defaultRerouteInterval       = 30 * time.Second
	defaultReroutesPerSecond     = 5.0
	defaultThrottledRetryInitial = 500 * time.Millisecond
	defaultThrottledRetryMax     = 30 * time.Second
)

type SchedulerOptions struct {
	context.Context

	Service       *AllocationService
	StateSupplier func() *cluster.State

	// Interval between two periodic reroutes.
	Interval time.Duration

	// ReroutesPerSecond caps the rate of passes, however often triggered.
	ReroutesPerSecond float64

	// While a pass leaves copies throttled, reroutes are retried with an
	// exponential backoff between these bounds.
	ThrottledRetryInitial time.Duration
	ThrottledRetryMax     time.Duration
}

// RerouteScheduler runs allocation passes in the background, one at a
// time, and proposes every routing change as an action.ApplyRoutingAction.
// Closing the scheduler closes the action channel.
type RerouteScheduler interface {
	io.Closer

	Trigger()

	Action() <-chan action.Action
}

type rerouteScheduler struct {
	*slog.Logger
	*sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	service       *AllocationService
	stateSupplier func() *cluster.State

	interval time.Duration
	limiter  *rate.Limiter
	backoff  backoff.BackOffContext

	actionCh  chan action.Action
	triggerCh channel.Signal
}

func NewRerouteScheduler(options SchedulerOptions) RerouteScheduler {
	if options.Context == nil {
		options.Context = context.Background()
	}
	if options.Interval == 0 {
		options.Interval = defaultRerouteInterval
	}
	if options.ReroutesPerSecond == 0 {
		options.ReroutesPerSecond = defaultReroutesPerSecond
	}
	if options.ThrottledRetryInitial == 0 {
		options.ThrottledRetryInitial = defaultThrottledRetryInitial
	}
	if options.ThrottledRetryMax == 0 {
		options.ThrottledRetryMax = defaultThrottledRetryMax
	}
	ctx, cancel := context.WithCancel(options.Context)

	r := &rerouteScheduler{
		Logger: slog.With(
			slog.String("component", "reroute-scheduler"),
		),
		WaitGroup:     &sync.WaitGroup{},
		ctx:           ctx,
		cancel:        cancel,
		service:       options.Service,
		stateSupplier: options.StateSupplier,
		interval:      options.Interval,
		limiter:       rate.NewLimiter(rate.Limit(options.ReroutesPerSecond), 1),
		backoff:       common.NewBackOff(ctx, options.ThrottledRetryInitial, options.ThrottledRetryMax),
		actionCh:      make(chan action.Action),
		triggerCh:     channel.NewSignal(),
	}
	r.startBackgroundScheduler()
	r.startBackgroundNotifier()
	return r
}

func (r *rerouteScheduler) Action() <-chan action.Action {
	return r.actionCh
}

func (r *rerouteScheduler) Trigger() {
	r.Debug("Reroute triggered")
	r.triggerCh.Notify()
}

func (r *rerouteScheduler) Close() error {
	r.cancel()
	r.Wait()
	close(r.actionCh)
	return nil
}

func (r *rerouteScheduler) startBackgroundScheduler() {
	r.Add(1)
	go process.DoWithLabels(r.ctx, map[string]string{
		"component": "reroute-scheduler",
	}, func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		defer r.Done()
		for {
			select {
			case <-ticker.C:
				r.triggerCh.Notify()
			case <-r.ctx.Done():
				return
			}
		}
	})
}

func (r *rerouteScheduler) startBackgroundNotifier() {
	r.Add(1)
	go process.DoWithLabels(r.ctx, map[string]string{
		"component": "reroute-notifier",
	}, func() {
		defer r.Done()

		var retry *time.Timer
		var retryCh <-chan time.Time
		defer func() {
			if retry != nil {
				retry.Stop()
			}
		}()

		for {
			select {
			case <-r.triggerCh:
			case <-retryCh:
				retryCh = nil
			case <-r.ctx.Done():
				return
			}

			if !r.reroute() {
				r.backoff.Reset()
				continue
			}
			delay := r.backoff.NextBackOff()
			if delay == backoff.Stop {
				return
			}
			if retry != nil {
				retry.Stop()
			}
			retry = time.NewTimer(delay)
			retryCh = retry.C
			r.Debug("Shards are throttled, scheduling a reroute", slog.Duration("delay", delay))
		}
	})
}

// reroute runs one pass over the current state and proposes its result.
// It returns whether the pass should be retried.
func (r *rerouteScheduler) reroute() bool {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return false
	}

	state := r.stateSupplier()
	if state == nil {
		return false
	}
	res, err := r.service.Reroute(r.ctx, state, RerouteOptions{})
	if err != nil {
		if r.ctx.Err() != nil {
			return false
		}
		r.Error("Failed to reroute",
			slog.Int64("version", state.Version()),
			slog.Any("error", err),
		)
		return true
	}
	throttled := res.Count(allocation.OutcomeThrottled)+res.Count(allocation.OutcomeMoveThrottled) > 0
	if !res.Changed {
		return throttled
	}

	a := action.NewApplyRoutingAction(state, res)
	select {
	case r.actionCh <- a:
	case <-r.ctx.Done():
		return false
	}
	applied, err := a.Wait(r.ctx)
	if err != nil {
		return false
	}
	if !applied {
		r.Info("Routing proposal was stale, rerouting", slog.Int64("version", state.Version()))
		r.triggerCh.Notify()
	}
	return throttled
}
