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
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"

	"github.com/streamnative/shardalloc/common/metric"
	"github.com/streamnative/shardalloc/common/process"
	"github.com/streamnative/shardalloc/coordinator/metadata"
	"github.com/streamnative/shardalloc/coordinator/policies"
)

type Config struct {
	MetricsServiceAddr string

	// StatePath is the file holding the cluster state. Its format follows
	// the extension: yaml or json.
	StatePath string

	RerouteInterval   time.Duration
	ReroutesPerSecond float64

	SettingsProvider            func() (policies.Settings, error)
	SettingsChangeNotifications chan any
}

func NewConfig() Config {
	return Config{
		MetricsServiceAddr: "localhost:8080",
		StatePath:          "data/cluster-state.yaml",
		RerouteInterval:    defaultRerouteInterval,
		ReroutesPerSecond:  defaultReroutesPerSecond,
		SettingsProvider: func() (policies.Settings, error) {
			return policies.NewSettings(), nil
		},
	}
}

// Coordinator keeps the routing of the cluster state file up to date. It
// reroutes periodically, whenever the file is modified by someone else,
// and rebuilds its allocation service when the settings change.
type Coordinator struct {
	*slog.Logger
	sync.Mutex
	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	config   Config
	provider metadata.Provider
	watcher  *fsnotify.Watcher
	metrics  *metric.PrometheusMetrics

	service   *AllocationService
	scheduler RerouteScheduler
	applied   chan struct{}
}

func New(config Config) (*Coordinator, error) {
	slog.Info(
		"Starting shard allocation coordinator",
		slog.String("state-path", config.StatePath),
		slog.Duration("reroute-interval", config.RerouteInterval),
		slog.String("metrics-address", config.MetricsServiceAddr),
	)

	settings, err := config.SettingsProvider()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		Logger: slog.With(
			slog.String("component", "coordinator"),
		),
		config:   config,
		provider: metadata.NewProviderFile(config.StatePath),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.startScheduler(settings); err != nil {
		c.cancel()
		return nil, multierr.Append(err, c.provider.Close())
	}

	// The directory is watched, as the file may not exist yet
	if c.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	if err = c.watcher.Add(filepath.Dir(config.StatePath)); err != nil {
		return nil, multierr.Append(err, c.Close())
	}

	if c.metrics, err = metric.Start(config.MetricsServiceAddr); err != nil {
		return nil, multierr.Append(err, c.Close())
	}

	c.wg.Add(2)
	go process.DoWithLabels(c.ctx, map[string]string{
		"shardalloc": "coordinator-watch-state",
	}, c.watchState)
	go process.DoWithLabels(c.ctx, map[string]string{
		"shardalloc": "coordinator-watch-settings",
	}, c.watchSettings)

	c.Trigger()
	return c, nil
}

// Trigger requests an immediate reroute of the cluster state.
func (c *Coordinator) Trigger() {
	c.Lock()
	defer c.Unlock()
	if c.scheduler != nil {
		c.scheduler.Trigger()
	}
}

func (c *Coordinator) Settings() policies.Settings {
	c.Lock()
	defer c.Unlock()
	return c.service.Settings()
}

// startScheduler replaces the allocation service and its scheduler. A
// pass of the previous scheduler still in flight completes first.
func (c *Coordinator) startScheduler(settings policies.Settings) error {
	service, err := NewAllocationService(settings)
	if err != nil {
		return err
	}
	scheduler := NewRerouteScheduler(SchedulerOptions{
		Context:           c.ctx,
		Service:           service,
		StateSupplier:     StateSupplier(c.provider),
		Interval:          c.config.RerouteInterval,
		ReroutesPerSecond: c.config.ReroutesPerSecond,
	})
	applied := make(chan struct{})
	go process.DoWithLabels(c.ctx, map[string]string{
		"shardalloc": "coordinator-apply",
	}, func() {
		defer close(applied)
		ApplyActions(c.provider, scheduler.Action())
	})

	c.Lock()
	oldService, oldScheduler, oldApplied := c.service, c.scheduler, c.applied
	c.service, c.scheduler, c.applied = service, scheduler, applied
	c.Unlock()

	return c.stopScheduler(oldService, oldScheduler, oldApplied)
}

func (*Coordinator) stopScheduler(service *AllocationService, scheduler RerouteScheduler, applied chan struct{}) error {
	if scheduler == nil {
		return nil
	}
	err := scheduler.Close()
	<-applied
	return multierr.Append(err, service.Close())
}

func (c *Coordinator) watchState() {
	defer c.wg.Done()
	name := filepath.Clean(c.config.StatePath)
	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			c.Debug(
				"Cluster state file modified",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)
			c.Trigger()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.Warn(
				"Failed to watch the cluster state file",
				slog.Any("error", err),
			)
		}
	}
}

func (c *Coordinator) watchSettings() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.config.SettingsChangeNotifications:
			c.reloadSettings()
		}
	}
}

func (c *Coordinator) reloadSettings() {
	settings, err := c.config.SettingsProvider()
	if err != nil {
		c.Warn(
			"Failed to load the allocation settings, keeping the current ones",
			slog.Any("error", err),
		)
		return
	}
	if err := c.startScheduler(settings); err != nil {
		c.Warn(
			"Invalid allocation settings, keeping the current ones",
			slog.Any("error", err),
		)
		return
	}
	c.Info("Allocation settings reloaded")
	c.Trigger()
}

func (c *Coordinator) Close() error {
	c.cancel()

	var err error
	if c.watcher != nil {
		err = multierr.Append(err, c.watcher.Close())
	}
	c.wg.Wait()

	c.Lock()
	service, scheduler, applied := c.service, c.scheduler, c.applied
	c.service, c.scheduler, c.applied = nil, nil, nil
	c.Unlock()

	err = multierr.Append(err, c.stopScheduler(service, scheduler, applied))
	if c.metrics != nil {
		err = multierr.Append(err, c.metrics.Close())
	}
	return multierr.Append(err, c.provider.Close())
}
