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


package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/streamnative/shardalloc/coordinator/policies"
)

// Loader reads the allocation settings from a yaml or json file, on top of
// the default settings. Without a file, the defaults are used.
type Loader struct {
	v    *viper.Viper
	path string
}

func NewLoader(path string) *Loader {
	v := viper.New()
	if path != "" {
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		v.SetConfigFile(path)
	}
	return &Loader{v: v, path: path}
}

func (l *Loader) Load() (policies.Settings, error) {
	settings := policies.NewSettings()
	if l.path == "" {
		return settings, nil
	}

	if err := l.v.ReadInConfig(); err != nil {
		return settings, errors.Wrapf(err, "failed to read settings from %s", l.path)
	}
	if err := l.v.Unmarshal(&settings, viper.DecodeHook(policies.DecodeHook()), func(c *mapstructure.DecoderConfig) {
		c.ErrorUnused = true
	}); err != nil {
		return settings, errors.Wrapf(err, "failed to load settings from %s", l.path)
	}
	return settings, settings.Validate()
}

// Watch sends a notification whenever the settings file changes.
func (l *Loader) Watch(notifications chan<- any) {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info(
			"Allocation settings file changed",
			slog.String("path", e.Name),
		)
		notifications <- nil
	})
	l.v.WatchConfig()
}
