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

package policies

import (
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// DecodeHook converts the loosely typed values found in configuration files
// into settings fields. Watermarks accept both numbers and strings.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		watermarkHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func watermarkHookFunc() mapstructure.DecodeHookFuncType {
	watermarkType := reflect.TypeOf(Watermark{})
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != watermarkType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return ParseWatermark(v)
		case float64:
			return ParseWatermark(strconv.FormatFloat(v, 'f', -1, 64))
		case int:
			return ParseWatermark(strconv.Itoa(v))
		}
		return data, nil
	}
}

// Decode overlays a generic configuration map on top of the default settings.
func Decode(input map[string]any) (Settings, error) {
	settings := NewSettings()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DecodeHook(),
		Result:           &settings,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return settings, errors.Wrap(err, "failed to create settings decoder")
	}
	if err := decoder.Decode(input); err != nil {
		return settings, errors.Wrap(err, "failed to decode settings")
	}
	return settings, nil
}
