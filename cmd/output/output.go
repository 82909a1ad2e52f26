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


package output

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown output format")

// Write prints v in the requested format.
func Write(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode output")
		}
		return e.Close()
	case "json":
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return errors.Wrap(e.Encode(v), "failed to encode output")
	}
	return errors.Wrapf(ErrUnknownFormat, "%q", format)
}

func Validate(format string) error {
	if format != "yaml" && format != "json" {
		return errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	return nil
}
