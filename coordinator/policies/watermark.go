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
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var ErrInvalidWatermark = errors.New("invalid disk watermark")

// Watermark is a disk usage threshold. It is either relative, expressed as
// the maximum used ratio of the disk ("85%" or "0.85"), or absolute,
// expressed as the minimum amount of free space ("50gb").
type Watermark struct {
	usedRatio float64
	freeBytes uint64
	absolute  bool
}

func PercentWatermark(percent float64) Watermark {
	return Watermark{usedRatio: percent / 100}
}

func FreeBytesWatermark(bytes uint64) Watermark {
	return Watermark{freeBytes: bytes, absolute: true}
}

func ParseWatermark(s string) (Watermark, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Watermark{}, errors.Wrap(ErrInvalidWatermark, "empty value")
	}

	if p, found := strings.CutSuffix(s, "%"); found {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 || v > 100 {
			return Watermark{}, errors.Wrapf(ErrInvalidWatermark, "percentage %q", s)
		}
		return PercentWatermark(v), nil
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v < 0 || v > 1 {
			return Watermark{}, errors.Wrapf(ErrInvalidWatermark, "ratio %q must be within [0, 1]", s)
		}
		return Watermark{usedRatio: v}, nil
	}

	b, err := humanize.ParseBytes(s)
	if err != nil {
		return Watermark{}, errors.Wrapf(ErrInvalidWatermark, "%q is neither a ratio nor a byte size", s)
	}
	return FreeBytesWatermark(b), nil
}

func (w Watermark) IsAbsolute() bool {
	return w.absolute
}

// UsedRatio is the maximum used ratio of a relative watermark.
func (w Watermark) UsedRatio() float64 {
	return w.usedRatio
}

// FreeBytes is the minimum free space of an absolute watermark.
func (w Watermark) FreeBytes() uint64 {
	return w.freeBytes
}

// Exceeded reports whether a disk with the given capacity and usage is
// above the watermark.
func (w Watermark) Exceeded(totalBytes, usedBytes uint64) bool {
	if totalBytes == 0 {
		return false
	}
	if w.absolute {
		if usedBytes >= totalBytes {
			return true
		}
		return totalBytes-usedBytes < w.freeBytes
	}
	return float64(usedBytes)/float64(totalBytes) > w.usedRatio
}

func (w Watermark) String() string {
	if w.absolute {
		return humanize.IBytes(w.freeBytes) + " free"
	}
	return strconv.FormatFloat(w.usedRatio*100, 'f', -1, 64) + "%"
}

func (w Watermark) MarshalText() ([]byte, error) {
	if w.absolute {
		return []byte(strconv.FormatUint(w.freeBytes, 10) + "b"), nil
	}
	return []byte(w.String()), nil
}

func (w *Watermark) UnmarshalText(text []byte) error {
	parsed, err := ParseWatermark(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// validateWatermarks checks that the three watermarks are of the same kind
// and ordered low <= high <= flood.
func validateWatermarks(low, high, flood Watermark) error {
	if low.absolute != high.absolute || high.absolute != flood.absolute {
		return errors.Wrap(ErrInvalidWatermark, "low, high and flood stage watermarks must all be ratios or all be byte sizes")
	}
	if low.absolute {
		if low.freeBytes < high.freeBytes || high.freeBytes < flood.freeBytes {
			return errors.Wrap(ErrInvalidWatermark,
				fmt.Sprintf("free space watermarks must satisfy low [%s] >= high [%s] >= flood stage [%s]", low, high, flood))
		}
		return nil
	}
	if low.usedRatio > high.usedRatio || high.usedRatio > flood.usedRatio {
		return errors.Wrap(ErrInvalidWatermark,
			fmt.Sprintf("watermarks must satisfy low [%s] <= high [%s] <= flood stage [%s]", low, high, flood))
	}
	return nil
}
