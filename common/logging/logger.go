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

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

const DefaultLogLevel = slog.LevelInfo

var (
	// LogLevel Used for flags.
	LogLevel = DefaultLogLevel
	// LogJSON Used for flags.
	LogJSON bool
)

// ParseLogLevel will convert the slog level configuration to slog.Level values.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch {
	case strings.EqualFold(levelStr, slog.LevelDebug.String()):
		return slog.LevelDebug, nil
	case strings.EqualFold(levelStr, slog.LevelInfo.String()):
		return slog.LevelInfo, nil
	case strings.EqualFold(levelStr, slog.LevelWarn.String()):
		return slog.LevelWarn, nil
	case strings.EqualFold(levelStr, slog.LevelError.String()):
		return slog.LevelError, nil
	}

	return slog.LevelInfo, fmt.Errorf("unknown level string: '%s', defaulting to LevelInfo", levelStr)
}

// ConfigureLogger installs the process wide slog logger. Log records go to
// stderr so that commands printing routing tables on stdout stay pipeable.
func ConfigureLogger() {
	slog.SetDefault(NewLogger(os.Stderr, LogLevel, LogJSON))
}

func NewLogger(out io.Writer, level slog.Level, json bool) *slog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	//nolint
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	var zerologLogger zerolog.Logger
	if json {
		zerologLogger = zerolog.New(out).
			With().
			Timestamp().
			Stack().
			Logger()
	} else {
		zerologLogger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.StampMicro,
		}).With().Timestamp().Logger()
	}

	return slog.New(
		slogzerolog.Option{
			Level:  level,
			Logger: &zerologLogger,
		}.NewZerologHandler(),
	)
}
