/*
 * Copyright 2026 The Fleet Gateway Authors.
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

package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ComponentLogger implements the Logger interface over an owned
// zerolog.Logger value, rather than the package-level global one Init sets
// up. cmd/gateway builds one, tagged with component "gateway", and shares
// it across every component it wires.
type ComponentLogger struct {
	logger zerolog.Logger
}

// NewComponentLogger builds a ComponentLogger for component from config,
// wiring in the OTel log exporter when config.OTel.Enabled is set.
func NewComponentLogger(ctx context.Context, component string, config Config) (*ComponentLogger, error) {
	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	timeFormat := time.RFC3339
	if config.TimeFormat != "" {
		timeFormat = config.TimeFormat
	}

	if config.OTel.Enabled {
		otelWriter, err := NewOTELWriter(ctx, config.OTel)
		if err != nil {
			return nil, err
		}

		output = NewMultiWriter(output, otelWriter)
	}

	zerolog.TimeFieldFormat = timeFormat

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()

	return &ComponentLogger{logger: zlog}, nil
}

func (l *ComponentLogger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *ComponentLogger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *ComponentLogger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *ComponentLogger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *ComponentLogger) Error() *zerolog.Event { return l.logger.Error() }
func (l *ComponentLogger) Fatal() *zerolog.Event { return l.logger.Fatal() }
func (l *ComponentLogger) Panic() *zerolog.Event { return l.logger.Panic() }
func (l *ComponentLogger) With() zerolog.Context { return l.logger.With() }

func (l *ComponentLogger) WithComponent(component string) zerolog.Logger {
	return l.logger.With().Str("component", component).Logger()
}

func (l *ComponentLogger) WithFields(fields map[string]interface{}) zerolog.Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}

	return ctx.Logger()
}

func (l *ComponentLogger) SetLevel(level zerolog.Level) {
	l.logger = l.logger.Level(level)
}

func (l *ComponentLogger) SetDebug(debug bool) {
	if debug {
		l.SetLevel(zerolog.DebugLevel)
	} else {
		l.SetLevel(zerolog.InfoLevel)
	}
}
