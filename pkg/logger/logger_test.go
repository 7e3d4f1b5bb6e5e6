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
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

var errTest = errors.New("test error")

func TestInit(t *testing.T) {
	config := Config{
		Level:  "debug",
		Debug:  true,
		Output: "stdout",
	}

	if err := Init(config); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	if GetLogger().GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %v", GetLogger().GetLevel())
	}
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)

	if GetLogger().GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level after SetDebug(true), got %v", GetLogger().GetLevel())
	}

	SetDebug(false)

	if GetLogger().GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level after SetDebug(false), got %v", GetLogger().GetLevel())
	}
}

func TestWithComponent(t *testing.T) {
	componentLogger := WithComponent("homebase-link")

	if componentLogger.GetLevel() == zerolog.Disabled {
		t.Error("component logger should not be disabled")
	}
}

func TestFieldLogger(t *testing.T) {
	base := GetLogger()
	fl := NewFieldLogger(&base)

	if fl == nil {
		t.Fatal("NewFieldLogger returned nil")
	}

	enriched := fl.WithField("address", "10.0.0.5:2565")
	if enriched == nil {
		t.Error("WithField should return a non-nil FieldLogger")
	}

	withErr := fl.WithError(errTest)
	if withErr == nil {
		t.Error("WithError should return a non-nil FieldLogger")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Level == "" {
		t.Error("default config should have a level set")
	}

	if config.Output == "" {
		t.Error("default config should have an output set")
	}
}

func TestNewTestLogger(t *testing.T) {
	l := NewTestLogger()
	if l == nil {
		t.Fatal("NewTestLogger returned nil")
	}

	// must not panic even though output is discarded
	l.Info().Str("key", "value").Msg("noop")
}
