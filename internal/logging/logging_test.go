// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelForTrace(t *testing.T) {
	tests := []struct {
		trace int
		want  string
	}{
		{0, "info"},
		{-1, "info"},
		{1, "debug"},
		{2, "trace"},
		{9, "trace"},
	}
	for _, tt := range tests {
		if got := LevelForTrace(tt.trace); got != tt.want {
			t.Errorf("LevelForTrace(%d) = %q, want %q", tt.trace, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("bogus"); got != zerolog.InfoLevel {
		t.Errorf("ParseLevel(bogus) = %v, want info", got)
	}
	if got := ParseLevel("trace"); got != zerolog.TraceLevel {
		t.Errorf("ParseLevel(trace) = %v, want trace", got)
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Output: &buf})

	logger.Trace().Msg("trace message")
	logger.Debug().Msg("debug message")

	out := buf.String()
	if strings.Contains(out, "trace message") {
		t.Error("trace message logged at debug level")
	}
	if !strings.Contains(out, "debug message") {
		t.Error("debug message not logged at debug level")
	}
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "info", Output: &buf}, "server")
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"server"`) {
		t.Errorf("missing component field in %q", buf.String())
	}
}
