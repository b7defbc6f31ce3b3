// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigure_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "stitcher-test", Version: "v0.0.0-test"})

	WithComponent("planner").Info().Str("event", "plan.start").Msg("planning")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "stitcher-test" {
		t.Errorf("service = %v, want stitcher-test", entry["service"])
	}
	if entry["component"] != "planner" {
		t.Errorf("component = %v, want planner", entry["component"])
	}
}

func TestDerive_AppliesFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	Derive(func(c *zerolog.Context) {
		*c = c.Str("phase", "fetch")
	}).Info().Msg("fetching")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["phase"] != "fetch" {
		t.Errorf("phase = %v, want fetch", entry["phase"])
	}
}
