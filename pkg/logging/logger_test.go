package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(true, &buf)

	tests := []struct {
		log   func(msg string)
		msg   string
		level string
	}{
		{func(m string) { logger.Debug().Msg(m) }, "debug message", "debug"},
		{func(m string) { logger.Info().Msg(m) }, "info message", "info"},
		{func(m string) { logger.Warn().Msg(m) }, "warn message", "warn"},
		{func(m string) { logger.Error().Msg(m) }, "error message", "error"},
	}

	for _, tt := range tests {
		tt.log(tt.msg)
		output := buf.String()
		buf.Reset()

		if !strings.Contains(output, tt.msg) {
			t.Errorf("Log should contain '%s', got: %s", tt.msg, output)
		}
		if !strings.Contains(output, `"level":"`+tt.level+`"`) {
			t.Errorf("Log should have %s level, got: %s", tt.level, output)
		}
	}
}

func TestDebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(false, &buf)

	logger.Debug().Msg("debug message")
	if strings.Contains(buf.String(), "debug message") {
		t.Errorf("Debug log should not be visible when debug is disabled, got: %s", buf.String())
	}
	buf.Reset()

	logger.Info().Msg("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Info log should be visible when debug is disabled, got: %s", buf.String())
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(false, levelFilter{w: &buf, min: zerolog.WarnLevel})

	logger.Info().Msg("quiet")
	if buf.Len() != 0 {
		t.Errorf("Info log should be filtered, got: %s", buf.String())
	}

	logger.Warn().Msg("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("Warn log should pass the filter, got: %s", buf.String())
	}
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewLogger(true, &buf))

	logger := WithRequest("server", "abc-123")
	logger.Info().Msg("request served")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output as JSON: %v", err)
	}

	if component, ok := logEntry["component"].(string); !ok || component != "server" {
		t.Errorf("Expected component field to be 'server', got: %v", logEntry["component"])
	}
	if id, ok := logEntry["request_id"].(string); !ok || id != "abc-123" {
		t.Errorf("Expected request_id field to be 'abc-123', got: %v", logEntry["request_id"])
	}
}

func TestHelperFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewLogger(true, &buf))

	Debug("debug helper message")
	Info("info helper message")
	Warn("warn helper message")
	Error("error helper message")

	output := buf.String()
	for _, msg := range []string{"debug helper message", "info helper message", "warn helper message", "error helper message"} {
		if !strings.Contains(output, msg) {
			t.Errorf("Expected output to contain '%s', got: %s", msg, output)
		}
	}
}

func TestStructuredHelpers(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewLogger(true, &buf))

	InfoWith("connection closed", map[string]interface{}{
		"status":   404,
		"path":     "/missing.png",
		"duration": 15 * time.Millisecond,
		"error":    errors.New("file not found"),
	})

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output as JSON: %v", err)
	}

	if status, ok := logEntry["status"].(float64); !ok || int(status) != 404 {
		t.Errorf("Expected status field to be 404, got: %v", logEntry["status"])
	}
	if path, ok := logEntry["path"].(string); !ok || path != "/missing.png" {
		t.Errorf("Expected path field to be '/missing.png', got: %v", logEntry["path"])
	}
	if msg, ok := logEntry["error"].(string); !ok || msg != "file not found" {
		t.Errorf("Expected error field to be 'file not found', got: %v", logEntry["error"])
	}
	if _, ok := logEntry["time"]; !ok {
		t.Errorf("Expected a timestamp field, got: %v", logEntry)
	}
}
