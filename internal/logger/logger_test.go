package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"backoffice/internal/logger"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := logger.Setup("shouting", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWithComponentTagsEvents(t *testing.T) {
	if err := logger.Setup("info", "json"); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	l := logger.WithComponent("reconciler")
	l.Info().Msg("payment completed")

	out := buf.String()
	if !strings.Contains(out, `"component":"reconciler"`) {
		t.Errorf("missing component field: %s", out)
	}
	if !strings.Contains(out, "payment completed") {
		t.Errorf("missing message: %s", out)
	}
}
