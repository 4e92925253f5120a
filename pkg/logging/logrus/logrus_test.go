package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/vnykmshr/cacheboot/pkg/logging"
)

func TestLogrusAdapterForwardsFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	logger := New(base).With(logging.F("component", "selector"))
	logger.Info("integrated", logging.F("extension", "goredis"))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("Expected an entry")
	}
	if entry.Level != logrus.InfoLevel || entry.Message != "integrated" {
		t.Fatalf("Unexpected entry: %v %q", entry.Level, entry.Message)
	}
	if entry.Data["component"] != "selector" || entry.Data["extension"] != "goredis" {
		t.Fatalf("Expected both fields, got %v", entry.Data)
	}
}
