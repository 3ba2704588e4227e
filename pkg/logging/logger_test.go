package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerWithService(t *testing.T) {
	l := NewLoggerWithService("bosun")
	entry := l.WithField("k", "v")
	if entry == nil {
		t.Fatalf("expected non-nil entry")
	}
}

func TestNewLoggerHonorsLevelAndFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	l := NewLogger()
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected text formatter, got %T", l.Formatter)
	}
}
