package core

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Info("batch settled", F("strategy", StrategyBoundedPool), F("succeeded", 3))
	logger.Warn("task rejected")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Message != "batch settled" || entries[0].Level != zapcore.InfoLevel {
		t.Errorf("first entry = %+v", entries[0])
	}
	fields := entries[0].ContextMap()
	if fields["succeeded"] != int64(3) {
		t.Errorf("succeeded field = %#v", fields["succeeded"])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("second level = %s", entries[1].Level)
	}
}

func TestZapLogger_NilIsNop(t *testing.T) {
	logger := NewZapLogger(nil)
	logger.Error("ignored")
	if logger.Zap() == nil {
		t.Error("Zap() should never be nil")
	}
}
