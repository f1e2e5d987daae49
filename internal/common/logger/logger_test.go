package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestZapAdapter_FieldsAndErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"taskType": "update-timeline-step"})

	log.Info("step written", map[string]interface{}{"stepKey": "att_received"})
	log.WithError(errors.New("boom")).Error("write failed", map[string]interface{}{"cause": errors.New("db down")})

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "update-timeline-step", entries[0].ContextMap()["taskType"])
	assert.Equal(t, "att_received", entries[0].ContextMap()["stepKey"])
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "db down", entries[1].ContextMap()["cause"])
}

func TestNoOpLogger_DoesNotPanic(t *testing.T) {
	log := NewNoOpLogger().With(map[string]interface{}{"a": 1})
	assert.NotPanics(t, func() {
		log.Debug("x", nil)
		log.Warn("y", map[string]interface{}{})
	})
}
