package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReportFatal_Structured(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var out bytes.Buffer

	reportFatal(&out, zap.New(core), errors.New("failed to load roster: boom"))

	assert.Empty(t, out.String())
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "Fatal error", entry.Message)
	assert.Equal(t, "failed to load roster: boom", entry.ContextMap()["error"])
}

func TestReportFatal_BeforeLogger(t *testing.T) {
	var out bytes.Buffer

	reportFatal(&out, nil, errors.New("failed to load configuration: bad port"))

	assert.Equal(t, "failed to load configuration: bad port\n", out.String())
}
