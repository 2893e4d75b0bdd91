package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/siteintel/analyzer/internal/progress"
)

func TestLogSinkWritesStructuredFields(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	evt := progress.Event{
		JobID:    "job-1",
		TS:       time.Now().UTC(),
		Stage:    progress.StageModuleDone,
		Module:   "seo",
		Provider: "gemini",
		Percent:  50,
	}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))
	require.NoError(t, sink.Close(context.Background()))

	entries := observed.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "job-1", fields["job_id"])
	require.Equal(t, "MODULE_DONE", fields["stage"])
	require.Equal(t, "gemini", fields["provider"])
}

func TestLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), nil))
}
