package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsAllHooks(t *testing.T) {
	s := NewShutdown(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var ran int32
	for i := 0; i < 3; i++ {
		s.Register("hook", func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		})
	}

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

func TestExecuteCollectsFailures(t *testing.T) {
	s := NewShutdown(slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.Register("ok", func(ctx context.Context) error { return nil })
	s.Register("broken", func(ctx context.Context) error { return errors.New("boom") })

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
}

func TestRegisterIgnoresNil(t *testing.T) {
	s := NewShutdown(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Register("nil", nil)
	require.NoError(t, s.Execute(context.Background()))
}
