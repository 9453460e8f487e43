package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/pipeline"
)

type countingRunner struct {
	runs chan struct{}
}

func (r *countingRunner) Run(_ context.Context) (pipeline.BatchResult, error) {
	r.runs <- struct{}{}
	return pipeline.BatchResult{SessionID: "ab12cd34"}, nil
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	s := New(nil, config.SchedulerConfig{Enabled: true, Hour: 2, Minute: 30}, zap.NewNop())

	before := time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC), s.nextRun(before))

	after := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC), s.nextRun(after))

	exactly := time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC), s.nextRun(exactly), "the scheduled instant itself rolls to the next day")
}

func TestStart_Disabled(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{runs: make(chan struct{}, 1)}
	s := New(runner, config.SchedulerConfig{Enabled: false}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler must return immediately")
	}
}

func TestStart_TriggersAtScheduledTime(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{runs: make(chan struct{}, 4)}
	s := New(runner, config.SchedulerConfig{Enabled: true, Hour: 2, Minute: 30}, zap.NewNop())

	// Pin "now" just before the scheduled time so the wait is tiny.
	base := time.Date(2025, 6, 1, 2, 29, 59, int(999 * time.Millisecond), time.UTC)
	s.now = func() time.Time { return base }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	select {
	case <-runner.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled run did not fire")
	}
	cancel()
}
