package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/pnl-engine/internal/portfolio"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshMetrics(ctx context.Context) (portfolio.Snapshot, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return portfolio.Snapshot{}, errors.New("refresh without deadline")
	}
	return portfolio.Snapshot{}, r.err
}

func TestStart_InvalidSpec(t *testing.T) {
	s := New(&countingRefresher{}, "every minute please")
	assert.Error(t, s.Start())
}

func TestRunOnce_CallsRefresher(t *testing.T) {
	r := &countingRefresher{}
	s := New(r, "@every 1h")

	s.RunOnce()
	assert.EqualValues(t, 1, r.calls.Load())

	// Errors are logged, not propagated.
	r.err = errors.New("store down")
	s.RunOnce()
	assert.EqualValues(t, 2, r.calls.Load())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	r := &countingRefresher{}
	s := New(r, "@every 1s")
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
