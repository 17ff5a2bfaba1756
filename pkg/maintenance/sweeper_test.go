package maintenance

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/observability"
)

type fakeDeleter struct {
	n      int64
	err    error
	cutoff time.Time
	calls  int32
}

func (f *fakeDeleter) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	f.cutoff = cutoff
	return f.n, f.err
}

type fakeExpirer struct {
	n   int64
	err error
}

func (f *fakeExpirer) ExpireStale(context.Context) (int64, error) {
	return f.n, f.err
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSweeper_RunOnce(t *testing.T) {
	sessions := &fakeDeleter{n: 3}
	tokens := &fakeDeleter{n: 2}
	invitations := &fakeExpirer{n: 1}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	s := NewSweeper(sessions, tokens, invitations, time.Hour, metrics, quietLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Sessions: 3, Tokens: 2, Invitations: 1}, report)
	assert.Equal(t, now.Add(-time.Hour), sessions.cutoff)
	assert.Equal(t, now.Add(-time.Hour), tokens.cutoff)

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.SweptTotal.WithLabelValues("session")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SweptTotal.WithLabelValues("token")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SweptTotal.WithLabelValues("invitation")))
}

func TestSweeper_RunOnceContinuesAfterFailure(t *testing.T) {
	sessions := &fakeDeleter{err: errors.New("connection reset")}
	tokens := &fakeDeleter{n: 4}
	invitations := &fakeExpirer{n: 2}

	s := NewSweeper(sessions, tokens, invitations, 0, nil, quietLogger())
	report, err := s.RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep session")
	assert.Equal(t, Report{Tokens: 4, Invitations: 2}, report)
}

func TestSweeper_StartStop(t *testing.T) {
	sessions := &fakeDeleter{}
	s := NewSweeper(sessions, &fakeDeleter{}, &fakeExpirer{}, 0, nil, quietLogger())

	require.Error(t, s.Start(context.Background(), "not a schedule"))

	require.NoError(t, s.Start(context.Background(), "@every 1s"))
	assert.Error(t, s.Start(context.Background(), "@every 1s"), "second start must fail")

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&sessions.calls) > 0
	}, 3*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
}
