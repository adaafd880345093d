package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mousou2003/MouSouTrade-sub000/internal/store"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

type countingJob struct {
	mu    sync.Mutex
	runs  []time.Time
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context, now time.Time) error {
	if j.block != nil {
		<-j.block
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, now)
	return j.err
}

func (j *countingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.runs)
}

func newRecorder(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunNowRecordsLastRun(t *testing.T) {
	recorder := newRecorder(t)
	s := New(Options{TradingDaysOnly: true, Recorder: recorder}, zerolog.Nop())
	monday := time.Date(2025, 2, 3, 9, 45, 0, 0, utils.NewYork)
	s.now = func() time.Time { return monday }

	job := &countingJob{}
	require.NoError(t, s.RunNow(context.Background(), job))
	assert.Equal(t, 1, job.count())
	assert.True(t, s.LastRun("counting").Equal(monday))
}

func TestRunNowSkipsNonTradingDays(t *testing.T) {
	recorder := newRecorder(t)
	s := New(Options{TradingDaysOnly: true, Recorder: recorder}, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2025, 2, 1, 9, 45, 0, 0, utils.NewYork) }

	job := &countingJob{}
	require.NoError(t, s.RunNow(context.Background(), job))
	assert.Equal(t, 0, job.count())
	assert.True(t, s.LastRun("counting").IsZero())

	s.opts.TradingDaysOnly = false
	require.NoError(t, s.RunNow(context.Background(), job))
	assert.Equal(t, 1, job.count())
}

type failureNotifier struct {
	where []string
}

func (n *failureNotifier) NotifyError(_ context.Context, err error, where string) error {
	n.where = append(n.where, where+": "+err.Error())
	return nil
}

func TestFailedRunIsNotRecorded(t *testing.T) {
	recorder := newRecorder(t)
	notifier := &failureNotifier{}
	s := New(Options{Recorder: recorder, Notifier: notifier}, zerolog.Nop())

	job := &countingJob{err: errors.New("source down")}
	assert.EqualError(t, s.RunNow(context.Background(), job), "source down")
	assert.True(t, s.LastRun("counting").IsZero())
	assert.Equal(t, []string{"counting: source down"}, notifier.where)
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := New(Options{}, zerolog.Nop())
	job := &countingJob{block: make(chan struct{})}

	done := make(chan error)
	go func() { done <- s.RunNow(context.Background(), job) }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running["counting"]
	}, time.Second, time.Millisecond)

	require.NoError(t, s.RunNow(context.Background(), job))
	close(job.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, job.count())
}

func TestAddJobValidatesSchedule(t *testing.T) {
	s := New(Options{}, zerolog.Nop())
	assert.NoError(t, s.AddJob("0 45 9 * * MON-FRI", &countingJob{}))
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))

	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err())
}

func TestJobNames(t *testing.T) {
	assert.Equal(t, ScanJobName, (&ScanJob{}).Name())
	assert.Equal(t, AgentJobName, (&AgentJob{}).Name())
}
