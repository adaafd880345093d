package scheduler

import (
	"context"
	"time"

	"github.com/mousou2003/MouSouTrade-sub000/internal/agents"
	"github.com/mousou2003/MouSouTrade-sub000/internal/trading"
)

// Job names, also used as keys for recorded runs.
const (
	ScanJobName  = "scan"
	AgentJobName = "agent"
)

// ScanJob runs the scan pipeline over the watchlist.
type ScanJob struct {
	Pipeline *trading.ScanPipeline
}

// Name implements Job.
func (j *ScanJob) Name() string { return ScanJobName }

// Run implements Job.
func (j *ScanJob) Run(ctx context.Context, now time.Time) error {
	_, err := j.Pipeline.Run(ctx, now)
	return err
}

// AgentJob runs one agent cycle.
type AgentJob struct {
	Cycle *agents.Cycle
}

// Name implements Job.
func (j *AgentJob) Name() string { return AgentJobName }

// Run implements Job.
func (j *AgentJob) Run(ctx context.Context, now time.Time) error {
	_, err := j.Cycle.Run(ctx, now)
	return err
}
