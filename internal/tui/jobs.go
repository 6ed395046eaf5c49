package tui

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

type jobKind string

type jobStatus string

const (
	jobKindSimplify  jobKind = "simplify"
	jobKindFollowup  jobKind = "followup"
	jobKindLookup    jobKind = "lookup"
	jobKindSave      jobKind = "save"
	jobKindLocations jobKind = "locations"
	jobKindProgress  jobKind = "progress"
)

const (
	jobStatusRunning   jobStatus = "running"
	jobStatusSucceeded jobStatus = "succeeded"
	jobStatusFailed    jobStatus = "failed"
	jobStatusCancelled jobStatus = "cancelled"
)

// jobTimeouts bounds the local storage jobs. Simplify and follow-up requests
// carry the requester's own timeout.
var jobTimeouts = map[jobKind]time.Duration{
	jobKindLookup:    5 * time.Second,
	jobKindSave:      5 * time.Second,
	jobKindProgress:  5 * time.Second,
	jobKindLocations: 30 * time.Second,
}

type jobSnapshot struct {
	ID          string
	Kind        jobKind
	Status      jobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
	Duration    time.Duration
}

type jobSignalMsg struct {
	Snapshot jobSnapshot
}

type jobResultEnvelope struct {
	Snapshot jobSnapshot
	Payload  tea.Msg
}

type jobRunner func(context.Context) (tea.Msg, error)

// jobBus runs background work for the model. Every job derives its context
// from the bus, so Stop cancels whatever is still in flight.
type jobBus struct {
	counter int64
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func newJobBus(logger *zap.Logger) *jobBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &jobBus{log: logger.Named("jobs"), ctx: ctx, cancel: cancel}
}

func (b *jobBus) nextID(kind jobKind) string {
	idx := atomic.AddInt64(&b.counter, 1)
	return fmt.Sprintf("%s-%d", kind, idx)
}

// Start announces the job, then runs it off the update loop.
func (b *jobBus) Start(kind jobKind, runner jobRunner) tea.Cmd {
	id := b.nextID(kind)
	started := time.Now()
	signal := func() tea.Msg {
		return jobSignalMsg{Snapshot: jobSnapshot{ID: id, Kind: kind, Status: jobStatusRunning, StartedAt: started}}
	}
	run := func() tea.Msg {
		return b.run(id, kind, started, runner)
	}
	return tea.Sequence(signal, run)
}

// Stop cancels every running job. Later jobs start already cancelled.
func (b *jobBus) Stop() {
	b.cancel()
}

func (b *jobBus) run(id string, kind jobKind, started time.Time, runner jobRunner) jobResultEnvelope {
	ctx := b.ctx
	if d, ok := jobTimeouts[kind]; ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	payload, err := runner(ctx)

	snapshot := jobSnapshot{
		ID:          id,
		Kind:        kind,
		Status:      jobStatusSucceeded,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	snapshot.Duration = snapshot.CompletedAt.Sub(started)
	fields := []zap.Field{
		zap.String("id", id),
		zap.String("kind", string(kind)),
		zap.Duration("duration", snapshot.Duration),
	}
	switch {
	case err == nil:
		b.log.Debug("job finished", fields...)
	case errors.Is(err, context.Canceled):
		snapshot.Status = jobStatusCancelled
		snapshot.Err = err.Error()
		b.log.Debug("job cancelled", fields...)
	default:
		snapshot.Status = jobStatusFailed
		snapshot.Err = err.Error()
		b.log.Warn("job failed", append(fields, zap.Error(err))...)
	}
	return jobResultEnvelope{Snapshot: snapshot, Payload: payload}
}
