package ai

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sipdeck/sipdeck/internal/database"
	"github.com/sipdeck/sipdeck/internal/database/models"
)

const (
	queueSize   = 32
	stepTimeout = 3 * time.Minute
)

// Job is one recording queued for post-call analysis.
type Job struct {
	CallRowID     int64
	RecordingPath string
}

// Pipeline runs post-call analytics in the background: transcribe, then
// sentiment, then summary. Each step's result is persisted as soon as it
// lands, so a failure partway through keeps what was already produced.
type Pipeline struct {
	client *Client
	calls  database.CallRepository
	logger *slog.Logger

	jobs chan Job
	wg   sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPipeline creates an analytics pipeline writing results through calls.
func NewPipeline(client *Client, calls database.CallRepository, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		client: client,
		calls:  calls,
		logger: logger,
		jobs:   make(chan Job, queueSize),
	}
}

// Start launches the worker goroutine. It exits when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-p.jobs:
				p.process(ctx, job)
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Enqueue schedules a recording for analysis. Call control must never block
// on analytics, so a full queue drops the job and marks the record failed.
func (p *Pipeline) Enqueue(ctx context.Context, job Job) {
	select {
	case p.jobs <- job:
		p.logger.Debug("analytics job queued",
			"call_row_id", job.CallRowID, "recording", job.RecordingPath)
	default:
		p.logger.Warn("analytics queue full, dropping job", "call_row_id", job.CallRowID)
		p.markFailed(ctx, job.CallRowID)
	}
}

// Processed returns the number of completed analytics jobs.
func (p *Pipeline) Processed() int64 { return p.processed.Load() }

// Failed returns the number of failed analytics jobs.
func (p *Pipeline) Failed() int64 { return p.failed.Load() }

// QueueDepth returns the number of jobs waiting in the queue.
func (p *Pipeline) QueueDepth() int { return len(p.jobs) }

func (p *Pipeline) process(ctx context.Context, job Job) {
	logger := p.logger.With("call_row_id", job.CallRowID)
	start := time.Now()

	transcript, err := p.step(ctx, func(stepCtx context.Context) (string, error) {
		return p.client.Transcribe(stepCtx, job.RecordingPath)
	})
	if err != nil {
		logger.Error("transcription failed", "error", err)
		p.markFailed(ctx, job.CallRowID)
		return
	}
	if err := p.calls.SetTranscript(ctx, job.CallRowID, transcript); err != nil {
		logger.Error("persisting transcript failed", "error", err)
		p.markFailed(ctx, job.CallRowID)
		return
	}

	sentiment, err := p.step(ctx, func(stepCtx context.Context) (string, error) {
		return p.client.Sentiment(stepCtx, transcript)
	})
	if err != nil {
		logger.Error("sentiment analysis failed", "error", err)
		p.markFailed(ctx, job.CallRowID)
		return
	}
	if err := p.calls.SetSentiment(ctx, job.CallRowID, sentiment); err != nil {
		logger.Error("persisting sentiment failed", "error", err)
		p.markFailed(ctx, job.CallRowID)
		return
	}

	summary, err := p.step(ctx, func(stepCtx context.Context) (string, error) {
		return p.client.Summarize(stepCtx, transcript)
	})
	if err != nil {
		logger.Error("summarization failed", "error", err)
		p.markFailed(ctx, job.CallRowID)
		return
	}
	if err := p.calls.SetSummary(ctx, job.CallRowID, summary); err != nil {
		logger.Error("persisting summary failed", "error", err)
		p.markFailed(ctx, job.CallRowID)
		return
	}

	if err := p.calls.SetAnalyticsState(ctx, job.CallRowID, models.AnalyticsDone); err != nil {
		logger.Error("marking analytics done failed", "error", err)
	}
	p.processed.Add(1)
	logger.Info("call analytics complete",
		"sentiment", sentiment,
		"took", time.Since(start).String(),
	)
}

func (p *Pipeline) step(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	return fn(stepCtx)
}

func (p *Pipeline) markFailed(ctx context.Context, callRowID int64) {
	p.failed.Add(1)
	if err := p.calls.SetAnalyticsState(ctx, callRowID, models.AnalyticsFailed); err != nil {
		p.logger.Error("marking analytics failed", "call_row_id", callRowID, "error", err)
	}
}
