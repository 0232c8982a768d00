// Package history persists finished calls and hands recorded ones to the
// analytics pipeline.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/sipdeck/sipdeck/internal/ai"
	"github.com/sipdeck/sipdeck/internal/call"
	"github.com/sipdeck/sipdeck/internal/database"
	"github.com/sipdeck/sipdeck/internal/database/models"
)

// persistTimeout bounds the write of one history record.
const persistTimeout = 5 * time.Second

// Enqueuer schedules a recording for post-call analytics.
type Enqueuer interface {
	Enqueue(ctx context.Context, job ai.Job)
}

// Recorder consumes terminated call sessions. It writes the history record
// and, when a recording exists and analytics is available, queues the
// analytics job. Persistence failures are logged, never surfaced: the call
// is already over and there is no one to return an error to.
type Recorder struct {
	calls     database.CallRepository
	analytics Enqueuer
	logger    *slog.Logger
}

// NewRecorder creates a history recorder. analytics may be nil when the
// analytics service is not configured.
func NewRecorder(calls database.CallRepository, analytics Enqueuer, logger *slog.Logger) *Recorder {
	return &Recorder{
		calls:     calls,
		analytics: analytics,
		logger:    logger.With("subsystem", "history"),
	}
}

// HandleTerminated records one finished session. Wired as the controller's
// termination callback.
func (r *Recorder) HandleTerminated(sess *call.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	record := buildRecord(sess)
	if r.analytics != nil && record.RecordingFile != "" {
		record.AnalyticsState = models.AnalyticsPending
	}

	if err := r.calls.Create(ctx, record); err != nil {
		r.logger.Error("persisting call history failed",
			"call_id", sess.Handle, "error", err)
		return
	}

	r.logger.Info("call recorded in history",
		"call_id", record.CallID,
		"direction", record.Direction,
		"disposition", record.Disposition,
		"duration_secs", record.Duration,
	)

	if record.AnalyticsState == models.AnalyticsPending {
		r.analytics.Enqueue(ctx, ai.Job{
			CallRowID:     record.ID,
			RecordingPath: record.RecordingFile,
		})
	}
}

// buildRecord maps a terminated session onto a history row.
func buildRecord(sess *call.Session) *models.Call {
	record := &models.Call{
		CallID:         sess.Handle,
		Direction:      directionLabel(sess.Direction),
		RemoteURI:      sess.RemoteURI,
		StartTime:      sess.InitiatedAt,
		Disposition:    disposition(sess),
		RecordingFile:  sess.RecordingPath,
		AnalyticsState: models.AnalyticsSkipped,
	}
	if record.StartTime.IsZero() {
		record.StartTime = sess.EndTime
	}
	if !sess.StartTime.IsZero() {
		answer := sess.StartTime
		record.AnswerTime = &answer
		record.Duration = int(sess.Duration(sess.EndTime) / time.Second)
	}
	if !sess.EndTime.IsZero() {
		end := sess.EndTime
		record.EndTime = &end
	}
	return record
}

func directionLabel(d call.Direction) string {
	if d == call.DirectionIncoming {
		return "inbound"
	}
	return "outbound"
}

// disposition labels how the call ended. Answered calls are "answered"
// regardless of who hung up; unanswered calls carry the hangup cause, with
// an unanswered inbound leg recorded as missed.
func disposition(sess *call.Session) string {
	if !sess.StartTime.IsZero() {
		return "answered"
	}
	switch sess.HangupCause {
	case "busy", "declined", "no answer", "unavailable":
		return sess.HangupCause
	case "cancelled", "remote hangup":
		// Inbound leg abandoned by the caller before we answered.
		if sess.Direction == call.DirectionIncoming {
			return "missed"
		}
		return "cancelled"
	case "local hangup":
		// Unanswered and torn down locally: we declined an inbound ring
		// or abandoned our own outbound attempt.
		if sess.Direction == call.DirectionIncoming {
			return "declined"
		}
		return "cancelled"
	default:
		if sess.Direction == call.DirectionIncoming {
			return "missed"
		}
		return "failed"
	}
}
