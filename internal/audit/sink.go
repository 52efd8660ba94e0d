package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keyvault/internal/logging"
)

// LogSink writes each event as one structured log record.
type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("component", "audit")}
}

func (s *LogSink) HandleEvent(ctx context.Context, e Event) error {
	args := []any{
		"event_id", e.ID.String(),
		"kind", string(e.Kind),
		"outcome", string(e.Outcome),
		"ts", e.Timestamp.Format(time.RFC3339Nano),
		"detail_version", e.Detail.Version,
	}
	if e.UserID != 0 {
		args = append(args, "user_id", e.UserID)
	}
	if ref := e.SessionRef(); ref != "" {
		args = append(args, "session_ref", ref)
	}
	d := e.Detail
	if d.Reason != "" {
		args = append(args, "reason", d.Reason)
	}
	if d.EntryID != "" {
		args = append(args, "entry_id", d.EntryID)
	}
	if d.Until != nil {
		args = append(args, "until", d.Until.Format(time.RFC3339))
	}
	if d.Attempts != 0 {
		args = append(args, "attempts", d.Attempts)
	}
	if d.Count != 0 {
		args = append(args, "count", d.Count)
	}
	if d.RiskScore != 0 {
		args = append(args, "risk_score", d.RiskScore)
	}

	switch {
	case e.Kind == KindOwnershipViolation || e.Kind == KindDecryptionFailure:
		s.log.Error(ctx, "security event", args...)
	case e.Outcome == OutcomeFailure || e.Outcome == OutcomeDenied || e.Outcome == OutcomeLocked:
		s.log.Warn(ctx, "security event", args...)
	default:
		s.log.Info(ctx, "security event", args...)
	}
	return nil
}
