package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/public-page-audit/internal/progress"
)

// LogSink writes progress events as structured log lines. Run boundaries log
// at info; per-page and per-check events log at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePageFetched:
			fields = append(fields,
				zap.Int("page", evt.Page),
				zap.Int("items", evt.Items),
				zap.Int("fetched", evt.Fetched),
				zap.Int("kept", evt.Kept),
				zap.Int("candidates", evt.Candidates),
			)
			s.logger.Debug("listing progress", fields...)
		case progress.StageCheckDone:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.String("outcome", string(evt.Outcome)),
				zap.Int("status", evt.Status),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("check progress", fields...)
		case progress.StageHarvestError:
			fields = append(fields, zap.Int("fetched", evt.Fetched), zap.String("note", evt.Note))
			s.logger.Warn("harvest progress", fields...)
		default:
			fields = append(fields,
				zap.Int("fetched", evt.Fetched),
				zap.Int("kept", evt.Kept),
				zap.Int("archived", evt.Archived),
				zap.Int("candidates", evt.Candidates),
				zap.Int("skipped", evt.Skipped),
				zap.Int("total", evt.Total),
				zap.Duration("dur", evt.Dur),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Info("run progress", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
