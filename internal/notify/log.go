package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogChannel writes alerts to a zap logger.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel returns a LogChannel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.Named("alert")}
}

// Name implements Channel.
func (*LogChannel) Name() string { return "log" }

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, alert Alert) error {
	c.logger.Info("change detected",
		zap.String("target_id", alert.Target.ID),
		zap.String("target_name", alert.Target.Name),
		zap.String("url", alert.Target.URL),
		zap.String("type", string(alert.Verdict.Type)),
		zap.String("priority", string(alert.Verdict.Priority)),
		zap.Float64("confidence", alert.Verdict.Confidence),
		zap.String("description", alert.Verdict.Description),
		zap.Strings("keywords", alert.Verdict.MatchedKeywords),
	)
	return nil
}
