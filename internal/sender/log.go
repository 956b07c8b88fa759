package sender

import (
	"context"
	"log/slog"

	"github.com/heraldhq/herald/internal/domain"
)

// LogSender stands in for provider-backed channels (email, SMS, push)
// in environments without provider credentials. It logs the payload and
// reports the attempt as handed off, not yet confirmed delivered.
type LogSender struct {
	channel domain.Channel
	logger  *slog.Logger
}

func NewLogSender(channel domain.Channel, logger *slog.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

func (s *LogSender) Name() domain.Channel { return s.channel }

func (s *LogSender) Send(ctx context.Context, _ *domain.ChannelConfig, recipient string, content Content) (Result, error) {
	s.logger.InfoContext(ctx, "notification handed to provider",
		slog.String("channel", string(s.channel)),
		slog.String("recipient", recipient),
		slog.String("title", content.Title),
	)
	return Result{ProviderMessage: "accepted"}, nil
}
