package events

import (
	"context"
	"log/slog"
)

// FallbackPublisher drops events. Used when no broker is configured or the
// broker is unreachable at startup.
type FallbackPublisher struct {
	log *slog.Logger
}

func (p *FallbackPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	p.log.Debug("skipped publish, no broker", slog.String("key", key), slog.String("id", msg.Meta.ID))
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}

func NewFallback(logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackPublisher{
		log: logger,
	}
}

// Connect returns a RabbitMQ publisher, or the fallback when url is empty or
// the broker cannot be reached.
func Connect(url, exchange string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return NewFallback(logger)
	}
	pub, err := New(url, exchange, logger)
	if err != nil {
		logger.Warn("rabbit unavailable, dispatch events disabled", slog.Any("error", err))
		return NewFallback(logger)
	}
	logger.Info("rabbit connected", slog.String("exchange", exchange))
	return pub
}
