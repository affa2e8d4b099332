package bot

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cuongbtq/skitcast/shared/logger"
)

// UpdateSource is the long-polling half of the bot session.
// *tgbotapi.BotAPI satisfies it.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Poller receives updates with getUpdates instead of a webhook
type Poller struct {
	source  UpdateSource
	handler *Handler
	timeout int
	logger  *slog.Logger
}

// NewPoller creates a poller. timeout is the long-poll timeout in seconds.
func NewPoller(source UpdateSource, handler *Handler, timeout int, log *slog.Logger) *Poller {
	if log == nil {
		log = logger.Discard()
	}
	return &Poller{
		source:  source,
		handler: handler,
		timeout: timeout,
		logger:  log.With(slog.String("component", "poller")),
	}
}

// Run handles updates one at a time until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout

	updates := p.source.GetUpdatesChan(cfg)
	defer p.source.StopReceivingUpdates()

	p.logger.Info("Polling for updates", slog.Int("timeout_seconds", p.timeout))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller context canceled, stopping...")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handler.HandleUpdate(ctx, update)
		}
	}
}
