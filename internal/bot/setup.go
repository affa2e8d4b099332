package bot

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cuongbtq/skitcast/shared/logger"
)

// Requester issues raw Bot API calls. *tgbotapi.BotAPI satisfies it.
type Requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Commands returns the command menu published with setMyCommands
func Commands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: CommandStart, Description: "Check that the bot is running"},
		{Command: CommandChatID, Description: "Show the id of this chat"},
		{Command: CommandMakeVideo, Description: "Generate and publish a video now"},
	}
}

// RegisterCommands publishes the command menu
func RegisterCommands(api Requester) error {
	if _, err := api.Request(tgbotapi.NewSetMyCommands(Commands()...)); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// RegisterWebhook replaces any existing webhook with webhookURL
func RegisterWebhook(api Requester, webhookURL string, log *slog.Logger) error {
	if log == nil {
		log = logger.Discard()
	}
	if err := DeleteWebhook(api); err != nil {
		// stale webhooks are overwritten by setWebhook anyway
		log.Warn("failed to delete existing webhook", slog.Any("error", err))
	}

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}

	if _, err := api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook so getUpdates can be used
func DeleteWebhook(api Requester) error {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}
