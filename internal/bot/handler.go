package bot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cuongbtq/skitcast/internal/config"
	"github.com/cuongbtq/skitcast/internal/delivery"
	"github.com/cuongbtq/skitcast/internal/pipeline"
	"github.com/cuongbtq/skitcast/shared/logger"
)

// Chat commands
const (
	CommandStart     = "start"
	CommandChatID    = "chatid"
	CommandMakeVideo = "makevideo"
)

const chatIDPlaceholder = "{chat_id}"

// JobRunner runs one publishing job
type JobRunner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Outcome, error)
}

// Dependencies holds all dependencies needed by the handlers
type Dependencies struct {
	Logger   *slog.Logger
	Sender   delivery.Sender
	Runner   JobRunner
	Messages config.MessagesConfig
	Token    string
	Service  string
	Version  string
}

// Handler answers chat commands
type Handler struct {
	logger   *slog.Logger
	sender   delivery.Sender
	runner   JobRunner
	messages config.MessagesConfig
	token    string
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		logger:   log.With(slog.String("component", "bot")),
		sender:   deps.Sender,
		runner:   deps.Runner,
		messages: deps.Messages,
		token:    deps.Token,
	}
}

// HandleUpdate dispatches one inbound update. Anything but a known command is
// ignored. /makevideo blocks until the job finishes.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}

	log := h.logger.With(
		slog.Int("update_id", update.UpdateID),
		slog.String("command", msg.Command()),
		slog.Int64("chat_id", msg.Chat.ID),
	)

	switch msg.Command() {
	case CommandStart:
		h.reply(log, msg, h.messages.Start)
	case CommandChatID:
		h.reply(log, msg, strings.ReplaceAll(h.messages.ChatID, chatIDPlaceholder, strconv.FormatInt(msg.Chat.ID, 10)))
	case CommandMakeVideo:
		h.makeVideo(ctx, log, msg)
	default:
		log.Debug("ignoring unknown command")
	}
}

func (h *Handler) makeVideo(ctx context.Context, log *slog.Logger, msg *tgbotapi.Message) {
	h.reply(log, msg, h.messages.MakeVideoAccepted)

	out, err := h.runner.Run(ctx, pipeline.Manual(msg.Chat.ID))
	if err != nil {
		attrs := []any{slog.Any("error", err)}
		if out != nil {
			attrs = append(attrs, slog.String("run_id", out.RunID))
		}
		log.Warn("manual generation failed", attrs...)
		h.reply(log, msg, h.messages.MakeVideoFailed)
		return
	}

	log.Info("manual generation delivered", slog.String("run_id", out.RunID))
	h.reply(log, msg, h.messages.MakeVideoDone)
}

func (h *Handler) reply(log *slog.Logger, to *tgbotapi.Message, text string) {
	if text == "" {
		return
	}
	reply := tgbotapi.NewMessage(to.Chat.ID, text)
	reply.ReplyToMessageID = to.MessageID
	if _, err := h.sender.Send(reply); err != nil {
		log.Error("failed to send reply", slog.Any("error", err))
	}
}
