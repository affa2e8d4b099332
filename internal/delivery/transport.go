package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cuongbtq/skitcast/internal/config"
	"github.com/cuongbtq/skitcast/shared/logger"
)

// Sender is the part of the bot session used for the primary send.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Result reports how a delivery went. ViaFallback is set whenever the upload
// fallback was attempted, whether or not it succeeded.
type Result struct {
	Succeeded   bool
	ViaFallback bool
}

// Options configures the transport.
type Options struct {
	Sender          Sender
	Token           string
	APIBaseURL      string
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
	TempDir         string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Transport publishes a finished video to a chat. It sends the URL through the
// bot session first and falls back to download plus multipart upload once.
type Transport struct {
	sender          Sender
	token           string
	apiBaseURL      string
	downloadTimeout time.Duration
	uploadTimeout   time.Duration
	tempDir         string
	httpClient      *http.Client
	logger          *slog.Logger
}

// NewTransport creates a new delivery transport
func NewTransport(opts Options) (*Transport, error) {
	if opts.Sender == nil {
		return nil, errors.New("delivery: sender is required")
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("delivery: bot token is required")
	}

	baseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	downloadTimeout := opts.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = 120 * time.Second
	}
	uploadTimeout := opts.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 180 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Transport{
		sender:          opts.Sender,
		token:           opts.Token,
		apiBaseURL:      baseURL,
		downloadTimeout: downloadTimeout,
		uploadTimeout:   uploadTimeout,
		tempDir:         opts.TempDir,
		httpClient:      httpClient,
		logger:          log.With(slog.String("component", "delivery")),
	}, nil
}

// NewTransportFromConfig builds a transport from the telegram and delivery sections.
func NewTransportFromConfig(cfg *config.Config, sender Sender, httpClient *http.Client, log *slog.Logger) (*Transport, error) {
	return NewTransport(Options{
		Sender:          sender,
		Token:           cfg.Telegram.BotToken,
		APIBaseURL:      cfg.Telegram.APIBaseURL,
		DownloadTimeout: cfg.Delivery.DownloadTimeout,
		UploadTimeout:   cfg.Delivery.UploadTimeout,
		TempDir:         cfg.Delivery.TempDir,
		HTTPClient:      httpClient,
		Logger:          log,
	})
}

// Deliver publishes mediaURL to destination with caption. Failures are logged
// and reported in the result, never returned.
func (t *Transport) Deliver(ctx context.Context, destination, mediaURL, caption string) Result {
	log := t.logger.With(slog.String("destination", destination), slog.String("url", mediaURL))

	err := t.sendByURL(destination, mediaURL, caption)
	if err == nil {
		log.Info("video sent by url")
		return Result{Succeeded: true}
	}

	log.Warn("send by url failed, falling back to upload", slog.Any("error", err))

	if err := t.upload(ctx, destination, mediaURL, caption); err != nil {
		log.Error("fallback upload failed", slog.Any("error", err))
		return Result{ViaFallback: true}
	}

	log.Info("video sent by fallback upload")
	return Result{Succeeded: true, ViaFallback: true}
}

func (t *Transport) sendByURL(destination, mediaURL, caption string) error {
	target, err := ParseChatTarget(destination)
	if err != nil {
		return err
	}

	video := tgbotapi.NewVideo(target.ChatID, tgbotapi.FileURL(mediaURL))
	video.ChannelUsername = target.Username
	video.Caption = caption

	if _, err := t.sender.Send(video); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// ChatTarget is a parsed destination: a numeric chat id or a public @username.
type ChatTarget struct {
	ChatID   int64
	Username string
}

// ParseChatTarget accepts "-100123..." style ids and "@channel" usernames.
func ParseChatTarget(destination string) (ChatTarget, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ChatTarget{}, errors.New("empty chat destination")
	}

	if strings.HasPrefix(destination, "@") {
		if len(destination) == 1 {
			return ChatTarget{}, fmt.Errorf("invalid chat username: %q", destination)
		}
		return ChatTarget{Username: destination}, nil
	}

	id, err := strconv.ParseInt(destination, 10, 64)
	if err != nil {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q: %w", destination, err)
	}
	return ChatTarget{ChatID: id}, nil
}
