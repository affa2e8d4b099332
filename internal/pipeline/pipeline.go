package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/skitcast/internal/config"
	"github.com/cuongbtq/skitcast/internal/delivery"
	"github.com/cuongbtq/skitcast/internal/generation/domain"
	"github.com/cuongbtq/skitcast/internal/prompt"
	"github.com/cuongbtq/skitcast/shared/logger"
)

// Trigger kinds
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// Trigger describes what started a run
type Trigger struct {
	Kind   string
	ChatID int64 // requesting chat for manual runs
}

// Scheduled returns the trigger used by the background loop
func Scheduled() Trigger {
	return Trigger{Kind: TriggerScheduled}
}

// Manual returns the trigger for a command issued from chatID
func Manual(chatID int64) Trigger {
	return Trigger{Kind: TriggerManual, ChatID: chatID}
}

// Generator resolves a prompt to a video URL
type Generator interface {
	Submit(ctx context.Context, prompt string, timeout, pollInterval time.Duration) (string, error)
}

// Deliverer publishes a video URL to a chat
type Deliverer interface {
	Deliver(ctx context.Context, destination, mediaURL, caption string) delivery.Result
}

// Outcome is the record of one run. It is returned even when the run fails.
type Outcome struct {
	RunID    string
	Trigger  Trigger
	Prompt   string
	VideoURL string
	Caption  string
	Delivery delivery.Result
	Duration time.Duration
}

// Options configures a pipeline
type Options struct {
	Prompts             prompt.Source
	Generator           Generator
	Deliverer           Deliverer
	Channel             string
	JobTimeout          time.Duration
	PollInterval        time.Duration
	CaptionPrefix       string
	CaptionTimeFormat   string
	ManualCaptionPrefix string
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Pipeline runs one job end to end: prompt, generation, delivery. It is the
// job boundary; every failure is logged here and returned as a value.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New creates a pipeline
func New(opts Options) (*Pipeline, error) {
	if opts.Prompts == nil || opts.Generator == nil || opts.Deliverer == nil {
		return nil, errors.New("pipeline: prompt source, generator and deliverer are required")
	}
	if opts.Channel == "" {
		return nil, errors.New("pipeline: channel is required")
	}
	if opts.JobTimeout <= 0 || opts.PollInterval <= 0 {
		return nil, errors.New("pipeline: job timeout and poll interval must be positive")
	}
	if opts.CaptionTimeFormat == "" {
		opts.CaptionTimeFormat = time.DateTime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Pipeline{opts: opts, logger: log.With(slog.String("component", "pipeline"))}, nil
}

// NewFromConfig wires a pipeline from the generation, scheduler and messages sections.
func NewFromConfig(cfg *config.Config, prompts prompt.Source, gen Generator, del Deliverer, log *slog.Logger) (*Pipeline, error) {
	return New(Options{
		Prompts:             prompts,
		Generator:           gen,
		Deliverer:           del,
		Channel:             cfg.Telegram.ChannelID,
		JobTimeout:          cfg.Generation.JobTimeout,
		PollInterval:        cfg.Generation.PollInterval,
		CaptionPrefix:       cfg.Scheduler.CaptionPrefix,
		CaptionTimeFormat:   cfg.Scheduler.CaptionTimeFormat,
		ManualCaptionPrefix: cfg.Messages.ManualCaptionPrefix,
		Logger:              log,
	})
}

// Run executes one job. The error is nil only when the video was delivered.
func (p *Pipeline) Run(ctx context.Context, trigger Trigger) (*Outcome, error) {
	start := p.opts.Now()
	out := &Outcome{
		RunID:   uuid.NewString(),
		Trigger: trigger,
		Prompt:  p.opts.Prompts.Next(start),
	}

	log := p.logger.With(
		slog.String("run_id", out.RunID),
		slog.String("trigger", trigger.Kind),
	)
	if trigger.ChatID != 0 {
		log = log.With(slog.Int64("chat_id", trigger.ChatID))
	}

	log.Info("run started", slog.String("prompt", out.Prompt))

	videoURL, err := p.opts.Generator.Submit(ctx, out.Prompt, p.opts.JobTimeout, p.opts.PollInterval)
	if err != nil {
		out.Duration = p.opts.Now().Sub(start)
		log.Error("generation failed",
			slog.Any("error", err),
			slog.String("job_id", domain.JobIDOf(err)),
			slog.Duration("duration", out.Duration),
		)
		return out, err
	}
	out.VideoURL = videoURL

	out.Caption = p.caption(trigger, out.Prompt, start)
	out.Delivery = p.opts.Deliverer.Deliver(ctx, p.opts.Channel, videoURL, out.Caption)
	out.Duration = p.opts.Now().Sub(start)

	if !out.Delivery.Succeeded {
		log.Error("delivery failed",
			slog.String("url", videoURL),
			slog.Bool("via_fallback", out.Delivery.ViaFallback),
		)
		return out, domain.NewJobError(domain.ErrDelivery, "", videoURL, nil)
	}

	log.Info("run completed",
		slog.String("url", videoURL),
		slog.Bool("via_fallback", out.Delivery.ViaFallback),
		slog.Duration("duration", out.Duration),
	)
	return out, nil
}

func (p *Pipeline) caption(trigger Trigger, prompt string, at time.Time) string {
	if trigger.Kind == TriggerManual {
		return p.opts.ManualCaptionPrefix + prompt
	}
	return p.opts.CaptionPrefix + at.Format(p.opts.CaptionTimeFormat)
}
