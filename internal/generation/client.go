package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/skitcast/internal/config"
	"github.com/cuongbtq/skitcast/internal/generation/domain"
	"github.com/cuongbtq/skitcast/shared/logger"
)

const (
	maxResponseBytes = 1 << 20
	logBodyLimit     = 1000
)

// Params are the fixed generation parameters sent with every submission.
// Empty values are omitted from the request.
type Params struct {
	Model       string
	Resolution  string
	Duration    string
	AspectRatio string
	Type        string
	Language    string
}

// Options configures the provider client.
type Options struct {
	APIKey            string
	APIKeyHeader      string
	GenerateURL       string
	StatusURL         string // {id} is replaced with the job identifier
	StatusFallbackURL string // optional generic probe, queried with ?job_id=
	BodyEncoding      string // multipart or json
	Params            Params
	SubmitTimeout     time.Duration
	StatusTimeout     time.Duration
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Client submits generation jobs to the provider and resolves them to a video URL.
type Client struct {
	apiKey            string
	apiKeyHeader      string
	generateURL       string
	statusURL         string
	statusFallbackURL string
	bodyEncoding      string
	params            Params
	submitTimeout     time.Duration
	statusTimeout     time.Duration
	httpClient        *http.Client
	logger            *slog.Logger
}

// NewClient constructs a client with defaults for anything left unset.
func NewClient(opts Options) (*Client, error) {
	generateURL := strings.TrimSpace(opts.GenerateURL)
	if generateURL == "" {
		return nil, errors.New("generation: generate url is required")
	}
	statusURL := strings.TrimSpace(opts.StatusURL)
	if !strings.Contains(statusURL, "{id}") {
		return nil, errors.New("generation: status url must contain {id}")
	}

	header := strings.TrimSpace(opts.APIKeyHeader)
	if header == "" {
		header = "x-api-key"
	}
	encoding := opts.BodyEncoding
	if encoding == "" {
		encoding = config.EncodingMultipart
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 60 * time.Second
	}
	statusTimeout := opts.StatusTimeout
	if statusTimeout <= 0 {
		statusTimeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Client{
		apiKey:            strings.TrimSpace(opts.APIKey),
		apiKeyHeader:      header,
		generateURL:       generateURL,
		statusURL:         statusURL,
		statusFallbackURL: strings.TrimSpace(opts.StatusFallbackURL),
		bodyEncoding:      encoding,
		params:            opts.Params,
		submitTimeout:     submitTimeout,
		statusTimeout:     statusTimeout,
		httpClient:        httpClient,
		logger:            log.With(slog.String("component", "generation")),
	}, nil
}

// NewClientFromConfig builds a client from the provider and generation sections.
func NewClientFromConfig(cfg *config.Config, httpClient *http.Client, log *slog.Logger) (*Client, error) {
	return NewClient(Options{
		APIKey:            cfg.Provider.APIKey,
		APIKeyHeader:      cfg.Provider.APIKeyHeader,
		GenerateURL:       cfg.Provider.GenerateURL,
		StatusURL:         cfg.Provider.StatusURL,
		StatusFallbackURL: cfg.Provider.StatusFallbackURL,
		BodyEncoding:      cfg.Provider.BodyEncoding,
		Params: Params{
			Model:       cfg.Generation.Model,
			Resolution:  cfg.Generation.Resolution,
			Duration:    cfg.Generation.Duration,
			AspectRatio: cfg.Generation.AspectRatio,
			Type:        cfg.Generation.Type,
			Language:    cfg.Generation.Language,
		},
		SubmitTimeout: cfg.Provider.SubmitTimeout,
		StatusTimeout: cfg.Provider.StatusTimeout,
		HTTPClient:    httpClient,
		Logger:        log,
	})
}

// Submit sends one generation request and blocks until the provider yields a
// video URL, reports failure, or timeout elapses. A response that already
// carries a URL returns without polling.
func (c *Client) Submit(ctx context.Context, prompt string, timeout, pollInterval time.Duration) (string, error) {
	if timeout <= 0 || pollInterval <= 0 {
		return "", errors.New("generation: timeout and poll interval must be positive")
	}

	start := time.Now()
	doc, err := c.submit(ctx, prompt)
	if err != nil {
		return "", err
	}

	if url := directURL(doc); url != "" {
		c.logger.Info("video ready on submission", slog.String("url", url))
		return url, nil
	}

	id := firstIdentifier(doc, jobIDExprs)
	if id == "" {
		c.logger.Error("no job id or video url in provider response", slog.String("body", truncate(mustJSON(doc), logBodyLimit)))
		return "", domain.NewJobError(domain.ErrProtocol, "", "no job id or video url in submission response", nil)
	}

	job := domain.NewJob(id, prompt, start)
	c.logger.Info("job created, polling", slog.String("job_id", id), slog.Duration("timeout", timeout))

	return c.poll(ctx, job, start.Add(timeout), pollInterval)
}

func (c *Client) submit(ctx context.Context, prompt string) (any, error) {
	body, contentType, err := c.encodeBody(prompt)
	if err != nil {
		return nil, domain.NewJobError(domain.ErrSubmission, "", "encode request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.generateURL, body)
	if err != nil {
		return nil, domain.NewJobError(domain.ErrSubmission, "", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("submission request failed", slog.Any("error", err))
		return nil, domain.NewJobError(domain.ErrSubmission, "", "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewJobError(domain.ErrSubmission, "", "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("submission rejected",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncate(string(raw), logBodyLimit)),
		)
		return nil, domain.NewJobError(domain.ErrSubmission, "", fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)), nil)
	}

	c.logger.Debug("submission response", slog.String("body", truncate(string(raw), logBodyLimit)))

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.Error("submission response is not json", slog.String("body", truncate(string(raw), logBodyLimit)))
		return nil, domain.NewJobError(domain.ErrProtocol, "", "submission response is not json", err)
	}

	return doc, nil
}

func (c *Client) encodeBody(prompt string) (io.Reader, string, error) {
	fields := [][2]string{
		{"prompt", prompt},
		{"model", c.params.Model},
		{"resolution", c.params.Resolution},
		{"duration", c.params.Duration},
		{"aspect_ratio", c.params.AspectRatio},
		{"type", c.params.Type},
		{"language", c.params.Language},
	}

	if c.bodyEncoding == config.EncodingJSON {
		payload := make(map[string]string, len(fields))
		for _, f := range fields {
			if f[1] != "" {
				payload[f[0]] = f[1]
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
