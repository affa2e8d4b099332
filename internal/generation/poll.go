package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/skitcast/internal/generation/domain"
)

type probeResult int

const (
	probePending probeResult = iota
	probeCompleted
	probeFailed
)

// poll queries the job status until a terminal state or the deadline. Transport
// errors and non-200 responses are treated as transient.
func (c *Client) poll(ctx context.Context, job *domain.Job, deadline time.Time, interval time.Duration) (string, error) {
	for {
		if !time.Now().Before(deadline) {
			break
		}

		job.Polls++
		result, detail := c.probeStatus(ctx, job, deadline)
		if result == probePending && c.statusFallbackURL != "" {
			result = c.probeFallback(ctx, job, deadline)
		}

		switch result {
		case probeCompleted:
			c.logger.Info("video ready",
				slog.String("job_id", job.ID),
				slog.String("url", job.ResultURL),
				slog.Int("polls", job.Polls),
				slog.Duration("elapsed", job.Elapsed(time.Now())),
			)
			return job.ResultURL, nil
		case probeFailed:
			c.logger.Error("generation failed", slog.String("job_id", job.ID), slog.String("reason", detail))
			return "", domain.NewJobError(domain.ErrJobFailed, job.ID, detail, nil)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("polling job %s: %w", job.ID, ctx.Err())
		case <-timer.C:
		}
	}

	c.logger.Error("timed out waiting for job", slog.String("job_id", job.ID), slog.Int("polls", job.Polls))
	return "", domain.NewJobError(domain.ErrTimeout, job.ID, fmt.Sprintf("no terminal status after %d polls", job.Polls), nil)
}

// probeStatus queries the job-specific status endpoint. The detail string
// carries the provider's error message when the job failed.
func (c *Client) probeStatus(ctx context.Context, job *domain.Job, deadline time.Time) (probeResult, string) {
	endpoint := strings.ReplaceAll(c.statusURL, "{id}", url.PathEscape(job.ID))

	doc, ok := c.getJSON(ctx, endpoint, deadline, job.ID)
	if !ok {
		return probePending, ""
	}

	status, known := statusCode(doc)
	if !known {
		return probePending, ""
	}

	switch status {
	case domain.ProviderStatusCompleted:
		if u := resultURL(doc); u != "" {
			job.Complete(u)
			return probeCompleted, ""
		}
		c.logger.Warn("job reported complete without a video url, continuing to poll", slog.String("job_id", job.ID))
	case domain.ProviderStatusFailed:
		job.Fail()
		msg := errorMessage(doc)
		if msg == "" {
			msg = truncate(mustJSON(doc), 300)
		}
		return probeFailed, msg
	}

	return probePending, ""
}

// probeFallback queries the generic status endpoint. Only completion is
// honored here; failures are left to the primary endpoint.
func (c *Client) probeFallback(ctx context.Context, job *domain.Job, deadline time.Time) probeResult {
	endpoint, err := url.Parse(c.statusFallbackURL)
	if err != nil {
		return probePending
	}
	q := endpoint.Query()
	q.Set("job_id", job.ID)
	endpoint.RawQuery = q.Encode()

	doc, ok := c.getJSON(ctx, endpoint.String(), deadline, job.ID)
	if !ok {
		return probePending
	}

	status, _ := statusCode(doc)
	if status != domain.ProviderStatusCompleted && !strings.EqualFold(statusDescription(doc), "completed") {
		return probePending
	}

	if u := resultURL(doc); u != "" {
		job.Complete(u)
		return probeCompleted
	}
	return probePending
}

// getJSON issues an authenticated GET bounded by the status timeout and the
// job deadline. It reports false for any transport, status or decode problem.
func (c *Client) getJSON(ctx context.Context, endpoint string, deadline time.Time, jobID string) (any, bool) {
	timeout := min(c.statusTimeout, time.Until(deadline))
	if timeout <= 0 {
		return nil, false
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("status probe failed", slog.String("job_id", jobID), slog.Any("error", err))
		return nil, false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, false
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("status probe not ok",
			slog.String("job_id", jobID),
			slog.Int("status_code", resp.StatusCode),
		)
		return nil, false
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.Debug("status response is not json", slog.String("job_id", jobID))
		return nil, false
	}

	c.logger.Debug("status response", slog.String("job_id", jobID), slog.String("body", truncate(string(raw), logBodyLimit)))
	return doc, true
}
