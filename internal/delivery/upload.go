package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
)

const responseLogLimit = 300

// upload downloads the video and posts it to the sendVideo endpoint as a
// multipart form. The request body is spooled to a temp file so the video is
// never held in memory.
func (t *Transport) upload(ctx context.Context, destination, mediaURL, caption string) error {
	body, err := os.CreateTemp(t.tempDir, "skitcast-upload-*.bin")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		body.Close()
		os.Remove(body.Name())
	}()

	contentType, err := t.writeForm(ctx, body, destination, mediaURL, caption)
	if err != nil {
		return err
	}

	size, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("measure upload body: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload body: %w", err)
	}

	return t.post(ctx, body, size, contentType)
}

// writeForm streams the form fields and the downloaded video into w.
func (t *Transport) writeForm(ctx context.Context, w io.Writer, destination, mediaURL, caption string) (string, error) {
	form := multipart.NewWriter(w)

	if err := form.WriteField("chat_id", strings.TrimSpace(destination)); err != nil {
		return "", fmt.Errorf("write chat_id: %w", err)
	}
	if err := form.WriteField("caption", caption); err != nil {
		return "", fmt.Errorf("write caption: %w", err)
	}

	part, err := form.CreateFormFile("video", "video.mp4")
	if err != nil {
		return "", fmt.Errorf("create video part: %w", err)
	}

	n, err := t.download(ctx, part, mediaURL)
	if err != nil {
		return "", err
	}

	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	t.logger.Debug("video downloaded", slog.String("url", mediaURL), slog.Int64("bytes", n))
	return form.FormDataContentType(), nil
}

func (t *Transport) download(ctx context.Context, w io.Writer, mediaURL string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download video: unexpected status %s", resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download video: %w", err)
	}
	return n, nil
}

func (t *Transport) post(ctx context.Context, body io.Reader, size int64, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, t.uploadTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/sendVideo", t.apiBaseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		// the url embeds the token
		return errors.New("build upload request failed")
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload video: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	head, _ := io.ReadAll(io.LimitReader(resp.Body, responseLogLimit))
	t.logger.Info("fallback upload response",
		slog.Int("status_code", resp.StatusCode),
		slog.String("body", string(head)),
	)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload video: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// redact strips the bot token from transport errors, which quote the request url.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}
