package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/cuongbtq/video-pipeline/internal/worker/domain"
	"github.com/cuongbtq/video-pipeline/shared/backoff"
)

const progressPath = "/internal/progress"

// Reporter sends status updates for a job to the API
type Reporter interface {
	Report(ctx context.Context, req dto.ProgressRequest) error
}

// ReporterConfig holds the progress endpoint settings
type ReporterConfig struct {
	BaseURL string
	APIKey  string
	Retries int
	Timeout time.Duration // per attempt
}

// HTTPReporter posts progress to the API's internal gateway
type HTTPReporter struct {
	endpoint string
	apiKey   string
	client   *http.Client
	policy   backoff.Policy
	logger   *slog.Logger
}

// statusError is a non-2xx answer from the gateway
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("progress endpoint returned %d: %s", e.code, e.body)
}

func NewHTTPReporter(config ReporterConfig, logger *slog.Logger) *HTTPReporter {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPReporter{
		endpoint: strings.TrimRight(config.BaseURL, "/") + progressPath,
		apiKey:   config.APIKey,
		client:   &http.Client{Timeout: timeout},
		policy: backoff.Policy{
			Retries:   config.Retries,
			BaseDelay: 200 * time.Millisecond,
			Cap:       10 * time.Second,
			Jitter:    true,
		}.WithDefaults(),
		logger: logger,
	}
}

// Report retries network errors and 5xx answers with full-jitter backoff.
// 404 maps to ErrJobNotFound and 409 to ErrJobTerminal; other 4xx answers
// are returned without retrying.
func (r *HTTPReporter) Report(ctx context.Context, req dto.ProgressRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.policy.Retries; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt - 1)
			r.logger.Warn("Progress report failed, retrying...",
				slog.Int64("job_id", req.JobID),
				slog.String("status", req.Status),
				slog.Int("attempt", attempt),
				slog.Duration("retry_after", delay),
				slog.String("error", lastErr.Error()),
			)
			if err := backoff.Sleep(ctx, delay); err != nil {
				return fmt.Errorf("progress report canceled: %w", lastErr)
			}
		}

		lastErr = r.post(ctx, payload)
		if lastErr == nil {
			return nil
		}

		var se *statusError
		if errors.As(lastErr, &se) {
			switch {
			case se.code == http.StatusNotFound:
				return fmt.Errorf("%w: %d", domain.ErrJobNotFound, req.JobID)
			case se.code == http.StatusConflict:
				return fmt.Errorf("%w: %d", domain.ErrJobTerminal, req.JobID)
			case se.code < 500:
				return lastErr
			}
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return fmt.Errorf("progress report gave up after %d attempts: %w", r.policy.Retries+1, lastErr)
}

func (r *HTTPReporter) post(ctx context.Context, payload []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
}
