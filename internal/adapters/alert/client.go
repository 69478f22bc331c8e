package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-boot/internal/core/domain"
)

// APIKeyHeader carries the alert service credential.
const APIKeyHeader = "x-api-key"

// Client posts alerts to the external alert service.
type Client struct {
	url     string
	apiKey  string
	timeout time.Duration
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{url: url, apiKey: apiKey, timeout: timeout}
}

// SendLowBattery posts alert as JSON. Any non-2xx response is an error.
// The request is bounded by the client timeout or the context deadline,
// whichever is sooner; cancellation without a deadline is only observed
// before the request is sent.
func (c *Client) SendLowBattery(ctx context.Context, alert domain.LowBatteryAlert) error {
	if c.url == "" {
		return errors.New("alert service URL is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		timeout = min(timeout, remaining)
	}

	agent := fiber.Post(c.url)
	agent.Set(APIKeyHeader, c.apiKey)
	agent.JSON(alert)
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("failed to send low battery alert: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("alert service returned %d: %s", code, body)
	}
	return nil
}
