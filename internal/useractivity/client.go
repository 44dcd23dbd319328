// Package useractivity is the client for the external user-activity
// subsystem that materializes deferred records for long-term-idle users.
package useractivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With("component", "UserActivityClient"),
	}
}

// Reactivate asks the user-activity service to materialize the user's
// backlog. The call is synchronous: when it returns without error, the
// user's records exist and dispatch can proceed.
func (c *Client) Reactivate(ctx context.Context, user int64) error {
	url := fmt.Sprintf("%s/api/v1/users/%d/reactivate", c.baseURL, user)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build reactivate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reactivate user %d: %w", user, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reactivate user %d: status %d: %s", user, resp.StatusCode, snippet)
	}

	c.logger.Info("User reactivated.", "user_id", user)
	return nil
}
