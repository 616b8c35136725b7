// Package tasks integrates the campaign task API: listing tasks, reading a
// user's submissions, and submitting proofs.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/greendale-game/airdrop-bot/internal/domain"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/pkg/config"
)

const serviceName = "task_api"

// Client talks to the external task API over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient constructs a Client. The timeout bounds every request.
func NewClient(cfg config.TaskAPIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// ListTasks returns the active tasks.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var out struct {
		Tasks []domain.Task `json:"tasks"`
	}

	if err := c.get(ctx, "/api/tasks", &out); err != nil {
		return nil, err
	}

	return out.Tasks, nil
}

// ListSubmissions returns the user's submissions.
func (c *Client) ListSubmissions(ctx context.Context, userID int64) ([]domain.Submission, error) {
	var out struct {
		Submissions []domain.Submission `json:"submissions"`
	}

	path := fmt.Sprintf("/api/user_submissions/%d", userID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}

	return out.Submissions, nil
}

// SubmitTask sends a proof of completion. An unsuccessful response carries
// the API's error message back to the caller.
func (c *Client) SubmitTask(ctx context.Context, sub domain.Submission) error {
	body, err := json.Marshal(struct {
		UserID         int64  `json:"user_id"`
		TaskID         int64  `json:"task_id"`
		SubmissionLink string `json:"submission_link"`
	}{
		UserID:         sub.UserID,
		TaskID:         sub.TaskID,
		SubmissionLink: sub.SubmissionLink,
	})
	if err != nil {
		return apperrors.NewExternalError(serviceName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/submit_task", bytes.NewReader(body))
	if err != nil {
		return apperrors.NewExternalError(serviceName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewExternalError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}

	return apperrors.NewExternalError(serviceName, apiError(resp))
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperrors.NewExternalError(serviceName, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewExternalError(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewExternalError(serviceName, apiError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewExternalError(serviceName, fmt.Errorf("decode %s: %w", path, err))
	}

	return nil
}

// apiError extracts the error message the API returns alongside failure
// statuses, falling back to the status line.
func apiError(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return fmt.Errorf("%s", payload.Error)
		}
		if payload.Message != "" {
			return fmt.Errorf("%s", payload.Message)
		}
	}

	return fmt.Errorf("unexpected status %s", resp.Status)
}
