package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greendale-game/airdrop-bot/internal/domain"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.TaskAPIConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	})
}

func TestClientListTasks(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tasks", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"tasks": []domain.Task{
				{ID: 1, Title: "Follow on X", TaskType: "twitter"},
				{ID: 2, Title: "Join chat", TaskType: "telegram"},
			},
		})
	}))

	got, err := client.ListTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Follow on X", got[0].Title)
}

func TestClientListSubmissions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/user_submissions/7", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"submissions": []domain.Submission{
				{UserID: 7, TaskID: 1, Status: domain.SubmissionPending},
			},
		})
	}))

	got, err := client.ListSubmissions(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].TaskID)
}

func TestClientSubmitTask(t *testing.T) {
	var received map[string]any

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/submit_task", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.SubmitTask(context.Background(), domain.Submission{
		UserID:         7,
		TaskID:         3,
		SubmissionLink: "https://x.com/alice/status/1",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(7), received["user_id"])
	assert.Equal(t, float64(3), received["task_id"])
	assert.Equal(t, "https://x.com/alice/status/1", received["submission_link"])
}

func TestClientSubmitTaskSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "task already completed"})
	}))

	err := client.SubmitTask(context.Background(), domain.Submission{UserID: 7, TaskID: 3, SubmissionLink: "x"})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "E300", appErr.Code)
	assert.Contains(t, appErr.Unwrap().Error(), "task already completed")
}

func TestClientListTasksNon200(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.ListTasks(context.Background())
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "E300", appErr.Code)
}
