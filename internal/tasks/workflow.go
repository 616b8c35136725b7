package tasks

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/internal/domain"
	apperrors "github.com/greendale-game/airdrop-bot/internal/errors"
	"github.com/greendale-game/airdrop-bot/internal/i18n"
	"github.com/greendale-game/airdrop-bot/internal/registration"
	"github.com/greendale-game/airdrop-bot/internal/repository"
	"github.com/greendale-game/airdrop-bot/internal/session"
)

// Callback data prefixes for task buttons. The numeric task id follows the
// prefix.
const (
	ActionTaskPrefix    = "task_"
	ActionProceedPrefix = "proceed_task_"
	ActionSubmitPrefix  = "submit_task_"
	ActionBackToTasks   = "view_tasks"
)

// API is the slice of the task service the workflow needs.
type API interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListSubmissions(ctx context.Context, userID int64) ([]domain.Submission, error)
	SubmitTask(ctx context.Context, sub domain.Submission) error
}

// SessionStore keeps the transient browsing context between updates.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (session.Context, error)
	Update(ctx context.Context, userID int64, mutate func(*session.Context)) error
}

// Workflow drives the task browsing and proof submission conversation. All
// entry points require a completed registration.
type Workflow struct {
	api      API
	repo     repository.UserRepository
	sessions SessionStore
	tr       i18n.Translator
	log      *slog.Logger
}

// NewWorkflow wires a Workflow.
func NewWorkflow(
	api API,
	repo repository.UserRepository,
	sessions SessionStore,
	tr i18n.Translator,
	log *slog.Logger,
) *Workflow {
	return &Workflow{
		api:      api,
		repo:     repo,
		sessions: sessions,
		tr:       tr,
		log:      log.With(slog.String("component", "tasks_workflow")),
	}
}

// ParseTaskID extracts the task id from callback data with the given
// prefix.
func ParseTaskID(data, prefix string) (int64, error) {
	raw := strings.TrimPrefix(data, prefix)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("malformed task reference")
	}

	return id, nil
}

// List handles /tasks and the "view tasks" button: tasks not yet submitted
// become buttons, submitted ones are listed with their review status.
func (w *Workflow) List(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	if reply, err := w.ensureCompleted(ctx, ev.UserID); reply != nil || err != nil {
		return reply, err
	}

	all, err := w.api.ListTasks(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "task list fetch failed", slog.Any("error", err))
		return convo.NewReply(w.tr.T("tasks.fetch_error")), nil
	}

	subs, err := w.api.ListSubmissions(ctx, ev.UserID)
	if err != nil {
		w.log.WarnContext(ctx, "submission list fetch failed",
			slog.Int64("user_id", ev.UserID),
			slog.Any("error", err))
		return convo.NewReply(w.tr.T("tasks.fetch_error")), nil
	}

	submitted := make(map[int64]domain.SubmissionStatus, len(subs))
	for _, s := range subs {
		submitted[s.TaskID] = s.Status
	}

	var (
		fresh []domain.Task
		done  []domain.Task
	)
	for _, task := range all {
		if _, ok := submitted[task.ID]; ok {
			done = append(done, task)
		} else {
			fresh = append(fresh, task)
		}
	}

	if len(all) == 0 {
		return convo.NewReply(w.tr.T("tasks.none_available")), nil
	}

	var b strings.Builder
	b.WriteString(w.tr.T("tasks.header"))

	if len(done) > 0 {
		b.WriteString("\n")
		b.WriteString(w.tr.T("tasks.submissions_header"))
		for _, task := range done {
			fmt.Fprintf(&b, "%s %s\n", statusEmoji(submitted[task.ID]), task.Title)
		}
	}

	if len(fresh) > 0 {
		b.WriteString("\n")
		b.WriteString(w.tr.T("tasks.tap_hint"))
	}

	reply := convo.NewReply(b.String()).AsHTML()
	for _, task := range fresh {
		reply.WithRow(convo.NewAction(task.Title, ActionTaskPrefix+strconv.FormatInt(task.ID, 10)))
	}

	return reply, nil
}

// Detail handles a task button: it shows the task and remembers it as the
// user's current task.
func (w *Workflow) Detail(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error) {
	if reply, err := w.ensureCompleted(ctx, ev.UserID); reply != nil || err != nil {
		return reply, err
	}

	task, reply, err := w.findTask(ctx, taskID)
	if task == nil {
		return reply, err
	}

	if err := w.sessions.Update(ctx, ev.UserID, func(sc *session.Context) {
		sc.CurrentTaskID = taskID
		sc.AwaitingSubmission = false
	}); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(taskID, 10)
	return convo.NewReply(renderTask(task)).
		WithRow(convo.NewAction(w.tr.T("buttons.proceed"), ActionProceedPrefix+id)).
		WithRow(convo.NewAction(w.tr.T("buttons.back_to_tasks"), ActionBackToTasks)).
		AsHTML().
		AsEdit(), nil
}

// Proceed handles the proceed button on a task detail: it surfaces the
// requirements and offers proof submission.
func (w *Workflow) Proceed(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error) {
	if reply, err := w.ensureCompleted(ctx, ev.UserID); reply != nil || err != nil {
		return reply, err
	}

	task, reply, err := w.findTask(ctx, taskID)
	if task == nil {
		return reply, err
	}

	if err := w.sessions.Update(ctx, ev.UserID, func(sc *session.Context) {
		sc.CurrentTaskID = taskID
	}); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(taskID, 10)
	return convo.NewReply(renderTask(task)).
		WithRow(convo.NewAction(w.tr.T("buttons.submit_proof"), ActionSubmitPrefix+id)).
		WithRow(convo.NewAction(w.tr.T("buttons.back_to_tasks"), ActionBackToTasks)).
		AsHTML().
		AsEdit(), nil
}

// RequestProof handles the submit button: the next plain message from the
// user is treated as their proof.
func (w *Workflow) RequestProof(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error) {
	if reply, err := w.ensureCompleted(ctx, ev.UserID); reply != nil || err != nil {
		return reply, err
	}

	if err := w.sessions.Update(ctx, ev.UserID, func(sc *session.Context) {
		sc.CurrentTaskID = taskID
		sc.AwaitingSubmission = true
	}); err != nil {
		return nil, err
	}

	return convo.NewReply(w.tr.T("tasks.submit_prompt")).AsHTML().AsEdit(), nil
}

// AwaitingProof reports whether the next plain message from userID should
// be routed here as a proof submission.
func (w *Workflow) AwaitingProof(ctx context.Context, userID int64) (bool, error) {
	sc, err := w.sessions.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	return sc.AwaitingSubmission && sc.CurrentTaskID > 0, nil
}

// HandleProof submits the message text as proof for the user's current
// task. The awaiting flag is cleared only on success, so the user can retry
// after a failure by sending the proof again.
func (w *Workflow) HandleProof(ctx context.Context, ev convo.Event) (*convo.Reply, error) {
	sc, err := w.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if !sc.AwaitingSubmission || sc.CurrentTaskID == 0 {
		return nil, apperrors.NewValidationError("no task submission in progress")
	}

	proof := strings.TrimSpace(ev.Text)
	if proof == "" {
		return convo.NewReply(w.tr.T("tasks.submit_prompt")).AsHTML(), nil
	}

	err = w.api.SubmitTask(ctx, domain.Submission{
		UserID:         ev.UserID,
		TaskID:         sc.CurrentTaskID,
		SubmissionLink: proof,
	})
	if err != nil {
		w.log.WarnContext(ctx, "task submission failed",
			slog.Int64("user_id", ev.UserID),
			slog.Int64("task_id", sc.CurrentTaskID),
			slog.Any("error", err))

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Unwrap() != nil {
			return convo.NewReply(w.tr.Tf("tasks.submission_error", appErr.Unwrap().Error())), nil
		}
		return convo.NewReply(w.tr.T("tasks.submit_failed")), nil
	}

	if err := w.sessions.Update(ctx, ev.UserID, func(sc *session.Context) {
		sc.AwaitingSubmission = false
	}); err != nil {
		return nil, err
	}

	w.log.InfoContext(ctx, "task proof submitted",
		slog.Int64("user_id", ev.UserID),
		slog.Int64("task_id", sc.CurrentTaskID))

	return convo.NewReply(w.tr.Tf("tasks.submission_received", html.EscapeString(proof))).AsHTML(), nil
}

// ensureCompleted returns a lock-out reply for users who have not finished
// registration. Both return values are nil when the user may proceed.
func (w *Workflow) ensureCompleted(ctx context.Context, userID int64) (*convo.Reply, error) {
	user, err := w.repo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return convo.NewReply(w.tr.T("tasks.locked")), nil
	}
	if err != nil {
		return nil, apperrors.NewStoreError(err)
	}

	if registration.StateOf(user) != registration.StateCompleted {
		return convo.NewReply(w.tr.T("tasks.locked")), nil
	}

	return nil, nil
}

// findTask resolves a task id against the current task list. A nil task
// means the caller should return the accompanying reply and error as is.
func (w *Workflow) findTask(ctx context.Context, taskID int64) (*domain.Task, *convo.Reply, error) {
	all, err := w.api.ListTasks(ctx)
	if err != nil {
		w.log.WarnContext(ctx, "task detail fetch failed",
			slog.Int64("task_id", taskID),
			slog.Any("error", err))
		return nil, convo.NewReply(w.tr.T("tasks.detail_error")), nil
	}

	for i := range all {
		if all[i].ID == taskID {
			return &all[i], nil, nil
		}
	}

	return nil, convo.NewReply(w.tr.T("tasks.not_found")), nil
}

func renderTask(task *domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 <b>%s</b>\n\n%s", task.Title, task.Description)
	if task.TaskType != "" {
		fmt.Fprintf(&b, "\n\n🏷 Type: %s", task.TaskType)
	}
	if task.Requirements != "" {
		fmt.Fprintf(&b, "\n\n📋 Requirements:\n%s", task.Requirements)
	}

	return b.String()
}

func statusEmoji(status domain.SubmissionStatus) string {
	switch status {
	case domain.SubmissionApproved:
		return "✅"
	case domain.SubmissionRejected:
		return "❌"
	default:
		return "⏳"
	}
}
