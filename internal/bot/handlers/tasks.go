package handlers

import (
	"context"

	tele "gopkg.in/telebot.v3"

	"github.com/greendale-game/airdrop-bot/internal/convo"
	"github.com/greendale-game/airdrop-bot/internal/tasks"
	"github.com/greendale-game/airdrop-bot/pkg/logger"
)

// TaskWorkflow is the conversation surface of the task workflow.
type TaskWorkflow interface {
	List(ctx context.Context, ev convo.Event) (*convo.Reply, error)
	Detail(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error)
	Proceed(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error)
	RequestProof(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error)
	AwaitingProof(ctx context.Context, userID int64) (bool, error)
	HandleProof(ctx context.Context, ev convo.Event) (*convo.Reply, error)
}

// TaskList handles /tasks and the "view tasks" button.
func TaskList(workflow TaskWorkflow, responder Responder) Handler {
	return adapt(responder, workflow.List)
}

// TaskDetail handles task selection buttons.
func TaskDetail(workflow TaskWorkflow, responder Responder) Handler {
	return adaptWithTaskID(responder, tasks.ActionTaskPrefix, workflow.Detail)
}

// TaskProceed handles the proceed button on a task detail.
func TaskProceed(workflow TaskWorkflow, responder Responder) Handler {
	return adaptWithTaskID(responder, tasks.ActionProceedPrefix, workflow.Proceed)
}

// TaskRequestProof handles the submit-proof button.
func TaskRequestProof(workflow TaskWorkflow, responder Responder) Handler {
	return adaptWithTaskID(responder, tasks.ActionSubmitPrefix, workflow.RequestProof)
}

func adaptWithTaskID(
	responder Responder,
	prefix string,
	fn func(ctx context.Context, ev convo.Event, taskID int64) (*convo.Reply, error),
) Handler {
	return func(c tele.Context) error {
		ctx := logger.WithCorrelationID(context.Background())
		ev := EventFrom(c)

		taskID, err := tasks.ParseTaskID(ev.Action, prefix)
		if err != nil {
			return err
		}

		reply, err := fn(ctx, ev, taskID)
		if err != nil {
			return err
		}

		return responder.Respond(c, reply)
	}
}

// Text routes plain messages: an expected task proof goes to the workflow,
// everything else to the registration flow.
func Text(flow RegistrationFlow, workflow TaskWorkflow, responder Responder) Handler {
	return func(c tele.Context) error {
		ctx := logger.WithCorrelationID(context.Background())
		ev := EventFrom(c)

		awaiting, err := workflow.AwaitingProof(ctx, ev.UserID)
		if err != nil {
			return err
		}

		var reply *convo.Reply
		if awaiting {
			reply, err = workflow.HandleProof(ctx, ev)
		} else {
			reply, err = flow.HandleText(ctx, ev)
		}
		if err != nil {
			return err
		}

		return responder.Respond(c, reply)
	}
}
