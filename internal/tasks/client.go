package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrAwaitTimeout is returned when a task result does not arrive in time.
var ErrAwaitTimeout = errors.New("timed out waiting for task result")

// Handle identifies a submitted task for a later Await.
type Handle struct {
	ID    string
	Queue string
}

// Client enqueues tasks and awaits their result envelopes. The API process
// holds one; it is the only way request handlers reach the workers.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector

	// hard per-task time limit, execution timeout + 30s
	taskTimeout time.Duration
}

func NewClient(opt asynq.RedisConnOpt, executionTimeout time.Duration) *Client {
	return &Client{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		taskTimeout: executionTimeout + 30*time.Second,
	}
}

func (c *Client) Close() error {
	errClient := c.client.Close()
	errInspector := c.inspector.Close()
	if errClient != nil {
		return errClient
	}
	return errInspector
}

func (c *Client) enqueue(ctx context.Context, typename string, payload any) (*Handle, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", typename, err)
		}
	}

	id := uuid.New().String()
	_, err := c.client.EnqueueContext(ctx, asynq.NewTask(typename, data),
		asynq.TaskID(id),
		asynq.Queue(queueDefault),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(c.taskTimeout),
		asynq.Retention(resultRetention),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", typename, err)
	}
	return &Handle{ID: id, Queue: queueDefault}, nil
}

func (c *Client) SubmitSessionStart(ctx context.Context, sessionID, environment string) (*Handle, error) {
	return c.enqueue(ctx, TypeSessionStart, StartSessionPayload{
		SessionID:   sessionID,
		Environment: environment,
	})
}

func (c *Client) SubmitSessionExecute(ctx context.Context, sessionID, code, filename, stdin string) (*Handle, error) {
	return c.enqueue(ctx, TypeSessionExecute, ExecuteCodePayload{
		SessionID: sessionID,
		Code:      code,
		Filename:  filename,
		Stdin:     stdin,
	})
}

func (c *Client) SubmitSessionStop(ctx context.Context, sessionID string) (*Handle, error) {
	return c.enqueue(ctx, TypeSessionStop, StopSessionPayload{SessionID: sessionID})
}

func (c *Client) SubmitSessionStats(ctx context.Context, sessionID string) (*Handle, error) {
	return c.enqueue(ctx, TypeSessionStats, StatsPayload{SessionID: sessionID})
}

func (c *Client) SubmitEphemeralExecute(ctx context.Context, environment, code, filename, stdin string) (*Handle, error) {
	return c.enqueue(ctx, TypeEphemeralExec, EphemeralExecutePayload{
		Environment: environment,
		Code:        code,
		Filename:    filename,
		Stdin:       stdin,
	})
}

func (c *Client) SubmitCleanup(ctx context.Context) (*Handle, error) {
	return c.enqueue(ctx, TypeCleanup, nil)
}

// Await blocks until the task completes and returns its result envelope,
// the task is archived after exhausting retries, or the timeout lapses.
func (c *Client) Await(ctx context.Context, h *Handle, timeout time.Duration) (*Result, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		info, err := c.inspector.GetTaskInfo(h.Queue, h.ID)
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return nil, fmt.Errorf("inspect task %s: %w", h.ID, err)
		}
		if info != nil {
			switch info.State {
			case asynq.TaskStateCompleted:
				var res Result
				if err := json.Unmarshal(info.Result, &res); err != nil {
					return nil, fmt.Errorf("decode task result: %w", err)
				}
				return &res, nil
			case asynq.TaskStateArchived:
				return nil, fmt.Errorf("task %s failed: %s", h.ID, info.LastErr)
			}
		}

		if time.Now().After(deadline) {
			return nil, ErrAwaitTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
