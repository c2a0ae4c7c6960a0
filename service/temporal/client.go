package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"

	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

// Client wraps a Temporal SDK client for starting and querying durable
// submissions.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartSubmission starts a durable submission and returns the workflow run
// without waiting for it to finish.
func (c *Client) StartSubmission(ctx context.Context, intent *stellar.TransactionIntent, token string) (client.WorkflowRun, error) {
	options := client.StartWorkflowOptions{
		TaskQueue: c.taskQueue,
	}

	run, err := c.client.ExecuteWorkflow(ctx, options, SubmitIntentWorkflow, SubmitIntentInput{
		Intent: intent,
		Token:  token,
	})
	if err != nil {
		c.logger.Error("failed to start submission workflow",
			"kind", intent.Kind,
			"error", err,
		)
		return nil, fmt.Errorf("failed to start submission workflow: %w", err)
	}

	c.logger.Info("submission workflow started",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"kind", intent.Kind,
	)
	return run, nil
}

// SubmitIntent starts a durable submission and blocks until it completes.
func (c *Client) SubmitIntent(ctx context.Context, intent *stellar.TransactionIntent, token string) (*submitter.Result, error) {
	run, err := c.StartSubmission(ctx, intent, token)
	if err != nil {
		return nil, err
	}

	var result *submitter.Result
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("submission workflow failed: %w", err)
	}
	return result, nil
}

// GetSubmissionResult fetches the result of a previously started submission.
func (c *Client) GetSubmissionResult(ctx context.Context, workflowID, runID string) (*submitter.Result, error) {
	run := c.client.GetWorkflow(ctx, workflowID, runID)

	var result *submitter.Result
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("submission workflow failed: %w", err)
	}
	return result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
