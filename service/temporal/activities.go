package temporal

import (
	"context"
	"log/slog"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"

	"github.com/lumenpipe/lumenpipe/service/metrics"
	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

// SubmitIntentInput contains the input parameters for a durable submission.
type SubmitIntentInput struct {
	Intent *stellar.TransactionIntent `json:"intent"`
	Token  string                     `json:"token"`
}

// SubmitterInterface defines the pipeline operations needed by activities.
// This allows for easy mocking in tests.
type SubmitterInterface interface {
	CompileAndSubmit(ctx context.Context, intent *stellar.TransactionIntent, token string) *submitter.Result
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	submitter SubmitterInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(sub SubmitterInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		submitter: sub,
		metrics:   m,
		logger:    logger,
	}
}

// SubmitIntent runs one full compile+submit cycle. Each invocation compiles
// from scratch, so a retried activity always picks up a fresh sequence
// number. Terminal failures come back as non-retryable application errors
// typed by their result kind; retryable ones as plain application errors so
// the workflow's retry policy takes over.
func (a *Activities) SubmitIntent(ctx context.Context, input SubmitIntentInput) (*submitter.Result, error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("SubmitIntent", time.Since(start).Seconds())
	}()

	a.logger.DebugContext(ctx, "submitting intent",
		"kind", input.Intent.Kind,
		"source", input.Intent.SourceAccount,
	)

	result := a.submitter.CompileAndSubmit(ctx, input.Intent, input.Token)
	if result.Status == submitter.StatusSuccess {
		a.logger.InfoContext(ctx, "intent submitted",
			"kind", result.IntentKind,
			"tx_hash", result.TxHash,
		)
		return result, nil
	}

	a.logger.WarnContext(ctx, "submission attempt failed",
		"kind", result.Kind,
		"retryable", result.Retryable(),
		"error", result.Error,
	)

	if result.Retryable() {
		return nil, temporalsdk.NewApplicationError(result.Error, result.Kind)
	}
	return nil, temporalsdk.NewNonRetryableApplicationError(result.Error, result.Kind, nil, result)
}
