package temporal

import (
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/lumenpipe/lumenpipe/service/relay"
	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

var a *Activities // for type-safe activity invocation

// terminalResultKinds are the failure kinds no amount of retrying can fix:
// the intent itself is bad, or the relay gave a definitive answer.
var terminalResultKinds = []string{
	string(stellar.ErrInvalidAddress),
	string(stellar.ErrInvalidAmount),
	string(stellar.ErrMissingRequiredField),
	string(stellar.ErrUnsupportedAsset),
	string(stellar.ErrMemoEncoding),
	string(stellar.ErrUnknownIntentKind),
	string(relay.ErrContractViolation),
	string(relay.ErrRelayRejected),
	string(relay.ErrCancelled),
	string(relay.ErrCreditsUnparseable),
	string(relay.ErrClaimTokenExtraction),
	string(relay.ErrMalformedResponse),
}

// SubmitIntentWorkflow durably drives one intent through the compile+submit
// pipeline. The whole cycle is a single activity so every retry recompiles
// against freshly loaded account state; transient failures (account load,
// relay unreachable, sequence conflicts) are retried with backoff, terminal
// ones fail the workflow immediately.
func SubmitIntentWorkflow(ctx workflow.Context, input SubmitIntentInput) (*submitter.Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SubmitIntentWorkflow started", "kind", input.Intent.Kind)

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: terminalResultKinds,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var result *submitter.Result
	if err := workflow.ExecuteActivity(ctx, a.SubmitIntent, input).Get(ctx, &result); err != nil {
		logger.Error("SubmitIntentWorkflow failed", "kind", input.Intent.Kind, "error", err)
		return nil, err
	}

	logger.Info("SubmitIntentWorkflow completed successfully",
		"kind", result.IntentKind,
		"tx_hash", result.TxHash,
	)
	return result, nil
}
