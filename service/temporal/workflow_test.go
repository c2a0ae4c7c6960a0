package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/lumenpipe/lumenpipe/service/relay"
	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

func paymentInput() SubmitIntentInput {
	return SubmitIntentInput{
		Intent: &stellar.TransactionIntent{
			Kind:               stellar.IntentPayment,
			SourceAccount:      keypair.MustRandom().Address(),
			DestinationAccount: keypair.MustRandom().Address(),
			Amount:             "10",
		},
		Token: "tok-1",
	}
}

func TestSubmitIntentWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SubmitIntent)

	input := paymentInput()
	credits := int64(499)
	env.OnActivity(activities.SubmitIntent, mock.Anything, mock.Anything).
		Return(&submitter.Result{
			Status:           submitter.StatusSuccess,
			IntentKind:       stellar.IntentPayment,
			SourceAccount:    input.Intent.SourceAccount,
			TxHash:           "abc123",
			CreditsRemaining: &credits,
		}, nil)

	env.ExecuteWorkflow(SubmitIntentWorkflow, input)

	require.NoError(t, env.GetWorkflowError())

	var result submitter.Result
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, submitter.StatusSuccess, result.Status)
	assert.Equal(t, "abc123", result.TxHash)
}

func TestSubmitIntentWorkflow_RetriesTransientFailures(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SubmitIntent)

	input := paymentInput()

	// Fail twice with a retryable kind, then succeed. Each attempt is a full
	// recompile, so the sequence conflict clears itself.
	callCount := 0
	env.OnActivity(activities.SubmitIntent, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, input SubmitIntentInput) (*submitter.Result, error) {
			callCount++
			if callCount < 3 {
				return nil, temporalsdk.NewApplicationError("tx_bad_seq", string(relay.ErrSequenceConflict))
			}
			return &submitter.Result{
				Status:     submitter.StatusSuccess,
				IntentKind: stellar.IntentPayment,
				TxHash:     "abc123",
			}, nil
		})

	env.ExecuteWorkflow(SubmitIntentWorkflow, input)

	require.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, callCount)

	var result submitter.Result
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "abc123", result.TxHash)
}

func TestSubmitIntentWorkflow_TerminalFailureDoesNotRetry(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SubmitIntent)

	callCount := 0
	env.OnActivity(activities.SubmitIntent, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, input SubmitIntentInput) (*submitter.Result, error) {
			callCount++
			return nil, temporalsdk.NewNonRetryableApplicationError(
				"destination is not a valid account address",
				string(stellar.ErrInvalidAddress), nil)
		})

	env.ExecuteWorkflow(SubmitIntentWorkflow, paymentInput())

	err := env.GetWorkflowError()
	require.Error(t, err)
	assert.Equal(t, 1, callCount)

	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, string(stellar.ErrInvalidAddress), appErr.Type())
}

func TestSubmitIntentWorkflow_ExhaustedRetriesFail(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SubmitIntent)

	callCount := 0
	env.OnActivity(activities.SubmitIntent, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, input SubmitIntentInput) (*submitter.Result, error) {
			callCount++
			return nil, temporalsdk.NewApplicationError("connection refused", string(relay.ErrRelayUnreachable))
		})

	env.ExecuteWorkflow(SubmitIntentWorkflow, paymentInput())

	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, 5, callCount)
}
