package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpipe/lumenpipe/service/submitter"
)

func TestStore_RecordAndListSubmissions(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	store.Cleanup(t)

	ctx := context.Background()
	source := "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"

	err := store.RecordSubmission(ctx, submitter.SubmissionRecord{
		IntentKind:    "payment",
		SourceAccount: source,
		Status:        "success",
		TxHash:        "abc123",
		Summary:       "payment of 10 XLM",
	})
	require.NoError(t, err)

	err = store.RecordSubmission(ctx, submitter.SubmissionRecord{
		IntentKind:    "payment",
		SourceAccount: source,
		Status:        "error",
		ResultKind:    "sequence_conflict",
		Error:         "tx_bad_seq",
	})
	require.NoError(t, err)

	subs, err := store.ListSubmissions(ctx, ListSubmissionsParams{SourceAccount: source, Limit: 10})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	// Newest first.
	assert.Equal(t, "error", subs[0].Status)
	assert.Equal(t, "success", subs[1].Status)
	assert.Equal(t, "abc123", subs[1].TxHash)

	other, err := store.ListSubmissions(ctx, ListSubmissionsParams{SourceAccount: "GOTHER", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStore_GetSubmissionByTxHash(t *testing.T) {
	SkipIfNoTestDB(t)
	store := NewTestStore(t)
	defer store.Close()
	store.Cleanup(t)

	ctx := context.Background()
	err := store.RecordSubmission(ctx, submitter.SubmissionRecord{
		IntentKind: "createAccount",
		Status:     "success",
		TxHash:     "deadbeef",
	})
	require.NoError(t, err)

	sub, err := store.GetSubmissionByTxHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "createAccount", sub.IntentKind)

	_, err = store.GetSubmissionByTxHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetSubmission(ctx, 999999)
	assert.ErrorIs(t, err, ErrNotFound)
}
