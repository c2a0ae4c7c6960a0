package nats

import (
	"time"

	"github.com/lumenpipe/lumenpipe/service/submitter"
)

// SubmissionEvent represents a submission outcome published to NATS.
// This is published to the subject "submissions.{source_account}" in JetStream.
type SubmissionEvent struct {
	// Outcome
	Status     string `json:"status"`
	ResultKind string `json:"result_kind,omitempty"`
	TxHash     string `json:"tx_hash,omitempty"`
	Error      string `json:"error,omitempty"`

	// Intent information
	IntentKind    string `json:"intent_kind,omitempty"`
	SourceAccount string `json:"source_account,omitempty"`
	Summary       string `json:"summary,omitempty"`

	// Relay accounting
	CreditsRemaining *int64 `json:"credits_remaining,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromResult converts a submission result to a SubmissionEvent for publishing.
func FromResult(result *submitter.Result) *SubmissionEvent {
	return &SubmissionEvent{
		Status:           result.Status,
		ResultKind:       result.Kind,
		TxHash:           result.TxHash,
		Error:            result.Error,
		IntentKind:       string(result.IntentKind),
		SourceAccount:    result.SourceAccount,
		Summary:          result.Summary,
		CreditsRemaining: result.CreditsRemaining,
		PublishedAt:      time.Now().UTC(),
	}
}
