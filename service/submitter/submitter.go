// Package submitter composes the intent compiler and the relay client into
// the single entrypoint exposed to the agent runtime: compile an intent,
// submit it through the fee-paying relay exactly once, and normalize whatever
// happened into one terminal result.
package submitter

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenpipe/lumenpipe/service/metrics"
	"github.com/lumenpipe/lumenpipe/service/relay"
	"github.com/lumenpipe/lumenpipe/service/stellar"
)

// StatusSuccess and StatusError are the two terminal states of a Result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the normalized outcome of one submission attempt. It is terminal:
// constructed once and never mutated. Kind carries the machine-checkable
// classification (a stellar or relay error kind) on failure; Error carries
// the human-readable detail. A success always carries a transaction hash.
type Result struct {
	Status           string             `json:"status"`
	Kind             string             `json:"kind,omitempty"`
	IntentKind       stellar.IntentKind `json:"intent_kind,omitempty"`
	SourceAccount    string             `json:"source_account,omitempty"`
	Summary          string             `json:"summary,omitempty"`
	TxHash           string             `json:"tx_hash,omitempty"`
	CreditsRemaining *int64             `json:"credits_remaining,omitempty"`
	RawDetails       string             `json:"raw_details,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Retryable reports whether a fresh, explicit attempt (with a freshly loaded
// sequence number) may succeed.
func (r *Result) Retryable() bool {
	switch r.Kind {
	case string(stellar.ErrSourceAccountLoad),
		string(relay.ErrRelayUnreachable),
		string(relay.ErrSequenceConflict):
		return true
	}
	return false
}

// IntentCompiler is the compiler surface the submitter needs.
type IntentCompiler interface {
	Compile(ctx context.Context, intent *stellar.TransactionIntent) (*stellar.CompiledTransaction, error)
}

// RelayClient is the relay surface the submitter needs, satisfied by
// *relay.Client.
type RelayClient interface {
	Submit(ctx context.Context, req relay.SubmitRequest) (*relay.SubmissionResult, error)
	CheckCredits(ctx context.Context) (*relay.CreditAccount, error)
}

// RelayFactory builds a relay client for one credit token. Tokens arrive
// per call (each caller presents its own bearer credential), so relay clients
// are constructed per call; they are stateless and cheap.
type RelayFactory func(token string) (RelayClient, error)

// Recorder persists submission outcomes for audit. Implemented by *db.Store.
type Recorder interface {
	RecordSubmission(ctx context.Context, rec SubmissionRecord) error
}

// SubmissionRecord is the audit row handed to the Recorder.
type SubmissionRecord struct {
	IntentKind    string
	SourceAccount string
	Status        string
	ResultKind    string
	TxHash        string
	Summary       string
	RawDetails    string
	Error         string
}

// Publisher emits submission events. Implemented by the NATS publisher.
type Publisher interface {
	PublishSubmission(ctx context.Context, result *Result) error
}

// Submitter is the submission orchestrator. It holds no per-call mutable
// state and takes no locks: concurrent submissions for independent accounts
// are safe, while concurrent submissions from the same source account race on
// the sequence number and at least one loses. Serializing those is the
// caller's responsibility.
type Submitter struct {
	compiler  IntentCompiler
	newRelay  RelayFactory
	recorder  Recorder  // optional
	publisher Publisher // optional
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Submitter. recorder and publisher are optional; when present
// they receive every outcome on a best-effort basis and never affect the
// returned result.
func New(compiler IntentCompiler, newRelay RelayFactory, recorder Recorder, publisher Publisher, m *metrics.Metrics, logger *slog.Logger) *Submitter {
	return &Submitter{
		compiler:  compiler,
		newRelay:  newRelay,
		recorder:  recorder,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// CompileAndSubmit compiles the intent and submits it through the relay
// exactly once, under the given credit token. Local compile errors
// short-circuit before any relay call, so no credits are ever spent on an
// intent known to be malformed. Retrying after a failure is a new, explicit
// call; it recompiles with a freshly loaded sequence number.
func (s *Submitter) CompileAndSubmit(ctx context.Context, intent *stellar.TransactionIntent, token string) *Result {
	kind := stellar.IntentKind("")
	if intent != nil {
		kind = intent.Kind
	}

	start := time.Now()
	compiled, err := s.compiler.Compile(ctx, intent)
	compileStatus := StatusSuccess
	if err != nil {
		compileStatus = StatusError
	}
	s.metrics.RecordCompile(string(kind), compileStatus, time.Since(start).Seconds())

	if err != nil {
		result := s.compileFailure(kind, err)
		s.finish(ctx, result)
		return result
	}

	relayClient, err := s.newRelay(token)
	if err != nil {
		// Construction fails fast on a missing token or bad URL; this is
		// a configuration error, not a relay response.
		result := &Result{
			Status:        StatusError,
			Kind:          string(relay.ErrContractViolation),
			IntentKind:    compiled.Kind,
			SourceAccount: compiled.SourceAccount,
			Summary:       compiled.Summary,
			Error:         err.Error(),
		}
		s.finish(ctx, result)
		return result
	}

	submission, err := relayClient.Submit(ctx, relay.SubmitRequest{Wire: compiled.Wire})
	if err != nil {
		result := s.relayFailure(compiled, err)
		s.finish(ctx, result)
		return result
	}

	result := &Result{
		Status:           StatusSuccess,
		IntentKind:       compiled.Kind,
		SourceAccount:    compiled.SourceAccount,
		Summary:          compiled.Summary,
		TxHash:           submission.TxHash,
		CreditsRemaining: submission.CreditsRemaining,
		RawDetails:       submission.RawDetails,
	}
	s.finish(ctx, result)
	return result
}

// CheckCredits reads the prepaid balance for the given token.
func (s *Submitter) CheckCredits(ctx context.Context, token string) (*relay.CreditAccount, error) {
	relayClient, err := s.newRelay(token)
	if err != nil {
		return nil, err
	}
	return relayClient.CheckCredits(ctx)
}

func (s *Submitter) compileFailure(kind stellar.IntentKind, err error) *Result {
	result := &Result{
		Status:     StatusError,
		IntentKind: kind,
		Error:      err.Error(),
	}
	if ce, ok := stellar.AsCompileError(err); ok {
		result.Kind = string(ce.Kind)
	} else {
		result.Kind = string(stellar.ErrUnknownIntentKind)
	}
	return result
}

func (s *Submitter) relayFailure(compiled *stellar.CompiledTransaction, err error) *Result {
	result := &Result{
		Status:        StatusError,
		IntentKind:    compiled.Kind,
		SourceAccount: compiled.SourceAccount,
		Summary:       compiled.Summary,
		Error:         err.Error(),
	}
	if re, ok := relay.AsRelayError(err); ok {
		result.Kind = string(re.Kind)
		result.RawDetails = re.Body
	} else {
		result.Kind = string(relay.ErrRelayUnreachable)
	}
	return result
}

// finish records metrics and fans the terminal result out to the audit store
// and event stream. Both sinks are best-effort: a failure there is logged and
// never alters the submission outcome.
func (s *Submitter) finish(ctx context.Context, result *Result) {
	outcome := result.Kind
	if result.Status == StatusSuccess {
		outcome = StatusSuccess
	}
	s.metrics.RecordSubmission(string(result.IntentKind), outcome)

	if result.Status == StatusSuccess {
		s.logger.InfoContext(ctx, "submission succeeded",
			"intent_kind", result.IntentKind,
			"source_account", result.SourceAccount,
			"tx_hash", result.TxHash,
		)
	} else {
		s.logger.WarnContext(ctx, "submission failed",
			"intent_kind", result.IntentKind,
			"kind", result.Kind,
			"error", result.Error,
		)
	}

	if s.recorder != nil {
		rec := SubmissionRecord{
			IntentKind:    string(result.IntentKind),
			SourceAccount: result.SourceAccount,
			Status:        result.Status,
			ResultKind:    result.Kind,
			TxHash:        result.TxHash,
			Summary:       result.Summary,
			RawDetails:    result.RawDetails,
			Error:         result.Error,
		}
		if err := s.recorder.RecordSubmission(ctx, rec); err != nil {
			s.logger.ErrorContext(ctx, "failed to record submission", "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishSubmission(ctx, result); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish submission event", "error", err)
		}
	}
}
