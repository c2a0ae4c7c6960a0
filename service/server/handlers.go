package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lumenpipe/lumenpipe/service/db"
	"github.com/lumenpipe/lumenpipe/service/relay"
	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for an intent or an envelope
)

// Submitter is the submission pipeline surface the handlers need.
// Satisfied by *submitter.Submitter.
type Submitter interface {
	CompileAndSubmit(ctx context.Context, intent *stellar.TransactionIntent, token string) *submitter.Result
	CheckCredits(ctx context.Context, token string) (*relay.CreditAccount, error)
}

// TokenClient is the credit-token surface of the relay needed by the token
// handlers. Satisfied by *relay.Client.
type TokenClient interface {
	Activate(ctx context.Context, token string) error
	Claim(ctx context.Context, code string) (string, error)
}

// RelayDialer builds a relay client bound to one bearer credential.
type RelayDialer func(token string) (TokenClient, error)

// TokenGenerator mints credit tokens. Satisfied by *relay.AdminClient.
type TokenGenerator interface {
	GenerateTokens(ctx context.Context, ttl time.Duration, credits int64, count int) ([]string, error)
}

// SubmissionLister is the audit-store surface of the history handler.
// Satisfied by *db.Store.
type SubmissionLister interface {
	ListSubmissions(ctx context.Context, params db.ListSubmissionsParams) ([]*db.Submission, error)
}

// submissionResponse wraps a pipeline result with its retryability hint.
type submissionResponse struct {
	*submitter.Result
	Retryable bool `json:"retryable"`
}

// handleSubmit returns a handler that compiles and submits one intent under
// the caller's credit token.
// POST /api/v1/submissions
func handleSubmit(sub Submitter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Intent *stellar.TransactionIntent `json:"intent"`
			XDR    string                     `json:"xdr"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode submit request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		intent := req.Intent
		if intent == nil && req.XDR != "" {
			// A pre-built envelope rides through untouched.
			intent = &stellar.TransactionIntent{
				Kind: stellar.IntentRawWire,
				Wire: req.XDR,
			}
		}
		if intent == nil {
			writeError(w, "request must carry an intent or an xdr envelope", http.StatusBadRequest)
			return
		}

		result := sub.CompileAndSubmit(r.Context(), intent, token)

		status := http.StatusOK
		if result.Status != submitter.StatusSuccess {
			status = statusForKind(result.Kind)
		}
		writeJSON(w, submissionResponse{Result: result, Retryable: result.Retryable()}, status)
	})
}

// handleCheckCredits returns the credit account behind the presented token.
// GET /api/v1/credits
func handleCheckCredits(sub Submitter, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		account, err := sub.CheckCredits(r.Context(), token)
		if err != nil {
			logger.Error("failed to check credits", "error", err)
			writeRelayError(w, err)
			return
		}

		writeJSON(w, map[string]interface{}{
			"credits_remaining": account.CreditsRemaining,
			"activated":         account.Activated,
		}, http.StatusOK)
	})
}

// handleActivateToken activates a freshly minted credit token.
// POST /api/v1/tokens/activate
func handleActivateToken(dial RelayDialer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if req.Token == "" {
			writeError(w, "token is required", http.StatusBadRequest)
			return
		}

		client, err := dial(req.Token)
		if err != nil {
			logger.Error("failed to build relay client", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if err := client.Activate(r.Context(), req.Token); err != nil {
			logger.Error("failed to activate token", "error", err)
			writeRelayError(w, err)
			return
		}

		logger.Info("credit token activated")
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleClaimToken exchanges a claim code for a credit token.
// POST /api/v1/tokens/claim
func handleClaimToken(dial RelayDialer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			writeError(w, "code is required", http.StatusBadRequest)
			return
		}

		// The claim code doubles as the bearer credential; the relay ignores
		// auth on its claim endpoint.
		client, err := dial(req.Code)
		if err != nil {
			logger.Error("failed to build relay client", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		token, err := client.Claim(r.Context(), req.Code)
		if err != nil {
			logger.Error("failed to claim token", "error", err)
			writeRelayError(w, err)
			return
		}

		logger.Info("claim code exchanged for credit token")
		writeJSON(w, map[string]interface{}{"token": token}, http.StatusOK)
	})
}

// handleGenerateTokens mints fresh credit tokens through the privileged relay
// credential.
// POST /api/v1/tokens/generate
func handleGenerateTokens(generator TokenGenerator, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			TTLSeconds int64 `json:"ttl_seconds"`
			Credits    int64 `json:"credits"`
			Count      int   `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}
		if req.TTLSeconds <= 0 {
			writeError(w, "ttl_seconds must be positive", http.StatusBadRequest)
			return
		}
		if req.Credits <= 0 {
			writeError(w, "credits must be positive", http.StatusBadRequest)
			return
		}
		if req.Count < 1 {
			req.Count = 1
		}

		tokens, err := generator.GenerateTokens(r.Context(), time.Duration(req.TTLSeconds)*time.Second, req.Credits, req.Count)
		if err != nil {
			logger.Error("failed to generate tokens", "error", err)
			writeRelayError(w, err)
			return
		}

		logger.Info("credit tokens generated", "count", len(tokens))
		writeJSON(w, map[string]interface{}{"tokens": tokens}, http.StatusOK)
	})
}

// handleListSubmissions returns a handler that lists recorded submissions.
// GET /api/v1/submissions?source=ADDRESS&limit=N&offset=N
func handleListSubmissions(store SubmissionLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		source := query.Get("source")
		if source != "" && !stellar.IsValidAddress(source) {
			writeError(w, "source must be a valid account address", http.StatusBadRequest)
			return
		}

		// Parse limit (default 100, max 1000)
		limit := int32(100)
		if limitStr := query.Get("limit"); limitStr != "" {
			var parsedLimit int
			if _, err := fmt.Sscanf(limitStr, "%d", &parsedLimit); err != nil {
				writeError(w, "invalid limit parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedLimit < 1 {
				writeError(w, "limit must be at least 1", http.StatusBadRequest)
				return
			}
			if parsedLimit > 1000 {
				writeError(w, "limit cannot exceed 1000", http.StatusBadRequest)
				return
			}
			limit = int32(parsedLimit)
		}

		// Parse offset (default 0)
		offset := int32(0)
		if offsetStr := query.Get("offset"); offsetStr != "" {
			var parsedOffset int
			if _, err := fmt.Sscanf(offsetStr, "%d", &parsedOffset); err != nil {
				writeError(w, "invalid offset parameter: must be an integer", http.StatusBadRequest)
				return
			}
			if parsedOffset < 0 {
				writeError(w, "offset cannot be negative", http.StatusBadRequest)
				return
			}
			offset = int32(parsedOffset)
		}

		submissions, err := store.ListSubmissions(r.Context(), db.ListSubmissionsParams{
			SourceAccount: source,
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			logger.Error("failed to list submissions", "source", source, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("submissions listed", "source", source, "count", len(submissions))

		resp := make([]submissionRecordResponse, len(submissions))
		for i := range submissions {
			resp[i] = submissionToResponse(submissions[i])
		}

		writeJSON(w, map[string]interface{}{
			"submissions": resp,
			"count":       len(resp),
			"limit":       limit,
			"offset":      offset,
		}, http.StatusOK)
	})
}

// submissionRecordResponse is the JSON response format for an audit row.
type submissionRecordResponse struct {
	ID            int64     `json:"id"`
	IntentKind    string    `json:"intent_kind"`
	SourceAccount string    `json:"source_account,omitempty"`
	Status        string    `json:"status"`
	ResultKind    string    `json:"result_kind,omitempty"`
	TxHash        string    `json:"tx_hash,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// submissionToResponse converts an audit row to a response format.
func submissionToResponse(s *db.Submission) submissionRecordResponse {
	return submissionRecordResponse{
		ID:            s.ID,
		IntentKind:    s.IntentKind,
		SourceAccount: s.SourceAccount,
		Status:        s.Status,
		ResultKind:    s.ResultKind,
		TxHash:        s.TxHash,
		Summary:       s.Summary,
		Error:         s.Error,
		CreatedAt:     s.CreatedAt,
	}
}

// bearerToken extracts the credit token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// statusForKind maps a terminal result kind to an HTTP status code. Caller
// faults map to 4xx, upstream faults to 5xx.
func statusForKind(kind string) int {
	switch kind {
	case string(stellar.ErrInvalidAddress),
		string(stellar.ErrInvalidAmount),
		string(stellar.ErrMissingRequiredField),
		string(stellar.ErrUnsupportedAsset),
		string(stellar.ErrMemoEncoding),
		string(stellar.ErrUnknownIntentKind),
		string(relay.ErrContractViolation):
		return http.StatusBadRequest
	case string(relay.ErrRelayRejected):
		return http.StatusUnprocessableEntity
	case string(relay.ErrSequenceConflict):
		return http.StatusConflict
	case string(relay.ErrCancelled):
		return http.StatusRequestTimeout
	case string(stellar.ErrSourceAccountLoad),
		string(relay.ErrRelayUnreachable),
		string(relay.ErrCreditsUnparseable),
		string(relay.ErrMalformedResponse),
		string(relay.ErrClaimTokenExtraction):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeRelayError maps a relay client error to an HTTP response, preserving
// the kind and any rejection body the relay produced.
func writeRelayError(w http.ResponseWriter, err error) {
	if relayErr, ok := relay.AsRelayError(err); ok {
		writeJSON(w, map[string]interface{}{
			"error": relayErr.Error(),
			"kind":  string(relayErr.Kind),
		}, statusForKind(string(relayErr.Kind)))
		return
	}
	writeError(w, "internal server error", http.StatusInternalServerError)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
