package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenpipe/lumenpipe/service/db"
	"github.com/lumenpipe/lumenpipe/service/relay"
	"github.com/lumenpipe/lumenpipe/service/stellar"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSubmitter returns canned results and records what it was handed.
type fakeSubmitter struct {
	result     *submitter.Result
	credits    *relay.CreditAccount
	creditsErr error

	lastIntent *stellar.TransactionIntent
	lastToken  string
}

func (f *fakeSubmitter) CompileAndSubmit(ctx context.Context, intent *stellar.TransactionIntent, token string) *submitter.Result {
	f.lastIntent = intent
	f.lastToken = token
	return f.result
}

func (f *fakeSubmitter) CheckCredits(ctx context.Context, token string) (*relay.CreditAccount, error) {
	f.lastToken = token
	return f.credits, f.creditsErr
}

type fakeTokenClient struct {
	activateErr error
	claimToken  string
	claimErr    error
	lastToken   string
	lastCode    string
}

func (f *fakeTokenClient) Activate(ctx context.Context, token string) error {
	f.lastToken = token
	return f.activateErr
}

func (f *fakeTokenClient) Claim(ctx context.Context, code string) (string, error) {
	f.lastCode = code
	return f.claimToken, f.claimErr
}

func fakeDialer(client *fakeTokenClient) RelayDialer {
	return func(token string) (TokenClient, error) { return client, nil }
}

func TestHandleSubmit_Success(t *testing.T) {
	source := keypair.MustRandom().Address()
	credits := int64(41)
	sub := &fakeSubmitter{result: &submitter.Result{
		Status:           submitter.StatusSuccess,
		IntentKind:       stellar.IntentPayment,
		SourceAccount:    source,
		TxHash:           "abc123",
		CreditsRemaining: &credits,
	}}
	handler := handleSubmit(sub, testLogger())

	body := `{"intent":{"kind":"payment","source_account":"` + source + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", sub.lastToken)
	require.NotNil(t, sub.lastIntent)
	assert.Equal(t, stellar.IntentPayment, sub.lastIntent.Kind)

	var resp submissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc123", resp.TxHash)
	assert.False(t, resp.Retryable)
}

func TestHandleSubmit_MissingBearerToken(t *testing.T) {
	handler := handleSubmit(&fakeSubmitter{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(`{"intent":{"kind":"payment"}}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing bearer token")
}

func TestHandleSubmit_XDRBecomesRawWireIntent(t *testing.T) {
	sub := &fakeSubmitter{result: &submitter.Result{Status: submitter.StatusSuccess, TxHash: "deadbeef"}}
	handler := handleSubmit(sub, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(`{"xdr":"QUFBQQ=="}`))
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sub.lastIntent)
	assert.Equal(t, stellar.IntentRawWire, sub.lastIntent.Kind)
	assert.Equal(t, "QUFBQQ==", sub.lastIntent.Wire)
}

func TestHandleSubmit_PathologicalInput(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		contains       string
	}{
		{
			name:           "extremely large request body",
			body:           `{"xdr":"` + strings.Repeat("A", 2*1024*1024) + `"}`,
			expectedStatus: http.StatusBadRequest,
			contains:       "request body too large",
		},
		{
			name:           "malformed JSON",
			body:           `{"intent":`,
			expectedStatus: http.StatusBadRequest,
			contains:       "invalid request body",
		},
		{
			name:           "neither intent nor xdr",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			contains:       "intent or an xdr envelope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handleSubmit(&fakeSubmitter{}, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer tok-1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestHandleSubmit_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind           string
		expectedStatus int
	}{
		{string(stellar.ErrInvalidAddress), http.StatusBadRequest},
		{string(stellar.ErrUnknownIntentKind), http.StatusBadRequest},
		{string(relay.ErrContractViolation), http.StatusBadRequest},
		{string(relay.ErrRelayRejected), http.StatusUnprocessableEntity},
		{string(relay.ErrSequenceConflict), http.StatusConflict},
		{string(relay.ErrRelayUnreachable), http.StatusBadGateway},
		{string(stellar.ErrSourceAccountLoad), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			sub := &fakeSubmitter{result: &submitter.Result{
				Status: submitter.StatusError,
				Kind:   tt.kind,
				Error:  "boom",
			}}
			handler := handleSubmit(sub, testLogger())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(`{"xdr":"QUFBQQ=="}`))
			req.Header.Set("Authorization", "Bearer tok-1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)

			var resp submissionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.kind, resp.Kind)
		})
	}
}

func TestHandleCheckCredits(t *testing.T) {
	sub := &fakeSubmitter{credits: &relay.CreditAccount{CreditsRemaining: 899800, Activated: true}}
	handler := handleCheckCredits(sub, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-1", sub.lastToken)

	var resp struct {
		CreditsRemaining int64 `json:"credits_remaining"`
		Activated        bool  `json:"activated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(899800), resp.CreditsRemaining)
	assert.True(t, resp.Activated)
}

func TestHandleCheckCredits_RelayErrorPropagates(t *testing.T) {
	sub := &fakeSubmitter{creditsErr: &relay.Error{Kind: relay.ErrCreditsUnparseable, Body: "credits: true"}}
	handler := handleCheckCredits(sub, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "credits_unparseable")
}

func TestHandleActivateToken(t *testing.T) {
	client := &fakeTokenClient{}
	handler := handleActivateToken(fakeDialer(client), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/activate", strings.NewReader(`{"token":"tok-1"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "tok-1", client.lastToken)
}

func TestHandleActivateToken_MissingToken(t *testing.T) {
	handler := handleActivateToken(fakeDialer(&fakeTokenClient{}), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/activate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "token is required")
}

func TestHandleClaimToken(t *testing.T) {
	client := &fakeTokenClient{claimToken: "eyJhbGciOi.eyJzdWIiOi.sig"}
	handler := handleClaimToken(fakeDialer(client), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/claim", strings.NewReader(`{"code":"claim-42"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claim-42", client.lastCode)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "eyJhbGciOi.eyJzdWIiOi.sig", resp.Token)
}

func TestHandleClaimToken_ExtractionFailure(t *testing.T) {
	client := &fakeTokenClient{claimErr: &relay.Error{Kind: relay.ErrClaimTokenExtraction, Err: errors.New("claim response carries no token marker")}}
	handler := handleClaimToken(fakeDialer(client), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/claim", strings.NewReader(`{"code":"claim-42"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "claim_token_extraction_failed")
}

type fakeGenerator struct {
	tokens      []string
	err         error
	lastTTL     time.Duration
	lastCredits int64
	lastCount   int
}

func (f *fakeGenerator) GenerateTokens(ctx context.Context, ttl time.Duration, credits int64, count int) ([]string, error) {
	f.lastTTL = ttl
	f.lastCredits = credits
	f.lastCount = count
	return f.tokens, f.err
}

func TestHandleGenerateTokens(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"t1", "t2"}}
	handler := handleGenerateTokens(gen, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/generate", strings.NewReader(`{"ttl_seconds":3600,"credits":500000,"count":2}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Hour, gen.lastTTL)
	assert.Equal(t, int64(500000), gen.lastCredits)
	assert.Equal(t, 2, gen.lastCount)

	var resp struct {
		Tokens []string `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"t1", "t2"}, resp.Tokens)
}

func TestHandleGenerateTokens_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero ttl", `{"credits":100,"count":1}`},
		{"zero credits", `{"ttl_seconds":60,"count":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handleGenerateTokens(&fakeGenerator{}, testLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens/generate", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

type fakeLister struct {
	submissions []*db.Submission
	lastParams  db.ListSubmissionsParams
}

func (f *fakeLister) ListSubmissions(ctx context.Context, params db.ListSubmissionsParams) ([]*db.Submission, error) {
	f.lastParams = params
	return f.submissions, nil
}

func TestHandleListSubmissions(t *testing.T) {
	source := keypair.MustRandom().Address()
	lister := &fakeLister{submissions: []*db.Submission{
		{ID: 2, IntentKind: "payment", SourceAccount: source, Status: "success", TxHash: "abc", CreatedAt: time.Now()},
		{ID: 1, IntentKind: "payment", SourceAccount: source, Status: "error", ResultKind: "relay_rejected", CreatedAt: time.Now().Add(-time.Minute)},
	}}
	handler := handleListSubmissions(lister, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions?source="+source+"&limit=50&offset=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, source, lister.lastParams.SourceAccount)
	assert.Equal(t, int32(50), lister.lastParams.Limit)
	assert.Equal(t, int32(10), lister.lastParams.Offset)

	var resp struct {
		Submissions []submissionRecordResponse `json:"submissions"`
		Count       int                        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "abc", resp.Submissions[0].TxHash)
}

func TestHandleListSubmissions_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"bad source", "?source=not-an-address"},
		{"zero limit", "?limit=0"},
		{"huge limit", "?limit=5000"},
		{"negative offset", "?offset=-1"},
		{"non-numeric limit", "?limit=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handleListSubmissions(&fakeLister{}, testLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions"+tt.query, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer abc")
	tok, ok := bearerToken(req)
	require.True(t, ok)
	assert.Equal(t, "abc", tok)

	req.Header.Set("Authorization", "bearer xyz")
	tok, ok = bearerToken(req)
	require.True(t, ok)
	assert.Equal(t, "xyz", tok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(req)
	assert.False(t, ok)
}
