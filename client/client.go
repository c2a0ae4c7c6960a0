package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// AssetRef names a ledger asset: the zero value (or code "XLM") means the
// native asset, otherwise code plus issuer.
type AssetRef struct {
	Code   string `json:"code,omitempty"`
	Issuer string `json:"issuer,omitempty"`
}

// TransactionIntent is a structured description of a requested ledger
// operation. It is a tagged union over Kind; only the fields relevant to the
// kind are consulted.
type TransactionIntent struct {
	Kind string `json:"kind"`

	SourceAccount string `json:"source_account,omitempty"`
	Memo          string `json:"memo,omitempty"`
	MemoKind      string `json:"memo_kind,omitempty"`

	DestinationAccount string `json:"destination_account,omitempty"`

	Amount string    `json:"amount,omitempty"`
	Asset  *AssetRef `json:"asset,omitempty"`

	StartingBalance string `json:"starting_balance,omitempty"`

	TrustAsset *AssetRef `json:"trust_asset,omitempty"`
	TrustLimit string    `json:"trust_limit,omitempty"`

	SendAsset  *AssetRef  `json:"send_asset,omitempty"`
	SendMax    string     `json:"send_max,omitempty"`
	DestAsset  *AssetRef  `json:"dest_asset,omitempty"`
	DestAmount string     `json:"dest_amount,omitempty"`
	Path       []AssetRef `json:"path,omitempty"`

	Wire string `json:"wire,omitempty"`
}

// SubmissionOutcome is the normalized result of one submission attempt.
type SubmissionOutcome struct {
	Status           string `json:"status"`
	Kind             string `json:"kind,omitempty"`
	IntentKind       string `json:"intent_kind,omitempty"`
	SourceAccount    string `json:"source_account,omitempty"`
	Summary          string `json:"summary,omitempty"`
	TxHash           string `json:"tx_hash,omitempty"`
	CreditsRemaining *int64 `json:"credits_remaining,omitempty"`
	RawDetails       string `json:"raw_details,omitempty"`
	Error            string `json:"error,omitempty"`
	Retryable        bool   `json:"retryable"`
}

// CreditBalance is the state of a credit token account.
type CreditBalance struct {
	CreditsRemaining int64 `json:"credits_remaining"`
	Activated        bool  `json:"activated"`
}

// SubmissionRecord is one audit row from the submission history.
type SubmissionRecord struct {
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

// Client is the HTTP client for the submission service. It is bound to one
// credit token, which rides along as the bearer credential on every
// token-scoped call.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new submission service client. The token may be empty
// for callers that only use the unauthenticated endpoints (claim, history).
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit compiles and submits one intent under the client's credit token.
// A non-nil outcome with Status "error" is returned alongside the error so
// callers can inspect the failure kind and retryability.
func (c *Client) Submit(ctx context.Context, intent *TransactionIntent) (*SubmissionOutcome, error) {
	return c.submit(ctx, map[string]interface{}{"intent": intent})
}

// SubmitXDR submits a pre-built base64 transaction envelope untouched.
func (c *Client) SubmitXDR(ctx context.Context, xdr string) (*SubmissionOutcome, error) {
	return c.submit(ctx, map[string]interface{}{"xdr": xdr})
}

func (c *Client) submit(ctx context.Context, reqBody map[string]interface{}) (*SubmissionOutcome, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/submissions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var outcome SubmissionOutcome
	if decodeErr := json.NewDecoder(resp.Body).Decode(&outcome); decodeErr != nil {
		return nil, fmt.Errorf("request failed with status %d: failed to decode response: %w", resp.StatusCode, decodeErr)
	}

	if outcome.Status != "success" {
		c.logger.Debug("submission failed", "kind", outcome.Kind, "retryable", outcome.Retryable)
		return &outcome, fmt.Errorf("submission failed (%s): %s", outcome.Kind, outcome.Error)
	}

	c.logger.Debug("submission succeeded", "tx_hash", outcome.TxHash)
	return &outcome, nil
}

// CheckCredits returns the credit balance behind the client's token.
func (c *Client) CheckCredits(ctx context.Context) (*CreditBalance, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/credits", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var balance CreditBalance
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &balance, nil
}

// ActivateToken activates a freshly minted credit token.
func (c *Client) ActivateToken(ctx context.Context, token string) error {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/tokens/activate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("credit token activated")
	return nil
}

// ClaimToken exchanges a claim code for a credit token.
func (c *Client) ClaimToken(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/tokens/claim", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var claimed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claimed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return claimed.Token, nil
}

// GenerateTokens mints fresh credit tokens. Fails unless the server has the
// privileged relay credential configured.
func (c *Client) GenerateTokens(ctx context.Context, ttl time.Duration, credits int64, count int) ([]string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"ttl_seconds": int64(ttl.Seconds()),
		"credits":     credits,
		"count":       count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/tokens/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var generated struct {
		Tokens []string `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return generated.Tokens, nil
}

// ListSubmissions retrieves recorded submissions, newest first. source may be
// empty to list across all accounts.
func (c *Client) ListSubmissions(ctx context.Context, source string, limit, offset int) ([]*SubmissionRecord, error) {
	q := url.Values{}
	if source != "" {
		q.Set("source", source)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}

	u := c.baseURL + "/api/v1/submissions"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Submissions []*SubmissionRecord `json:"submissions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Submissions, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
