package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lumenpipe/lumenpipe/service/metrics"
)

// defaultTimeout bounds every relay call when the caller's http.Client does
// not already carry one. A hung relay must never block the orchestrator
// indefinitely.
const defaultTimeout = 30 * time.Second

// claimTokenPattern is the documented marker contract with the relay: the
// claim page embeds exactly one JWT-shaped token inside a <code> element.
// Anything else fails loudly as ErrClaimTokenExtraction; the client never
// guesses at other substrings.
var claimTokenPattern = regexp.MustCompile(`<code[^>]*>\s*([A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+)\s*</code>`)

// Client speaks the fee-paying relay's submission protocol. It is stateless
// apart from configuration resolved at construction (base URL, bearer token),
// so calls for independent tokens may run concurrently. It performs no
// implicit retries; retry policy belongs to the caller.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a relay client for an end-user credit token. It fails
// fast on a missing token or malformed base URL, before any call is
// attempted. If httpClient is nil a default with a bounded timeout is used.
// If m is nil, no metrics are recorded.
func NewClient(baseURL, token string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, errors.New("relay: bearer token is required")
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}, nil
}

// Submit posts one transaction to the relay. Exactly one of req.Wire or
// req.HostFunction must be set. On success the relay's transaction hash and
// the updated credit balance (from the X-Credits-Remaining header) are
// returned; the client never computes spend locally. On a non-2xx response
// the body text is preserved verbatim in the returned error.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmissionResult, error) {
	hasWire := req.Wire != ""
	hasFunc := req.HostFunction != ""
	if hasWire == hasFunc {
		return nil, &Error{Kind: ErrContractViolation, Err: errors.New("exactly one of wire or host function must be set")}
	}
	if !hasFunc && len(req.AuthEntries) > 0 {
		return nil, &Error{Kind: ErrContractViolation, Err: errors.New("auth entries require a host function payload")}
	}

	form := url.Values{}
	if hasWire {
		form.Set("xdr", req.Wire)
	} else {
		form.Set("func", req.HostFunction)
		for _, entry := range req.AuthEntries {
			form.Add("auth[]", entry)
		}
	}
	if req.SkipSimulation {
		form.Set("sim", "false")
	}

	resp, body, err := c.do(ctx, "submit", http.MethodPost, c.baseURL+"/", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.classifyRejection(resp.StatusCode, body)
	}

	var payload struct {
		Tx   string `json:"tx"`
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: ErrMalformedResponse, Status: resp.StatusCode, Body: string(body), Err: err}
	}
	hash := payload.Tx
	if hash == "" {
		hash = payload.Hash
	}
	if hash == "" {
		return nil, &Error{Kind: ErrMalformedResponse, Status: resp.StatusCode, Body: string(body),
			Err: errors.New("success response carries no transaction hash")}
	}

	result := &SubmissionResult{
		TxHash:     hash,
		RawDetails: string(body),
	}
	if v := resp.Header.Get("X-Credits-Remaining"); v != "" {
		credits, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.logger.WarnContext(ctx, "unparseable X-Credits-Remaining header", "value", v)
		} else {
			result.CreditsRemaining = &credits
			c.metrics.SetRelayCredits(float64(credits))
		}
	}

	c.logger.InfoContext(ctx, "transaction submitted via relay", "tx_hash", hash)
	return result, nil
}

// CheckCredits reads the token's balance and activation state from the info
// endpoint. A non-numeric credits value surfaces as ErrCreditsUnparseable
// rather than defaulting to zero: zero is a valid state meaning "exhausted".
func (c *Client) CheckCredits(ctx context.Context) (*CreditAccount, error) {
	resp, body, err := c.do(ctx, "info", http.MethodGet, c.baseURL+"/info", nil, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: ErrRelayRejected, Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Credits   json.RawMessage `json:"credits"`
		Activated bool            `json:"activated"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Kind: ErrMalformedResponse, Status: resp.StatusCode, Body: string(body), Err: err}
	}

	credits, err := parseCredits(payload.Credits)
	if err != nil {
		return nil, &Error{Kind: ErrCreditsUnparseable, Status: resp.StatusCode, Body: string(body), Err: err}
	}

	c.metrics.SetRelayCredits(float64(credits))
	return &CreditAccount{
		TokenID:          c.token,
		CreditsRemaining: credits,
		Activated:        payload.Activated,
	}, nil
}

// Activate activates a freshly issued credit token. Failure is terminal for
// that token; the client never retries activation on its own.
func (c *Client) Activate(ctx context.Context, token string) error {
	if token == "" {
		return &Error{Kind: ErrContractViolation, Err: errors.New("token is required")}
	}
	form := url.Values{"token": {token}}
	resp, body, err := c.do(ctx, "activate", http.MethodPost, c.baseURL+"/activate", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Kind: ErrRelayRejected, Status: resp.StatusCode, Body: string(body)}
	}
	c.logger.InfoContext(ctx, "credit token activated")
	return nil
}

// Claim exchanges a claim code for a fresh credit token. The relay answers
// with an HTML document embedding the token per the marker contract described
// on claimTokenPattern; a missing marker fails loudly.
func (c *Client) Claim(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", &Error{Kind: ErrContractViolation, Err: errors.New("claim code is required")}
	}
	form := url.Values{"code": {code}}
	resp, body, err := c.do(ctx, "claim", http.MethodPost, c.baseURL+"/claim", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Kind: ErrRelayRejected, Status: resp.StatusCode, Body: string(body)}
	}

	match := claimTokenPattern.FindSubmatch(body)
	if match == nil {
		return "", &Error{Kind: ErrClaimTokenExtraction, Status: resp.StatusCode,
			Err: errors.New("claim response carries no token marker")}
	}
	return string(match[1]), nil
}

// do executes one bounded request with bearer auth and reads the body in
// full. Transport failures classify as cancelled or unreachable.
func (c *Client) do(ctx context.Context, op, method, rawURL string, reqBody io.Reader, contentType string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		kind := ErrRelayUnreachable
		if ctx.Err() == context.Canceled {
			kind = ErrCancelled
		}
		c.metrics.RecordRelayCall(op, string(kind), duration)
		c.logger.ErrorContext(ctx, "relay request failed", "op", op, "kind", kind, "error", err)
		return nil, nil, &Error{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordRelayCall(op, string(ErrRelayUnreachable), duration)
		return nil, nil, &Error{Kind: ErrRelayUnreachable, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.metrics.RecordRelayCall(op, strconv.Itoa(resp.StatusCode), duration)
	return resp, body, nil
}

// classifyRejection splits stale-sequence rejections, which are retryable
// after a fresh compile, from other relay-reported business errors. The body
// text is preserved verbatim either way.
func (c *Client) classifyRejection(status int, body []byte) *Error {
	text := string(body)
	if strings.Contains(text, "tx_bad_seq") || strings.Contains(text, "txBadSeq") {
		return &Error{Kind: ErrSequenceConflict, Status: status, Body: text}
	}
	return &Error{Kind: ErrRelayRejected, Status: status, Body: text}
}

func parseCredits(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing credits field")
	}
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("credits value %q is not numeric", s)
	}
	return int64(v), nil
}

func validateBaseURL(baseURL string) error {
	if baseURL == "" {
		return errors.New("relay: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("relay: malformed base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("relay: base URL %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("relay: base URL %q has no host", baseURL)
	}
	return nil
}
