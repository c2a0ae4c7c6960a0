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
	"strconv"
	"strings"
	"time"

	"github.com/lumenpipe/lumenpipe/service/metrics"
)

// AdminClient holds the privileged token-issuance credential. It is a
// separate type from Client so the higher-trust credential never crosses into
// the trust boundary that handles end-user credit tokens.
type AdminClient struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewAdminClient creates a client for the relay's privileged token-generation
// endpoint. Like NewClient it fails fast on a missing credential or malformed
// base URL.
func NewAdminClient(baseURL, adminToken string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) (*AdminClient, error) {
	if adminToken == "" {
		return nil, errors.New("relay: admin bearer token is required")
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
	return &AdminClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		adminToken: adminToken,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}, nil
}

// GenerateTokens issues count fresh credit tokens, each carrying the given
// credit balance and expiring after ttl. Fresh tokens start deactivated and
// must be activated before use.
func (c *AdminClient) GenerateTokens(ctx context.Context, ttl time.Duration, credits int64, count int) ([]string, error) {
	if count <= 0 {
		return nil, &Error{Kind: ErrContractViolation, Err: fmt.Errorf("count must be positive, got %d", count)}
	}
	if credits <= 0 {
		return nil, &Error{Kind: ErrContractViolation, Err: fmt.Errorf("credits must be positive, got %d", credits)}
	}

	q := url.Values{
		"ttl":     {strconv.FormatInt(int64(ttl.Seconds()), 10)},
		"credits": {strconv.FormatInt(credits, 10)},
		"count":   {strconv.Itoa(count)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gen?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		kind := ErrRelayUnreachable
		if ctx.Err() == context.Canceled {
			kind = ErrCancelled
		}
		c.metrics.RecordRelayCall("gen", string(kind), duration)
		return nil, &Error{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordRelayCall("gen", string(ErrRelayUnreachable), duration)
		return nil, &Error{Kind: ErrRelayUnreachable, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	c.metrics.RecordRelayCall("gen", strconv.Itoa(resp.StatusCode), duration)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: ErrRelayRejected, Status: resp.StatusCode, Body: string(body)}
	}

	var tokens []string
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, &Error{Kind: ErrMalformedResponse, Status: resp.StatusCode, Body: string(body), Err: err}
	}

	c.logger.InfoContext(ctx, "generated credit tokens", "count", len(tokens), "credits", credits, "ttl", ttl)
	return tokens, nil
}
