package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"orchestrator/internal/domain"
)

// Client talks to the external credit/subscription service. Deduct and
// Refund retry transient transport failures with the same reference id; the
// ledger's idempotency key guarantees the retries never double-apply.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	maxRetries uint64
}

// Options configures the credit service client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	MaxRetries uint64
}

// NewClient creates a credit service client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("credit service base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     opts.Logger,
		maxRetries: maxRetries,
	}, nil
}

type checkRequest struct {
	RequiredCredits decimal.Decimal `json:"required_credits"`
}

type checkResponse struct {
	Sufficient bool   `json:"sufficient"`
	Detail     string `json:"detail"`
}

// Check verifies the user holds at least amount credits.
func (c *Client) Check(ctx context.Context, userID string, amount decimal.Decimal) error {
	var out checkResponse
	status, err := c.post(ctx, fmt.Sprintf("/users/%s/credits/check", userID), checkRequest{RequiredCredits: amount}, &out)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	switch {
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientCredits, detailOrDefault(out.Detail))
	case status >= 300:
		return fmt.Errorf("%w: credit service returned status %d", domain.ErrLedgerUnavailable, status)
	case !out.Sufficient:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientCredits, detailOrDefault(out.Detail))
	}
	return nil
}

type mutationRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
	ActionType  string          `json:"action_type,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Description string          `json:"description,omitempty"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

// Deduct removes amount credits from the user's balance, keyed by
// referenceID at the ledger.
func (c *Client) Deduct(ctx context.Context, userID, referenceID string, amount decimal.Decimal, reason string) error {
	body := mutationRequest{
		Amount:      amount,
		ReferenceID: referenceID,
		ActionType:  reason,
		Description: fmt.Sprintf("Deduction for %s on request %s", reason, referenceID),
	}
	var out mutationResponse
	status, err := c.postWithRetry(ctx, fmt.Sprintf("/users/%s/credits/deduct", userID), body, &out)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	switch {
	case status == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientCredits, detailOrDefault(out.Detail))
	case status >= 300:
		return fmt.Errorf("%w: credit service returned status %d", domain.ErrLedgerUnavailable, status)
	case !out.Success:
		return fmt.Errorf("%w: deduction rejected: %s", domain.ErrLedgerUnavailable, detailOrDefault(out.Detail))
	}
	c.logger.Info().Str("user_id", userID).Str("reference_id", referenceID).Str("amount", amount.String()).Msg("credits deducted")
	return nil
}

// Refund returns amount credits to the user's balance, keyed by referenceID
// at the ledger.
func (c *Client) Refund(ctx context.Context, userID, referenceID string, amount decimal.Decimal, reason string) error {
	body := mutationRequest{
		Amount:      amount,
		ReferenceID: referenceID,
		Reason:      reason,
	}
	var out mutationResponse
	status, err := c.postWithRetry(ctx, fmt.Sprintf("/users/%s/credits/refund", userID), body, &out)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if status >= 300 || !out.Success {
		return fmt.Errorf("%w: refund rejected with status %d: %s", domain.ErrLedgerUnavailable, status, detailOrDefault(out.Detail))
	}
	c.logger.Info().Str("user_id", userID).Str("reference_id", referenceID).Str("amount", amount.String()).Msg("credits refunded")
	return nil
}

type subscriptionResponse struct {
	Tier string `json:"tier"`
}

// SubscriptionTier returns the user's subscription tier, defaulting to
// "free" when the service omits it.
func (c *Client) SubscriptionTier(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+fmt.Sprintf("/users/%s/subscription", userID), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: subscription lookup returned status %d", domain.ErrLedgerUnavailable, resp.StatusCode)
	}
	var out subscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
	}
	if out.Tier == "" {
		return "free", nil
	}
	return out.Tier, nil
}

// postWithRetry repeats post on transport errors only. HTTP responses,
// including 5xx, are returned untouched: once the ledger has answered, the
// verdict belongs to the caller.
func (c *Client) postWithRetry(ctx context.Context, path string, body, out any) (int, error) {
	var status int
	op := func() error {
		var err error
		status, err = c.post(ctx, path, body, out)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return 0, err
	}
	return status, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if len(raw) > 0 && out != nil {
		// Tolerate non-JSON error bodies; status carries the verdict.
		_ = json.Unmarshal(raw, out)
	}
	return resp.StatusCode, nil
}

func detailOrDefault(detail string) string {
	if detail == "" {
		return "no detail provided"
	}
	return detail
}
