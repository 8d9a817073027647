/**
 * @description
 * Read-only client for the token-ledger gateway that exposes the stablecoin
 * chain over HTTP. All chain-specific decoding lives here: callers only ever
 * see domain.TokenTransfer values with amounts already converted to platform
 * cents.
 *
 * The gateway reports token amounts as fixed-point integers (10^decimals per
 * whole token). Plans are priced in whole currency units, so amounts are
 * rounded to the nearest whole unit before they reach the matching logic.
 *
 * Failure semantics: transport failures surface as errors and the caller
 * abandons the sweep for that tick. An unknown, unconfirmed, or undecodable
 * transaction is "not yet", reported as (nil, nil), never as an error.
 */
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stablevest/settlement-engine/internal/domain"
)

// Client is a client for the token-ledger gateway.
type Client struct {
	baseURL    string
	decimals   int
	httpClient *http.Client
}

// NewClient creates a new chain gateway client. `decimals` is the token's
// fixed-point exponent (6 for the usual stablecoin contracts).
func NewClient(baseURL string, decimals int, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		decimals:   decimals,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// transferEnvelope mirrors the gateway's wire format for one transfer.
type transferEnvelope struct {
	TransactionID  string `json:"transaction_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Value          string `json:"value"`           // fixed-point token units
	BlockTimestamp int64  `json:"block_timestamp"` // unix milliseconds
	Confirmed      bool   `json:"confirmed"`
}

type transferListResponse struct {
	Data []transferEnvelope `json:"data"`
}

// ListIncomingTransfers returns the confirmed transfers received by `address`
// within the last `maxAge`. Entries that fail to decode are dropped rather
// than failing the whole listing.
func (c *Client) ListIncomingTransfers(ctx context.Context, address string, maxAge time.Duration) ([]domain.TokenTransfer, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("chain gateway base URL is not configured")
	}

	minTimestamp := time.Now().Add(-maxAge).UnixMilli()
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transfers?direction=in&min_timestamp=%d",
		c.baseURL, url.PathEscape(address), minTimestamp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chain gateway returned error status %d", resp.StatusCode)
	}

	var body transferListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode transfer listing: %w", err)
	}

	transfers := make([]domain.TokenTransfer, 0, len(body.Data))
	for _, env := range body.Data {
		transfer, ok := c.decode(env)
		if !ok || !transfer.Confirmed {
			continue
		}
		if !strings.EqualFold(transfer.To, address) {
			continue
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

// GetTransfer fetches and decodes a single transaction by hash. It returns
// (nil, nil) when the transaction is unknown, unconfirmed, or undecodable;
// the scheduler tick interval is the retry mechanism for those.
func (c *Client) GetTransfer(ctx context.Context, txHash string) (*domain.TokenTransfer, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("chain gateway base URL is not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/transactions/%s", c.baseURL, url.PathEscape(txHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chain gateway returned error status %d", resp.StatusCode)
	}

	var env transferEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, nil
	}

	transfer, ok := c.decode(env)
	if !ok || !transfer.Confirmed {
		return nil, nil
	}
	return &transfer, nil
}

func (c *Client) decode(env transferEnvelope) (domain.TokenTransfer, bool) {
	if env.TransactionID == "" || env.Value == "" {
		return domain.TokenTransfer{}, false
	}
	raw, err := strconv.ParseInt(env.Value, 10, 64)
	if err != nil || raw < 0 {
		return domain.TokenTransfer{}, false
	}
	return domain.TokenTransfer{
		TxHash:      env.TransactionID,
		From:        env.From,
		To:          env.To,
		AmountCents: c.toCents(raw),
		Timestamp:   time.UnixMilli(env.BlockTimestamp).UTC(),
		Confirmed:   env.Confirmed,
	}, true
}

// toCents converts a fixed-point token amount to platform cents, rounding to
// the nearest whole currency unit first.
func (c *Client) toCents(raw int64) int64 {
	divisor := int64(1)
	for i := 0; i < c.decimals; i++ {
		divisor *= 10
	}
	wholeUnits := (raw + divisor/2) / divisor
	return wholeUnits * 100
}
