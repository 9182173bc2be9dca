// Package gateway is the payment-provider boundary. Inbound deposit
// callbacks are applied idempotently keyed on the provider receipt;
// outbound disbursements carry an explicit timeout and bounded retry,
// since they sit outside the ledger's unit of work and cannot be
// rolled back once accepted.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"wekeza.org/internal/ledger"
	"wekeza.org/internal/obs"
)

// ErrDisbursementFailed wraps every terminal outbound failure.
var ErrDisbursementFailed = errors.New("gateway: disbursement failed")

// DepositCallback is the inbound payload for a confirmed deposit.
type DepositCallback struct {
	MemberID string          `json:"member_id"`
	Amount   decimal.Decimal `json:"amount"`
	Receipt  string          `json:"receipt"`
	Phone    string          `json:"phone_number"`
}

// Disburser sends money out to a phone number.
type Disburser interface {
	Disburse(ctx context.Context, amount decimal.Decimal, phone string) (receipt string, err error)
}

// Client is the HTTP disbursement client.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		retries: 3,
		backoff: 500 * time.Millisecond,
	}
}

type disburseRequest struct {
	Amount string `json:"amount"`
	Phone  string `json:"phone_number"`
}

type disburseResponse struct {
	Receipt string `json:"receipt"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Disburse posts a B2C request, retrying transient failures with a
// linear backoff. A non-2xx terminal answer or exhausted retries
// return ErrDisbursementFailed.
func (c *Client) Disburse(ctx context.Context, amount decimal.Decimal, phone string) (string, error) {
	body, err := json.Marshal(disburseRequest{Amount: amount.StringFixed(2), Phone: phone})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrDisbursementFailed, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
		receipt, retryable, err := c.attempt(ctx, body)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrDisbursementFailed, lastErr)
}

func (c *Client) attempt(ctx context.Context, body []byte) (receipt string, retryable bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/b2c/disburse", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out disburseResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", false, err
		}
		return out.Receipt, false, nil
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("gateway returned %d", resp.StatusCode)
	default:
		return "", false, fmt.Errorf("gateway rejected request with %d", resp.StatusCode)
	}
}

// DepositProcessor applies confirmed deposits to the main wallet.
type DepositProcessor struct {
	wallet ledger.Service
}

func NewDepositProcessor(wallet ledger.Service) *DepositProcessor {
	return &DepositProcessor{wallet: wallet}
}

// Process credits the member's main wallet. The provider receipt is
// the idempotency key, so a callback delivered twice credits once.
func (p *DepositProcessor) Process(ctx context.Context, cb DepositCallback) (ledger.Transaction, error) {
	if cb.Receipt == "" || cb.MemberID == "" {
		return ledger.Transaction{}, ledger.ErrValidation
	}
	tx, err := p.wallet.AddFunds(ctx, ledger.MutationInput{
		OwnerID:         cb.MemberID,
		Domain:          ledger.DomainMain,
		Amount:          cb.Amount,
		Type:            ledger.TypeDeposit,
		Description:     "mobile money deposit",
		IdempotencyKey:  "mpesa-deposit-" + cb.Receipt,
		ExternalReceipt: cb.Receipt,
		Metadata:        map[string]string{"phone_number": cb.Phone},
	})
	if err != nil {
		obs.LogJSON(map[string]any{
			"type":    "gateway",
			"event":   "deposit_failed",
			"receipt": cb.Receipt,
			"error":   err.Error(),
		})
		return ledger.Transaction{}, err
	}
	return tx, nil
}
