package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/piatahub/piata-backend/pkg/config"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("netopia base url is required")
	errAPIKeyRequired  = errors.New("netopia api key is required")
)

// NetopiaProvider calls the Netopia payout/refund HTTP API. Every call runs
// under a bounded timeout; deadline hits surface as timeout provider errors.
type NetopiaProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	timeout    time.Duration
	logger     *logger.Logger
}

// NewNetopiaProvider validates credentials and builds the adapter.
func NewNetopiaProvider(cfg config.PaymentConfig, logg *logger.Logger) (*NetopiaProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &NetopiaProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
		logger:     logg,
	}, nil
}

func (p *NetopiaProvider) Name() string { return "netopia" }

type netopiaTransferRequest struct {
	ExternalID  string `json:"external_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Kind        string `json:"kind"`
}

type netopiaTransferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func (p *NetopiaProvider) ExecutePayout(ctx context.Context, payout *models.Payout) (Result, error) {
	return p.transfer(ctx, netopiaTransferRequest{
		ExternalID:  payout.ID.String(),
		AmountCents: payout.AmountCents,
		Currency:    payout.Currency.String(),
		Kind:        "payout",
	})
}

func (p *NetopiaProvider) ExecuteRefund(ctx context.Context, refund *models.Refund) (Result, error) {
	return p.transfer(ctx, netopiaTransferRequest{
		ExternalID:  refund.ID.String(),
		AmountCents: refund.AmountCents,
		Currency:    refund.Currency.String(),
		Kind:        "refund",
	})
}

func (p *NetopiaProvider) transfer(ctx context.Context, payload netopiaTransferRequest) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, NewProviderError("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return Result{}, NewProviderError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, NewTimeoutError(err)
		}
		return Result{}, NewProviderError("transport failure", err)
	}
	defer resp.Body.Close()

	var decoded netopiaTransferResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, NewProviderError("decode response", err)
	}

	if resp.StatusCode != http.StatusOK || !strings.EqualFold(decoded.Status, "confirmed") {
		reason := decoded.Message
		if reason == "" {
			reason = fmt.Sprintf("provider status %d", resp.StatusCode)
		}
		return Result{}, NewProviderError(reason, nil)
	}
	if decoded.Reference == "" {
		return Result{}, NewProviderError("missing provider reference", nil)
	}

	return Result{ProviderRef: decoded.Reference}, nil
}
