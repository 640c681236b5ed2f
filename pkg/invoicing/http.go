package invoicing

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
	"github.com/piatahub/piata-backend/pkg/logger"
)

var (
	errInvoicingBaseURL = errors.New("invoicing base url is required")
	errInvoicingToken   = errors.New("invoicing token is required")
)

// httpProvider covers the SmartBill and Facturis REST shapes; both accept a
// JSON document request and return series/number/pdf fields.
type httpProvider struct {
	name       string
	path       string
	httpClient *http.Client
	baseURL    string
	username   string
	token      string
	series     string
	logger     *logger.Logger
}

func newHTTPProvider(name, path string, cfg config.InvoicingConfig, logg *logger.Logger) (*httpProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errInvoicingBaseURL
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errInvoicingToken
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &httpProvider{
		name:       name,
		path:       path,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		username:   strings.TrimSpace(cfg.Username),
		token:      token,
		series:     cfg.Series,
		logger:     logg,
	}, nil
}

func (p *httpProvider) Name() string { return p.name }

type documentRequest struct {
	ExternalID    string `json:"external_id"`
	Kind          string `json:"kind"`
	Series        string `json:"series"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
	CustomerRef   string `json:"customer_ref,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}

type documentResponse struct {
	Series  string `json:"series"`
	Number  string `json:"number"`
	PDFURL  string `json:"pdf_url"`
	Message string `json:"message"`
}

func (p *httpProvider) CreateInvoice(ctx context.Context, input InvoiceInput) (Document, error) {
	series := input.Series
	if series == "" {
		series = p.series
	}
	doc, err := p.create(ctx, documentRequest{
		ExternalID:  input.OrderID.String(),
		Kind:        "invoice:" + input.Type.String(),
		Series:      series,
		TotalCents:  input.TotalCents,
		Currency:    input.Currency.String(),
		CustomerRef: input.CustomerRef,
	})
	if err != nil {
		return Document{}, err
	}
	doc.TotalCents = input.TotalCents
	return doc, nil
}

func (p *httpProvider) CreateReceipt(ctx context.Context, input ReceiptInput) (Document, error) {
	series := input.Series
	if series == "" {
		series = p.series
	}
	doc, err := p.create(ctx, documentRequest{
		ExternalID:    input.OrderID.String(),
		Kind:          "receipt",
		Series:        series,
		TotalCents:    input.TotalCents,
		Currency:      input.Currency.String(),
		PaymentMethod: input.PaymentMethod,
		PaymentRef:    input.PaymentRef,
	})
	if err != nil {
		return Document{}, err
	}
	doc.TotalCents = input.TotalCents
	return doc, nil
}

func (p *httpProvider) create(ctx context.Context, payload documentRequest) (Document, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s request: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("build %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.username != "" {
		req.SetBasicAuth(p.username, p.token)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("%s call: %w", p.name, err)
	}
	defer resp.Body.Close()

	var decoded documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Document{}, fmt.Errorf("decode %s response: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := decoded.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return Document{}, fmt.Errorf("%s issuance failed: %s", p.name, msg)
	}
	if decoded.Number == "" {
		return Document{}, fmt.Errorf("%s response missing document number", p.name)
	}

	return Document{
		Series: decoded.Series,
		Number: decoded.Number,
		PDFURL: decoded.PDFURL,
		Issuer: p.name,
	}, nil
}
