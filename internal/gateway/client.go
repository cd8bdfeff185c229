// Package gateway содержит клиент платёжного шлюза мобильных денег.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmeshcher/ticketing-settlement/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Client выполняет HTTP-запросы к платёжному шлюзу.
type Client struct {
	baseURL    string
	apiUser    string
	apiKey     string
	httpClient *http.Client
}

// PaymentRequest описывает запрос ссылки на оплату у шлюза.
type PaymentRequest struct {
	Amount      int64  `json:"amount"`
	Email       string `json:"email,omitempty"`
	UserID      string `json:"userId,omitempty"`
	ExternalID  string `json:"externalId"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Message     string `json:"message,omitempty"`
}

// PaymentLink описывает ответ шлюза на инициацию платежа.
type PaymentLink struct {
	Message       string `json:"message"`
	Link          string `json:"link"`
	TransID       string `json:"transId"`
	DateInitiated string `json:"dateInitiated"`
}

// Transaction описывает платёж с точки зрения шлюза.
type Transaction struct {
	TransID          string `json:"transId"`
	Status           string `json:"status"`
	Medium           string `json:"medium"`
	Amount           int64  `json:"amount"`
	ExternalID       string `json:"externalId"`
	FinancialTransID string `json:"financialTransId"`
}

// StatusError возвращается, если шлюз ответил статусом вне диапазона 2xx.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway responded with status %d: %s", e.StatusCode, e.Message)
}

// ErrNotConfigured возвращается клиентом без базового URL.
var ErrNotConfigured = errors.New("payment gateway not configured")

// NewClient создаёт клиент шлюза. При нулевом таймауте используется десять секунд.
func NewClient(baseURL, apiUser, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		apiUser: apiUser,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// InitiatePayment запрашивает ссылку на оплату заказа с идентификатором req.ExternalID.
func (c *Client) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentLink, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var link PaymentLink
	if err := c.do(ctx, "initiate_pay", http.MethodPost, "/initiate-pay", bytes.NewReader(body), &link); err != nil {
		return nil, err
	}
	if link.Link == "" || link.TransID == "" {
		return nil, fmt.Errorf("incomplete gateway response: %+v", link)
	}
	return &link, nil
}

// PaymentStatus запрашивает у шлюза достоверный статус транзакции.
func (c *Client) PaymentStatus(ctx context.Context, transID string) (*Transaction, error) {
	var tx Transaction
	path := "/payment-status/" + url.PathEscape(transID)
	if err := c.do(ctx, "payment_status", http.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, out any) (err error) {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.GatewayRequestDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apiuser", c.apiUser)
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &StatusError{StatusCode: resp.StatusCode, Message: payload.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
