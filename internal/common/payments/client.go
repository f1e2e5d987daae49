package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	commonhttp "gritsync/internal/common/http"
)

// Intent statuses reported by the processor.
const (
	IntentSucceeded      = "succeeded"
	IntentProcessing     = "processing"
	IntentRequiresAction = "requires_action"
	IntentCanceled       = "canceled"
	IntentFailed         = "failed"
)

var ErrIntentNotFound = errors.New("payment intent not found")

// Intent is the processor-side record for one payment.
type Intent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// Client talks to the payment processor's intent API.
type Client struct {
	baseURL   string
	secretKey string
	http      *commonhttp.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      commonhttp.NewClient(timeout),
	}
}

// ToMinorUnits converts a decimal amount into the processor's integer minor units.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateIntent opens an intent for paymentID. The payment id doubles as the
// idempotency key so a retried job never opens a second intent.
func (c *Client) CreateIntent(ctx context.Context, paymentID string, amount float64, currency string) (*Intent, error) {
	req := createIntentRequest{
		Amount:   ToMinorUnits(amount),
		Currency: strings.ToLower(currency),
		Metadata: map[string]string{"payment_id": paymentID},
	}

	var intent Intent
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/payment_intents", c.headers(paymentID), req, &intent)
	if err != nil {
		return nil, fmt.Errorf("create intent for payment %s: %w", paymentID, err)
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return nil, fmt.Errorf("create intent for payment %s: incomplete response", paymentID)
	}
	return &intent, nil
}

func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	var intent Intent
	err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+"/payment_intents/"+url.PathEscape(intentID), c.headers(""), nil, &intent)
	if err != nil {
		var se *commonhttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("get intent %s: %w", intentID, err)
	}
	return &intent, nil
}

func (c *Client) headers(idempotencyKey string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + c.secretKey}
	if idempotencyKey != "" {
		h["Idempotency-Key"] = idempotencyKey
	}
	return h
}
