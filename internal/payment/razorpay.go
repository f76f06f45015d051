package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/vastraline/fulfillment/pkg/errors"
	"github.com/vastraline/fulfillment/pkg/httpclient"
)

// RazorpayGateway implements Gateway against the Razorpay Orders API.
type RazorpayGateway struct {
	client    *httpclient.Client
	baseURL   string
	keyID     string
	keySecret string
	logger    *slog.Logger
}

// NewRazorpayGateway creates a Razorpay-backed payment gateway.
func NewRazorpayGateway(client *httpclient.Client, baseURL, keyID, keySecret string, logger *slog.Logger) *RazorpayGateway {
	return &RazorpayGateway{
		client:    client,
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		logger:    logger,
	}
}

// Name returns the provider name.
func (g *RazorpayGateway) Name() string {
	return "razorpay"
}

type razorpayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// CreateOrder registers an order with Razorpay using basic auth.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, input *CreateOrderInput) (*ProviderOrder, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   input.Amount,
		Currency: input.Currency,
		Receipt:  input.Receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal razorpay order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create razorpay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return nil, apperrors.Upstream(g.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.Upstream(g.Name(), fmt.Errorf("create order returned status %d: %s", resp.StatusCode, respBody))
	}

	var order ProviderOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, apperrors.Upstream(g.Name(), fmt.Errorf("decode order response: %w", err))
	}
	if order.ID == "" {
		return nil, apperrors.Upstream(g.Name(), fmt.Errorf("order response contained no id"))
	}

	return &order, nil
}

// VerifySignature checks the payment signature Razorpay sends back to the
// client after checkout: hex(HMAC-SHA256(secret, orderID + "|" + paymentID)).
// Comparison is constant-time.
func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
