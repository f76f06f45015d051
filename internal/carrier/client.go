package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/vastraline/fulfillment/pkg/errors"
)

// Doer abstracts the HTTP client so the carrier client can run behind a
// circuit breaker in production and against httptest servers in tests.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the carrier's external API with bearer-token auth.
type Client struct {
	http    Doer
	tokens  *TokenManager
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a carrier API client.
func NewClient(httpClient Doer, tokens *TokenManager, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    httpClient,
		tokens:  tokens,
		baseURL: baseURL,
		logger:  logger,
	}
}

// CreateOrder registers an adhoc order with the carrier.
func (c *Client) CreateOrder(ctx context.Context, payload *OrderPayload) (*CreateOrderResponse, error) {
	if err := payload.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	var out CreateOrderResponse
	if err := c.callWithAuth(ctx, http.MethodPost, "/v1/external/orders/create/adhoc", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignAWB asks the carrier to assign a waybill to a shipment.
func (c *Client) AssignAWB(ctx context.Context, req *AssignAWBRequest) (*AssignAWBResponse, error) {
	var out AssignAWBResponse
	if err := c.callWithAuth(ctx, http.MethodPost, "/v1/external/courier/assign/awb", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPickup schedules courier pickup for the given carrier shipment IDs.
func (c *Client) RequestPickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	var out PickupResponse
	if err := c.callWithAuth(ctx, http.MethodPost, "/v1/external/courier/generate/pickup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackByAWB fetches tracking data for a waybill number.
func (c *Client) TrackByAWB(ctx context.Context, awb string) (*TrackingResponse, error) {
	var out TrackingResponse
	path := "/v1/external/courier/track/awb/" + url.PathEscape(awb)
	if err := c.callWithAuth(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackByOrderID fetches the carrier's view of an order by its carrier order ID.
func (c *Client) TrackByOrderID(ctx context.Context, carrierOrderID string) (*TrackingResponse, error) {
	var out TrackingResponse
	path := "/v1/external/orders/show/" + url.PathEscape(carrierOrderID)
	if err := c.callWithAuth(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Serviceability lists couriers able to serve a pickup/delivery lane.
func (c *Client) Serviceability(ctx context.Context, req *ServiceabilityRequest) (*ServiceabilityResponse, error) {
	q := url.Values{}
	q.Set("pickup_postcode", req.PickupPostcode)
	q.Set("delivery_postcode", req.DeliveryPostcode)
	q.Set("weight", strconv.FormatFloat(req.WeightKg, 'f', -1, 64))
	cod := "0"
	if req.COD {
		cod = "1"
	}
	q.Set("cod", cod)

	var out ServiceabilityResponse
	path := "/v1/external/courier/serviceability/?" + q.Encode()
	if err := c.callWithAuth(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel cancels carrier orders by their carrier order IDs.
func (c *Client) Cancel(ctx context.Context, carrierOrderIDs []string) error {
	req := CancelRequest{IDs: carrierOrderIDs}
	return c.callWithAuth(ctx, http.MethodPost, "/v1/external/orders/cancel", &req, nil)
}

// callWithAuth executes one authenticated carrier call. On a 401 it refreshes
// the token and retries exactly once; a second 401 is a hard auth failure,
// never a third attempt.
func (c *Client) callWithAuth(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal carrier request: %w", err)
		}
	}

	resp, err := c.doOnce(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.WarnContext(ctx, "carrier rejected token, refreshing",
			slog.String("path", path),
		)
		if _, err := c.tokens.Refresh(ctx); err != nil {
			return err
		}

		resp, err = c.doOnce(ctx, method, path, payload)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return apperrors.Unauthorized("carrier authentication failed after token refresh")
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.Upstream("carrier", fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Upstream("carrier", fmt.Errorf("decode %s response: %w", path, err))
		}
	}

	return nil
}

// doOnce builds and executes a single authenticated request.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader = http.NoBody
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create carrier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, apperrors.Upstream("carrier", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
