package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoRouteFound is returned when the routing service has no path for the
// requested transfer. An empty leg list is treated the same way.
var ErrNoRouteFound = errors.New("no route found")

// RouteRequest describes the transfer a route is requested for
type RouteRequest struct {
	FromChainID      int64  `json:"fromChainId"`
	ToChainID        int64  `json:"toChainId"`
	FromTokenAddress string `json:"fromTokenAddress"`
	ToTokenAddress   string `json:"toTokenAddress"`
	FromAmount       string `json:"fromAmount"`
	FromAddress      string `json:"fromAddress"`
}

// TxPayload is the ready-to-send transaction for one route leg
type TxPayload struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// Estimate carries per-leg execution details from the routing service
type Estimate struct {
	ApprovalAddress string `json:"approvalAddress,omitempty"`
	ToAmount        string `json:"toAmount,omitempty"`
}

// Leg is one on-chain hop within a route
type Leg struct {
	FromChainID int64     `json:"fromChainId"`
	ToChainID   int64     `json:"toChainId"`
	FromToken   string    `json:"fromToken"`
	FromAmount  string    `json:"fromAmount"`
	Estimate    Estimate  `json:"estimate"`
	Payload     TxPayload `json:"transactionPayload"`
}

// Route is the ordered list of legs to execute
type Route struct {
	Legs []Leg `json:"legs"`
}

// Bridge transfer status values reported by the routing service
const (
	TransferStatusPending = "PENDING"
	TransferStatusDone    = "DONE"
	TransferStatusFailed  = "FAILED"
)

// TransferStatus is the state of one bridged leg, polled after submission
type TransferStatus struct {
	Status         string `json:"status"`
	ReceivedAmount string `json:"receivedAmount,omitempty"`
	ReceivedToken  string `json:"receivedToken,omitempty"`
	DestTxHash     string `json:"destTxHash,omitempty"`
}

// Terminal reports whether the transfer reached a final state
func (s *TransferStatus) Terminal() bool {
	return s.Status == TransferStatusDone || s.Status == TransferStatusFailed
}

// Client talks to the routing service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a routing service client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetRoute requests the best execution route for a transfer
func (c *Client) GetRoute(ctx context.Context, req *RouteRequest) (*Route, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal route request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/route", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var route Route
	if err := c.do(httpReq, &route); err != nil {
		return nil, err
	}

	if len(route.Legs) == 0 {
		return nil, ErrNoRouteFound
	}

	return &route, nil
}

// GetTransferStatus polls the bridge status of a submitted leg by its source
// transaction hash.
func (c *Client) GetTransferStatus(ctx context.Context, txHash string, fromChainID, toChainID int64) (*TransferStatus, error) {
	q := url.Values{}
	q.Set("txHash", txHash)
	q.Set("fromChainId", strconv.FormatInt(fromChainID, 10))
	q.Set("toChainId", strconv.FormatInt(toChainID, 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/status?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var status TransferStatus
	if err := c.do(httpReq, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("routing service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError("routing service", resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode routing service response: %w", err)
	}

	return nil
}

// apiError extracts the actual error message from a non-2xx response body
func apiError(service string, resp *http.Response) error {
	bodyBytes, readErr := io.ReadAll(resp.Body)
	if readErr == nil && len(bodyBytes) > 0 {
		var errorResp map[string]interface{}
		if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
			if message, ok := errorResp["message"].(string); ok {
				return fmt.Errorf("%s error (status %d): %s", service, resp.StatusCode, message)
			}
			if errs, ok := errorResp["errors"]; ok {
				return fmt.Errorf("%s error (status %d): %v", service, resp.StatusCode, errs)
			}
		}
		return fmt.Errorf("%s error (status %d): %s", service, resp.StatusCode, string(bodyBytes))
	}
	return fmt.Errorf("%s returned status code %d", service, resp.StatusCode)
}
