package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Task states reported by the protocol backend
const (
	TaskQueued    = "Queued"
	TaskRunning   = "Running"
	TaskCompleted = "Completed"
	TaskFailed    = "Failed"
)

// TaskStatus is the polled state of an asynchronous backend operation
type TaskStatus struct {
	TaskID string `json:"taskId"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// Terminal reports whether the task reached a final state
func (t *TaskStatus) Terminal() bool {
	return t.State == TaskCompleted || t.State == TaskFailed
}

// PermitPayload carries an off-chain gasless-approval signature consumed by
// the deposit call.
type PermitPayload struct {
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
	Deadline  int64  `json:"deadline"`
}

// DepositRequest asks the backend to credit a deposit
type DepositRequest struct {
	OwnerAddress string         `json:"ownerAddress"`
	TokenAddress string         `json:"tokenAddress"`
	ChainID      int64          `json:"chainId"`
	Amount       string         `json:"amount"`
	Permit       *PermitPayload `json:"permit,omitempty"`
}

// WithdrawRequest asks the backend to release funds
type WithdrawRequest struct {
	OwnerAddress string `json:"ownerAddress"`
	TokenAddress string `json:"tokenAddress"`
	ChainID      int64  `json:"chainId"`
	Amount       string `json:"amount"`
}

// FeeBalance is one outstanding fee owed by an account
type FeeBalance struct {
	TokenAddress string `json:"tokenAddress"`
	ChainID      int64  `json:"chainId"`
	Amount       string `json:"amount"`
}

type taskResponse struct {
	TaskID string `json:"taskId"`
}

// Client talks to the protocol backend over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a protocol backend client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Deposit starts a deposit operation and returns its task id
func (c *Client) Deposit(ctx context.Context, req *DepositRequest) (string, error) {
	var resp taskResponse
	if err := c.post(ctx, "/v1/deposit", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Withdraw starts a withdrawal operation and returns its task id
func (c *Client) Withdraw(ctx context.Context, req *WithdrawRequest) (string, error) {
	var resp taskResponse
	if err := c.post(ctx, "/v1/withdraw", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// PayFees settles all outstanding fees for an account and returns the task id
func (c *Client) PayFees(ctx context.Context, owner string) (string, error) {
	var resp taskResponse
	req := map[string]string{"ownerAddress": owner}
	if err := c.post(ctx, "/v1/fees/pay", req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// TaskStatus polls the state of a backend task
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var status TaskStatus
	if err := c.do(httpReq, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// OutstandingFees returns the fee balances owed by an account
func (c *Client) OutstandingFees(ctx context.Context, owner string) ([]FeeBalance, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/fees?owner="+owner, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var fees []FeeBalance
	if err := c.do(httpReq, &fees); err != nil {
		return nil, err
	}
	return fees, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("protocol backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(bodyBytes) > 0 {
			var errorResp map[string]interface{}
			if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
				if message, ok := errorResp["message"].(string); ok {
					return fmt.Errorf("protocol backend error (status %d): %s", resp.StatusCode, message)
				}
			}
			return fmt.Errorf("protocol backend error (status %d): %s", resp.StatusCode, string(bodyBytes))
		}
		return fmt.Errorf("protocol backend returned status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode protocol backend response: %w", err)
	}

	return nil
}
