package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeposit(t *testing.T) {
	var gotReq DepositRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/deposit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(taskResponse{TaskID: "task-1"})
	}))
	defer server.Close()

	taskID, err := NewClient(server.URL).Deposit(context.Background(), &DepositRequest{
		OwnerAddress: "0xaaa",
		TokenAddress: "0xbbb",
		ChainID:      1,
		Amount:       "1000000",
		Permit:       &PermitPayload{Signature: "0xsig", Nonce: "7", Deadline: 99},
	})
	require.NoError(t, err)
	require.Equal(t, "task-1", taskID)

	require.Equal(t, "0xaaa", gotReq.OwnerAddress)
	require.NotNil(t, gotReq.Permit)
	require.Equal(t, "0xsig", gotReq.Permit.Signature)
}

func TestWithdraw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/withdraw", r.URL.Path)
		json.NewEncoder(w).Encode(taskResponse{TaskID: "task-2"})
	}))
	defer server.Close()

	taskID, err := NewClient(server.URL).Withdraw(context.Background(), &WithdrawRequest{
		OwnerAddress: "0xaaa",
		TokenAddress: "0xbbb",
		ChainID:      1,
		Amount:       "500000",
	})
	require.NoError(t, err)
	require.Equal(t, "task-2", taskID)
}

func TestPayFees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/fees/pay", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0xaaa", body["ownerAddress"])
		json.NewEncoder(w).Encode(taskResponse{TaskID: "task-3"})
	}))
	defer server.Close()

	taskID, err := NewClient(server.URL).PayFees(context.Background(), "0xaaa")
	require.NoError(t, err)
	require.Equal(t, "task-3", taskID)
}

func TestTaskStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/tasks/task-1", r.URL.Path)
		json.NewEncoder(w).Encode(TaskStatus{TaskID: "task-1", State: TaskFailed, Error: "boom"})
	}))
	defer server.Close()

	status, err := NewClient(server.URL).TaskStatus(context.Background(), "task-1")
	require.NoError(t, err)
	require.True(t, status.Terminal())
	require.Equal(t, "boom", status.Error)
}

func TestOutstandingFees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/fees", r.URL.Path)
		require.Equal(t, "0xaaa", r.URL.Query().Get("owner"))
		json.NewEncoder(w).Encode([]FeeBalance{{TokenAddress: "0xbbb", ChainID: 1, Amount: "250"}})
	}))
	defer server.Close()

	fees, err := NewClient(server.URL).OutstandingFees(context.Background(), "0xaaa")
	require.NoError(t, err)
	require.Len(t, fees, 1)
	require.Equal(t, "250", fees[0].Amount)
}

func TestErrorMessageExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"deposit already pending"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Deposit(context.Background(), &DepositRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "deposit already pending")
	require.Contains(t, err.Error(), "409")
}

func TestTaskStatusTerminal(t *testing.T) {
	require.False(t, (&TaskStatus{State: TaskQueued}).Terminal())
	require.False(t, (&TaskStatus{State: TaskRunning}).Terminal())
	require.True(t, (&TaskStatus{State: TaskCompleted}).Terminal())
	require.True(t, (&TaskStatus{State: TaskFailed}).Terminal())
}
