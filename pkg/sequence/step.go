package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"intentflow/pkg/chain"
	"intentflow/pkg/protocol"
	"intentflow/pkg/registry"
	"intentflow/pkg/router"
)

// Status is the lifecycle state of a step. It only moves forward:
// pending -> waiting_for_user -> submitted -> confirming -> confirmed|failed,
// or straight from pending to confirmed for steps with nothing to wait on.
type Status string

const (
	StatusPending        Status = "pending"
	StatusWaitingForUser Status = "waiting_for_user"
	StatusSubmitted      Status = "submitted"
	StatusConfirming     Status = "confirming"
	StatusConfirmed      Status = "confirmed"
	StatusFailed         Status = "failed"
)

// Terminal reports whether the status can never transition again
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Incomplete reports whether the step still wants execution
func (s Status) Incomplete() bool {
	switch s {
	case StatusPending, StatusWaitingForUser, StatusSubmitted, StatusConfirming:
		return true
	}
	return false
}

// Kind identifies the concrete step variant
type Kind string

const (
	KindApprove         Kind = "approve"
	KindPermitSignature Kind = "permit_signature"
	KindRouteLeg        Kind = "route_leg"
	KindDeposit         Kind = "deposit"
	KindWithdraw        Kind = "withdraw"
	KindPayFees         Kind = "pay_fees"
)

// prerequisites maps a core step kind to the prerequisite kinds it requires,
// in the order they must run. The builder consults this table, never the
// concrete step types.
var prerequisites = map[Kind][]Kind{
	KindDeposit:  {KindApprove, KindPermitSignature},
	KindWithdraw: {KindPayFees},
	KindRouteLeg: {KindApprove},
}

// Router is the routing service surface the sequence package depends on
type Router interface {
	GetRoute(ctx context.Context, req *router.RouteRequest) (*router.Route, error)
	GetTransferStatus(ctx context.Context, txHash string, fromChainID, toChainID int64) (*router.TransferStatus, error)
}

// Protocol is the protocol backend surface the sequence package depends on
type Protocol interface {
	Deposit(ctx context.Context, req *protocol.DepositRequest) (string, error)
	Withdraw(ctx context.Context, req *protocol.WithdrawRequest) (string, error)
	PayFees(ctx context.Context, owner string) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*protocol.TaskStatus, error)
	OutstandingFees(ctx context.Context, owner string) ([]protocol.FeeBalance, error)
}

// TokenRegistry resolves intent tickers to token metadata
type TokenRegistry interface {
	Lookup(ticker string, chainID int64) (*registry.Token, error)
}

// Default polling cadence for asynchronous completion checks
const (
	DefaultTaskPollInterval   = 5 * time.Second
	DefaultBridgePollInterval = 15 * time.Second
)

// Env bundles the execution context and external services steps run against
type Env struct {
	Session  *chain.Session
	Router   Router
	Protocol Protocol
	Registry TokenRegistry
	// Vaults maps chain id to the protocol contract deposits are approved for
	Vaults map[int64]string
	Logger *zap.Logger

	TaskPollInterval   time.Duration
	BridgePollInterval time.Duration
}

func (e *Env) taskPollInterval() time.Duration {
	if e.TaskPollInterval > 0 {
		return e.TaskPollInterval
	}
	return DefaultTaskPollInterval
}

func (e *Env) bridgePollInterval() time.Duration {
	if e.BridgePollInterval > 0 {
		return e.BridgePollInterval
	}
	return DefaultBridgePollInterval
}

// ApprovalNeed describes the allowance a step requires before it can run
type ApprovalNeed struct {
	ChainID      int64
	TokenAddress string
	Spender      string
	Amount       string
}

// Step is one atomic executable unit within a sequence. Run mutates the
// step's own status and references in place.
type Step interface {
	Base() *StepBase
	// ApprovalRequirement returns the allowance this step needs, or nil
	ApprovalRequirement(ctx context.Context, env *Env) (*ApprovalNeed, error)
	// IsNeeded reports whether the step has anything to do at all
	IsNeeded(ctx context.Context, env *Env) (bool, error)
	Run(ctx context.Context, env *Env) error
}

// StepBase carries the fields shared by every step variant
type StepBase struct {
	StepID       string `json:"id"`
	StepKind     Kind   `json:"kind"`
	ChainID      int64  `json:"chain_id"`
	TokenAddress string `json:"token_address"`
	// Amount in the token's smallest unit, decimal-encoded
	Amount     string `json:"amount"`
	StepStatus Status `json:"status"`
	TxRef      string `json:"tx_ref,omitempty"`
	TaskRef    string `json:"task_ref,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newStepBase(kind Kind, chainID int64, tokenAddress, amount string) StepBase {
	return StepBase{
		StepID:       uuid.New().String(),
		StepKind:     kind,
		ChainID:      chainID,
		TokenAddress: tokenAddress,
		Amount:       amount,
		StepStatus:   StatusPending,
	}
}

func (b *StepBase) Base() *StepBase { return b }

// ApprovalRequirement defaults to none; approval-gated variants override
func (b *StepBase) ApprovalRequirement(ctx context.Context, env *Env) (*ApprovalNeed, error) {
	return nil, nil
}

// IsNeeded defaults to true; PAY_FEES overrides with a balance check
func (b *StepBase) IsNeeded(ctx context.Context, env *Env) (bool, error) {
	return true, nil
}

// token returns the step's token as an address
func (b *StepBase) token() common.Address {
	return common.HexToAddress(b.TokenAddress)
}

// isNativeToken reports whether the step's token is the native-asset sentinel
func (b *StepBase) isNativeToken() bool {
	return b.TokenAddress == "" || b.token() == (common.Address{})
}

// waitChain waits submission out on-chain: receipt polling, then confirmed
func waitChain(ctx context.Context, env *Env, b *StepBase) error {
	reader, err := env.Session.Reader(b.ChainID)
	if err != nil {
		return err
	}

	b.StepStatus = StatusConfirming
	if _, err := reader.WaitReceipt(ctx, common.HexToHash(b.TxRef)); err != nil {
		return fmt.Errorf("step %s: %w", b.StepID, err)
	}

	b.StepStatus = StatusConfirmed
	return nil
}

// waitTask polls a backend task handle until it settles
func waitTask(ctx context.Context, env *Env, b *StepBase) error {
	b.StepStatus = StatusConfirming

	ticker := time.NewTicker(env.taskPollInterval())
	defer ticker.Stop()

	for {
		status, err := env.Protocol.TaskStatus(ctx, b.TaskRef)
		if err != nil {
			env.Logger.Warn("Task status check failed, will retry",
				zap.String("task_id", b.TaskRef), zap.Error(err))
		} else if status.Terminal() {
			if status.State == protocol.TaskFailed {
				reason := status.Error
				if reason == "" {
					reason = "task failed"
				}
				return fmt.Errorf("step %s: task %s: %s", b.StepID, b.TaskRef, reason)
			}
			b.StepStatus = StatusConfirmed
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("step %s: waiting for task %s: %w", b.StepID, b.TaskRef, ctx.Err())
		case <-ticker.C:
		}
	}
}
