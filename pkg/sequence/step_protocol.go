package sequence

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"intentflow/pkg/chain"
	"intentflow/pkg/protocol"
)

// DepositStep calls the protocol backend to credit a deposit. It consumes the
// permit produced by the preceding signature step and, when routing preceded
// it, deposits the actually-received amount instead of the requested one.
type DepositStep struct {
	StepBase
	Spender string `json:"spender,omitempty"`
}

// NewDepositStep creates a deposit step against the chain's protocol vault
func NewDepositStep(chainID int64, tokenAddress, spender, amount string) *DepositStep {
	return &DepositStep{
		StepBase: newStepBase(KindDeposit, chainID, tokenAddress, amount),
		Spender:  spender,
	}
}

// ApprovalRequirement asks for an allowance to the protocol vault
func (s *DepositStep) ApprovalRequirement(ctx context.Context, env *Env) (*ApprovalNeed, error) {
	if s.Spender == "" || s.isNativeToken() {
		return nil, nil
	}
	return &ApprovalNeed{
		ChainID:      s.ChainID,
		TokenAddress: s.TokenAddress,
		Spender:      s.Spender,
		Amount:       s.Amount,
	}, nil
}

func (s *DepositStep) Run(ctx context.Context, env *Env) error {
	if s.TaskRef == "" {
		amount := s.Amount
		if received := env.Session.Handoff.RouteReceivedAmount; received != "" && received != amount {
			env.Logger.Info("Using route-corrected deposit amount",
				zap.String("step_id", s.StepID),
				zap.String("requested", amount),
				zap.String("received", received))
			amount = received
		}

		permit := env.Session.Handoff.Permit
		if permit == nil {
			return fmt.Errorf("step %s: %w", s.StepID, chain.ErrMissingPermitState)
		}

		taskID, err := env.Protocol.Deposit(ctx, &protocol.DepositRequest{
			OwnerAddress: env.Session.Owner().Hex(),
			TokenAddress: s.TokenAddress,
			ChainID:      s.ChainID,
			Amount:       amount,
			Permit: &protocol.PermitPayload{
				Signature: permit.Signature,
				Nonce:     permit.Nonce,
				Deadline:  permit.Deadline,
			},
		})
		if err != nil {
			return fmt.Errorf("step %s: deposit failed: %w", s.StepID, err)
		}
		s.TaskRef = taskID
	}

	s.StepStatus = StatusSubmitted
	return waitTask(ctx, env, &s.StepBase)
}

// WithdrawStep calls the protocol backend to release funds
type WithdrawStep struct {
	StepBase
}

// NewWithdrawStep creates a withdraw step on the source chain/token
func NewWithdrawStep(chainID int64, tokenAddress, amount string) *WithdrawStep {
	return &WithdrawStep{
		StepBase: newStepBase(KindWithdraw, chainID, tokenAddress, amount),
	}
}

func (s *WithdrawStep) Run(ctx context.Context, env *Env) error {
	if s.TaskRef == "" {
		taskID, err := env.Protocol.Withdraw(ctx, &protocol.WithdrawRequest{
			OwnerAddress: env.Session.Owner().Hex(),
			TokenAddress: s.TokenAddress,
			ChainID:      s.ChainID,
			Amount:       s.Amount,
		})
		if err != nil {
			return fmt.Errorf("step %s: withdraw failed: %w", s.StepID, err)
		}
		s.TaskRef = taskID
	}

	s.StepStatus = StatusSubmitted
	return waitTask(ctx, env, &s.StepBase)
}

// PayFeesStep settles all outstanding protocol fees for the connected
// account. It re-checks the balance at run time and confirms without a
// backend call when nothing is owed.
type PayFeesStep struct {
	StepBase
}

// NewPayFeesStep creates a fee settlement step
func NewPayFeesStep(chainID int64) *PayFeesStep {
	return &PayFeesStep{
		StepBase: newStepBase(KindPayFees, chainID, "", "0"),
	}
}

// IsNeeded checks outstanding fee balances. A query failure means "assume
// fees are owed" rather than propagating the error.
func (s *PayFeesStep) IsNeeded(ctx context.Context, env *Env) (bool, error) {
	fees, err := env.Protocol.OutstandingFees(ctx, env.Session.Owner().Hex())
	if err != nil {
		env.Logger.Warn("Fee balance query failed, assuming fees are owed", zap.Error(err))
		return true, nil
	}
	return anyNonZeroFee(fees), nil
}

func (s *PayFeesStep) Run(ctx context.Context, env *Env) error {
	if s.TaskRef == "" {
		needed, err := s.IsNeeded(ctx, env)
		if err != nil {
			return fmt.Errorf("step %s: %w", s.StepID, err)
		}
		if !needed {
			s.StepStatus = StatusConfirmed
			return nil
		}

		taskID, err := env.Protocol.PayFees(ctx, env.Session.Owner().Hex())
		if err != nil {
			return fmt.Errorf("step %s: fee payment failed: %w", s.StepID, err)
		}
		s.TaskRef = taskID
	}

	s.StepStatus = StatusSubmitted
	return waitTask(ctx, env, &s.StepBase)
}

func anyNonZeroFee(fees []protocol.FeeBalance) bool {
	for _, fee := range fees {
		amount, ok := new(big.Int).SetString(fee.Amount, 10)
		if ok && amount.Sign() > 0 {
			return true
		}
	}
	return false
}
