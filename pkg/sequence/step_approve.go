package sequence

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ApproveStep grants an ERC20 allowance to a spender. It always re-reads the
// live allowance before submitting, so re-entering it after a partial run is
// idempotent: a sufficient allowance confirms the step without a transaction.
type ApproveStep struct {
	StepBase
	Spender string `json:"spender"`
}

// NewApproveStep creates an approval step for (chain, token, spender, amount)
func NewApproveStep(chainID int64, tokenAddress, spender, amount string) *ApproveStep {
	return &ApproveStep{
		StepBase: newStepBase(KindApprove, chainID, tokenAddress, amount),
		Spender:  spender,
	}
}

func (s *ApproveStep) Run(ctx context.Context, env *Env) error {
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return fmt.Errorf("step %s: invalid amount %q", s.StepID, s.Amount)
	}

	reader, err := env.Session.Reader(s.ChainID)
	if err != nil {
		return fmt.Errorf("step %s: %w", s.StepID, err)
	}

	owner := env.Session.Owner()
	spender := common.HexToAddress(s.Spender)

	allowance, err := reader.Allowance(ctx, owner, s.token(), spender)
	if err != nil {
		return fmt.Errorf("step %s: failed to read allowance: %w", s.StepID, err)
	}

	if allowance.Cmp(amount) >= 0 {
		env.Logger.Info("Allowance already sufficient, skipping approve transaction",
			zap.String("step_id", s.StepID),
			zap.String("spender", s.Spender))
		s.StepStatus = StatusConfirmed
		return nil
	}

	if s.TxRef == "" {
		writer, err := env.Session.Writer(s.ChainID)
		if err != nil {
			return fmt.Errorf("step %s: %w", s.StepID, err)
		}

		txHash, err := writer.Approve(ctx, s.token(), spender, amount)
		if err != nil {
			return fmt.Errorf("step %s: approve failed: %w", s.StepID, err)
		}
		s.TxRef = txHash.Hex()
	}

	s.StepStatus = StatusSubmitted
	return waitChain(ctx, env, &s.StepBase)
}
