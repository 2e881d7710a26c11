package sequence

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"intentflow/pkg/router"
)

// RouteLegStep executes one hop of a route returned by the routing service.
// After the on-chain submission confirms, the bridge status is polled until
// it settles; the final leg records the actually-received destination amount
// in the session handoff for the protocol call that follows.
type RouteLegStep struct {
	StepBase
	ToChainID       int64            `json:"to_chain_id"`
	ApprovalAddress string           `json:"approval_address,omitempty"`
	Payload         router.TxPayload `json:"leg_payload"`
	FinalLeg        bool             `json:"is_final_leg"`
}

// NewRouteLegStep creates a step for one route leg
func NewRouteLegStep(leg router.Leg, finalLeg bool) *RouteLegStep {
	return &RouteLegStep{
		StepBase:        newStepBase(KindRouteLeg, leg.FromChainID, leg.FromToken, leg.FromAmount),
		ToChainID:       leg.ToChainID,
		ApprovalAddress: leg.Estimate.ApprovalAddress,
		Payload:         leg.Payload,
		FinalLeg:        finalLeg,
	}
}

// ApprovalRequirement asks for an allowance to the leg's approval target.
// Native assets have no allowance concept and need nothing.
func (s *RouteLegStep) ApprovalRequirement(ctx context.Context, env *Env) (*ApprovalNeed, error) {
	if s.ApprovalAddress == "" || s.isNativeToken() {
		return nil, nil
	}
	return &ApprovalNeed{
		ChainID:      s.ChainID,
		TokenAddress: s.TokenAddress,
		Spender:      s.ApprovalAddress,
		Amount:       s.Amount,
	}, nil
}

func (s *RouteLegStep) Run(ctx context.Context, env *Env) error {
	if s.TxRef == "" {
		writer, err := env.Session.Writer(s.ChainID)
		if err != nil {
			return fmt.Errorf("step %s: %w", s.StepID, err)
		}

		value := big.NewInt(0)
		if s.Payload.Value != "" {
			parsed, ok := new(big.Int).SetString(s.Payload.Value, 10)
			if !ok {
				return fmt.Errorf("step %s: invalid leg value %q", s.StepID, s.Payload.Value)
			}
			value = parsed
		}

		var data []byte
		if s.Payload.Data != "" {
			decoded, err := hexutil.Decode(s.Payload.Data)
			if err != nil {
				return fmt.Errorf("step %s: invalid leg calldata: %w", s.StepID, err)
			}
			data = decoded
		}

		txHash, err := writer.SendPayload(ctx, common.HexToAddress(s.Payload.To), value, data)
		if err != nil {
			return fmt.Errorf("step %s: failed to submit route leg: %w", s.StepID, err)
		}
		s.TxRef = txHash.Hex()
	}

	s.StepStatus = StatusSubmitted
	if err := waitChain(ctx, env, &s.StepBase); err != nil {
		return err
	}

	// Source receipt alone does not settle a leg; the bridge has to report a
	// terminal outcome before the sequence can move on.
	s.StepStatus = StatusConfirming
	status, err := s.waitBridge(ctx, env)
	if err != nil {
		return err
	}

	if status.Status != router.TransferStatusDone {
		return fmt.Errorf("step %s: bridge transfer failed with status %s", s.StepID, status.Status)
	}

	if s.FinalLeg && status.ReceivedAmount != "" {
		env.Session.Handoff.RouteReceivedAmount = status.ReceivedAmount
		env.Logger.Info("Final route leg settled",
			zap.String("step_id", s.StepID),
			zap.String("received_amount", status.ReceivedAmount))
	}

	s.StepStatus = StatusConfirmed
	return nil
}

func (s *RouteLegStep) waitBridge(ctx context.Context, env *Env) (*router.TransferStatus, error) {
	ticker := time.NewTicker(env.bridgePollInterval())
	defer ticker.Stop()

	for {
		status, err := env.Router.GetTransferStatus(ctx, s.TxRef, s.ChainID, s.ToChainID)
		if err != nil {
			env.Logger.Warn("Bridge status check failed, will retry",
				zap.String("step_id", s.StepID), zap.Error(err))
		} else if status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("step %s: waiting for bridge status: %w", s.StepID, ctx.Err())
		case <-ticker.C:
		}
	}
}
