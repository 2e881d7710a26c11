package sequence

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"intentflow/pkg/router"
	"intentflow/pkg/types"
)

// ErrUnsupportedIntentKind is returned for intents the builder cannot expand
var ErrUnsupportedIntentKind = errors.New("unsupported intent kind")

// Build expands an intent into a dependency-correct, ordered step list.
// Prerequisite steps are injected immediately before the core step that
// declared them, in declaration order, and only when on-chain state requires
// them. Routing service errors propagate unchanged.
func Build(ctx context.Context, intent *types.Intent, env *Env) (*Sequence, error) {
	core, err := coreSteps(ctx, intent, env)
	if err != nil {
		return nil, err
	}

	steps, err := resolvePrerequisites(ctx, core, env)
	if err != nil {
		return nil, err
	}

	return New(steps), nil
}

func coreSteps(ctx context.Context, intent *types.Intent, env *Env) ([]Step, error) {
	switch intent.Kind {
	case types.IntentDeposit:
		return depositSteps(ctx, intent, env)
	case types.IntentWithdraw:
		return withdrawSteps(intent, env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedIntentKind, intent.Kind)
	}
}

func depositSteps(ctx context.Context, intent *types.Intent, env *Env) ([]Step, error) {
	destToken, err := env.Registry.Lookup(intent.DestTicker, intent.DestChain)
	if err != nil {
		return nil, err
	}
	if !destToken.CanDeposit {
		return nil, fmt.Errorf("token %s on chain %d does not support deposits", destToken.Ticker, destToken.ChainID)
	}

	var steps []Step

	if intent.NeedsRouting() {
		srcToken, err := env.Registry.Lookup(intent.SourceTicker, intent.SourceChain)
		if err != nil {
			return nil, err
		}
		if intent.SourceChain != intent.DestChain && !srcToken.CanBridge {
			return nil, fmt.Errorf("token %s on chain %d does not support bridging", srcToken.Ticker, srcToken.ChainID)
		}
		if intent.SourceTicker != intent.DestTicker && !srcToken.CanSwap {
			return nil, fmt.Errorf("token %s on chain %d does not support swaps", srcToken.Ticker, srcToken.ChainID)
		}

		route, err := env.Router.GetRoute(ctx, &router.RouteRequest{
			FromChainID:      intent.SourceChain,
			ToChainID:        intent.DestChain,
			FromTokenAddress: srcToken.Address,
			ToTokenAddress:   destToken.Address,
			FromAmount:       intent.AmountAtomic,
			FromAddress:      intent.OwnerAddress,
		})
		if err != nil {
			return nil, err
		}

		for i, leg := range route.Legs {
			steps = append(steps, NewRouteLegStep(leg, i == len(route.Legs)-1))
		}
	}

	steps = append(steps, NewDepositStep(intent.DestChain, destToken.Address, env.Vaults[intent.DestChain], intent.AmountAtomic))

	return steps, nil
}

func withdrawSteps(intent *types.Intent, env *Env) ([]Step, error) {
	srcToken, err := env.Registry.Lookup(intent.SourceTicker, intent.SourceChain)
	if err != nil {
		return nil, err
	}
	if !srcToken.CanWithdraw {
		return nil, fmt.Errorf("token %s on chain %d does not support withdrawals", srcToken.Ticker, srcToken.ChainID)
	}

	return []Step{NewWithdrawStep(intent.SourceChain, srcToken.Address, intent.AmountAtomic)}, nil
}

// resolvePrerequisites injects each core step's prerequisites immediately
// before it. Approvals already covered by the live allowance are not emitted,
// and one approval per (chain, token, spender) triple is enough for the whole
// sequence. Permit signatures are single-use and always emitted.
func resolvePrerequisites(ctx context.Context, core []Step, env *Env) ([]Step, error) {
	emittedApprovals := make(map[string]bool)
	out := make([]Step, 0, len(core))

	for _, step := range core {
		for _, kind := range prerequisites[step.Base().StepKind] {
			switch kind {
			case KindApprove:
				need, err := step.ApprovalRequirement(ctx, env)
				if err != nil {
					return nil, err
				}
				if need == nil {
					continue
				}

				key := fmt.Sprintf("%d:%s:%s", need.ChainID, need.TokenAddress, need.Spender)
				if emittedApprovals[key] {
					continue
				}

				if allowanceCovers(ctx, env, need) {
					continue
				}

				out = append(out, NewApproveStep(need.ChainID, need.TokenAddress, need.Spender, need.Amount))
				emittedApprovals[key] = true

			case KindPermitSignature:
				base := step.Base()
				out = append(out, NewPermitSignatureStep(base.ChainID, base.TokenAddress, permitSpender(step), base.Amount))

			case KindPayFees:
				fees := NewPayFeesStep(step.Base().ChainID)
				needed, err := fees.IsNeeded(ctx, env)
				if err != nil {
					return nil, err
				}
				if needed {
					out = append(out, fees)
				}
			}
		}
		out = append(out, step)
	}

	return out, nil
}

// allowanceCovers reads the live allowance for a requirement. A read failure
// is treated as "not covered" so the approve step is emitted and can re-check
// at run time.
func allowanceCovers(ctx context.Context, env *Env, need *ApprovalNeed) bool {
	amount, ok := parseAmount(need.Amount)
	if !ok {
		return false
	}

	reader, err := env.Session.Reader(need.ChainID)
	if err != nil {
		env.Logger.Warn("No read client for allowance check, emitting approve step",
			zap.Int64("chain_id", need.ChainID), zap.Error(err))
		return false
	}

	allowance, err := reader.Allowance(ctx, env.Session.Owner(),
		common.HexToAddress(need.TokenAddress), common.HexToAddress(need.Spender))
	if err != nil {
		env.Logger.Warn("Allowance check failed, emitting approve step",
			zap.String("token", need.TokenAddress), zap.Error(err))
		return false
	}

	return allowance.Cmp(amount) >= 0
}

func parseAmount(s string) (*big.Int, bool) {
	return new(big.Int).SetString(s, 10)
}

func permitSpender(step Step) string {
	if deposit, ok := step.(*DepositStep); ok {
		return deposit.Spender
	}
	return ""
}
