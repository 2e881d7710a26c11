package sequence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"intentflow/pkg/chain"
)

const permitValidity = time.Hour

// PermitSignatureStep produces an off-chain typed-data signature authorizing
// the protocol to pull funds. Signatures are single-use, so this step is never
// skipped; the result is handed forward to the deposit step through the
// session handoff.
type PermitSignatureStep struct {
	StepBase
	Spender string `json:"spender"`
}

// NewPermitSignatureStep creates a permit step for the given spender
func NewPermitSignatureStep(chainID int64, tokenAddress, spender, amount string) *PermitSignatureStep {
	return &PermitSignatureStep{
		StepBase: newStepBase(KindPermitSignature, chainID, tokenAddress, amount),
		Spender:  spender,
	}
}

func (s *PermitSignatureStep) Run(ctx context.Context, env *Env) error {
	writer, err := env.Session.Writer(s.ChainID)
	if err != nil {
		return fmt.Errorf("step %s: %w", s.StepID, err)
	}

	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	deadline := time.Now().Add(permitValidity).Unix()

	typedData := permitTypedData(s.ChainID, s.TokenAddress, writer.Address().Hex(), s.Spender, s.Amount, nonce, deadline)

	signature, err := writer.SignTypedData(typedData)
	if err != nil {
		return fmt.Errorf("step %s: failed to sign permit: %w", s.StepID, err)
	}

	env.Session.Handoff.Permit = &chain.PermitData{
		Signature: hexutil.Encode(signature),
		Nonce:     nonce,
		Deadline:  deadline,
	}

	// Pure off-chain computation, nothing to wait on
	s.StepStatus = StatusConfirmed
	return nil
}

func permitTypedData(chainID int64, token, owner, spender, amount, nonce string, deadline int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              "Permit",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: token,
		},
		Message: apitypes.TypedDataMessage{
			"owner":    owner,
			"spender":  spender,
			"value":    amount,
			"nonce":    nonce,
			"deadline": strconv.FormatInt(deadline, 10),
		},
	}
}
