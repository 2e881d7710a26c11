package types

import (
	"fmt"
	"math/big"
	"strings"
)

// IntentKind identifies what the user wants to do with their funds
type IntentKind string

const (
	IntentDeposit  IntentKind = "deposit"
	IntentWithdraw IntentKind = "withdraw"
)

// Intent represents a user's high-level transfer goal. It is created once per
// submission and never mutated; the sequence builder expands it into steps.
type Intent struct {
	Kind         IntentKind `json:"kind"`
	OwnerAddress string     `json:"owner_address"`
	SourceChain  int64      `json:"source_chain"`
	DestChain    int64      `json:"dest_chain"`
	SourceTicker string     `json:"source_ticker,omitempty"`
	DestTicker   string     `json:"dest_ticker"`
	// AmountAtomic is the amount in the token's smallest unit, decimal-encoded
	AmountAtomic string `json:"amount_atomic"`
}

// NewIntent builds an intent, defaulting the source ticker to the destination
// ticker when it is not given.
func NewIntent(kind IntentKind, owner string, sourceChain, destChain int64, sourceTicker, destTicker, amountAtomic string) *Intent {
	if sourceTicker == "" {
		sourceTicker = destTicker
	}
	return &Intent{
		Kind:         kind,
		OwnerAddress: owner,
		SourceChain:  sourceChain,
		DestChain:    destChain,
		SourceTicker: strings.ToUpper(sourceTicker),
		DestTicker:   strings.ToUpper(destTicker),
		AmountAtomic: amountAtomic,
	}
}

// NeedsRouting returns true when the funds have to cross chains or tokens
// before the protocol call can happen.
func (in *Intent) NeedsRouting() bool {
	return in.SourceChain != in.DestChain || in.SourceTicker != in.DestTicker
}

// Validate checks that the intent has all required fields
func (in *Intent) Validate() error {
	if in.Kind != IntentDeposit && in.Kind != IntentWithdraw {
		return fmt.Errorf("unsupported intent kind: %q", in.Kind)
	}
	if in.OwnerAddress == "" {
		return fmt.Errorf("owner address is required")
	}
	if in.SourceChain == 0 {
		return fmt.Errorf("source chain is required")
	}
	if in.DestChain == 0 {
		return fmt.Errorf("destination chain is required")
	}
	if in.DestTicker == "" {
		return fmt.Errorf("destination token is required")
	}
	amount, ok := new(big.Int).SetString(in.AmountAtomic, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", in.AmountAtomic)
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	return nil
}
