package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Reader exposes the read-only chain operations steps depend on
type Reader interface {
	// Allowance returns the live ERC20 allowance for (owner, spender) on token
	Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error)
	// BalanceAt returns the native balance of an account
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	// WaitReceipt polls until the transaction receipt is available or ctx ends
	WaitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Writer exposes the signing operations steps depend on
type Writer interface {
	// Address returns the wallet address transactions are sent from
	Address() common.Address
	// Approve submits an ERC20 approve(spender, amount) transaction
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
	// SendPayload submits a raw calldata transaction (route legs)
	SendPayload(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error)
	// SignTypedData produces an EIP-712 signature over the given payload
	SignTypedData(data apitypes.TypedData) ([]byte, error)
}

// Provider hands out per-chain clients. Implementations memoize connections.
type Provider interface {
	Reader(chainID int64) (Reader, error)
	Writer(chainID int64) (Writer, error)
}
