package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes one registered token on one chain, including which
// protocol operations it is allowed to participate in.
type Token struct {
	Ticker   string `json:"ticker"`
	ChainID  int64  `json:"chain_id"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`

	// Operation capability flags
	CanDeposit  bool `json:"can_deposit"`
	CanWithdraw bool `json:"can_withdraw"`
	CanSwap     bool `json:"can_swap"`
	CanBridge   bool `json:"can_bridge"`
}

// IsNative reports whether the token is the chain's native asset. Native
// assets use the zero address sentinel and have no allowance concept.
func (t *Token) IsNative() bool {
	return t.Address == "" || common.HexToAddress(t.Address) == (common.Address{})
}

// Registry resolves ticker+chain pairs to token metadata
type Registry struct {
	tokens map[string]*Token
}

func key(ticker string, chainID int64) string {
	return fmt.Sprintf("%s:%d", strings.ToUpper(ticker), chainID)
}

// New builds a registry from a token list, typically fed from configuration
func New(tokens []Token) *Registry {
	r := &Registry{tokens: make(map[string]*Token, len(tokens))}
	for i := range tokens {
		t := tokens[i]
		t.Ticker = strings.ToUpper(t.Ticker)
		r.tokens[key(t.Ticker, t.ChainID)] = &t
	}
	return r
}

// Lookup returns the token registered for a ticker on a chain
func (r *Registry) Lookup(ticker string, chainID int64) (*Token, error) {
	t, ok := r.tokens[key(ticker, chainID)]
	if !ok {
		return nil, fmt.Errorf("token %q not found on chain %d", strings.ToUpper(ticker), chainID)
	}
	return t, nil
}

// List returns all registered tokens
func (r *Registry) List() []*Token {
	out := make([]*Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	return out
}
