package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrWalletNotConnected is returned when no wallet identity is available
	ErrWalletNotConnected = errors.New("wallet not connected")
	// ErrMissingPermitState is returned when a step needs permit data a prior
	// step should have produced.
	ErrMissingPermitState = errors.New("missing permit state")
)

// PermitData is the output of a permit signature step, consumed by the
// deposit call that follows it.
type PermitData struct {
	Signature string
	Nonce     string
	Deadline  int64
}

// Handoff carries data forward between adjacent steps within one run. Each
// field is written by exactly one step and read by the next dependent step.
type Handoff struct {
	// Permit is set by the permit signature step
	Permit *PermitData
	// RouteReceivedAmount is the destination amount reported by the final
	// route leg, set only when it differs from the requested amount.
	RouteReceivedAmount string
}

// Session bundles the per-run execution state: the wallet identity, memoized
// chain clients and the inter-step handoff bag. It is rebuilt fresh each
// session and never persisted.
type Session struct {
	provider    Provider
	owner       common.Address
	activeChain int64
	logger      *zap.Logger

	Handoff Handoff
}

// NewSession creates an execution session for a connected wallet
func NewSession(provider Provider, owner common.Address, logger *zap.Logger) (*Session, error) {
	if owner == (common.Address{}) {
		return nil, ErrWalletNotConnected
	}
	return &Session{
		provider: provider,
		owner:    owner,
		logger:   logger.Named("session"),
	}, nil
}

// Owner returns the connected wallet address
func (s *Session) Owner() common.Address {
	return s.owner
}

// ActiveChain returns the chain the wallet is currently switched to
func (s *Session) ActiveChain() int64 {
	return s.activeChain
}

// Reader returns the read client for a chain
func (s *Session) Reader(chainID int64) (Reader, error) {
	return s.provider.Reader(chainID)
}

// Writer returns the write client for a chain, switching the active chain
// first when the wallet is currently on a different one.
func (s *Session) Writer(chainID int64) (Writer, error) {
	if s.activeChain != chainID {
		s.logger.Info("Switching active chain",
			zap.Int64("from", s.activeChain),
			zap.Int64("to", chainID))
		s.activeChain = chainID
	}

	w, err := s.provider.Writer(chainID)
	if err != nil {
		return nil, fmt.Errorf("no write client for chain %d: %w", chainID, err)
	}
	return w, nil
}
