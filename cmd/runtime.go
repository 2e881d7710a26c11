package cmd

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"intentflow/config"
	"intentflow/pkg/chain"
	"intentflow/pkg/protocol"
	"intentflow/pkg/registry"
	"intentflow/pkg/router"
	"intentflow/pkg/sequence"
	"intentflow/pkg/store"
)

// runtime wires the configured services together for one command invocation
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *registry.Registry
	store      store.Store
	controller *sequence.Controller
	owner      string
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "file":
		return store.NewFileStore(cfg.FilePath)
	case "redis":
		return store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newRegistry(cfg *config.Config) *registry.Registry {
	tokens := make([]registry.Token, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens = append(tokens, registry.Token{
			Ticker:      t.Ticker,
			ChainID:     t.ChainID,
			Address:     t.Address,
			Decimals:    t.Decimals,
			CanDeposit:  t.CanDeposit,
			CanWithdraw: t.CanWithdraw,
			CanSwap:     t.CanSwap,
			CanBridge:   t.CanBridge,
		})
	}
	return registry.New(tokens)
}

// buildRuntime loads configuration and constructs the full execution stack
func buildRuntime(verbose bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	chains := make([]chain.ChainConfig, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains = append(chains, chain.ChainConfig{
			ChainID:  c.ChainID,
			Name:     c.Name,
			RPCURL:   c.RPCURL,
			GasLimit: c.GasLimit,
		})
	}

	provider, err := chain.NewEVMProvider(chains, cfg.PrivateKey, logger)
	if err != nil {
		return nil, err
	}

	owner, err := provider.OperatorAddress()
	if err != nil {
		return nil, err
	}

	session, err := chain.NewSession(provider, owner, logger)
	if err != nil {
		return nil, err
	}

	vaults, err := cfg.VaultAddresses()
	if err != nil {
		return nil, err
	}

	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	reg := newRegistry(cfg)

	env := &sequence.Env{
		Session:  session,
		Router:   router.NewClient(cfg.RouterURL),
		Protocol: protocol.NewClient(cfg.ProtocolURL),
		Registry: reg,
		Vaults:   vaults,
		Logger:   logger,
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		store:      st,
		controller: sequence.NewController(st, env, logger),
		owner:      owner.Hex(),
	}, nil
}

// toAtomic converts a human amount to the token's smallest unit
func toAtomic(amount string, decimals uint8) (string, error) {
	value, ok := new(big.Float).SetString(amount)
	if !ok {
		return "", fmt.Errorf("invalid amount format: %s", amount)
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	atomic, _ := new(big.Float).Mul(value, scale).Int(nil)

	if atomic.Sign() <= 0 {
		return "", fmt.Errorf("amount must be greater than 0")
	}

	return atomic.String(), nil
}
