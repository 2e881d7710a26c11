package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
)

// ChainConfig describes one EVM network the provider can connect to
type ChainConfig struct {
	ChainID  int64
	Name     string
	RPCURL   string
	GasLimit *uint64
}

const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const receiptPollInterval = 3 * time.Second

// EVMProvider memoizes one connected client per configured chain
type EVMProvider struct {
	configs    map[int64]ChainConfig
	privateKey *ecdsa.PrivateKey
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[int64]*evmClient
}

// NewEVMProvider creates a provider for the configured chains. Connections
// are dialed lazily on first use.
func NewEVMProvider(configs []ChainConfig, privateKeyHex string, logger *zap.Logger) (*EVMProvider, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	byID := make(map[int64]ChainConfig, len(configs))
	for _, cfg := range configs {
		if cfg.RPCURL == "" {
			return nil, fmt.Errorf("RPC URL not configured for chain %d", cfg.ChainID)
		}
		byID[cfg.ChainID] = cfg
	}

	return &EVMProvider{
		configs:    byID,
		privateKey: privateKey,
		logger:     logger.Named("evm"),
		clients:    make(map[int64]*evmClient),
	}, nil
}

// OperatorAddress returns the address derived from the configured key
func (p *EVMProvider) OperatorAddress() (common.Address, error) {
	publicKey, ok := p.privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to get public key")
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}

// Reader returns the read client for a chain
func (p *EVMProvider) Reader(chainID int64) (Reader, error) {
	return p.client(chainID)
}

// Writer returns the write client for a chain
func (p *EVMProvider) Writer(chainID int64) (Writer, error) {
	return p.client(chainID)
}

func (p *EVMProvider) client(chainID int64) (*evmClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[chainID]; ok {
		return c, nil
	}

	cfg, ok := p.configs[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d not configured", chainID)
	}

	ethClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint for chain %d: %w", chainID, err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	publicKey, ok := p.privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to get public key")
	}

	c := &evmClient{
		config:      cfg,
		client:      ethClient,
		privateKey:  p.privateKey,
		fromAddress: crypto.PubkeyToAddress(*publicKey),
		erc20:       parsedABI,
		logger:      p.logger.With(zap.Int64("chain_id", chainID)),
	}
	p.clients[chainID] = c

	c.logger.Info("EVM client initialized",
		zap.String("chain_name", cfg.Name),
		zap.String("operator_address", c.fromAddress.Hex()))

	return c, nil
}

// Close closes all dialed connections
func (p *EVMProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.client.Close()
	}
	p.clients = make(map[int64]*evmClient)
}

// evmClient implements Reader and Writer for one chain
type evmClient struct {
	config      ChainConfig
	client      *ethclient.Client
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
	erc20       abi.ABI
	logger      *zap.Logger
}

func (c *evmClient) Address() common.Address {
	return c.fromAddress
}

// Allowance reads the live ERC20 allowance via eth_call
func (c *evmClient) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	data, err := c.erc20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance data: %w", err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

func (c *evmClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// WaitReceipt polls for the transaction receipt until it is available. A
// receipt with a failed status is an error.
func (c *evmClient) WaitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", txHash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Approve submits an ERC20 approve transaction
func (c *evmClient) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := c.erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return c.SendPayload(ctx, token, big.NewInt(0), data)
}

// SendPayload signs and submits a raw calldata transaction
func (c *evmClient) SendPayload(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if value != nil && value.Sign() > 0 {
		balance, err := c.client.BalanceAt(ctx, c.fromAddress, nil)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get balance: %w", err)
		}
		if balance.Cmp(value) < 0 {
			return common.Hash{}, fmt.Errorf("insufficient balance: have %s, need %s", balance.String(), value.String())
		}
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.fromAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := c.gasLimit(ctx, to, value, data)
	if err != nil {
		return common.Hash{}, err
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(big.NewInt(c.config.ChainID)), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction submitted",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("to", to.Hex()))

	return signedTx.Hash(), nil
}

func (c *evmClient) gasLimit(ctx context.Context, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if c.config.GasLimit != nil {
		return *c.config.GasLimit, nil
	}

	if len(data) == 0 {
		return 21000, nil
	}

	msg := ethereum.CallMsg{From: c.fromAddress, To: &to, Value: value, Data: data}
	estimated, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return estimated * 120 / 100, nil
}

// SignTypedData hashes an EIP-712 payload and signs the digest
func (c *evmClient) SignTypedData(typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	signature, err := crypto.Sign(digest, c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	// Shift V from 0/1 to the 27/28 convention verifiers expect
	signature[64] += 27

	return signature, nil
}
