package sequence

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"intentflow/pkg/chain"
	"intentflow/pkg/protocol"
	"intentflow/pkg/registry"
	"intentflow/pkg/router"
)

var (
	testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testVault = "0x2222222222222222222222222222222222222222"
	usdcMain  = "0x3333333333333333333333333333333333333333"
	usdtMain  = "0x4444444444444444444444444444444444444444"
	usdcArb   = "0x5555555555555555555555555555555555555555"
	bridgeHop = "0x6666666666666666666666666666666666666666"
)

type approvalCall struct {
	token   common.Address
	spender common.Address
	amount  *big.Int
}

type fakeChain struct {
	allowances   map[string]*big.Int
	allowanceErr error
	receiptErr   error

	allowanceReads int
	approvals      []approvalCall
	payloads       []common.Address
	signed         int
	nextNonce      int
}

func allowanceKey(token, spender common.Address) string {
	return token.Hex() + ":" + spender.Hex()
}

func addr(hex string) common.Address {
	return common.HexToAddress(hex)
}

func (c *fakeChain) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	c.allowanceReads++
	if c.allowanceErr != nil {
		return nil, c.allowanceErr
	}
	if amount, ok := c.allowances[allowanceKey(token, spender)]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (c *fakeChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (c *fakeChain) WaitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if c.receiptErr != nil {
		return nil, c.receiptErr
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, nil
}

func (c *fakeChain) Address() common.Address {
	return testOwner
}

func (c *fakeChain) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	c.approvals = append(c.approvals, approvalCall{token: token, spender: spender, amount: amount})
	// Submitting the approval makes the allowance live
	if c.allowances == nil {
		c.allowances = make(map[string]*big.Int)
	}
	c.allowances[allowanceKey(token, spender)] = new(big.Int).Set(amount)
	return c.hash(), nil
}

func (c *fakeChain) SendPayload(ctx context.Context, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	c.payloads = append(c.payloads, to)
	return c.hash(), nil
}

func (c *fakeChain) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	c.signed++
	return make([]byte, 65), nil
}

func (c *fakeChain) hash() common.Hash {
	c.nextNonce++
	return common.BigToHash(big.NewInt(int64(c.nextNonce)))
}

type fakeProvider struct {
	chains map[int64]*fakeChain
}

func (p *fakeProvider) chain(chainID int64) *fakeChain {
	if c, ok := p.chains[chainID]; ok {
		return c
	}
	c := &fakeChain{}
	p.chains[chainID] = c
	return c
}

func (p *fakeProvider) Reader(chainID int64) (chain.Reader, error) {
	return p.chain(chainID), nil
}

func (p *fakeProvider) Writer(chainID int64) (chain.Writer, error) {
	return p.chain(chainID), nil
}

type fakeRouter struct {
	route    *router.Route
	routeErr error
	statuses []*router.TransferStatus
	calls    int
}

func (r *fakeRouter) GetRoute(ctx context.Context, req *router.RouteRequest) (*router.Route, error) {
	r.calls++
	if r.routeErr != nil {
		return nil, r.routeErr
	}
	return r.route, nil
}

func (r *fakeRouter) GetTransferStatus(ctx context.Context, txHash string, fromChainID, toChainID int64) (*router.TransferStatus, error) {
	if len(r.statuses) == 0 {
		return &router.TransferStatus{Status: router.TransferStatusDone}, nil
	}
	status := r.statuses[0]
	if len(r.statuses) > 1 {
		r.statuses = r.statuses[1:]
	}
	return status, nil
}

type fakeProtocol struct {
	fees    []protocol.FeeBalance
	feesErr error
	// taskState is the terminal state handed back for every task
	taskState string
	taskError string

	deposits  []*protocol.DepositRequest
	withdraws []*protocol.WithdrawRequest
	feePays   int
	nextTask  int
}

func (p *fakeProtocol) taskID() string {
	p.nextTask++
	return fmt.Sprintf("task-%d", p.nextTask)
}

func (p *fakeProtocol) Deposit(ctx context.Context, req *protocol.DepositRequest) (string, error) {
	p.deposits = append(p.deposits, req)
	return p.taskID(), nil
}

func (p *fakeProtocol) Withdraw(ctx context.Context, req *protocol.WithdrawRequest) (string, error) {
	p.withdraws = append(p.withdraws, req)
	return p.taskID(), nil
}

func (p *fakeProtocol) PayFees(ctx context.Context, owner string) (string, error) {
	p.feePays++
	return p.taskID(), nil
}

func (p *fakeProtocol) TaskStatus(ctx context.Context, taskID string) (*protocol.TaskStatus, error) {
	state := p.taskState
	if state == "" {
		state = protocol.TaskCompleted
	}
	return &protocol.TaskStatus{TaskID: taskID, State: state, Error: p.taskError}, nil
}

func (p *fakeProtocol) OutstandingFees(ctx context.Context, owner string) ([]protocol.FeeBalance, error) {
	if p.feesErr != nil {
		return nil, p.feesErr
	}
	return p.fees, nil
}

type memStore struct {
	entries  map[string][]byte
	setCalls int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]byte)}
}

func (s *memStore) Get(key string) ([]byte, bool, error) {
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *memStore) Set(key string, value []byte) error {
	s.setCalls++
	s.entries[key] = append([]byte(nil), value...)
	return nil
}

func (s *memStore) Clear(key string) error {
	delete(s.entries, key)
	return nil
}

func testTokens() []registry.Token {
	return []registry.Token{
		{Ticker: "USDC", ChainID: 1, Address: usdcMain, Decimals: 6, CanDeposit: true, CanWithdraw: true, CanSwap: true, CanBridge: true},
		{Ticker: "USDT", ChainID: 1, Address: usdtMain, Decimals: 6, CanDeposit: true, CanWithdraw: true, CanSwap: true, CanBridge: true},
		{Ticker: "USDC", ChainID: 42161, Address: usdcArb, Decimals: 6, CanDeposit: true, CanWithdraw: true, CanSwap: true, CanBridge: true},
		{Ticker: "ETH", ChainID: 1, Address: "", Decimals: 18, CanDeposit: true, CanWithdraw: true, CanBridge: true},
		{Ticker: "PXT", ChainID: 1, Address: usdtMain, Decimals: 18},
	}
}

type testEnv struct {
	env      *Env
	provider *fakeProvider
	router   *fakeRouter
	protocol *fakeProtocol
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	provider := &fakeProvider{chains: make(map[int64]*fakeChain)}
	session, err := chain.NewSession(provider, testOwner, zap.NewNop())
	require.NoError(t, err)

	rt := &fakeRouter{}
	pc := &fakeProtocol{}

	return &testEnv{
		env: &Env{
			Session:            session,
			Router:             rt,
			Protocol:           pc,
			Registry:           registry.New(testTokens()),
			Vaults:             map[int64]string{1: testVault, 42161: testVault},
			Logger:             zap.NewNop(),
			TaskPollInterval:   time.Millisecond,
			BridgePollInterval: time.Millisecond,
		},
		provider: provider,
		router:   rt,
		protocol: pc,
	}
}

func kindsOf(steps []Step) []Kind {
	kinds := make([]Kind, 0, len(steps))
	for _, step := range steps {
		kinds = append(kinds, step.Base().StepKind)
	}
	return kinds
}

func twoLegRoute() *router.Route {
	return &router.Route{Legs: []router.Leg{
		{
			FromChainID: 1,
			ToChainID:   1,
			FromToken:   usdtMain,
			FromAmount:  "1000000",
			Estimate:    router.Estimate{ApprovalAddress: bridgeHop},
			Payload:     router.TxPayload{To: bridgeHop, Data: "0xdead"},
		},
		{
			FromChainID: 1,
			ToChainID:   42161,
			FromToken:   usdcMain,
			FromAmount:  "999000",
			Estimate:    router.Estimate{ApprovalAddress: bridgeHop},
			Payload:     router.TxPayload{To: bridgeHop, Data: "0xbeef"},
		},
	}}
}
