package wallet_test

import (
	"context"
	"encoding/hex"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	. "github.com/onsi/gomega"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

var (
	taskManagerAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	rewardTokenAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	recipientAddr   = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

// sendStep scripts one SendTransaction call. accept puts the transaction in
// the pool even when err is returned, as when a response is lost. consume
// advances the account nonce past the transaction without pooling it, as
// when another transaction took the nonce.
type sendStep struct {
	accept  bool
	consume bool
	err     error
}

type fakeNode struct {
	mu sync.Mutex

	chainID *big.Int

	baseFee   *big.Int
	headerErr error
	gasPrice  *big.Int
	priceErr  error
	tip       *big.Int
	tipErr    error

	estimate    uint64
	estimateErr error

	callResult []byte
	callErr    error

	pendingNonce uint64
	nonceCalls   int

	sends    []sendStep
	sent     []*types.Transaction
	pool     map[common.Hash]*types.Transaction
	lookups  int
	reverted bool
	// withholdReceipts keeps every transaction pending
	withholdReceipts bool
	gasUsed          uint64
	effectivePrice   *big.Int

	balance *big.Int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		chainID:        big.NewInt(1337),
		gasPrice:       big.NewInt(10000000000),
		estimate:       80000,
		pool:           make(map[common.Hash]*types.Transaction),
		gasUsed:        50000,
		effectivePrice: big.NewInt(1000000000),
		balance:        big.NewInt(0),
	}
}

func (f *fakeNode) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeNode) BlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

func (f *fakeNode) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return &types.Header{Number: big.NewInt(100), BaseFee: f.baseFee}, nil
}

func (f *fakeNode) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	return f.pendingNonce, nil
}

func (f *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gasPrice, f.priceErr
}

func (f *fakeNode) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip, f.tipErr
}

func (f *fakeNode) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimate, nil
}

func (f *fakeNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callResult, f.callErr
}

func (f *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, tx)

	step := sendStep{accept: true}
	if len(f.sends) > 0 {
		step = f.sends[0]
		f.sends = f.sends[1:]
	}
	if step.accept {
		f.pool[tx.Hash()] = tx
	}
	if (step.accept || step.consume) && tx.Nonce() >= f.pendingNonce {
		f.pendingNonce = tx.Nonce() + 1
	}
	return step.err
}

func (f *fakeNode) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if tx, ok := f.pool[hash]; ok {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeNode) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pool[hash]; !ok || f.withholdReceipts {
		return nil, ethereum.NotFound
	}

	status := types.ReceiptStatusSuccessful
	if f.reverted {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{
		Status:            status,
		TxHash:            hash,
		GasUsed:           f.gasUsed,
		EffectiveGasPrice: f.effectivePrice,
		BlockNumber:       big.NewInt(101),
	}, nil
}

func (f *fakeNode) Close() {}

// stallingNode pools every transaction and then withholds the send
// response: until ctx is done, or until release is closed when set.
type stallingNode struct {
	*fakeNode
	release chan struct{}
}

func (n *stallingNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := n.fakeNode.SendTransaction(ctx, tx); err != nil {
		return err
	}
	if n.release != nil {
		<-n.release
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeNode) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeNode) sentTx(i int) *types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

// recordingLedger keeps every ledger call in memory.
type recordingLedger struct {
	mu          sync.Mutex
	submissions []wallet.Submission
	outcomes    map[common.Hash]wallet.TransactionState
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{outcomes: make(map[common.Hash]wallet.TransactionState)}
}

func (l *recordingLedger) RecordSubmitted(ctx context.Context, submission wallet.Submission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissions = append(l.submissions, submission)
	return nil
}

func (l *recordingLedger) RecordOutcome(ctx context.Context, hash common.Hash, status *wallet.TransactionStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes[hash] = status.State
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRegistry() *contracts.Registry {
	registry, err := contracts.NewRegistry(1337, map[contracts.ContractName]common.Address{
		contracts.TaskManager: taskManagerAddr,
		contracts.RewardToken: rewardTokenAddr,
	})
	Expect(err).NotTo(HaveOccurred())
	return registry
}

func testKey() string {
	key, err := crypto.GenerateKey()
	Expect(err).NotTo(HaveOccurred())
	return hex.EncodeToString(crypto.FromECDSA(key))
}

// testConfig is the default configuration with millisecond timings.
func testConfig() wallet.Config {
	config := wallet.DefaultConfig()
	config.PrivateKey = testKey()
	config.Logger = quietLogger()
	config.RetryPolicy.BaseDelay = time.Millisecond
	config.RetryPolicy.MaxDelay = 5 * time.Millisecond
	config.ReceiptPollInterval = 5 * time.Millisecond
	return config
}

func newTestClient(node *fakeNode, opts ...wallet.ClientOption) *wallet.Client {
	client, err := wallet.NewClientWithNode(context.Background(), testConfig(), testRegistry(), node, opts...)
	Expect(err).NotTo(HaveOccurred())
	return client
}
