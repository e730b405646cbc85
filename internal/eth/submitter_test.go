package eth

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	c.mu.Unlock()
	return nil
}

// fakeRPCError mimics a JSON-RPC error response as surfaced by the rpc client.
type fakeRPCError struct {
	code int
	msg  string
	data any
}

func (e *fakeRPCError) Error() string  { return e.msg }
func (e *fakeRPCError) ErrorCode() int { return e.code }
func (e *fakeRPCError) ErrorData() any { return e.data }

type fakeBackend struct {
	mu sync.Mutex

	chainID      *big.Int
	chainIDCalls int
	pendingNonce uint64
	gasPrice     *big.Int

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt

	// mine controls what happens to a successfully sent tx: nil receipt => stays pending.
	mine func(tx *types.Transaction) *types.Receipt

	sendErr     error
	estimateErr error
	receiptErr  error
	estimates   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:  big.NewInt(1337),
		gasPrice: big.NewInt(1_000_000_000),
		receipts: make(map[common.Hash]*types.Receipt),
		mine: func(tx *types.Transaction) *types.Receipt {
			return &types.Receipt{TxHash: tx.Hash(), Status: types.ReceiptStatusSuccessful, GasUsed: 21000, BlockNumber: big.NewInt(1)}
		},
	}
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingNonce, nil
}

func (b *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *fakeBackend) ChainID(_ context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chainIDCalls++
	return new(big.Int).Set(b.chainID), nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estimates++
	if b.estimateErr != nil {
		return 0, b.estimateErr
	}
	return 21000, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	if tx.Nonce() != b.pendingNonce {
		return &fakeRPCError{code: -32000, msg: "nonce too high"}
	}
	b.sent = append(b.sent, tx)
	b.pendingNonce++
	if r := b.mine(tx); r != nil {
		b.receipts[tx.Hash()] = r
	}
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	if r, ok := b.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func testSigner(t *testing.T) *LocalSigner {
	t.Helper()
	key, err := crypto.HexToECDSA("16bd6f1fafed1f1f1ae9d27db97064589be7207946735225782f5726f4195f85")
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	return NewLocalSigner(key)
}

func newTestSubmitter(t *testing.T, backend Backend, clock *fakeClock, mutate func(*SubmitterConfig)) *Submitter {
	t.Helper()
	cfg := SubmitterConfig{
		ReceiptPollInterval: time.Second,
		ConfirmTimeout:      10 * time.Second,
		Now:                 clock.Now,
		Sleep:               clock.Sleep,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSubmitter(backend, cfg)
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	return s
}

func TestSubmitter_FillsTransactionAndWaitsForReceipt(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.pendingNonce = 4
	clock := &fakeClock{now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestSubmitter(t, backend, clock, nil)
	signer := testSigner(t)

	to := common.HexToAddress("0x0000000000000000000000000000000000001000")
	res, err := s.Submit(ctx, signer, TxRequest{To: &to, Value: big.NewInt(1000), Data: []byte{0x1b, 0x9f, 0xec, 0x7d}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("expected success, receipt=%+v", res.Receipt)
	}
	if res.Nonce != 4 || res.From != signer.Address() {
		t.Fatalf("result: %+v", res)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.sent) != 1 {
		t.Fatalf("sent: got %d want 1", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Type() != types.LegacyTxType {
		t.Fatalf("tx type: got %d want legacy", tx.Type())
	}
	if tx.Gas() != DefaultGasLimit {
		t.Fatalf("gas: got %d want %d", tx.Gas(), DefaultGasLimit)
	}
	if tx.GasPrice().Cmp(backend.gasPrice) != 0 {
		t.Fatalf("gas price: got %s want %s", tx.GasPrice(), backend.gasPrice)
	}
	if tx.ChainId().Cmp(backend.chainID) != 0 {
		t.Fatalf("chain id: got %s want %s", tx.ChainId(), backend.chainID)
	}
	if tx.Value().Int64() != 1000 || *tx.To() != to {
		t.Fatalf("value/to: %s %s", tx.Value(), tx.To())
	}
	from, err := types.Sender(types.LatestSignerForChainID(backend.chainID), tx)
	if err != nil || from != signer.Address() {
		t.Fatalf("sender: got %s err %v", from, err)
	}
	if res.TxHash != tx.Hash() {
		t.Fatalf("hash: got %s want %s", res.TxHash, tx.Hash())
	}
}

func TestSubmitter_CachesChainID(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, nil)
	signer := testSigner(t)
	to := common.HexToAddress("0x01")

	for i := 0; i < 3; i++ {
		if _, err := s.Submit(ctx, signer, TxRequest{To: &to}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if backend.chainIDCalls != 1 {
		t.Fatalf("ChainID calls: got %d want 1", backend.chainIDCalls)
	}
}

func TestSubmitter_MinedRevertIsNotAnError(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.mine = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{TxHash: tx.Hash(), Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)}
	}
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, nil)
	to := common.HexToAddress("0x01")

	res, err := s.Submit(ctx, testSigner(t), TxRequest{To: &to})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Succeeded() {
		t.Fatalf("expected status 0")
	}
}

func TestSubmitter_RejectionCarriesNodeMessageAndFreesNonce(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.pendingNonce = 2
	backend.sendErr = &fakeRPCError{code: -32000, msg: "account not activated"}
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, nil)
	signer := testSigner(t)
	to := common.HexToAddress("0x01")

	_, err := s.Submit(ctx, signer, TxRequest{To: &to, Value: big.NewInt(1000)})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got := Reason(err); got != "account not activated" {
		t.Fatalf("reason: got %q", got)
	}

	backend.mu.Lock()
	backend.sendErr = nil
	backend.mu.Unlock()

	res, err := s.Submit(ctx, signer, TxRequest{To: &to})
	if err != nil {
		t.Fatalf("Submit after rejection: %v", err)
	}
	if res.Nonce != 2 {
		t.Fatalf("nonce after rejection: got %d want 2", res.Nonce)
	}
}

func TestSubmitter_PreflightRevertIsRejectedBeforeSigning(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.estimateErr = &fakeRPCError{
		code: 3,
		msg:  "execution reverted",
		data: "0x" + common.Bytes2Hex(revertPayload(t, "Ownable: caller is not the owner")),
	}
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, func(c *SubmitterConfig) { c.Preflight = true })
	to := common.HexToAddress("0x0000000000000000000000000000000000001000")

	_, err := s.Submit(ctx, testSigner(t), TxRequest{To: &to})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got, want := Reason(err), "execution reverted: Ownable: caller is not the owner"; got != want {
		t.Fatalf("reason: got %q want %q", got, want)
	}
	if !isRevert(err) {
		t.Fatalf("expected a revert")
	}
	if len(backend.sent) != 0 {
		t.Fatalf("sent: got %d want 0", len(backend.sent))
	}
}

func TestSubmitter_ConfirmationTimesOut(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.mine = func(*types.Transaction) *types.Receipt { return nil }
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := newTestSubmitter(t, backend, clock, nil)
	to := common.HexToAddress("0x01")

	res, err := s.Submit(ctx, testSigner(t), TxRequest{To: &to})
	if !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}
	if (res.TxHash == common.Hash{}) {
		t.Fatalf("expected tx hash on timeout")
	}
	if clock.sleeps != 10 {
		t.Fatalf("polls: got %d want 10", clock.sleeps)
	}
}

func TestSubmitter_DroppedTransactionLeavesNoNonceGap(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.mine = func(*types.Transaction) *types.Receipt { return nil }
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := newTestSubmitter(t, backend, clock, nil)
	signer := testSigner(t)
	to := common.HexToAddress("0x01")

	if _, err := s.Submit(ctx, signer, TxRequest{To: &to}); !errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("expected ErrConfirmationTimeout, got %v", err)
	}

	// The node evicts the unmined transaction.
	backend.mu.Lock()
	backend.pendingNonce = 0
	backend.sent = nil
	backend.mine = newFakeBackend().mine
	backend.mu.Unlock()

	res, err := s.Submit(ctx, signer, TxRequest{To: &to})
	if err != nil {
		t.Fatalf("Submit after drop: %v", err)
	}
	if res.Nonce != 0 {
		t.Fatalf("nonce after drop: got %d want 0", res.Nonce)
	}
}

func TestSubmitter_AdoptsNodeNonceWhenAhead(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.pendingNonce = 3
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, nil)
	signer := testSigner(t)
	to := common.HexToAddress("0x01")

	if _, err := s.Submit(ctx, signer, TxRequest{To: &to}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Another process sent from the same account with nonce 4 and 5.
	backend.mu.Lock()
	backend.pendingNonce = 6
	backend.mu.Unlock()

	res, err := s.Submit(ctx, signer, TxRequest{To: &to})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Nonce != 6 {
		t.Fatalf("nonce: got %d want 6", res.Nonce)
	}
}

func TestSubmitter_TransportErrorIsNotRetried(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	backend.receiptErr = errors.New("dial tcp 127.0.0.1:8575: connection refused")
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, nil)
	to := common.HexToAddress("0x01")

	_, err := s.Submit(ctx, testSigner(t), TxRequest{To: &to})
	if err == nil || errors.Is(err, ErrRejected) || errors.Is(err, ErrConfirmationTimeout) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if clock.sleeps != 0 {
		t.Fatalf("polls: got %d want 0", clock.sleeps)
	}
}

func TestSubmitter_SerializesSameAccount(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	clock := &fakeClock{}
	s := newTestSubmitter(t, backend, clock, nil)
	signer := testSigner(t)
	to := common.HexToAddress("0x01")

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Submit(ctx, signer, TxRequest{To: &to}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Submit: %v", err)
	}

	seen := make(map[uint64]bool)
	for _, tx := range backend.sent {
		if seen[tx.Nonce()] {
			t.Fatalf("nonce %d used twice", tx.Nonce())
		}
		seen[tx.Nonce()] = true
	}
	if len(seen) != n {
		t.Fatalf("distinct nonces: got %d want %d", len(seen), n)
	}
}

func TestSubmitter_RejectsNegativeValue(t *testing.T) {
	s := newTestSubmitter(t, newFakeBackend(), &fakeClock{}, nil)
	to := common.HexToAddress("0x01")
	if _, err := s.Submit(context.Background(), testSigner(t), TxRequest{To: &to, Value: big.NewInt(-1)}); !errors.Is(err, ErrInvalidTxRequest) {
		t.Fatalf("expected ErrInvalidTxRequest, got %v", err)
	}
}

func TestNewSubmitter_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewSubmitter(nil, SubmitterConfig{}); !errors.Is(err, ErrInvalidSubmitterConfig) {
		t.Fatalf("nil backend: got %v", err)
	}
	if _, err := NewSubmitter(newFakeBackend(), SubmitterConfig{ChainID: big.NewInt(0)}); !errors.Is(err, ErrInvalidSubmitterConfig) {
		t.Fatalf("zero chain id: got %v", err)
	}
	if _, err := NewSubmitter(newFakeBackend(), SubmitterConfig{ConfirmTimeout: -time.Second}); !errors.Is(err, ErrInvalidSubmitterConfig) {
		t.Fatalf("negative timeout: got %v", err)
	}
}
