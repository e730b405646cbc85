package eth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultReceiptPollInterval = time.Second
	DefaultConfirmTimeout      = 2 * time.Minute
)

var (
	ErrInvalidSubmitterConfig = errors.New("eth: invalid submitter config")
	ErrInvalidTxRequest       = errors.New("eth: invalid tx request")

	// ErrConfirmationTimeout means the transaction was broadcast but no receipt appeared before
	// the confirmation deadline. The transaction may still be mined later.
	ErrConfirmationTimeout = errors.New("eth: confirmation timed out")
)

type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type SubmitterConfig struct {
	// ChainID is fetched from the node once when nil.
	ChainID *big.Int

	// GasLimit is the fixed ceiling attached to every transaction. Defaults to DefaultGasLimit.
	GasLimit uint64

	// MinGasPrice floors the node's suggested gas price. Optional.
	MinGasPrice *big.Int

	// Preflight simulates each transaction with eth_estimateGas before signing so that reverts
	// surface as RejectedError carrying the revert reason instead of a mined status-0 receipt.
	Preflight bool

	ReceiptPollInterval time.Duration
	ConfirmTimeout      time.Duration

	// Locker guards the per-account nonce/sign/broadcast/wait sequence. Defaults to a KeyedMutex.
	Locker AccountLocker

	Logger *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// TxRequest is an unsigned transaction intent. Nonce, gas limit, gas price and chain id are filled
// in by the Submitter right before signing.
type TxRequest struct {
	To    *common.Address // nil deploys a contract
	Value *big.Int        // nil means zero
	Data  []byte
}

func (r TxRequest) value() *big.Int {
	if r.Value == nil {
		return new(big.Int)
	}
	return r.Value
}

type SendResult struct {
	From     common.Address
	Nonce    uint64
	GasPrice *big.Int
	TxHash   common.Hash
	Receipt  *types.Receipt
}

// Succeeded reports whether the transaction was mined with status 1.
func (r SendResult) Succeeded() bool {
	return r.Receipt != nil && r.Receipt.Status == types.ReceiptStatusSuccessful
}

// Submitter signs, broadcasts and confirms transactions for any number of accounts.
//
// Submissions from the same account are serialized; different accounts proceed concurrently.
type Submitter struct {
	backend Backend
	cfg     SubmitterConfig
	log     *slog.Logger

	mu      sync.Mutex
	chainID *big.Int
	nonces  map[common.Address]*accountNonces
}

func NewSubmitter(backend Backend, cfg SubmitterConfig) (*Submitter, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidSubmitterConfig)
	}
	if cfg.ChainID != nil && cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id must be > 0", ErrInvalidSubmitterConfig)
	}
	if cfg.MinGasPrice != nil && cfg.MinGasPrice.Sign() < 0 {
		return nil, fmt.Errorf("%w: min gas price must be >= 0", ErrInvalidSubmitterConfig)
	}
	if cfg.ReceiptPollInterval < 0 || cfg.ConfirmTimeout < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrInvalidSubmitterConfig)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.ReceiptPollInterval == 0 {
		cfg.ReceiptPollInterval = DefaultReceiptPollInterval
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.Locker == nil {
		cfg.Locker = NewKeyedMutex()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Submitter{
		backend: backend,
		cfg:     cfg,
		log:     log,
		chainID: cfg.ChainID,
		nonces:  make(map[common.Address]*accountNonces),
	}, nil
}

// ChainID returns the configured chain id, fetching and caching it on first use.
func (s *Submitter) ChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	id := s.chainID
	s.mu.Unlock()
	if id != nil {
		return new(big.Int).Set(id), nil
	}

	id, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth: fetch chain id: %w", err)
	}
	if id == nil || id.Sign() <= 0 {
		return nil, fmt.Errorf("eth: node reported invalid chain id %v", id)
	}

	s.mu.Lock()
	s.chainID = id
	s.mu.Unlock()
	return new(big.Int).Set(id), nil
}

func (s *Submitter) accountNonces(addr common.Address) *accountNonces {
	s.mu.Lock()
	defer s.mu.Unlock()
	an, ok := s.nonces[addr]
	if !ok {
		an = newAccountNonces(s.backend, addr)
		s.nonces[addr] = an
	}
	return an
}

// Submit fills, signs and broadcasts req from signer's account and blocks until a receipt is
// observed or the confirmation deadline passes.
//
// A transaction that is mined but reverts is not an error: the result carries a status-0 receipt
// and the caller decides. Node refusals are returned as *RejectedError.
func (s *Submitter) Submit(ctx context.Context, signer Signer, req TxRequest) (SendResult, error) {
	if signer == nil {
		return SendResult{}, ErrInvalidSigner
	}
	from := signer.Address()
	if (from == common.Address{}) {
		return SendResult{}, ErrInvalidSigner
	}
	value := req.value()
	if value.Sign() < 0 {
		return SendResult{}, fmt.Errorf("%w: negative value", ErrInvalidTxRequest)
	}

	unlock, err := s.cfg.Locker.Lock(ctx, from)
	if err != nil {
		return SendResult{}, fmt.Errorf("eth: lock account %s: %w", from, err)
	}
	defer unlock()

	chainID, err := s.ChainID(ctx)
	if err != nil {
		return SendResult{}, err
	}

	suggested, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("eth: suggest gas price: %w", err)
	}
	gasPrice, err := CalcGasPrice(suggested, s.cfg.MinGasPrice)
	if err != nil {
		return SendResult{}, err
	}

	if s.cfg.Preflight {
		_, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       req.To,
			Gas:      s.cfg.GasLimit,
			GasPrice: gasPrice,
			Value:    value,
			Data:     req.Data,
		})
		if err != nil {
			if isRevert(err) {
				s.log.Debug("preflight reverted", "from", from, "to", req.To, "reason", Reason(err))
			}
			return SendResult{}, AsRejection("preflight", err)
		}
	}

	nonces := s.accountNonces(from)
	nonce, err := nonces.reserve(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("eth: fetch nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      s.cfg.GasLimit,
		To:       req.To,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		nonces.release(nonce)
		return SendResult{}, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		if isNonceRefusal(err) {
			nonces.forget()
		} else {
			nonces.release(nonce)
		}
		return SendResult{}, AsRejection("send", err)
	}

	h := signed.Hash()
	s.log.Debug("broadcast", "from", from, "nonce", nonce, "tx", h, "gas_price", gasPrice)

	receipt, err := s.waitReceipt(ctx, h)
	if err != nil {
		nonces.forget()
		return SendResult{From: from, Nonce: nonce, GasPrice: gasPrice, TxHash: h}, err
	}
	s.log.Debug("mined", "tx", h, "status", receipt.Status, "gas_used", receipt.GasUsed, "block", receipt.BlockNumber)

	return SendResult{
		From:     from,
		Nonce:    nonce,
		GasPrice: gasPrice,
		TxHash:   h,
		Receipt:  receipt,
	}, nil
}

func (s *Submitter) waitReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	deadline := s.cfg.Now().Add(s.cfg.ConfirmTimeout)
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, h)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("eth: poll receipt %s: %w", h, err)
		}
		if !s.cfg.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmationTimeout, h, s.cfg.ConfirmTimeout)
		}
		if err := s.cfg.Sleep(ctx, s.cfg.ReceiptPollInterval); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
