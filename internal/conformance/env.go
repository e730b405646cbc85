// Package conformance drives the system contracts of a live node through a catalogue of
// scenarios and checks every observable outcome against the reference models in kyc and policy.
package conformance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/carbontec-pub-org/contract-tests/internal/contracts"
	"github.com/carbontec-pub-org/contract-tests/internal/eth"
)

// Keys of the genesis accounts of the development network.
const (
	DevAlphaKey  = "16bd6f1fafed1f1f1ae9d27db97064589be7207946735225782f5726f4195f85"
	DevAdminKey  = "4f3432f05f0f66fc2ba987acc522499ee29bc20201617a54cc5f992549a3ce65"
	DevCentreKey = "ed4c65f1bf6c622f5954ff39932c192b26a963abcc65d56f9487d4cabe9301f1"
)

const DefaultMaxLevel uint64 = 3

var ErrInvalidConfig = errors.New("conformance: invalid config")

// Backend is the node surface the suite needs. *ethclient.Client satisfies it.
type Backend interface {
	eth.Backend
	bind.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type EnvConfig struct {
	// Alpha funds every generated account.
	Alpha eth.Signer
	// Admin holds the KYC contract's default admin role.
	Admin eth.Signer
	// Centre is the long-lived KYC centre.
	Centre eth.Signer

	// Funding is sent to each generated account. Defaults to 1 ether.
	Funding *big.Int

	// MaxLevel bounds the KYC levels whose prices seed the reference model.
	MaxLevel uint64

	Logger *slog.Logger
}

// Env is the shared, read-only context handed to every scenario.
type Env struct {
	client    Backend
	submitter contracts.Submitter
	set       contracts.Set
	cfg       EnvConfig
	log       *slog.Logger

	// centreMu serializes the check-then-grant of the long-lived centre's role.
	centreMu sync.Mutex
}

// NodeInfo is what Check learned about the node.
type NodeInfo struct {
	ChainID  *big.Int
	Head     uint64
	HeadHash common.Hash
	Fee      *big.Int
}

func NewEnv(client Backend, sub contracts.Submitter, set contracts.Set, cfg EnvConfig) (*Env, error) {
	if client == nil || sub == nil {
		return nil, fmt.Errorf("%w: nil client or submitter", ErrInvalidConfig)
	}
	if set.Fee == nil || set.KYC == nil || set.Filter == nil {
		return nil, fmt.Errorf("%w: incomplete contract set", ErrInvalidConfig)
	}
	if cfg.Alpha == nil || cfg.Admin == nil || cfg.Centre == nil {
		return nil, fmt.Errorf("%w: alpha, admin and centre signers are required", ErrInvalidConfig)
	}
	if cfg.Funding == nil {
		cfg.Funding = big.NewInt(params.Ether)
	}
	if cfg.Funding.Sign() <= 0 {
		return nil, fmt.Errorf("%w: funding must be > 0", ErrInvalidConfig)
	}
	if cfg.MaxLevel == 0 {
		cfg.MaxLevel = DefaultMaxLevel
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Env{client: client, submitter: sub, set: set, cfg: cfg, log: log}, nil
}

func (e *Env) Client() Backend { return e.client }
func (e *Env) Contracts() contracts.Set { return e.set }
func (e *Env) Alpha() eth.Signer { return e.cfg.Alpha }
func (e *Env) Admin() eth.Signer { return e.cfg.Admin }
func (e *Env) Centre() eth.Signer { return e.cfg.Centre }
func (e *Env) Funding() *big.Int { return new(big.Int).Set(e.cfg.Funding) }

// Check proves the node is usable: it answers chain id, its latest header decodes (including
// proof-of-authority extra data) and the fee contract answers a view.
func (e *Env) Check(ctx context.Context) (NodeInfo, error) {
	id, err := e.client.ChainID(ctx)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("conformance: chain id: %w", err)
	}
	head, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("conformance: latest header: %w", err)
	}
	fee, err := e.set.Fee.InitialFee(ctx, nil)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("conformance: fee contract at %s: %w", contracts.FeeAddress, err)
	}
	e.log.Info("node ready", "chain_id", id, "head", head.Number, "initial_fee", fee)
	return NodeInfo{ChainID: id, Head: head.Number.Uint64(), HeadHash: head.Hash(), Fee: fee}, nil
}

// Send submits req from signer. A mined revert is returned as a result with a status-0 receipt.
func (e *Env) Send(ctx context.Context, from eth.Signer, req eth.TxRequest) (eth.SendResult, error) {
	return e.submitter.Submit(ctx, from, req)
}

// Simulate dry-runs req without broadcasting it.
func (e *Env) Simulate(ctx context.Context, from common.Address, req eth.TxRequest) error {
	_, err := eth.Simulate(ctx, e.client, from, req)
	return err
}

// RevertReason recovers the reason of a transaction that was mined with status 0. The replay is
// best effort when other transactions shared its block; see eth.ReplayRevert.
func (e *Env) RevertReason(ctx context.Context, from common.Address, req eth.TxRequest, res eth.SendResult) string {
	reason, err := eth.ReplayRevert(ctx, e.client, from, req, res.Receipt)
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	return reason
}

func (e *Env) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return e.client.BalanceAt(ctx, account, nil)
}

// LevelPrices reads the live deposit for every level up to MaxLevel.
func (e *Env) LevelPrices(ctx context.Context) (map[uint64]*big.Int, error) {
	out := make(map[uint64]*big.Int, e.cfg.MaxLevel+1)
	for lvl := uint64(0); lvl <= e.cfg.MaxLevel; lvl++ {
		p, err := e.set.KYC.LevelPrice(ctx, nil, lvl)
		if err != nil {
			return nil, fmt.Errorf("conformance: level price %d: %w", lvl, err)
		}
		out[lvl] = p
	}
	return out, nil
}

// Centres lists the current holders of the KYC centre role in contract order.
func (e *Env) Centres(ctx context.Context) ([]common.Address, error) {
	n, err := e.set.KYC.RoleMemberCount(ctx, nil, contracts.KYCCentreRole)
	if err != nil {
		return nil, fmt.Errorf("conformance: centre count: %w", err)
	}
	out := make([]common.Address, 0, n)
	for i := uint64(0); i < n; i++ {
		a, err := e.set.KYC.RoleMember(ctx, nil, contracts.KYCCentreRole, i)
		if err != nil {
			return nil, fmt.Errorf("conformance: centre %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}
