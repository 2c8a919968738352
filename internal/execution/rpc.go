package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

// Backend is the subset of the JSON-RPC surface the facade needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

type Options struct {
	// ChainID, when non-zero, must match the endpoint's chain id.
	ChainID            int64
	Simulate           bool
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	Logger             zerolog.Logger
}

func DefaultOptions() Options {
	return Options{
		Simulate:      true,
		GasMultiplier: 1.2,
		Logger:        zerolog.Nop(),
	}
}

// Client reads from and writes to one chain.
type Client struct {
	backend Backend
	opts    Options
	log     zerolog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// Dial connects to rpcURL and verifies the chain id when opts.ChainID is set.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	url := strings.TrimSpace(rpcURL)
	if url == "" {
		return nil, clierr.New(clierr.CodeUsage, "missing rpc url")
	}
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	client := NewClient(ethBackend{ec}, opts)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, err
	}
	if opts.ChainID != 0 && chainID.Int64() != opts.ChainID {
		ec.Close()
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc chain mismatch: expected %d, got %s", opts.ChainID, chainID))
	}
	return client, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, opts Options) *Client {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &Client{backend: backend, opts: opts, log: opts.Logger}
}

func (c *Client) Close() {
	if c != nil && c.backend != nil {
		c.backend.Close()
	}
}

// ChainID returns the endpoint chain id, fetched once.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	c.chainID = new(big.Int).Set(id)
	return id, nil
}

type ethBackend struct {
	*ethclient.Client
}

// BaseFee reads the pending block's base fee, falling back to latest and then
// to 1 gwei on chains that do not report one.
func (b ethBackend) BaseFee(ctx context.Context) (*big.Int, error) {
	var block struct {
		BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
	}
	err := b.Client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", "pending", false)
	if err != nil {
		if retryErr := b.Client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", "latest", false); retryErr != nil {
			return nil, err
		}
	}
	if block.BaseFeePerGas == nil {
		return big.NewInt(1_000_000_000), nil
	}
	return new(big.Int).Set((*big.Int)(block.BaseFeePerGas)), nil
}
