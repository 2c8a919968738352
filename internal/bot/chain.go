package bot

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/execution/signer"
	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

// Chain is the on-chain surface the conversation needs.
type Chain interface {
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Claim(ctx context.Context, s signer.Signer, token common.Address, amount *big.Int) (tracker.Handle, error)
	Approve(ctx context.Context, s signer.Signer, token, spender common.Address, amount *big.Int) (tracker.Handle, error)
	PlaceOrder(ctx context.Context, s signer.Signer, calls []execution.Call) (tracker.Handle, error)
}

type facadeChain struct {
	client *execution.Client
	vault  execution.Contract
	router execution.Contract
}

// NewChain binds the facade client to the faucet vault and exchange router.
func NewChain(client *execution.Client, faucetVault, exchangeRouter string) (Chain, error) {
	vault, err := execution.FaucetVault(faucetVault)
	if err != nil {
		return nil, err
	}
	router, err := execution.ExchangeRouter(exchangeRouter)
	if err != nil {
		return nil, err
	}
	return &facadeChain{client: client, vault: vault, router: router}, nil
}

func (f *facadeChain) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.client.NativeBalance(ctx, account)
}

func (f *facadeChain) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20, err := execution.ERC20(token.Hex())
	if err != nil {
		return nil, err
	}
	return f.client.TokenBalance(ctx, erc20, owner)
}

func (f *facadeChain) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	erc20, err := execution.ERC20(token.Hex())
	if err != nil {
		return nil, err
	}
	return f.client.Allowance(ctx, erc20, owner, spender)
}

func (f *facadeChain) Claim(ctx context.Context, s signer.Signer, token common.Address, amount *big.Int) (tracker.Handle, error) {
	return pending(f.client.SubmitWrite(ctx, s, f.vault, "claimTokens", token, amount))
}

func (f *facadeChain) Approve(ctx context.Context, s signer.Signer, token, spender common.Address, amount *big.Int) (tracker.Handle, error) {
	erc20, err := execution.ERC20(token.Hex())
	if err != nil {
		return nil, err
	}
	return pending(f.client.SubmitWrite(ctx, s, erc20, "approve", spender, amount))
}

func (f *facadeChain) PlaceOrder(ctx context.Context, s signer.Signer, calls []execution.Call) (tracker.Handle, error) {
	payloads, err := execution.EncodeMulticall(f.router, calls)
	if err != nil {
		return nil, err
	}
	return pending(f.client.SubmitWrite(ctx, s, f.router, "multicall", payloads))
}

// pending keeps a nil *PendingTx from becoming a non-nil Handle.
func pending(tx *execution.PendingTx, err error) (tracker.Handle, error) {
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// boundedChain gives every chain call its own deadline. Handlers run under the
// chat lock, so a stalled RPC must not outlive it.
type boundedChain struct {
	next    Chain
	timeout time.Duration
}

func (b boundedChain) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.NativeBalance(ctx, account)
}

func (b boundedChain) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.TokenBalance(ctx, token, owner)
}

func (b boundedChain) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Allowance(ctx, token, owner, spender)
}

func (b boundedChain) Claim(ctx context.Context, s signer.Signer, token common.Address, amount *big.Int) (tracker.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Claim(ctx, s, token, amount)
}

func (b boundedChain) Approve(ctx context.Context, s signer.Signer, token, spender common.Address, amount *big.Int) (tracker.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Approve(ctx, s, token, spender, amount)
}

func (b boundedChain) PlaceOrder(ctx context.Context, s signer.Signer, calls []execution.Call) (tracker.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.PlaceOrder(ctx, s, calls)
}

type boundedPrices struct {
	next    PriceFeed
	timeout time.Duration
}

func (b boundedPrices) Tickers(ctx context.Context) ([]pricefeed.Ticker, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Tickers(ctx)
}

func (b boundedPrices) MarketTokenFor(ctx context.Context, indexToken string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.MarketTokenFor(ctx, indexToken)
}
