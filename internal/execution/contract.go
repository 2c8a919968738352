package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/registry"
)

var (
	erc20ABI          = mustABI(registry.ERC20ABI)
	faucetVaultABI    = mustABI(registry.FaucetVaultABI)
	exchangeRouterABI = mustABI(registry.ExchangeRouterABI)
)

// Contract is a deployed contract together with the ABI used to talk to it.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

func NewContract(name, address string, parsed abi.ABI) (Contract, error) {
	if !registry.IsHexAddress(address) {
		return Contract{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid %s address %q", name, address))
	}
	return Contract{Name: name, Address: common.HexToAddress(strings.TrimSpace(address)), ABI: parsed}, nil
}

func ERC20(address string) (Contract, error) {
	return NewContract("erc20", address, erc20ABI)
}

func FaucetVault(address string) (Contract, error) {
	return NewContract("faucet vault", address, faucetVaultABI)
}

func ExchangeRouter(address string) (Contract, error) {
	return NewContract("exchange router", address, exchangeRouterABI)
}

// ReadValue runs a view call at the latest block and returns the decoded outputs.
func (c *Client) ReadValue(ctx context.Context, contract Contract, method string, args ...any) ([]any, error) {
	data, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("pack %s.%s", contract.Name, method), err)
	}
	to := contract.Address
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, fmt.Sprintf("call %s.%s", contract.Name, method), err)
	}
	values, err := contract.ABI.Unpack(method, out)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode %s.%s", contract.Name, method), err)
	}
	return values, nil
}

func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return balance, nil
}

func (c *Client) TokenBalance(ctx context.Context, token Contract, owner common.Address) (*big.Int, error) {
	return c.readBigInt(ctx, token, "balanceOf", owner)
}

func (c *Client) Allowance(ctx context.Context, token Contract, owner, spender common.Address) (*big.Int, error) {
	return c.readBigInt(ctx, token, "allowance", owner, spender)
}

// CanClaim asks the faucet vault whether user is out of cooldown for token.
func (c *Client) CanClaim(ctx context.Context, vault Contract, user, token common.Address) (bool, error) {
	values, err := c.ReadValue(ctx, vault, "canClaim", user, token)
	if err != nil {
		return false, err
	}
	if len(values) != 1 {
		return false, clierr.New(clierr.CodeUnavailable, "canClaim returned no value")
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("canClaim returned %T", values[0]))
	}
	return ok, nil
}

func (c *Client) readBigInt(ctx context.Context, contract Contract, method string, args ...any) (*big.Int, error) {
	values, err := c.ReadValue(ctx, contract, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned %d values", contract.Name, method, len(values)))
	}
	v, ok := toBigInt(values[0])
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s.%s returned %T", contract.Name, method, values[0]))
	}
	return v, nil
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
