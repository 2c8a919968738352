package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/registry"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155AssetPattern = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
	txHashPattern      = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Decimals int
}

var devnet = Chain{
	Name:       "Movement Devnet",
	Slug:       "movement-devnet",
	CAIP2:      fmt.Sprintf("eip155:%d", registry.DevnetChainID),
	EVMChainID: registry.DevnetChainID,
}

var chainBySlug = map[string]Chain{
	"movement-devnet": devnet,
	"devnet":          devnet,
}

var chainByID = map[int64]Chain{
	registry.DevnetChainID: devnet,
}

// ParseChain accepts a slug, a numeric chain id, or a CAIP-2 identifier.
func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		return ChainByID(id), nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil && id > 0 {
		return ChainByID(id), nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ChainByID returns the known chain for id, or a generic EVM entry.
func ChainByID(id int64) Chain {
	if known, ok := chainByID[id]; ok {
		return known
	}
	return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id}
}

// ParseAsset resolves a faucet token by symbol, address, or CAIP-19 id.
func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(raw) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if strings.ToLower(parts[0]) != chain.CAIP2 {
			return Asset{}, clierr.New(clierr.CodeUsage, "asset chain does not match --chain")
		}
		raw = strings.TrimPrefix(strings.ToLower(parts[1]), "erc20:")
	}

	if evmAddressPattern.MatchString(raw) {
		addr := strings.ToLower(raw)
		asset := Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr}
		for _, token := range registry.FaucetTokens() {
			if strings.EqualFold(token.Address, addr) {
				asset.Symbol = token.Symbol
				asset.Decimals = token.Decimals
				break
			}
		}
		return asset, nil
	}

	token, ok := registry.FaucetToken(raw)
	if !ok {
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
	}
	addr := strings.ToLower(token.Address)
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  canonicalAssetID(chain.CAIP2, addr),
		Address:  addr,
		Symbol:   token.Symbol,
		Decimals: token.Decimals,
	}, nil
}

// ParseTxHash validates a 32-byte hex transaction hash.
func ParseTxHash(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if !txHashPattern.MatchString(raw) {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash: %s", input))
	}
	return strings.ToLower(raw), nil
}

func canonicalAssetID(chainID, address string) string {
	return fmt.Sprintf("%s/erc20:%s", chainID, strings.ToLower(strings.TrimSpace(address)))
}
