package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

var privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ErrKeyFormat is returned for input that is not 0x followed by 64 hex characters.
var ErrKeyFormat = errors.New(`private key must start with "0x" and be 66 characters long`)

// LocalSigner signs with an in-memory key. It never serializes the key.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.privateKey == nil {
		return nil, errors.New("local signer is not initialized")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// LooksLikePrivateKey is the cheap shape check applied to chat input before
// any parsing happens.
func LooksLikePrivateKey(raw string) bool {
	return privateKeyPattern.MatchString(strings.TrimSpace(raw))
}

// NewLocalSignerFromHex parses a 0x-prefixed secp256k1 private key.
func NewLocalSignerFromHex(raw string) (*LocalSigner, error) {
	clean := strings.TrimSpace(raw)
	if !LooksLikePrivateKey(clean) {
		return nil, clierr.Wrap(clierr.CodeUsage, "invalid private key", ErrKeyFormat)
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(clean, "0x"))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "invalid private key", fmt.Errorf("parse private key: %w", err))
	}
	return newLocalSigner(pk)
}

func newLocalSigner(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, clierr.New(clierr.CodeSigner, "invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}
