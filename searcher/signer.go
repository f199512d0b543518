package searcher

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer authenticates relay requests. SignMessage must produce an EIP-191 personal signature
// (65 bytes, v in {27, 28}) over msg.
type Signer interface {
	Address() common.Address
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
}

type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewPrivateKeySignerFromHex accepts a hex private key with or without 0x prefix.
func NewPrivateKeySignerFromHex(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return NewPrivateKeySigner(key), nil
}

// RandomSigner is enough for relays that only use the signature as a reputation identity.
func RandomSigner() (*PrivateKeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewPrivateKeySigner(key), nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignatureHeader builds the X-Flashbots-Signature value for a request body.
func SignatureHeader(ctx context.Context, signer Signer, body []byte) (string, error) {
	hash := crypto.Keccak256Hash(body).Hex()
	sig, err := signer.SignMessage(ctx, []byte(hash))
	if err != nil {
		return "", &SigningError{Err: err}
	}
	return signer.Address().Hex() + ":" + hexutil.Encode(sig), nil
}
