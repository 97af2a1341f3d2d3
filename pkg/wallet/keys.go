package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyManager holds the single signing credential supplied by the environment.
// It is read-only after construction.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey // The signing key
	address    common.Address    // The derived Ethereum address
}

// NewKeyManager creates a new key manager from a private key string.
// It accepts a hex-encoded private key (with or without 0x prefix) and returns
// an initialized KeyManager instance.
//
// Example:
//
//	km, err := NewKeyManager("0x1234...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	address := km.GetAddress()
func NewKeyManager(privateKeyHex string) (*KeyManager, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &KeyManager{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// GetAddress returns the Ethereum address associated with this key manager.
func (km *KeyManager) GetAddress() common.Address {
	return km.address
}

// SignTx signs tx for chainID with the latest signer rules for that chain.
func (km *KeyManager) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), km.privateKey)
}
