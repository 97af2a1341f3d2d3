package wallet

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// TransactionStatus represents the status of a transaction on the blockchain.
type TransactionStatus struct {
	// Hash is the unique transaction identifier
	Hash common.Hash

	// State tracks the current transaction state
	State TransactionState

	// Receipt is set once the transaction is included
	Receipt *types.Receipt

	// BlockNumber is the block height where transaction was mined
	BlockNumber *big.Int

	// GasUsed is the actual amount of gas consumed
	GasUsed uint64

	// EffectiveGasPrice is the actual gas price paid
	EffectiveGasPrice *big.Int

	// Timestamp when the status was last updated
	Timestamp time.Time
}

// TransactionState represents the possible states of a transaction
type TransactionState int

const (
	// TxStatePending indicates transaction is waiting to be mined
	TxStatePending TransactionState = iota

	// TxStateConfirmed indicates transaction was successfully mined
	TxStateConfirmed

	// TxStateFailed indicates transaction was mined but reverted
	TxStateFailed

	// TxStateDropped indicates the nonce was consumed without this transaction
	TxStateDropped
)

// String returns the lower-case state name.
func (s TransactionState) String() string {
	switch s {
	case TxStatePending:
		return "pending"
	case TxStateConfirmed:
		return "confirmed"
	case TxStateFailed:
		return "failed"
	case TxStateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

const (
	// defaultPollInterval is how often to check for receipt
	defaultPollInterval = 2 * time.Second
)

// WaitForReceipt polls until hash is included in a block. One inclusion is
// enough; no additional confirmation depth is awaited. The wait ends only
// with a receipt or with ctx, and is never turned into a resubmission.
//
// Example:
//
//	status, err := client.WaitForReceipt(ctx, txHash)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Transaction included in block %s\n", status.BlockNumber)
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*TransactionStatus, error) {
	ticker := time.NewTicker(c.config.ReceiptPollInterval)
	defer ticker.Stop()

	log := c.log.WithField("tx_hash", hash.Hex())

	for {
		receipt, err := c.node.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return statusFromReceipt(hash, receipt), nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithError(err).Debug("Receipt lookup failed, polling again")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reconcile determines what became of a transaction whose confirmation was
// abandoned. A receipt settles it as confirmed or failed. Without a receipt,
// a node that has moved the account nonce past the transaction's nonce means
// it was dropped or replaced; otherwise it is still pending. Reconcile never
// resubmits.
func (c *Client) Reconcile(ctx context.Context, hash common.Hash, nonce uint64) (*TransactionStatus, error) {
	log := c.log.WithFields(logrus.Fields{
		"tx_hash": hash.Hex(),
		"nonce":   nonce,
	})

	return Run(ctx, log, c.config.RetryPolicy, c.config.ReadTimeout, func(ctx context.Context) (*TransactionStatus, error) {
		receipt, err := c.node.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			status := statusFromReceipt(hash, receipt)
			log.WithField("state", status.State.String()).Info("Reconciled transaction")
			return status, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		pending, err := c.node.PendingNonceAt(ctx, c.Address())
		if err != nil {
			return nil, err
		}

		state := TxStatePending
		if pending > nonce {
			// The pending nonce may have advanced because this very transaction
			// sits in the pool; only a missing transaction means dropped.
			if _, _, lookupErr := c.node.TransactionByHash(ctx, hash); errors.Is(lookupErr, ethereum.NotFound) {
				state = TxStateDropped
			}
		}

		log.WithField("state", state.String()).Info("Reconciled transaction")
		return &TransactionStatus{Hash: hash, State: state, Timestamp: time.Now()}, nil
	})
}

func statusFromReceipt(hash common.Hash, receipt *types.Receipt) *TransactionStatus {
	state := TxStateConfirmed
	if receipt.Status == types.ReceiptStatusFailed {
		state = TxStateFailed
	}

	return &TransactionStatus{
		Hash:              hash,
		State:             state,
		Receipt:           receipt,
		BlockNumber:       receipt.BlockNumber,
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		Timestamp:         time.Now(),
	}
}
