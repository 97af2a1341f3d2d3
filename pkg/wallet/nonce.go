package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NonceManager hands out nonces for the signing account. It tracks nonces
// reserved by in-flight executions of this process so concurrent logical
// operations never sign with the same nonce. The manager is thread-safe and
// handles concurrent access through mutex locking.
type NonceManager struct {
	pending map[uint64]time.Time // Reserved nonces and when they were issued
	mu      sync.Mutex
}

// newNonceManager creates a new nonce manager instance.
func newNonceManager() *NonceManager {
	return &NonceManager{
		pending: make(map[uint64]time.Time),
	}
}

// Reserve returns the next nonce not reserved by this process, starting from
// the node's pending nonce for account.
func (nm *NonceManager) Reserve(ctx context.Context, node NodeClient, account common.Address) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	// Get the current nonce from the network
	nonce, err := node.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, err
	}

	// Drop reservations the node has already moved past
	for reserved := range nm.pending {
		if reserved < nonce {
			delete(nm.pending, reserved)
		}
	}

	// Find the next available nonce
	for {
		if _, isPending := nm.pending[nonce]; !isPending {
			nm.pending[nonce] = time.Now()
			return nonce, nil
		}
		nonce++
	}
}

// Release releases a previously reserved nonce.
// This should be called after a transaction is confirmed or fails permanently.
func (nm *NonceManager) Release(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	delete(nm.pending, nonce)
}

// Reserved returns the number of nonces currently reserved.
func (nm *NonceManager) Reserved() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	return len(nm.pending)
}
