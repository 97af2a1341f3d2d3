package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
)

// NodeClient is the subset of the JSON-RPC node used by this package.
// *ethclient.Client satisfies it.
type NodeClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithLedger records every submission in ledger.
func WithLedger(ledger SubmissionLedger) ClientOption {
	return func(c *Client) {
		c.ledger = ledger
	}
}

// Client executes contract operations against one chain with one signing key.
// The key, contract table and policies are read-only after construction, so a
// Client is safe for concurrent logical operations.
type Client struct {
	node       NodeClient
	config     Config
	registry   *contracts.Registry
	keyManager *KeyManager
	chainID    *big.Int
	gas        *GasEstimator
	fees       *FeeEstimator
	nonces     *NonceManager
	ledger     SubmissionLedger
	log        *logrus.Logger
}

// NewClient dials the configured RPC endpoint and creates a client.
//
// Example:
//
//	cfg, err := NewConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := NewClient(ctx, *cfg, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, config Config, registry *contracts.Registry, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.RPCURL == "" {
		return nil, fmt.Errorf("invalid config: RPC URL is required")
	}

	ethClient, err := dialWithRetry(ctx, config)
	if err != nil {
		return nil, newEnvelope(KindNetwork, "failed to connect to node", true, err)
	}

	client, err := NewClientWithNode(ctx, config, registry, ethClient, opts...)
	if err != nil {
		ethClient.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithNode creates a client over an existing node connection.
func NewClientWithNode(ctx context.Context, config Config, registry *contracts.Registry, node NodeClient, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if registry == nil {
		return nil, fmt.Errorf("contract registry is required")
	}

	keyManager, err := NewKeyManager(config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	chainID, err := node.ChainID(ctx)
	if err != nil {
		return nil, Classify(err)
	}

	expected := config.ChainID
	if expected == 0 {
		expected = registry.ChainID()
	}
	if expected != 0 && chainID.Cmp(big.NewInt(expected)) != 0 {
		return nil, newEnvelope(KindBlockchain, fmt.Sprintf("chain id mismatch: node reports %s, expected %d", chainID, expected), false, nil)
	}

	client := &Client{
		node:       node,
		config:     config,
		registry:   registry,
		keyManager: keyManager,
		chainID:    chainID,
		gas:        NewGasEstimator(node, registry, keyManager.GetAddress(), config.Logger),
		fees:       NewFeeEstimator(node, config.Logger),
		nonces:     newNonceManager(),
		log:        config.Logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.log.WithFields(logrus.Fields{
		"chain_id": chainID.String(),
		"signer":   keyManager.GetAddress().Hex(),
	}).Info("Wallet client initialized")

	return client, nil
}

// Address returns the signing address.
func (c *Client) Address() common.Address {
	return c.keyManager.GetAddress()
}

// ChainID returns the chain id reported by the node at construction.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// ReservedNonces returns the number of nonces held by executions in flight.
func (c *Client) ReservedNonces() int {
	return c.nonces.Reserved()
}

// Registry returns the contract table.
func (c *Client) Registry() *contracts.Registry {
	return c.registry
}

// GetBalance retrieves the native balance of address under the read retry policy.
func (c *Client) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	log := c.log.WithField("address", address.Hex())

	balance, err := Run(ctx, log, c.config.RetryPolicy, c.config.ReadTimeout, func(ctx context.Context) (*big.Int, error) {
		return c.node.BalanceAt(ctx, address, nil)
	})
	if err != nil {
		return nil, err
	}

	log.WithField("balance", balance.String()).Debug("Retrieved balance")
	return balance, nil
}

// BlockNumber returns the latest block number under the read retry policy.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return Run(ctx, c.log, c.config.RetryPolicy, c.config.ReadTimeout, c.node.BlockNumber)
}

// QuoteFees returns a fresh fee quote for the given policy, or the client
// default when policy is nil.
func (c *Client) QuoteFees(ctx context.Context, policy *GasPolicy) (*FeeQuote, error) {
	p := c.config.GasPolicy
	if policy != nil {
		p = *policy
	}
	return c.fees.Quote(ctx, p)
}

// EstimateGas sizes the gas limit of op. Set opts.Strict for pre-flight
// checks that must surface bad arguments.
func (c *Client) EstimateGas(ctx context.Context, op contracts.Operation, opts *ExecOptions) (uint64, error) {
	return c.gas.Estimate(ctx, op, c.resolve(opts))
}

// dialWithRetry attempts to connect to the network with retry mechanism.
// It will retry failed connection attempts based on the network configuration.
func dialWithRetry(ctx context.Context, config Config) (*ethclient.Client, error) {
	var client *ethclient.Client
	var err error

	for i := 0; i <= config.DialRetries; i++ {
		client, err = ethclient.DialContext(ctx, config.RPCURL)
		if err == nil {
			return client, nil
		}

		if i < config.DialRetries {
			config.Logger.WithFields(logrus.Fields{
				"rpc_url": config.RPCURL,
				"attempt": i + 1,
				"error":   err,
			}).Debug("Retrying node connection")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(config.DialRetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", config.DialRetries+1, err)
}

// Close closes the node connection.
func (c *Client) Close() {
	c.node.Close()
	c.log.Debug("Closed node connection")
}
