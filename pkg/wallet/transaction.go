package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
)

// ExecOptions are per-call overrides. Nil policies mean the client defaults.
type ExecOptions struct {
	// GasPolicy overrides the client gas policy
	GasPolicy *GasPolicy

	// RetryPolicy overrides the client retry policy
	RetryPolicy *RetryPolicy

	// Strict propagates simulation failures instead of using method defaults
	Strict bool

	// SkipSimulation uses the method default gas limit without simulating
	SkipSimulation bool

	// Timeout overrides the read or write budget
	Timeout time.Duration

	// Value is the native amount sent with the call
	Value *big.Int
}

func (o ExecOptions) gasPolicy() GasPolicy {
	if o.GasPolicy != nil {
		return *o.GasPolicy
	}
	return DefaultGasPolicy()
}

// resolve copies opts and fills unset fields from the client configuration.
func (c *Client) resolve(opts *ExecOptions) ExecOptions {
	var resolved ExecOptions
	if opts != nil {
		resolved = *opts
	}
	if resolved.GasPolicy == nil {
		policy := c.config.GasPolicy
		resolved.GasPolicy = &policy
	}
	if resolved.RetryPolicy == nil {
		policy := c.config.RetryPolicy
		resolved.RetryPolicy = &policy
	}
	return resolved
}

// ExecutionResult describes a confirmed transaction.
type ExecutionResult struct {
	OperationID     string
	TransactionHash common.Hash
	Receipt         *types.Receipt
	Nonce           uint64
	GasLimit        uint64
	GasUsed         uint64

	// EffectiveFeePerGas is the price per gas actually paid
	EffectiveFeePerGas *big.Int

	// TotalCost is GasUsed × EffectiveFeePerGas in wei
	TotalCost *big.Int
}

// TotalCostEther returns TotalCost in ether.
func (r *ExecutionResult) TotalCostEther() decimal.Decimal {
	return decimal.NewFromBigInt(r.TotalCost, -18)
}

// Submission is what the ledger records about a signed transaction.
type Submission struct {
	OperationID string
	Contract    contracts.ContractName
	Method      contracts.Method
	Hash        common.Hash
	From        common.Address
	Nonce       uint64
	GasLimit    uint64
	FeeCap      *big.Int
	Attempts    []string
	SubmittedAt time.Time
}

// SubmissionLedger records submissions so transactions whose confirmation
// was abandoned can be reconciled later. Ledger failures are logged and
// never fail an execution.
type SubmissionLedger interface {
	RecordSubmitted(ctx context.Context, submission Submission) error
	RecordOutcome(ctx context.Context, hash common.Hash, status *TransactionStatus) error
}

// Execute submits a state-changing operation and waits for its inclusion.
//
// The gas limit and fee quote are computed once per call. Submission runs
// under the retry policy; the nonce is pinned on the first attempt and a
// transaction the node already knows is never signed again. Waiting for the
// receipt is not retried. The whole call is bounded by the write timeout;
// when it expires after submission the returned envelope carries TxHash so
// the caller can reconcile instead of resubmitting.
//
// Example:
//
//	result, err := client.Execute(ctx, contracts.Mint(to, amount), nil)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.TransactionHash.Hex(), result.TotalCostEther())
func (c *Client) Execute(ctx context.Context, op contracts.Operation, opts *ExecOptions) (*ExecutionResult, error) {
	resolved := c.resolve(opts)

	if op.ReadOnly {
		return nil, NewValidationError("operation", fmt.Sprintf("%s is read-only, use Call", op))
	}

	to, data, err := c.registry.Pack(op)
	if err != nil {
		return nil, NewValidationError("operation", err.Error())
	}

	operationID := uuid.New().String()
	log := c.log.WithFields(logrus.Fields{
		"operation_id": operationID,
		"contract":     op.Contract,
		"method":       op.Method,
	})

	timeout := resolved.Timeout
	if timeout <= 0 {
		timeout = c.config.WriteTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	gasLimit, err := c.gas.Estimate(ctx, op, resolved)
	if err != nil {
		log.WithError(err).Warn("Gas estimation failed")
		return nil, err
	}

	quote, err := c.fees.Quote(ctx, *resolved.GasPolicy)
	if err != nil {
		log.WithError(err).Warn("Fee quote failed")
		return nil, err
	}

	sub := &submission{
		client:   c,
		to:       to,
		data:     data,
		value:    resolved.Value,
		gasLimit: gasLimit,
		quote:    quote,
		log:      log,
	}
	defer sub.close()

	signed, err := Run(ctx, log, *resolved.RetryPolicy, timeout, sub.attempt)
	if err != nil {
		// An abandoned attempt may still be running; stop it from signing
		// anything new before reading what it signed.
		sub.close()

		env := Classify(err)
		if hash, ok := sub.signedHash(); ok {
			// The signed transaction may have been accepted before the
			// failure. Resubmitting would spend a second nonce, so the
			// caller must reconcile by hash instead.
			pinned := *env
			pinned.Retryable = false
			pinned.TxHash = &hash
			env = &pinned
			c.recordSubmitted(ctx, log, sub.record(operationID, op, hash))
		}
		log.WithError(err).Error("Transaction submission failed")
		return nil, env
	}

	hash := signed.Hash()
	log = log.WithFields(logrus.Fields{
		"tx_hash": hash.Hex(),
		"nonce":   signed.Nonce(),
	})
	log.WithFields(logrus.Fields{
		"gas_limit": gasLimit,
		"fee_kind":  quote.Kind,
		"fee_cap":   quote.FeeCap().String(),
	}).Info("Transaction submitted")

	c.recordSubmitted(ctx, log, sub.record(operationID, op, hash))

	status, err := c.WaitForReceipt(ctx, hash)
	if err != nil {
		log.WithError(err).Error("Transaction confirmation abandoned")
		if errors.Is(err, context.DeadlineExceeded) {
			env := newEnvelope(KindNetwork, "Operation timeout", false, fmt.Errorf("%w: waiting for receipt: %v", ErrOperationTimeout, err))
			env.TxHash = &hash
			return nil, env
		}
		env := Classify(err)
		env.TxHash = &hash
		return nil, env
	}

	c.recordOutcome(ctx, log, hash, status)

	if status.State == TxStateFailed {
		log.WithField("block", status.BlockNumber).Warn("Transaction reverted on chain")
		env := newEnvelope(KindContract, "transaction reverted", false, nil)
		env.TxHash = &hash
		return nil, env
	}

	feePerGas := status.EffectiveGasPrice
	if feePerGas == nil {
		feePerGas = quote.FeeCap()
	}
	totalCost := new(big.Int).Mul(new(big.Int).SetUint64(status.GasUsed), feePerGas)

	result := &ExecutionResult{
		OperationID:        operationID,
		TransactionHash:    hash,
		Receipt:            status.Receipt,
		Nonce:              signed.Nonce(),
		GasLimit:           gasLimit,
		GasUsed:            status.GasUsed,
		EffectiveFeePerGas: feePerGas,
		TotalCost:          totalCost,
	}

	log.WithFields(logrus.Fields{
		"block":      status.BlockNumber,
		"gas_used":   status.GasUsed,
		"total_cost": result.TotalCostEther().String(),
	}).Info("Transaction confirmed")

	return result, nil
}

// Call performs a read-only operation under the read timeout and returns the
// decoded outputs.
func (c *Client) Call(ctx context.Context, op contracts.Operation, opts *ExecOptions) ([]interface{}, error) {
	resolved := c.resolve(opts)

	if !op.ReadOnly {
		return nil, NewValidationError("operation", fmt.Sprintf("%s changes state, use Execute", op))
	}

	to, data, err := c.registry.Pack(op)
	if err != nil {
		return nil, NewValidationError("operation", err.Error())
	}

	timeout := resolved.Timeout
	if timeout <= 0 {
		timeout = c.config.ReadTimeout
	}

	log := c.log.WithFields(logrus.Fields{
		"contract": op.Contract,
		"method":   op.Method,
	})

	return Run(ctx, log, *resolved.RetryPolicy, timeout, func(ctx context.Context) ([]interface{}, error) {
		raw, err := c.node.CallContract(ctx, ethereum.CallMsg{
			From: c.Address(),
			To:   &to,
			Data: data,
		}, nil)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			return nil, newEnvelope(KindContract, fmt.Sprintf("%s returned no data, contract not found at %s", op, to.Hex()), false, nil)
		}

		out, err := c.registry.Unpack(op, raw)
		if err != nil {
			return nil, newEnvelope(KindBlockchain, "failed to decode call result", false, err)
		}
		return out, nil
	})
}

// submission is the retryable submit step of one Execute call.
type submission struct {
	client   *Client
	to       common.Address
	data     []byte
	value    *big.Int
	gasLimit uint64
	quote    *FeeQuote
	log      *logrus.Entry

	// mu guards the fields below. It is never held across node calls, so
	// Execute can give up on an attempt that ignores its context.
	mu       sync.Mutex
	nonce    *uint64
	signed   *types.Transaction
	failures []string
	closed   bool
}

// errSubmissionClosed is returned by an attempt that outlived its Execute call.
var errSubmissionClosed = errors.New("submission abandoned")

// attempt sends the pinned transaction, signing it first when needed.
// Resending identical signed bytes is idempotent: the node either accepts it
// once or reports it as known.
func (s *submission) attempt(ctx context.Context) (*types.Transaction, error) {
	c := s.client

	signed := s.current()
	if signed != nil {
		known, err := s.isKnown(ctx, signed.Hash())
		if err != nil {
			return nil, s.fail(err)
		}
		if known {
			s.log.WithField("tx_hash", signed.Hash().Hex()).Info("Previous attempt reached the node, not resubmitting")
			return signed, nil
		}
	} else {
		var err error
		if signed, err = s.sign(ctx); err != nil {
			return nil, s.fail(err)
		}
	}

	err := c.node.SendTransaction(ctx, signed)
	if err == nil || isAlreadyKnown(err) {
		return signed, nil
	}

	if isNonceTooLow(err) {
		known, lookupErr := s.isKnown(ctx, signed.Hash())
		if lookupErr == nil && known {
			return signed, nil
		}
		if lookupErr == nil {
			// The nonce was consumed by another transaction; sign again
			// with a fresh nonce on the next attempt.
			s.discard(signed)
		}
	}

	return nil, s.fail(err)
}

func (s *submission) current() *types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signed
}

func (s *submission) sign(ctx context.Context) (*types.Transaction, error) {
	c := s.client

	s.mu.Lock()
	pinned := s.nonce
	s.mu.Unlock()

	var nonce uint64
	if pinned != nil {
		nonce = *pinned
	} else {
		reserved, err := c.nonces.Reserve(ctx, c.node, c.Address())
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			c.nonces.Release(reserved)
			return nil, errSubmissionClosed
		}
		s.nonce = &reserved
		s.mu.Unlock()
		nonce = reserved
	}

	var txData types.TxData
	switch s.quote.Kind {
	case FeeEIP1559:
		txData = &types.DynamicFeeTx{
			ChainID:   c.chainID,
			Nonce:     nonce,
			GasTipCap: s.quote.MaxPriorityFeePerGas,
			GasFeeCap: s.quote.MaxFeePerGas,
			Gas:       s.gasLimit,
			To:        &s.to,
			Value:     valueOrZero(s.value),
			Data:      s.data,
		}
	default:
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: s.quote.GasPrice,
			Gas:      s.gasLimit,
			To:       &s.to,
			Value:    valueOrZero(s.value),
			Data:     s.data,
		}
	}

	signed, err := c.keyManager.SignTx(types.NewTx(txData), c.chainID)
	if err != nil {
		return nil, NewValidationError("transaction", fmt.Sprintf("failed to sign transaction: %v", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSubmissionClosed
	}
	s.signed = signed
	return signed, nil
}

func (s *submission) isKnown(ctx context.Context, hash common.Hash) (bool, error) {
	_, _, err := s.client.node.TransactionByHash(ctx, hash)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	return false, err
}

// discard forgets signed and its nonce so the next attempt signs afresh.
func (s *submission) discard(signed *types.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signed != signed {
		return
	}
	s.releaseNonceLocked()
	s.signed = nil
}

func (s *submission) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, err.Error())
	return err
}

func (s *submission) signedHash() (common.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signed == nil {
		return common.Hash{}, false
	}
	return s.signed.Hash(), true
}

func (s *submission) record(operationID string, op contracts.Operation, hash common.Hash) Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nonce uint64
	if s.signed != nil {
		nonce = s.signed.Nonce()
	}
	return Submission{
		OperationID: operationID,
		Contract:    op.Contract,
		Method:      op.Method,
		Hash:        hash,
		From:        s.client.Address(),
		Nonce:       nonce,
		GasLimit:    s.gasLimit,
		FeeCap:      s.quote.FeeCap(),
		Attempts:    append([]string(nil), s.failures...),
		SubmittedAt: time.Now().UTC(),
	}
}

// close releases the reserved nonce and stops later attempts from signing.
// It is safe to call more than once.
func (s *submission) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.releaseNonceLocked()
}

func (s *submission) releaseNonceLocked() {
	if s.nonce != nil {
		s.client.nonces.Release(*s.nonce)
		s.nonce = nil
	}
}

func (c *Client) recordSubmitted(ctx context.Context, log *logrus.Entry, sub Submission) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.RecordSubmitted(context.WithoutCancel(ctx), sub); err != nil {
		log.WithError(err).Warn("Failed to record submission")
	}
}

func (c *Client) recordOutcome(ctx context.Context, log *logrus.Entry, hash common.Hash, status *TransactionStatus) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.RecordOutcome(context.WithoutCancel(ctx), hash, status); err != nil {
		log.WithError(err).Warn("Failed to record transaction outcome")
	}
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
