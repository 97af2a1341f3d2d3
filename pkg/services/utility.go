package services

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// ChainInspector exposes node state and pre-flight checks. *wallet.Client
// satisfies it.
type ChainInspector interface {
	ChainID() *big.Int
	Address() common.Address
	BlockNumber(ctx context.Context) (uint64, error)
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	QuoteFees(ctx context.Context, policy *wallet.GasPolicy) (*wallet.FeeQuote, error)
	EstimateGas(ctx context.Context, op contracts.Operation, opts *wallet.ExecOptions) (uint64, error)
	Reconcile(ctx context.Context, hash common.Hash, nonce uint64) (*wallet.TransactionStatus, error)
}

// PendingLedger lists submissions still awaiting an outcome.
type PendingLedger interface {
	PendingSubmissions(ctx context.Context, limit int) ([]wallet.Submission, error)
	RecordOutcome(ctx context.Context, hash common.Hash, status *wallet.TransactionStatus) error
}

// FeeQuoteView is a fee quote formatted for callers.
type FeeQuoteView struct {
	Kind                 wallet.FeeKind `json:"kind"`
	GasPrice             string         `json:"gasPrice,omitempty"`
	MaxFeePerGas         string         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas string         `json:"maxPriorityFeePerGas,omitempty"`
	Fallback             bool           `json:"fallback"`
}

// HealthView summarizes the node connection and the signing account.
type HealthView struct {
	ChainID       string      `json:"chainId"`
	BlockNumber   uint64      `json:"blockNumber"`
	Signer        string      `json:"signer"`
	SignerBalance TokenAmount `json:"signerBalance"`
}

// PreflightView is the outcome of a strict gas estimate.
type PreflightView struct {
	Operation string `json:"operation"`
	GasLimit  uint64 `json:"gasLimit"`
}

// ReconcileReport counts the outcomes of one reconciliation pass.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
}

// UtilityService answers operational questions about the chain.
type UtilityService struct {
	base
	inspector ChainInspector
	ledger    PendingLedger
}

// NewUtilityService creates a utility service. ledger may be nil, in which
// case reconciliation is unavailable.
func NewUtilityService(deps Deps, inspector ChainInspector, ledger PendingLedger) *UtilityService {
	return &UtilityService{
		base:      newBase(deps),
		inspector: inspector,
		ledger:    ledger,
	}
}

// FeeQuote returns the current fee quote under the default policy.
func (s *UtilityService) FeeQuote(ctx context.Context) Response {
	quote, err := s.inspector.QuoteFees(ctx, nil)
	if err != nil {
		return Failure(err)
	}

	view := &FeeQuoteView{Kind: quote.Kind, Fallback: quote.Fallback}
	if quote.GasPrice != nil {
		view.GasPrice = quote.GasPrice.String()
	}
	if quote.MaxFeePerGas != nil {
		view.MaxFeePerGas = quote.MaxFeePerGas.String()
	}
	if quote.MaxPriorityFeePerGas != nil {
		view.MaxPriorityFeePerGas = quote.MaxPriorityFeePerGas.String()
	}
	return Success(http.StatusOK, view)
}

// Preflight simulates op strictly, so bad arguments surface as errors
// instead of falling back to a default gas limit.
func (s *UtilityService) Preflight(ctx context.Context, op contracts.Operation) Response {
	gas, err := s.inspector.EstimateGas(ctx, op, &wallet.ExecOptions{Strict: true})
	if err != nil {
		return Failure(err)
	}
	return Success(http.StatusOK, &PreflightView{Operation: op.String(), GasLimit: gas})
}

// Health reports the chain head and the signer balance.
func (s *UtilityService) Health(ctx context.Context) Response {
	block, err := s.inspector.BlockNumber(ctx)
	if err != nil {
		return Failure(err)
	}
	signer := s.inspector.Address()
	balance, err := s.inspector.GetBalance(ctx, signer)
	if err != nil {
		return Failure(err)
	}

	return Success(http.StatusOK, &HealthView{
		ChainID:       s.inspector.ChainID().String(),
		BlockNumber:   block,
		Signer:        signer.Hex(),
		SignerBalance: newTokenAmount(balance),
	})
}

// ReconcilePending checks up to limit unsettled submissions and records the
// ones that reached a final state. Nothing is ever resubmitted.
func (s *UtilityService) ReconcilePending(ctx context.Context, limit int) Response {
	if s.ledger == nil {
		return Failure(wallet.NewValidationError("ledger", "submission ledger is not configured"))
	}

	pending, err := s.ledger.PendingSubmissions(ctx, limit)
	if err != nil {
		return Failure(err)
	}

	report := &ReconcileReport{}
	for _, sub := range pending {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		log := s.log.WithFields(logrus.Fields{
			"operation_id": sub.OperationID,
			"tx_hash":      sub.Hash.Hex(),
			"nonce":        sub.Nonce,
		})

		status, err := s.inspector.Reconcile(ctx, sub.Hash, sub.Nonce)
		if err != nil {
			log.WithError(err).Warn("Failed to reconcile submission")
			report.Errors++
			continue
		}

		switch status.State {
		case wallet.TxStatePending:
			report.Pending++
			continue
		case wallet.TxStateConfirmed:
			report.Confirmed++
		case wallet.TxStateFailed:
			report.Failed++
		case wallet.TxStateDropped:
			report.Dropped++
		}

		if err := s.ledger.RecordOutcome(ctx, sub.Hash, status); err != nil {
			log.WithError(err).Warn("Failed to record reconciled outcome")
			report.Errors++
		}
	}

	s.log.WithFields(logrus.Fields{
		"checked":   report.Checked,
		"confirmed": report.Confirmed,
		"failed":    report.Failed,
		"dropped":   report.Dropped,
		"pending":   report.Pending,
	}).Info("Reconciliation pass finished")

	return Success(http.StatusOK, report)
}
