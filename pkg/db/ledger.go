package db

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lisanmuaddib/taskchain/pkg/contracts"
	"github.com/lisanmuaddib/taskchain/pkg/db/models"
	"github.com/lisanmuaddib/taskchain/pkg/wallet"
)

// Ledger stores every signed transaction and its final outcome so that
// submissions whose confirmation was abandoned can be reconciled later.
type Ledger struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewLedger creates a ledger over an open connection.
func NewLedger(db *gorm.DB, logger *logrus.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// RecordSubmitted inserts a submission. Recording the same hash twice is a
// no-op.
func (l *Ledger) RecordSubmitted(ctx context.Context, sub wallet.Submission) error {
	row, err := submissionRow(sub)
	if err != nil {
		return err
	}

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to record submission %s: %w", sub.Hash.Hex(), result.Error)
	}

	l.logger.WithFields(logrus.Fields{
		"operation_id": sub.OperationID,
		"tx_hash":      row.TxHash,
		"nonce":        sub.Nonce,
	}).Debug("Recorded submission")
	return nil
}

// RecordOutcome stores the state a submission reached.
func (l *Ledger) RecordOutcome(ctx context.Context, hash common.Hash, status *wallet.TransactionStatus) error {
	result := l.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("tx_hash = ?", hash.Hex()).
		Updates(outcomeUpdates(status, time.Now().UTC()))
	if result.Error != nil {
		return fmt.Errorf("failed to record outcome of %s: %w", hash.Hex(), result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("submission %s is not in the ledger", hash.Hex())
	}

	l.logger.WithFields(logrus.Fields{
		"tx_hash": hash.Hex(),
		"state":   status.State.String(),
	}).Debug("Recorded submission outcome")
	return nil
}

// PendingSubmissions returns up to limit unsettled submissions, oldest first.
func (l *Ledger) PendingSubmissions(ctx context.Context, limit int) ([]wallet.Submission, error) {
	var rows []models.Submission
	err := l.db.WithContext(ctx).
		Where("state = ?", models.StatePending).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending submissions: %w", err)
	}

	subs := make([]wallet.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, toSubmission(row))
	}
	return subs, nil
}

func submissionRow(sub wallet.Submission) (models.Submission, error) {
	operationID, err := uuid.Parse(sub.OperationID)
	if err != nil {
		return models.Submission{}, fmt.Errorf("invalid operation id %q: %w", sub.OperationID, err)
	}

	feeCap := "0"
	if sub.FeeCap != nil {
		feeCap = sub.FeeCap.String()
	}

	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	return models.Submission{
		ID:            uuid.New(),
		OperationID:   operationID,
		Contract:      string(sub.Contract),
		Method:        string(sub.Method),
		TxHash:        sub.Hash.Hex(),
		FromAddress:   sub.From.Hex(),
		Nonce:         int64(sub.Nonce),
		GasLimit:      int64(sub.GasLimit),
		FeeCap:        feeCap,
		AttemptErrors: pq.StringArray(sub.Attempts),
		State:         models.StatePending,
		SubmittedAt:   submittedAt,
	}, nil
}

func toSubmission(row models.Submission) wallet.Submission {
	feeCap, ok := new(big.Int).SetString(row.FeeCap, 10)
	if !ok {
		feeCap = nil
	}

	return wallet.Submission{
		OperationID: row.OperationID.String(),
		Contract:    contracts.ContractName(row.Contract),
		Method:      contracts.Method(row.Method),
		Hash:        common.HexToHash(row.TxHash),
		From:        common.HexToAddress(row.FromAddress),
		Nonce:       uint64(row.Nonce),
		GasLimit:    uint64(row.GasLimit),
		FeeCap:      feeCap,
		Attempts:    []string(row.AttemptErrors),
		SubmittedAt: row.SubmittedAt,
	}
}

func stateFor(state wallet.TransactionState) models.SubmissionState {
	switch state {
	case wallet.TxStateConfirmed:
		return models.StateConfirmed
	case wallet.TxStateFailed:
		return models.StateFailed
	case wallet.TxStateDropped:
		return models.StateDropped
	default:
		return models.StatePending
	}
}

func outcomeUpdates(status *wallet.TransactionStatus, now time.Time) map[string]interface{} {
	state := stateFor(status.State)
	updates := map[string]interface{}{
		"state":      state,
		"updated_at": now,
	}
	if state != models.StatePending {
		updates["settled_at"] = now
	}
	if status.BlockNumber != nil {
		updates["block_number"] = status.BlockNumber.Int64()
	}
	if status.GasUsed > 0 {
		updates["gas_used"] = int64(status.GasUsed)
	}
	if status.EffectiveGasPrice != nil {
		updates["effective_gas_price"] = status.EffectiveGasPrice.String()
	}
	return updates
}
