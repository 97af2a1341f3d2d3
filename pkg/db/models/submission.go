package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SubmissionState tracks what became of a signed transaction
type SubmissionState string

const (
	StatePending   SubmissionState = "pending"
	StateConfirmed SubmissionState = "confirmed"
	StateFailed    SubmissionState = "failed"
	StateDropped   SubmissionState = "dropped"
)

// Submission represents the database model for signed transactions
type Submission struct {
	ID          uuid.UUID `gorm:"primaryKey;column:id;type:uuid"`
	OperationID uuid.UUID `gorm:"column:operation_id;type:uuid;not null"`
	Contract    string    `gorm:"column:contract;not null"`
	Method      string    `gorm:"column:method;not null"`

	// Transaction Identity
	TxHash      string `gorm:"column:tx_hash;uniqueIndex;not null"`
	FromAddress string `gorm:"column:from_address;not null"`
	Nonce       int64  `gorm:"column:nonce;not null"`

	// Pricing
	GasLimit int64  `gorm:"column:gas_limit;not null"`
	FeeCap   string `gorm:"column:fee_cap;type:numeric;not null"`

	// AttemptErrors lists the failed submit attempts before the accepted one
	AttemptErrors pq.StringArray `gorm:"column:attempt_errors;type:text[]"`

	// Outcome
	State             SubmissionState `gorm:"column:state;type:submission_state;not null;default:pending"`
	BlockNumber       *int64          `gorm:"column:block_number"`
	GasUsed           *int64          `gorm:"column:gas_used"`
	EffectiveGasPrice *string         `gorm:"column:effective_gas_price;type:numeric"`

	SubmittedAt time.Time  `gorm:"column:submitted_at;not null"`
	SettledAt   *time.Time `gorm:"column:settled_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the Submission model
func (Submission) TableName() string {
	return "submissions"
}
